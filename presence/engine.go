// Package presence turns per-frame identity labels into debounced presence alerts.
//
// Each label moves through Unseen -> Present <-> Absent. Observations are filtered
// by box size and a startup grace period, and the unknown label additionally needs
// several consecutive observations before it counts, both on entry and on return after
// it went absent. Absence is detected by Sweep
// once an identity has not been observed for longer than the alert timeout.
//
// Aggregate signals are computed by Sweep only. When a sweep leaves every known
// identity absent and at least two identities are known, the Exited events of that
// sweep are replaced by a single AllGone event. With a single known identity its
// Exited already tells that the room is empty, so no AllGone is raised. The first
// sweep that finds the room occupied again after AllGone raises SomeoneReturned.
package presence

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/LdDl/presence-go/internal/fault"
)

// IdentityState is a read-only snapshot of one label's presence state
type IdentityState struct {
	Label      string
	LastSeenAt time.Time
	// AlertActive is true while the identity is considered absent
	AlertActive bool
	Confirmed   bool
}

type identity struct {
	lastSeenAt  time.Time
	alertActive bool
	confirmed   bool
}

// Engine keeps presence state per identity label.
// It is not safe for concurrent use; use one Engine per video source.
type Engine struct {
	cfg          Config
	identities   map[string]*identity
	sessionStart time.Time
	// Consecutive unknown observations since the last known one
	unconfirmedUnknown int
	// Latched after AllGone until the room is occupied again
	vacated bool
}

// NewEngine creates an engine with the given policies
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:        cfg,
		identities: make(map[string]*identity),
	}, nil
}

// NewEngineDefault creates an engine with the reference policies
func NewEngineDefault() *Engine {
	engine, err := NewEngine(DefaultConfig())
	if err != nil {
		panic("default presence config must be valid: " + err.Error())
	}
	return engine
}

// Config returns the engine policies
func (engine *Engine) Config() Config {
	return engine.cfg
}

// Begin marks the start of a detection session; the startup grace period counts from here.
// Without Begin the first Observe call starts the session.
func (engine *Engine) Begin(now time.Time) {
	engine.sessionStart = now
}

// SessionStart returns the start of the current detection session, zero if none
func (engine *Engine) SessionStart() time.Time {
	return engine.sessionStart
}

// Reset forgets every identity and the session start
func (engine *Engine) Reset() {
	engine.identities = make(map[string]*identity)
	engine.sessionStart = time.Time{}
	engine.unconfirmedUnknown = 0
	engine.vacated = false
}

// Observe feeds one detected face with its recognized label and box size.
// Rejected observations (small box, startup grace, unconfirmed unknown) return no events and no error.
func (engine *Engine) Observe(label string, boxWidth, boxHeight float64, now time.Time) ([]Event, error) {
	if math.IsNaN(boxWidth) || math.IsInf(boxWidth, 0) || math.IsNaN(boxHeight) || math.IsInf(boxHeight, 0) {
		return nil, fault.Invalidf("box size %vx%v is not finite", boxWidth, boxHeight)
	}
	if boxWidth < 0 || boxHeight < 0 {
		return nil, fault.Invalidf("box size %vx%v is negative", boxWidth, boxHeight)
	}
	if now.IsZero() {
		return nil, fault.Invalidf("observation timestamp is zero")
	}

	if boxWidth < engine.cfg.MinBoxSize || boxHeight < engine.cfg.MinBoxSize {
		return nil, nil
	}
	if engine.sessionStart.IsZero() {
		engine.sessionStart = now
	}
	if now.Sub(engine.sessionStart) < engine.cfg.StartupGrace {
		return nil, nil
	}

	label = strings.TrimSpace(label)
	if label == "" {
		label = engine.cfg.UnknownLabel
	}
	if label != engine.cfg.UnknownLabel {
		engine.unconfirmedUnknown = 0
		return engine.see(label, false, now), nil
	}

	engine.unconfirmedUnknown++
	if engine.unconfirmedUnknown < engine.cfg.UnknownConfirmFrames {
		return nil, nil
	}
	return engine.see(label, true, now), nil
}

func (engine *Engine) see(label string, unknown bool, now time.Time) []Event {
	state, ok := engine.identities[label]
	if !ok {
		engine.identities[label] = &identity{
			lastSeenAt: now,
			confirmed:  true,
		}
		return []Event{newEvent(Entered, label, unknown, now)}
	}
	if now.After(state.lastSeenAt) {
		state.lastSeenAt = now
	}
	if state.alertActive {
		state.alertActive = false
		return []Event{newEvent(Returned, label, unknown, now)}
	}
	return nil
}

// Sweep detects identities that timed out and derives the aggregate room signals.
// Call it once per frame after all observations of that frame.
func (engine *Engine) Sweep(now time.Time) ([]Event, error) {
	if now.IsZero() {
		return nil, fault.Invalidf("sweep timestamp is zero")
	}
	if len(engine.identities) == 0 {
		return nil, nil
	}

	labels := engine.labels()
	var exits []Event
	allAbsent := true
	for _, label := range labels {
		state := engine.identities[label]
		if now.Sub(state.lastSeenAt) > engine.cfg.AlertTimeout && !state.alertActive {
			state.alertActive = true
			unknown := label == engine.cfg.UnknownLabel
			if unknown {
				// An absent unknown face has to be confirmed again before it counts as returned
				engine.unconfirmedUnknown = 0
			}
			exits = append(exits, newEvent(Exited, label, unknown, now))
		}
		if !state.alertActive {
			allAbsent = false
		}
	}

	switch {
	case allAbsent && !engine.vacated && len(labels) > 1:
		engine.vacated = true
		return []Event{newAggregateEvent(AllGone, labels, now)}, nil
	case !allAbsent && engine.vacated:
		engine.vacated = false
		return append(exits, newAggregateEvent(SomeoneReturned, engine.presentLabels(), now)), nil
	}
	return exits, nil
}

// Vacated reports whether AllGone has been raised and nobody came back since
func (engine *Engine) Vacated() bool {
	return engine.vacated
}

// UnconfirmedUnknownFrames returns the running count of consecutive unknown observations
func (engine *Engine) UnconfirmedUnknownFrames() int {
	return engine.unconfirmedUnknown
}

// Identity returns the state of a single label
func (engine *Engine) Identity(label string) (IdentityState, bool) {
	state, ok := engine.identities[label]
	if !ok {
		return IdentityState{}, false
	}
	return snapshot(label, state), true
}

// Identities returns every known identity ordered by label
func (engine *Engine) Identities() []IdentityState {
	labels := engine.labels()
	result := make([]IdentityState, 0, len(labels))
	for _, label := range labels {
		result = append(result, snapshot(label, engine.identities[label]))
	}
	return result
}

func (engine *Engine) labels() []string {
	labels := make([]string, 0, len(engine.identities))
	for label := range engine.identities {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

func (engine *Engine) presentLabels() []string {
	present := make([]string, 0)
	for _, label := range engine.labels() {
		if !engine.identities[label].alertActive {
			present = append(present, label)
		}
	}
	return present
}

func snapshot(label string, state *identity) IdentityState {
	return IdentityState{
		Label:       label,
		LastSeenAt:  state.lastSeenAt,
		AlertActive: state.alertActive,
		Confirmed:   state.confirmed,
	}
}
