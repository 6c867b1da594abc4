// Package session drives a SpatialTracker and a presence Engine from one video source.
//
// A Session owns a single detection loop: wait for the detector, associate and observe
// every detection of the frame, sweep for timeouts, publish events, wait for the next
// frame. Independent sources need independent sessions; nothing is shared between them.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/LdDl/presence-go/internal/log"
	"github.com/LdDl/presence-go/internal/timeutil"
	"github.com/LdDl/presence-go/mot"
	"github.com/LdDl/presence-go/presence"
	"github.com/pkg/errors"
)

// Stats counts what the loop did since the session was created
type Stats struct {
	Frames             int
	SkippedFrames      int
	NotReady           int
	Detections         int
	RejectedDetections int
	Events             int
	PublishFailures    int
}

// Option customizes a Session
type Option func(*Session)

// WithSink sets the event consumer. Defaults to a LogSink on the session logger
func WithSink(sink Sink) Option {
	return func(s *Session) {
		s.sink = sink
	}
}

// WithRenderer sets the overlay consumer
func WithRenderer(renderer Renderer) Option {
	return func(s *Session) {
		s.renderer = renderer
	}
}

// WithClock replaces the wall clock, mostly for tests
func WithClock(clock timeutil.Clock) Option {
	return func(s *Session) {
		s.clock = clock
	}
}

// WithLogger sets the session logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithSource names the video source in log records
func WithSource(name string) Option {
	return func(s *Session) {
		s.source = name
	}
}

// Session runs the per-frame detection loop of one video source.
type Session struct {
	cfg      EngineConfig
	detector Detector
	sink     Sink
	renderer Renderer
	clock    timeutil.Clock
	logger   *slog.Logger
	source   string

	// mu guards everything below; the loop holds it while processing a frame
	mu         sync.Mutex
	tracker    *mot.SpatialTracker
	engine     *presence.Engine
	running    bool
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
	last       Frame
	stats      Stats
}

// New creates a stopped session
func New(cfg EngineConfig, detector Detector, opts ...Option) (*Session, error) {
	if detector == nil {
		return nil, errors.Wrap(ErrConfiguration, "detector is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tracker, err := mot.NewSpatialTracker(cfg.Tracker())
	if err != nil {
		return nil, err
	}
	engine, err := presence.NewEngine(cfg.Presence())
	if err != nil {
		return nil, err
	}
	s := &Session{
		cfg:      cfg,
		detector: detector,
		clock:    timeutil.RealClock{},
		tracker:  tracker,
		engine:   engine,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.With("component", "session")
	}
	if s.source != "" {
		s.logger = s.logger.With("source", s.source)
	}
	if s.sink == nil {
		s.sink = LogSink{Logger: s.logger}
	}
	return s, nil
}

// Start launches the detection loop. Starting a running session is a no-op.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.generation++
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.engine.Begin(s.clock.Now())
	s.logger.Info("detection started", "generation", s.generation)
	go s.loop(runCtx, s.generation, s.done)
}

// Stop ends the detection loop and clears every track and identity before returning.
// A detection already in flight completes in the background and its result is discarded.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Session) stopLocked() {
	if s.running {
		s.running = false
		s.cancel()
		s.logger.Info("detection stopped", "generation", s.generation)
	}
	s.tracker.Reset()
	s.engine.Reset()
	s.last = Frame{}
}

// Running reports whether the loop is active
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Done is closed when the loop of the latest Start exits. Nil before the first Start
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Snapshot returns the latest processed frame
func (s *Session) Snapshot() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Identities returns the presence state of every identity seen in the current session
func (s *Session) Identities() []presence.IdentityState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Identities()
}

// TrackCount returns number of live tracks
func (s *Session) TrackCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Len()
}

// Stats returns loop counters
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Session) active(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && s.generation == generation
}

func (s *Session) loop(ctx context.Context, generation uint64, done chan struct{}) {
	defer close(done)
	defer func() {
		// Parent context cancelled or source exhausted: same cold state as an explicit Stop
		s.mu.Lock()
		if s.running && s.generation == generation {
			s.stopLocked()
		}
		s.mu.Unlock()
	}()

	for {
		if !s.active(generation) {
			return
		}
		detections, err := s.detector.Detect(ctx)
		if !s.active(generation) {
			s.logger.Debug("discarding in-flight detection result", "generation", generation)
			return
		}
		if err != nil {
			if !s.handleDetectError(ctx, err) {
				return
			}
			continue
		}

		frame, ok := s.process(generation, detections)
		if !ok || !s.active(generation) {
			return
		}
		s.publish(ctx, frame.Events)
		if s.renderer != nil {
			s.renderer.Render(frame)
		}
		if !s.wait(ctx, s.cfg.FrameInterval) {
			return
		}
	}
}

func (s *Session) handleDetectError(ctx context.Context, err error) bool {
	if errors.Is(err, ErrSourceNotReady) {
		s.mu.Lock()
		s.stats.NotReady++
		s.mu.Unlock()
		return s.wait(ctx, s.cfg.NotReadyBackoff)
	}
	if errors.Is(err, ErrSourceExhausted) {
		if err == ErrSourceExhausted {
			s.logger.Info("video source exhausted")
		} else {
			s.logger.Warn("video source failed, stopping", "err", err)
		}
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	// The frame is skipped; tracks and identities simply age
	s.logger.Warn("detector failed, skipping frame", "err", err)
	s.mu.Lock()
	s.stats.SkippedFrames++
	s.mu.Unlock()
	return s.wait(ctx, s.cfg.FrameInterval)
}

func (s *Session) process(generation uint64, detections []Detection) (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.generation != generation {
		return Frame{}, false
	}

	now := s.clock.Now()
	if expired := s.tracker.SweepExpired(now); expired > 0 {
		s.logger.Debug("tracks expired", "count", expired)
	}

	frame := Frame{
		At:       now,
		Overlays: make([]Overlay, 0, len(detections)),
	}
	for _, det := range detections {
		s.stats.Detections++
		box := det.Box.Scale(s.cfg.ScaleX, s.cfg.ScaleY)
		center := box.Center()
		track, err := s.tracker.Associate(center.X, center.Y, box.Width, box.Height, now)
		if err != nil {
			s.stats.RejectedDetections++
			s.logger.Warn("detection rejected", "err", err, "label", det.Label)
			continue
		}
		events, err := s.engine.Observe(det.Label, box.Width, box.Height, now)
		if err != nil {
			s.stats.RejectedDetections++
			s.logger.Warn("observation rejected", "err", err, "label", det.Label)
			continue
		}
		frame.Events = append(frame.Events, events...)

		label := strings.TrimSpace(det.Label)
		if label == "" {
			label = s.cfg.UnknownLabel
		}
		frame.Overlays = append(frame.Overlays, Overlay{
			TrackID: track.ID(),
			Label:   label,
			Color:   track.Color(),
			Box:     track.BBox(),
			Missing: track.Missing(),
		})
	}

	events, err := s.engine.Sweep(now)
	if err != nil {
		s.logger.Error("presence sweep failed", "err", err)
	}
	frame.Events = append(frame.Events, events...)

	s.stats.Frames++
	s.stats.Events += len(frame.Events)
	s.last = frame
	return frame, true
}

func (s *Session) publish(ctx context.Context, events []presence.Event) {
	for _, ev := range events {
		if err := s.sink.Publish(ctx, ev); err != nil {
			s.logger.Warn("event publish failed", "err", err, "kind", ev.Kind.String(), "event_id", ev.ID.String())
			s.mu.Lock()
			s.stats.PublishFailures++
			s.mu.Unlock()
		}
	}
}

func (s *Session) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(d):
		return true
	}
}
