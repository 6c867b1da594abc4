package presence

import (
	"fmt"
	"strings"
	"time"

	"github.com/LdDl/presence-go/internal/fault"
	"github.com/google/uuid"
)

// EventKind is the type of presence transition
type EventKind uint8

const (
	// Entered is raised the first time an identity is accepted in a session
	Entered EventKind = iota + 1
	// Exited is raised when an identity has not been seen for longer than the alert timeout
	Exited
	// Returned is raised when an absent identity is observed again
	Returned
	// AllGone is raised once when every known identity is absent
	AllGone
	// SomeoneReturned is raised once when the room is occupied again after AllGone
	SomeoneReturned
)

func (kind EventKind) String() string {
	switch kind {
	case Entered:
		return "entered"
	case Exited:
		return "exited"
	case Returned:
		return "returned"
	case AllGone:
		return "all_gone"
	case SomeoneReturned:
		return "someone_returned"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(kind))
	}
}

// ParseEventKind is the inverse of EventKind.String
func ParseEventKind(text string) (EventKind, error) {
	for kind := Entered; kind <= SomeoneReturned; kind++ {
		if kind.String() == text {
			return kind, nil
		}
	}
	return 0, fault.Invalidf("unknown event kind %q", text)
}

// Severity tells the notifier how to present an event
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeveritySuccess Severity = "success"
)

// Event is a presence alert produced by Engine.
// Label is set for per-identity events, Labels for aggregate ones.
type Event struct {
	ID       uuid.UUID
	Kind     EventKind
	Label    string
	Labels   []string
	Severity Severity
	At       time.Time
	// Unknown is true when the event concerns the unknown-person label
	Unknown bool
}

func newEvent(kind EventKind, label string, unknown bool, at time.Time) Event {
	return Event{
		ID:       uuid.New(),
		Kind:     kind,
		Label:    label,
		Severity: severityOf(kind, unknown),
		At:       at,
		Unknown:  unknown,
	}
}

func newAggregateEvent(kind EventKind, labels []string, at time.Time) Event {
	return Event{
		ID:       uuid.New(),
		Kind:     kind,
		Labels:   labels,
		Severity: severityOf(kind, false),
		At:       at,
	}
}

func severityOf(kind EventKind, unknown bool) Severity {
	switch kind {
	case Exited, AllGone:
		return SeverityWarning
	case SomeoneReturned:
		return SeveritySuccess
	}
	if unknown {
		return SeverityWarning
	}
	return SeveritySuccess
}

// Message renders a short human-readable alert line
func (ev Event) Message() string {
	if ev.Unknown {
		switch ev.Kind {
		case Entered:
			return "An unknown person has entered the room"
		case Exited:
			return "An unknown person has left the room"
		case Returned:
			return "An unknown person has appeared again"
		}
	}
	switch ev.Kind {
	case Entered:
		return ev.Label + " has entered the room"
	case Exited:
		return ev.Label + " has left the room"
	case Returned:
		return ev.Label + " is back"
	case AllGone:
		return "Everyone has left the room (" + strings.Join(ev.Labels, ", ") + ")"
	case SomeoneReturned:
		return "Someone is back in the room (" + strings.Join(ev.Labels, ", ") + ")"
	}
	return ev.Kind.String()
}
