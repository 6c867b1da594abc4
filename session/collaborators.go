package session

import (
	"context"
	"time"

	"github.com/LdDl/presence-go/mot"
	"github.com/LdDl/presence-go/presence"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrSourceNotReady is returned by a Detector whose video source has no frame yet.
// The loop backs off and polls again without treating it as a failure.
var ErrSourceNotReady = errors.New("video source not ready")

// ErrSourceExhausted is returned by a Detector whose video source has ended.
// The loop stops as if Stop was called.
var ErrSourceExhausted = errors.New("video source exhausted")

// Detection is one face found by the external detector/recognizer.
// Box is in detector-native coordinates.
type Detection struct {
	Box        mot.Rectangle
	Label      string
	Confidence float64
}

// Detector produces the detections of the next frame of a video source
type Detector interface {
	Detect(ctx context.Context) ([]Detection, error)
}

// DetectorFunc adapts a function to Detector
type DetectorFunc func(ctx context.Context) ([]Detection, error)

func (f DetectorFunc) Detect(ctx context.Context) ([]Detection, error) {
	return f(ctx)
}

// Sink receives presence events, e.g. a notifier that shows or stores alerts
type Sink interface {
	Publish(ctx context.Context, ev presence.Event) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, ev presence.Event) error

func (f SinkFunc) Publish(ctx context.Context, ev presence.Event) error {
	return f(ctx, ev)
}

// Overlay is what a renderer needs to draw one detection
type Overlay struct {
	TrackID uuid.UUID
	Label   string
	Color   string
	// Smoothed box in display space
	Box     mot.Rectangle
	Missing bool
}

// Frame is the result of one loop iteration
type Frame struct {
	At       time.Time
	Overlays []Overlay
	Events   []presence.Event
}

// Renderer draws overlays of a processed frame
type Renderer interface {
	Render(frame Frame)
}

// RendererFunc adapts a function to Renderer
type RendererFunc func(frame Frame)

func (f RendererFunc) Render(frame Frame) {
	f(frame)
}

// MultiSink publishes every event to each sink in order.
// All sinks are tried; the first error is returned.
type MultiSink []Sink

// Publish implements Sink
func (sinks MultiSink) Publish(ctx context.Context, ev presence.Event) error {
	var first error
	for _, sink := range sinks {
		if err := sink.Publish(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
