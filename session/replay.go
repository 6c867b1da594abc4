package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/LdDl/presence-go/internal/fault"
	"github.com/LdDl/presence-go/mot"
	"github.com/pkg/errors"
)

const maxReplayLineSize = 1024 * 1024

type replayDetection struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// ReplayDetector plays back recorded detections, one JSON array of boxes per line:
//
//	[{"x":100,"y":80,"width":64,"height":64,"label":"Alice","confidence":0.93}]
//
// An empty line or [] is a frame without faces. At the end of input, or when reading fails,
// it returns ErrSourceExhausted.
type ReplayDetector struct {
	mu      sync.Mutex
	scanner *bufio.Scanner
	line    int

	// Terminal error, returned for every call once the input has ended or failed
	err error
}

// NewReplayDetector reads recorded frames from r
func NewReplayDetector(r io.Reader) *ReplayDetector {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxReplayLineSize)
	return &ReplayDetector{
		scanner: scanner,
	}
}

// Detect implements Detector
func (d *ReplayDetector) Detect(ctx context.Context) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	if !d.scanner.Scan() {
		d.err = ErrSourceExhausted
		if err := d.scanner.Err(); err != nil {
			d.err = errors.Wrapf(ErrSourceExhausted, "failed to read replay after line %d: %v", d.line, err)
		}
		return nil, d.err
	}
	d.line++
	text := bytes.TrimSpace(d.scanner.Bytes())
	if len(text) == 0 {
		return nil, nil
	}
	var raw []replayDetection
	if err := json.Unmarshal(text, &raw); err != nil {
		return nil, fault.Invalidf("replay line %d: %v", d.line, err)
	}
	detections := make([]Detection, 0, len(raw))
	for _, det := range raw {
		detections = append(detections, Detection{
			Box:        mot.NewRect(det.X, det.Y, det.Width, det.Height),
			Label:      det.Label,
			Confidence: det.Confidence,
		})
	}
	return detections, nil
}

// Line returns number of frames read so far
func (d *ReplayDetector) Line() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.line
}
