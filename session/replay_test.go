package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/LdDl/presence-go/internal/log"
	"github.com/LdDl/presence-go/internal/timeutil"
	"github.com/LdDl/presence-go/mot"
	"github.com/LdDl/presence-go/presence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const replayInput = `[{"x":100,"y":80,"width":64,"height":64,"label":"Alice","confidence":0.93}]

[]
not json
[{"x":10,"y":10,"width":30,"height":40},{"x":300,"y":80,"width":64,"height":64,"label":"Bob"}]
`

func TestReplayDetector(t *testing.T) {
	ctx := context.Background()
	detector := NewReplayDetector(strings.NewReader(replayInput))

	detections, err := detector.Detect(ctx)
	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.Equal(t, Detection{Box: mot.NewRect(100, 80, 64, 64), Label: "Alice", Confidence: 0.93}, detections[0])

	detections, err = detector.Detect(ctx)
	require.NoError(t, err)
	assert.Empty(t, detections)

	detections, err = detector.Detect(ctx)
	require.NoError(t, err)
	assert.Empty(t, detections)

	_, err = detector.Detect(ctx)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "replay line 4")

	detections, err = detector.Detect(ctx)
	require.NoError(t, err)
	require.Len(t, detections, 2)
	assert.Equal(t, "", detections[0].Label)
	assert.Equal(t, "Bob", detections[1].Label)

	_, err = detector.Detect(ctx)
	assert.ErrorIs(t, err, ErrSourceExhausted)
	assert.Equal(t, 5, detector.Line())
}

func TestReplayDetectorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewReplayDetector(strings.NewReader(replayInput)).Detect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSessionStopsWhenReplayEnds(t *testing.T) {
	events := &eventRecorder{}
	s, err := New(testConfig(), NewReplayDetector(strings.NewReader(replayInput)),
		WithClock(timeutil.NewMockClock(sessionEpoch)),
		WithSink(events),
		WithLogger(log.Discard()),
	)
	require.NoError(t, err)

	s.Start(context.Background())
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop at the end of the replay")
	}

	assert.False(t, s.Running())
	assert.Empty(t, s.Identities())
	stats := s.Stats()
	assert.Equal(t, 4, stats.Frames)
	assert.Equal(t, 1, stats.SkippedFrames)
	assert.Equal(t, []presence.EventKind{presence.Entered, presence.Entered}, kinds(events.all()))
}

func TestReplayDetectorReadFailureIsTerminal(t *testing.T) {
	input := strings.Repeat("x", maxReplayLineSize+10) + "\n"
	detector := NewReplayDetector(strings.NewReader(input))

	_, err := detector.Detect(context.Background())
	require.ErrorIs(t, err, ErrSourceExhausted)
	assert.Contains(t, err.Error(), "failed to read replay")

	// Later calls keep failing the same way
	_, again := detector.Detect(context.Background())
	assert.Equal(t, err, again)
}

func TestSessionStopsOnReplayReadFailure(t *testing.T) {
	input := `[{"x":100,"y":80,"width":64,"height":64,"label":"Alice"}]` + "\n" + strings.Repeat("x", maxReplayLineSize+10) + "\n"
	events := &eventRecorder{}
	s, err := New(DefaultEngineConfig(), NewReplayDetector(strings.NewReader(input)),
		WithClock(timeutil.NewMockClock(sessionEpoch)),
		WithSink(events),
		WithLogger(log.Discard()),
	)
	require.NoError(t, err)

	s.Start(context.Background())
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session kept running after the replay could not be read")
	}

	assert.False(t, s.Running())
	stats := s.Stats()
	assert.Equal(t, 1, stats.Frames)
	assert.Equal(t, 0, stats.SkippedFrames)
}
