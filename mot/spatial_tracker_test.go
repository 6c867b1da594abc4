package mot

import (
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
)

var trackerEpoch = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func TestNewSpatialTrackerDefault(t *testing.T) {
	tracker := NewSpatialTrackerDefault()
	if tracker.maxDistance != 120.0 {
		t.Errorf("Expected default maxDistance 120, got %f", tracker.maxDistance)
	}
	if tracker.expiry != 3*time.Second {
		t.Errorf("Expected default expiry 3s, got %s", tracker.expiry)
	}
	if tracker.smoothingFactor != 0.7 {
		t.Errorf("Expected default smoothing 0.7, got %f", tracker.smoothingFactor)
	}
	if math.Abs(tracker.dt-0.1) > eps {
		t.Errorf("Expected Kalman time step 0.1, got %f", tracker.dt)
	}
	if tracker.Len() != 0 {
		t.Errorf("New tracker should be empty, got %d tracks", tracker.Len())
	}
}

func TestNewSpatialTrackerInvalidConfig(t *testing.T) {
	broken := []TrackerConfig{
		{MaxDistance: 0, SmoothingFactor: 0.7, FrameInterval: time.Millisecond},
		{MaxDistance: 10, SmoothingFactor: 1.5, FrameInterval: time.Millisecond},
		{MaxDistance: 10, SmoothingFactor: -0.1, FrameInterval: time.Millisecond},
		{MaxDistance: 10, SmoothingFactor: 0.7, FrameInterval: 0},
		{MaxDistance: 10, SmoothingFactor: 0.7, FrameInterval: time.Millisecond, Expiry: -time.Second},
		{MaxDistance: math.NaN(), SmoothingFactor: 0.7, FrameInterval: time.Millisecond},
		{MaxDistance: 10, SmoothingFactor: 0.7, FrameInterval: time.Millisecond, MaxTrackLen: -1},
	}
	for i, cfg := range broken {
		tracker, err := NewSpatialTracker(cfg)
		if !errors.Is(err, ErrConfiguration) {
			t.Errorf("config #%d: expected ErrConfiguration, got %v", i, err)
		}
		if tracker != nil {
			t.Errorf("config #%d: tracker should be nil on error", i)
		}
	}
}

func TestAssociateContinuity(t *testing.T) {
	// Face drifting slowly to the right, 25 fps
	centers := []Point{
		{X: 200, Y: 150}, {X: 204, Y: 151}, {X: 209, Y: 149}, {X: 215, Y: 152},
		{X: 222, Y: 153}, {X: 230, Y: 151}, {X: 239, Y: 150}, {X: 247, Y: 149},
	}
	tracker := NewSpatialTrackerDefault()
	now := trackerEpoch

	var first *Track
	for i, c := range centers {
		track, err := tracker.Associate(c.X, c.Y, 80, 90, now)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if first == nil {
			first = track
		}
		if track != first {
			t.Errorf("frame %d: expected the same track, got a new one", i)
		}
		now = now.Add(40 * time.Millisecond)
	}

	if tracker.Len() != 1 {
		t.Errorf("incorrect number of tracks: %d, expected: 1", tracker.Len())
	}
	if first.Matches() != len(centers) {
		t.Errorf("incorrect number of matches: %d, expected: %d", first.Matches(), len(centers))
	}
	if len(first.Track()) != len(centers) {
		t.Errorf("incorrect history length: %d, expected: %d", len(first.Track()), len(centers))
	}
	if first.RawCenter() != centers[len(centers)-1] {
		t.Errorf("raw center should be the latest detection, got %v", first.RawCenter())
	}
	if first.Missing() {
		t.Error("matched track should not be missing")
	}
}

func TestAssociateSmoothing(t *testing.T) {
	tracker := NewSpatialTrackerDefault()
	track, err := tracker.Associate(100, 100, 50, 60, trackerEpoch)
	if err != nil {
		t.Fatal(err)
	}
	if track.Center() != NewPoint(100, 100) {
		t.Errorf("new track should start at raw center, got %v", track.Center())
	}

	_, err = tracker.Associate(110, 90, 70, 80, trackerEpoch.Add(100*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	// smoothed = smoothed*0.3 + new*0.7
	center := track.Center()
	if math.Abs(center.X-107) > eps || math.Abs(center.Y-93) > eps {
		t.Errorf("Wrong smoothed center: %v, correct answer: (107, 93)", center)
	}
	w, h := track.Size()
	if math.Abs(w-64) > eps || math.Abs(h-74) > eps {
		t.Errorf("Wrong smoothed size: %vx%v, correct answer: 64x74", w, h)
	}
	rw, rh := track.RawSize()
	if rw != 70 || rh != 80 {
		t.Errorf("Wrong raw size: %vx%v", rw, rh)
	}
	bbox := track.BBox()
	if math.Abs(bbox.X-75) > eps || math.Abs(bbox.Y-56) > eps {
		t.Errorf("Wrong smoothed bbox: %v", bbox)
	}
	if !track.LastSeen().Equal(trackerEpoch.Add(100 * time.Millisecond)) {
		t.Errorf("lastSeen not refreshed: %v", track.LastSeen())
	}
}

func TestAssociateUsesSmoothedCenter(t *testing.T) {
	cfg := DefaultTrackerConfig()
	cfg.MaxDistance = 30
	cfg.SmoothingFactor = 0.5
	tracker, err := NewSpatialTracker(cfg)
	if err != nil {
		t.Fatal(err)
	}
	track, _ := tracker.Associate(0, 0, 10, 10, trackerEpoch)
	// Raw jumps to 50 is too far: new track
	other, _ := tracker.Associate(50, 0, 10, 10, trackerEpoch)
	if other == track {
		t.Fatal("detection 50px away should not match with 30px radius")
	}
	// 20px away matches, smoothed center moves to 10 while raw is 20
	same, _ := tracker.Associate(20, 0, 10, 10, trackerEpoch)
	if same != track {
		t.Fatal("detection 20px away should match the first track")
	}
	// -15 is 25px from the smoothed center and 35px from the raw one
	again, _ := tracker.Associate(-15, 0, 10, 10, trackerEpoch)
	if again != track {
		t.Errorf("association must use the smoothed center, got a different track")
	}
}

func TestAssociateBoundaryIsExclusive(t *testing.T) {
	tracker := NewSpatialTrackerDefault()
	first, _ := tracker.Associate(0, 0, 10, 10, trackerEpoch)
	second, _ := tracker.Associate(120, 0, 10, 10, trackerEpoch)
	if first == second {
		t.Error("detection exactly at max distance must create a new track")
	}
}

func TestAssociateInsertionOrderWins(t *testing.T) {
	tracker := NewSpatialTrackerDefault()
	first, _ := tracker.Associate(0, 0, 10, 10, trackerEpoch)
	second, _ := tracker.Associate(150, 0, 10, 10, trackerEpoch)
	if first == second {
		t.Fatal("expected two tracks")
	}
	// Closer to the second track but still within radius of the first one
	got, _ := tracker.Associate(100, 0, 10, 10, trackerEpoch)
	if got != first {
		t.Error("greedy association should return the first track in insertion order")
	}
}

func TestPaletteWraparound(t *testing.T) {
	tracker := NewSpatialTrackerDefault()
	colors := make([]string, 0, 9)
	for i := 0; i < 9; i++ {
		track, err := tracker.Associate(float64(i)*500, 0, 40, 40, trackerEpoch)
		if err != nil {
			t.Fatal(err)
		}
		colors = append(colors, track.Color())
	}
	if tracker.Len() != 9 {
		t.Fatalf("incorrect number of tracks: %d, expected: 9", tracker.Len())
	}
	for i := 0; i < 7; i++ {
		for j := i + 1; j < 7; j++ {
			if colors[i] == colors[j] {
				t.Errorf("tracks %d and %d share color %s before wraparound", i, j, colors[i])
			}
		}
	}
	if colors[7] != colors[0] || colors[8] != colors[1] {
		t.Errorf("palette should wrap after 7 colors, got %v", colors)
	}
}

func TestAssociateInvalidInput(t *testing.T) {
	tracker := NewSpatialTrackerDefault()
	cases := []struct {
		x, y, w, h float64
		now        time.Time
	}{
		{math.NaN(), 0, 10, 10, trackerEpoch},
		{0, math.Inf(1), 10, 10, trackerEpoch},
		{0, 0, -1, 10, trackerEpoch},
		{0, 0, 10, math.Inf(1), trackerEpoch},
		{0, 0, 10, 10, time.Time{}},
	}
	for i, c := range cases {
		track, err := tracker.Associate(c.x, c.y, c.w, c.h, c.now)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
		if track != nil {
			t.Errorf("case %d: no track expected on invalid input", i)
		}
	}
	if tracker.Len() != 0 {
		t.Errorf("invalid input must not create tracks, got %d", tracker.Len())
	}
	// Negative coordinates are legal: boxes may stick out of the frame
	if _, err := tracker.Associate(-5, -3, 10, 10, trackerEpoch); err != nil {
		t.Errorf("negative center should be accepted: %v", err)
	}
}

func TestSweepExpired(t *testing.T) {
	tracker := NewSpatialTrackerDefault()
	old, _ := tracker.Associate(0, 0, 10, 10, trackerEpoch)
	fresh, _ := tracker.Associate(500, 0, 10, 10, trackerEpoch.Add(2*time.Second))

	now := trackerEpoch.Add(3001 * time.Millisecond)
	removed := tracker.SweepExpired(now)
	if removed != 1 {
		t.Errorf("expected 1 removed track, got %d", removed)
	}
	tracks := tracker.Tracks()
	if len(tracks) != 1 || tracks[0] != fresh {
		t.Fatalf("only the fresh track should survive, got %v", tracks)
	}
	if !fresh.Missing() {
		t.Error("surviving track not seen at sweep time should be flagged missing")
	}

	// Idempotent for the same instant
	if again := tracker.SweepExpired(now); again != 0 {
		t.Errorf("second sweep at the same time removed %d tracks", again)
	}
	if tracker.Len() != 1 {
		t.Errorf("second sweep changed the track set: %d", tracker.Len())
	}

	// A detection near the removed track creates a fresh one
	revived, _ := tracker.Associate(0, 0, 10, 10, now)
	if revived == old {
		t.Error("expired track must not be reused")
	}
	if revived.Missing() || !fresh.Missing() {
		t.Error("missing flag should only be cleared on match")
	}
}

func TestSweepExpiredAfterBoundary(t *testing.T) {
	tracker := NewSpatialTrackerDefault()
	tracker.Associate(0, 0, 10, 10, trackerEpoch)
	if removed := tracker.SweepExpiredAfter(trackerEpoch.Add(time.Second), time.Second); removed != 0 {
		t.Error("track exactly at expiry should be kept")
	}
	if removed := tracker.SweepExpiredAfter(trackerEpoch.Add(time.Second+time.Millisecond), time.Second); removed != 1 {
		t.Error("track past expiry should be removed")
	}
}

func TestTrackerReset(t *testing.T) {
	tracker := NewSpatialTrackerDefault()
	tracker.Associate(0, 0, 10, 10, trackerEpoch)
	tracker.Associate(500, 0, 10, 10, trackerEpoch)
	tracker.Reset()
	if tracker.Len() != 0 {
		t.Errorf("Reset should drop all tracks, got %d", tracker.Len())
	}
	track, _ := tracker.Associate(0, 0, 10, 10, trackerEpoch)
	if track.Color() != Palette[0] {
		t.Errorf("palette should restart after Reset, got %s", track.Color())
	}
}
