package mot

import (
	"time"

	"github.com/LdDl/presence-go/internal/fault"
)

// SpatialTracker is a greedy nearest-match tracker over detection centers.
// It has no knowledge of identity labels: one detection maps to exactly one Track,
// the first live track (in insertion order) whose smoothed center is within MaxDistance.
// It is not safe for concurrent use; the owner serializes calls.
type SpatialTracker struct {
	// Main storage, insertion order
	tracks []*Track
	// Threshold distance (most of time in pixels). Default 120.0
	maxDistance float64
	// Expiry used by SweepExpired. Default 3s
	expiry time.Duration
	// Weight of the newest observation. Default 0.7
	smoothingFactor float64
	// Kalman filter time step in seconds
	dt          float64
	maxTrackLen int
}

// NewSpatialTrackerDefault creates default instance of SpatialTracker
func NewSpatialTrackerDefault() *SpatialTracker {
	tracker, err := NewSpatialTracker(DefaultTrackerConfig())
	if err != nil {
		panic("default tracker config must be valid: " + err.Error())
	}
	return tracker
}

// NewSpatialTracker creates new instance of SpatialTracker
func NewSpatialTracker(cfg TrackerConfig) (*SpatialTracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	maxTrackLen := cfg.MaxTrackLen
	if maxTrackLen == 0 {
		maxTrackLen = DefaultMaxTrackLen
	}
	return &SpatialTracker{
		tracks:          make([]*Track, 0),
		maxDistance:     cfg.MaxDistance,
		expiry:          cfg.Expiry,
		smoothingFactor: cfg.SmoothingFactor,
		dt:              cfg.FrameInterval.Seconds(),
		maxTrackLen:     maxTrackLen,
	}, nil
}

// Associate finds or creates the track for a detection centered at (x, y) with size (w, h).
// Coordinates must already be in the tracker's coordinate space.
func (tracker *SpatialTracker) Associate(x, y, w, h float64, now time.Time) (*Track, error) {
	if !isFinite(x, y) {
		return nil, fault.Invalidf("detection center (%v, %v) is not finite", x, y)
	}
	if !isFinite(w, h) || w < 0 || h < 0 {
		return nil, fault.Invalidf("detection size %vx%v must be finite and non-negative", w, h)
	}
	if now.IsZero() {
		return nil, fault.Invalidf("detection timestamp is zero")
	}

	center := Point{X: x, Y: y}
	for _, track := range tracker.tracks {
		if euclideanDistance(track.smoothedCenter, center) < tracker.maxDistance {
			track.update(center, w, h, tracker.smoothingFactor, now)
			return track, nil
		}
	}

	// Otherwise register object as a new one
	color := Palette[len(tracker.tracks)%len(Palette)]
	track := newTrack(center, w, h, color, now, tracker.dt, tracker.maxTrackLen)
	tracker.tracks = append(tracker.tracks, track)
	return track, nil
}

// SweepExpired removes tracks not seen for longer than the configured expiry
// and flags the survivors not seen at now as missing. Returns number of removed tracks.
func (tracker *SpatialTracker) SweepExpired(now time.Time) int {
	return tracker.SweepExpiredAfter(now, tracker.expiry)
}

// SweepExpiredAfter is SweepExpired with an explicit expiry
func (tracker *SpatialTracker) SweepExpiredAfter(now time.Time, expiry time.Duration) int {
	kept := tracker.tracks[:0]
	removed := 0
	for _, track := range tracker.tracks {
		if now.Sub(track.lastSeen) > expiry {
			removed++
			continue
		}
		if track.lastSeen.Before(now) {
			track.missing = true
		}
		kept = append(kept, track)
	}
	// Drop references held by the tail of the backing array
	for i := len(kept); i < len(tracker.tracks); i++ {
		tracker.tracks[i] = nil
	}
	tracker.tracks = kept
	return removed
}

// Tracks returns live tracks in insertion order. The slice is a copy, tracks are not
func (tracker *SpatialTracker) Tracks() []*Track {
	result := make([]*Track, len(tracker.tracks))
	copy(result, tracker.tracks)
	return result
}

// Len returns number of live tracks
func (tracker *SpatialTracker) Len() int {
	return len(tracker.tracks)
}

// Reset drops every track
func (tracker *SpatialTracker) Reset() {
	tracker.tracks = make([]*Track, 0)
}
