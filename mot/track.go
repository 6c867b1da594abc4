package mot

import (
	"time"

	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Palette is the cyclic set of overlay colors handed out to new tracks
var Palette = [...]string{"#00FF00", "#FF3B30", "#007AFF", "#FF9500", "#AF52DE", "#FFCC00", "#00C7BE"}

// Track is one spatially-persistent blob across frames.
// Position and size are exponentially smoothed; the Kalman filter only
// provides a look-ahead center for rendering and never drives association.
type Track struct {
	id             uuid.UUID
	rawCenter      Point
	smoothedCenter Point
	rawWidth       float64
	rawHeight      float64
	smoothedWidth  float64
	smoothedHeight float64
	color          string
	lastSeen       time.Time
	missing        bool

	predictedCenter Point
	track           []Point
	maxTrackLen     int
	matches         int
	dt              float64
	tracker         *kalman_filter.Kalman2D
}

func newPredictor(center Point, dt float64) *kalman_filter.Kalman2D {
	/* Kalman filter props */
	ux := 1.0
	uy := 1.0
	stdDevA := 2.0
	stdDevMx := 0.1
	stdDevMy := 0.1
	return kalman_filter.NewKalman2D(dt, ux, uy, stdDevA, stdDevMx, stdDevMy, kalman_filter.WithState2D(center.X, center.Y))
}

func newTrack(center Point, width, height float64, color string, now time.Time, dt float64, maxTrackLen int) *Track {
	track := Track{
		id:              uuid.New(),
		rawCenter:       center,
		smoothedCenter:  center,
		rawWidth:        width,
		rawHeight:       height,
		smoothedWidth:   width,
		smoothedHeight:  height,
		color:           color,
		lastSeen:        now,
		missing:         false,
		predictedCenter: center,
		track:           make([]Point, 0, maxTrackLen),
		maxTrackLen:     maxTrackLen,
		matches:         1,
		dt:              dt,
		tracker:         newPredictor(center, dt),
	}
	track.track = append(track.track, center)
	return &track
}

// ID returns track's identifier
func (track *Track) ID() uuid.UUID {
	return track.id
}

// RawCenter returns the center of the latest matched detection
func (track *Track) RawCenter() Point {
	return track.rawCenter
}

// Center returns the smoothed center
func (track *Track) Center() Point {
	return track.smoothedCenter
}

// RawSize returns width and height of the latest matched detection
func (track *Track) RawSize() (float64, float64) {
	return track.rawWidth, track.rawHeight
}

// Size returns smoothed width and height
func (track *Track) Size() (float64, float64) {
	return track.smoothedWidth, track.smoothedHeight
}

// BBox returns the smoothed box, which is what overlays should draw
func (track *Track) BBox() Rectangle {
	return NewRectCentered(track.smoothedCenter, track.smoothedWidth, track.smoothedHeight)
}

// PredictedCenter returns the Kalman prediction made before the latest update
func (track *Track) PredictedCenter() Point {
	return track.predictedCenter
}

// Color returns the overlay color assigned at creation
func (track *Track) Color() string {
	return track.color
}

// LastSeen returns the time of the latest matched detection
func (track *Track) LastSeen() time.Time {
	return track.lastSeen
}

// Missing reports whether the track was not matched in the most recent frame
func (track *Track) Missing() bool {
	return track.missing
}

// Matches returns the number of detections this track has absorbed, including the first one
func (track *Track) Matches() int {
	return track.matches
}

// Track returns track's center history. Be careful: this is not copy of track, but reference to it
func (track *Track) Track() []Point {
	return track.track
}

// update absorbs a matched detection: smoothing, history, then the Kalman step.
// A failed Kalman step never leaves the track half-updated; see lookAhead
func (track *Track) update(center Point, width, height, alpha float64, now time.Time) {
	track.rawCenter = center
	track.rawWidth = width
	track.rawHeight = height
	track.smoothedCenter.X = blend(track.smoothedCenter.X, center.X, alpha)
	track.smoothedCenter.Y = blend(track.smoothedCenter.Y, center.Y, alpha)
	track.smoothedWidth = blend(track.smoothedWidth, width, alpha)
	track.smoothedHeight = blend(track.smoothedHeight, height, alpha)
	track.lastSeen = now
	track.missing = false
	track.matches++

	track.track = append(track.track, track.smoothedCenter)
	if len(track.track) > track.maxTrackLen {
		track.track = track.track[1:]
	}

	if err := track.lookAhead(center); err != nil {
		track.resetPredictor()
	}
}

// lookAhead predicts the next center and corrects the filter with the measured one
func (track *Track) lookAhead(center Point) error {
	track.tracker.Predict()
	predX, predY := track.tracker.GetState()
	track.predictedCenter = Point{X: predX, Y: predY}
	err := track.tracker.Update(center.X, center.Y)
	if err != nil {
		return errors.Wrap(err, "Can't update object tracker")
	}
	return nil
}

// resetPredictor restarts the Kalman filter at the smoothed center
func (track *Track) resetPredictor() {
	track.tracker = newPredictor(track.smoothedCenter, track.dt)
	track.predictedCenter = track.smoothedCenter
}
