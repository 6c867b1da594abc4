package mot

import (
	"time"

	"github.com/LdDl/presence-go/internal/fault"
)

const (
	// DefaultMaxDistance is the association radius in display pixels
	DefaultMaxDistance = 120.0
	// DefaultExpiry is how long a track survives without a matching detection
	DefaultExpiry = 3000 * time.Millisecond
	// DefaultSmoothingFactor is the weight of the newest observation
	DefaultSmoothingFactor = 0.7
	// DefaultFrameInterval is the expected time between frames, used as Kalman filter time step
	DefaultFrameInterval = 100 * time.Millisecond
	// DefaultMaxTrackLen is the number of centers kept in a track's history
	DefaultMaxTrackLen = 150
)

// TrackerConfig holds SpatialTracker parameters.
type TrackerConfig struct {
	// Detection center must be strictly closer than this to a track's smoothed center to match it
	MaxDistance float64
	// Tracks not seen for longer than this are removed by SweepExpired
	Expiry time.Duration
	// Exponential smoothing weight of the new observation, in [0, 1]
	SmoothingFactor float64
	// Time step for the Kalman predictor
	FrameInterval time.Duration
	// History length per track. Zero means DefaultMaxTrackLen
	MaxTrackLen int
}

// DefaultTrackerConfig returns the reference parameters
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxDistance:     DefaultMaxDistance,
		Expiry:          DefaultExpiry,
		SmoothingFactor: DefaultSmoothingFactor,
		FrameInterval:   DefaultFrameInterval,
		MaxTrackLen:     DefaultMaxTrackLen,
	}
}

// Validate checks that the configuration can drive a tracker
func (cfg TrackerConfig) Validate() error {
	if !isFinite(cfg.MaxDistance, cfg.SmoothingFactor) {
		return fault.Configf("tracker parameters must be finite")
	}
	if cfg.MaxDistance <= 0 {
		return fault.Configf("track max distance must be positive, got %v", cfg.MaxDistance)
	}
	if cfg.SmoothingFactor < 0 || cfg.SmoothingFactor > 1 {
		return fault.Configf("smoothing factor %v outside [0, 1]", cfg.SmoothingFactor)
	}
	if cfg.Expiry < 0 {
		return fault.Configf("track expiry must not be negative, got %s", cfg.Expiry)
	}
	if cfg.FrameInterval <= 0 {
		return fault.Configf("frame interval must be positive, got %s", cfg.FrameInterval)
	}
	if cfg.MaxTrackLen < 0 {
		return fault.Configf("max track length must not be negative, got %d", cfg.MaxTrackLen)
	}
	return nil
}
