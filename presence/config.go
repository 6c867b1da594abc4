package presence

import (
	"math"
	"strings"
	"time"

	"github.com/LdDl/presence-go/internal/fault"
)

const (
	// DefaultUnknownLabel is the label the recognizer uses when no reference matched
	DefaultUnknownLabel = "Unknown"
	// DefaultAlertTimeout is how long an identity may stay unseen before it is considered gone
	DefaultAlertTimeout = 10 * time.Second
	// DefaultMinBoxSize rejects distant or partial faces, in display pixels
	DefaultMinBoxSize = 20.0
	// DefaultStartupGrace ignores the burst of spurious detections during camera and model warm-up
	DefaultStartupGrace = 1500 * time.Millisecond
	// DefaultUnknownConfirmFrames is the number of unknown observations needed before raising an alert
	DefaultUnknownConfirmFrames = 5
)

// Config holds the presence policies.
type Config struct {
	AlertTimeout         time.Duration
	MinBoxSize           float64
	StartupGrace         time.Duration
	UnknownConfirmFrames int
	UnknownLabel         string
}

// DefaultConfig returns the reference policies
func DefaultConfig() Config {
	return Config{
		AlertTimeout:         DefaultAlertTimeout,
		MinBoxSize:           DefaultMinBoxSize,
		StartupGrace:         DefaultStartupGrace,
		UnknownConfirmFrames: DefaultUnknownConfirmFrames,
		UnknownLabel:         DefaultUnknownLabel,
	}
}

// Validate reports ErrConfiguration for unusable values.
func (cfg Config) Validate() error {
	if cfg.AlertTimeout <= 0 {
		return fault.Configf("alert timeout must be positive, got %s", cfg.AlertTimeout)
	}
	if math.IsNaN(cfg.MinBoxSize) || math.IsInf(cfg.MinBoxSize, 0) || cfg.MinBoxSize < 0 {
		return fault.Configf("min box size must be finite and non-negative, got %v", cfg.MinBoxSize)
	}
	if cfg.StartupGrace < 0 {
		return fault.Configf("startup grace must not be negative, got %s", cfg.StartupGrace)
	}
	if cfg.UnknownConfirmFrames < 1 {
		return fault.Configf("unknown confirm frames must be at least 1, got %d", cfg.UnknownConfirmFrames)
	}
	if strings.TrimSpace(cfg.UnknownLabel) == "" {
		return fault.Configf("unknown label must not be empty")
	}
	return nil
}
