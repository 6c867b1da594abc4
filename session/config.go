package session

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/LdDl/presence-go/internal/fault"
	"github.com/LdDl/presence-go/mot"
	"github.com/LdDl/presence-go/presence"
	"github.com/pkg/errors"
)

const (
	// DefaultNotReadyBackoff is the wait before polling a video source that was not ready
	DefaultNotReadyBackoff = 100 * time.Millisecond

	maxConfigFileSize = 1 * 1024 * 1024
)

// EngineConfig is the flat option set of one detection session.
type EngineConfig struct {
	TrackMaxDistance     float64
	TrackExpiry          time.Duration
	AlertTimeout         time.Duration
	MinBoxSize           float64
	StartupGrace         time.Duration
	UnknownConfirmFrames int
	SmoothingFactor      float64

	UnknownLabel string
	// Delay between frames
	FrameInterval time.Duration
	// Delay after the detector reported ErrSourceNotReady
	NotReadyBackoff time.Duration
	// Detector-space to display-space factors
	ScaleX float64
	ScaleY float64
}

// DefaultEngineConfig returns the reference options
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TrackMaxDistance:     mot.DefaultMaxDistance,
		TrackExpiry:          mot.DefaultExpiry,
		AlertTimeout:         presence.DefaultAlertTimeout,
		MinBoxSize:           presence.DefaultMinBoxSize,
		StartupGrace:         presence.DefaultStartupGrace,
		UnknownConfirmFrames: presence.DefaultUnknownConfirmFrames,
		SmoothingFactor:      mot.DefaultSmoothingFactor,
		UnknownLabel:         presence.DefaultUnknownLabel,
		FrameInterval:        mot.DefaultFrameInterval,
		NotReadyBackoff:      DefaultNotReadyBackoff,
		ScaleX:               1,
		ScaleY:               1,
	}
}

// Tracker returns the spatial tracker part of the options
func (cfg EngineConfig) Tracker() mot.TrackerConfig {
	return mot.TrackerConfig{
		MaxDistance:     cfg.TrackMaxDistance,
		Expiry:          cfg.TrackExpiry,
		SmoothingFactor: cfg.SmoothingFactor,
		FrameInterval:   cfg.FrameInterval,
		MaxTrackLen:     mot.DefaultMaxTrackLen,
	}
}

// Presence returns the presence engine part of the options
func (cfg EngineConfig) Presence() presence.Config {
	return presence.Config{
		AlertTimeout:         cfg.AlertTimeout,
		MinBoxSize:           cfg.MinBoxSize,
		StartupGrace:         cfg.StartupGrace,
		UnknownConfirmFrames: cfg.UnknownConfirmFrames,
		UnknownLabel:         cfg.UnknownLabel,
	}
}

// Validate checks every option, ErrConfiguration on failure
func (cfg EngineConfig) Validate() error {
	if err := cfg.Tracker().Validate(); err != nil {
		return err
	}
	if err := cfg.Presence().Validate(); err != nil {
		return err
	}
	if cfg.NotReadyBackoff <= 0 {
		return fault.Configf("not-ready backoff must be positive, got %s", cfg.NotReadyBackoff)
	}
	for _, scale := range []float64{cfg.ScaleX, cfg.ScaleY} {
		if math.IsNaN(scale) || math.IsInf(scale, 0) || scale <= 0 {
			return fault.Configf("scale factors must be finite and positive, got %v x %v", cfg.ScaleX, cfg.ScaleY)
		}
	}
	return nil
}

// engineConfigFile is the JSON form. Omitted fields keep their defaults.
type engineConfigFile struct {
	TrackMaxDistance     *float64 `json:"track_max_distance,omitempty"`
	TrackExpiry          *string  `json:"track_expiry,omitempty"` // duration string like "3s"
	AlertTimeout         *string  `json:"alert_timeout,omitempty"`
	MinBoxSize           *float64 `json:"min_box_size,omitempty"`
	StartupGrace         *string  `json:"startup_grace,omitempty"`
	UnknownConfirmFrames *int     `json:"unknown_confirm_frames,omitempty"`
	SmoothingFactor      *float64 `json:"smoothing_factor,omitempty"`
	UnknownLabel         *string  `json:"unknown_label,omitempty"`
	FrameInterval        *string  `json:"frame_interval,omitempty"`
	NotReadyBackoff      *string  `json:"not_ready_backoff,omitempty"`
	ScaleX               *float64 `json:"scale_x,omitempty"`
	ScaleY               *float64 `json:"scale_y,omitempty"`
}

// LoadEngineConfig reads a JSON options file and merges it over DefaultEngineConfig.
func LoadEngineConfig(path string) (EngineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return EngineConfig{}, fault.Configf("config file must have .json extension, got %q", ext)
	}
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return EngineConfig{}, errors.Wrap(err, "failed to stat config file")
	}
	if fileInfo.Size() > maxConfigFileSize {
		return EngineConfig{}, fault.Configf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return EngineConfig{}, errors.Wrap(err, "failed to read config file")
	}
	return ParseEngineConfig(data)
}

// ParseEngineConfig decodes JSON options and merges them over DefaultEngineConfig.
func ParseEngineConfig(data []byte) (EngineConfig, error) {
	var file engineConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return EngineConfig{}, fault.Configf("failed to parse config JSON: %v", err)
	}
	cfg := DefaultEngineConfig()
	if file.TrackMaxDistance != nil {
		cfg.TrackMaxDistance = *file.TrackMaxDistance
	}
	if file.MinBoxSize != nil {
		cfg.MinBoxSize = *file.MinBoxSize
	}
	if file.UnknownConfirmFrames != nil {
		cfg.UnknownConfirmFrames = *file.UnknownConfirmFrames
	}
	if file.SmoothingFactor != nil {
		cfg.SmoothingFactor = *file.SmoothingFactor
	}
	if file.UnknownLabel != nil {
		cfg.UnknownLabel = *file.UnknownLabel
	}
	if file.ScaleX != nil {
		cfg.ScaleX = *file.ScaleX
	}
	if file.ScaleY != nil {
		cfg.ScaleY = *file.ScaleY
	}
	durations := []struct {
		name  string
		value *string
		dst   *time.Duration
	}{
		{"track_expiry", file.TrackExpiry, &cfg.TrackExpiry},
		{"alert_timeout", file.AlertTimeout, &cfg.AlertTimeout},
		{"startup_grace", file.StartupGrace, &cfg.StartupGrace},
		{"frame_interval", file.FrameInterval, &cfg.FrameInterval},
		{"not_ready_backoff", file.NotReadyBackoff, &cfg.NotReadyBackoff},
	}
	for _, d := range durations {
		if d.value == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.value)
		if err != nil {
			return EngineConfig{}, fault.Configf("invalid %s %q: %v", d.name, *d.value, err)
		}
		*d.dst = parsed
	}
	if err := cfg.Validate(); err != nil {
		return EngineConfig{}, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}
