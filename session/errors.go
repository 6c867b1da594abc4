package session

import "github.com/LdDl/presence-go/internal/fault"

var (
	// ErrInvalidInput is returned for unusable detections
	ErrInvalidInput = fault.ErrInvalidInput
	// ErrConfiguration is returned for unusable EngineConfig values or a missing detector
	ErrConfiguration = fault.ErrConfiguration
)
