package presence

import "github.com/LdDl/presence-go/internal/fault"

var (
	// ErrInvalidInput is returned for negative or non-finite box sizes and zero timestamps
	ErrInvalidInput = fault.ErrInvalidInput
	// ErrConfiguration is returned by NewEngine for an unusable Config
	ErrConfiguration = fault.ErrConfiguration
)
