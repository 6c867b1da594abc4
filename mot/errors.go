package mot

import "github.com/LdDl/presence-go/internal/fault"

var (
	// ErrInvalidInput is returned for non-finite coordinates, negative sizes or zero timestamps
	ErrInvalidInput = fault.ErrInvalidInput
	// ErrConfiguration is returned by constructors for unusable TrackerConfig values
	ErrConfiguration = fault.ErrConfiguration
)
