// Package fault holds the error taxonomy shared by the tracker, the presence
// engine and the session driver.
package fault

import "github.com/pkg/errors"

var (
	// ErrInvalidInput marks geometry or timestamps rejected at the boundary.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConfiguration marks a configuration that can not be used to build a component.
	ErrConfiguration = errors.New("configuration error")
)

// Invalidf wraps ErrInvalidInput with a formatted message.
func Invalidf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidInput, format, args...)
}

// Configf wraps ErrConfiguration with a formatted message.
func Configf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConfiguration, format, args...)
}
