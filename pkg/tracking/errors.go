package tracking

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNonIncreasingTimestamp is returned when a sample does not advance time.
	// The sample is rejected and filter state is left untouched.
	ErrNonIncreasingTimestamp = errors.New("tracking: non-increasing timestamp")

	// ErrConfig is wrapped by configuration validation failures.
	ErrConfig = errors.New("tracking: invalid config")
)

// ErrInvalidConfig wraps ErrConfig with a reason.
func ErrInvalidConfig(reason string) error {
	return fmt.Errorf("%w: %s", ErrConfig, reason)
}
