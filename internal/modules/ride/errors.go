// README: Error kinds surfaced by lifecycle operations.
package ride

import (
	"errors"
	"fmt"
)

// Every failure returned by the Service wraps exactly one of these kinds.
var (
	ErrValidation = errors.New("invalid ride")
	ErrPermission = errors.New("not allowed")
	ErrConflict   = errors.New("ride state conflict")
	ErrNotFound   = errors.New("ride not found")
	ErrLedger     = errors.New("points update failed")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func permissionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermission, fmt.Sprintf(format, args...))
}

func conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Kind returns the sentinel an error wraps, or nil for infrastructure failures.
func Kind(err error) error {
	for _, k := range []error{ErrValidation, ErrPermission, ErrConflict, ErrNotFound, ErrLedger} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
