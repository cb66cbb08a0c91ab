package value

import (
	"errors"
	"fmt"
)

// Handle is implemented by backend-native tensor handles whose contents live
// on a device or behind lazy evaluation. Handles cannot be recorded; callers
// must Materialize them into an Array first.
type Handle interface {
	Materialize() (*Array, error)
}

// HandleError reports a backend-native handle where a materialized value was
// required.
type HandleError struct {
	// Type is the Go type of the offending value.
	Type string

	// Path locates the value inside the converted structure ("" for the root).
	Path string
}

func (e *HandleError) Error() string {
	msg := fmt.Sprintf("expected native Go values or materialized arrays, but got backend handle %s", e.Type)
	if e.Path != "" {
		msg += " at " + e.Path
	}
	return msg
}

// UnsupportedTypeError reports a Go value that has no Value representation.
type UnsupportedTypeError struct {
	Type string
	Path string
}

func (e *UnsupportedTypeError) Error() string {
	msg := fmt.Sprintf("unsupported value type %s", e.Type)
	if e.Path != "" {
		msg += " at " + e.Path
	}
	return msg
}

// IsHandleError returns true if err wraps a *HandleError.
func IsHandleError(err error) bool {
	var he *HandleError
	return errors.As(err, &he)
}

// IsUnsupportedType returns true if err wraps an *UnsupportedTypeError.
func IsUnsupportedType(err error) bool {
	var ue *UnsupportedTypeError
	return errors.As(err, &ue)
}
