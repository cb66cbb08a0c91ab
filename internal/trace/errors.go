package trace

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTraceFrozen is returned when appending to a trace after Freeze.
var ErrTraceFrozen = errors.New("trace is frozen")

// Signature is the part of a call that must agree between compared traces.
type Signature struct {
	Method string
	RTol   float64
	ATol   float64
}

func (s Signature) String() string {
	return fmt.Sprintf("%s(rtol=%s, atol=%s)", s.Method, formatTolerance(s.RTol), formatTolerance(s.ATol))
}

// StructuralError reports traces whose call sequences differ in method or
// tolerance. It signals a broken test setup rather than a numeric mismatch,
// so comparison stops instead of producing diagnostics.
type StructuralError struct {
	ReferenceID string
	TargetID    string
	Reference   []Signature
	Target      []Signature
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("the reference and target traces have different call structures (%s vs %s):\nReference: %s\nTarget:    %s",
		e.ReferenceID, e.TargetID, formatSignatures(e.Reference), formatSignatures(e.Target))
}

func formatSignatures(sigs []Signature) string {
	parts := make([]string, len(sigs))
	for i, s := range sigs {
		parts[i] = s.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// MissingAttributeError reports an attribute lookup the compiled module cannot
// satisfy.
type MissingAttributeError struct {
	Module string
	Name   string
}

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("the compiled module %s does not have attr %q", e.Module, e.Name)
}

// UnsupportedValueError reports a recorded value the comparator has no rule
// for. Values built through the value package never trigger it; a nil Value
// does.
type UnsupportedValueError struct {
	Type string
	Path string
}

func (e *UnsupportedValueError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("encountered results with unexpected type %s", e.Type)
	}
	return fmt.Sprintf("encountered results with unexpected type %s at %s", e.Type, e.Path)
}

// ArgumentError reports arguments that cannot be passed to a module method.
type ArgumentError struct {
	Method string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("cannot call %s: %s", e.Method, e.Reason)
}

// IsStructuralError returns true if err wraps a *StructuralError.
func IsStructuralError(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// IsMissingAttribute returns true if err wraps a *MissingAttributeError.
func IsMissingAttribute(err error) bool {
	var me *MissingAttributeError
	return errors.As(err, &me)
}

// IsUnsupportedValue returns true if err wraps an *UnsupportedValueError.
func IsUnsupportedValue(err error) bool {
	var ue *UnsupportedValueError
	return errors.As(err, &ue)
}
