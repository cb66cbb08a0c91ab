package trace

import (
	"fmt"
	"strings"

	"github.com/roach88/difftrace/internal/value"
)

// Default comparison tolerances for a call.
const (
	DefaultRTol = 1e-6
	DefaultATol = 1e-6
)

// Call records one invocation of a module method: the method name, owned
// copies of its inputs and outputs, the backend's textual encodings of them,
// and the tolerances used when comparing it against another trace.
//
// A Call is immutable once built. Accessors return copies.
type Call struct {
	method            string
	inputs            []value.Value
	outputs           []value.Value
	serializedInputs  []string
	serializedOutputs []string
	rtol              float64
	atol              float64
}

// CallOption configures NewCall.
type CallOption func(*Call)

// WithTolerances overrides both comparison tolerances.
func WithTolerances(rtol, atol float64) CallOption {
	return func(c *Call) {
		c.rtol = rtol
		c.atol = atol
	}
}

// WithRTol overrides the relative tolerance.
func WithRTol(rtol float64) CallOption {
	return func(c *Call) { c.rtol = rtol }
}

// WithATol overrides the absolute tolerance.
func WithATol(atol float64) CallOption {
	return func(c *Call) { c.atol = atol }
}

// NewCall records a call from native Go values.
//
// Inputs must already be materialized: a backend handle anywhere in inputs
// fails with *value.HandleError. Top-level outputs that are handles are
// materialized, since backends commonly return lazy results. A nil outputs
// slice records a call with no results.
func NewCall(method string, inputs, outputs []any, serializedInputs, serializedOutputs []string, opts ...CallOption) (*Call, error) {
	in, err := value.FromGoAll("inputs", inputs)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	out, err := outputValues(outputs)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return newCall(method, in, out, serializedInputs, serializedOutputs, opts...), nil
}

func outputValues(outputs []any) ([]value.Value, error) {
	materialized := make([]any, len(outputs))
	for i, out := range outputs {
		if h, ok := out.(value.Handle); ok {
			arr, err := h.Materialize()
			if err != nil {
				return nil, fmt.Errorf("materialize outputs[%d]: %w", i, err)
			}
			out = arr
		}
		materialized[i] = out
	}
	return value.FromGoAll("outputs", materialized)
}

// newCall takes ownership of already converted values.
func newCall(method string, inputs, outputs []value.Value, serializedInputs, serializedOutputs []string, opts ...CallOption) *Call {
	c := &Call{
		method:            method,
		inputs:            nonNilValues(inputs),
		outputs:           nonNilValues(outputs),
		serializedInputs:  copyStrings(serializedInputs),
		serializedOutputs: copyStrings(serializedOutputs),
		rtol:              DefaultRTol,
		atol:              DefaultATol,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Method returns the name of the called method.
func (c *Call) Method() string {
	return c.method
}

// Inputs returns copies of the recorded positional arguments.
func (c *Call) Inputs() []value.Value {
	return cloneValues(c.inputs)
}

// Outputs returns copies of the recorded results.
func (c *Call) Outputs() []value.Value {
	return cloneValues(c.outputs)
}

// SerializedInputs returns the backend encodings of the inputs.
func (c *Call) SerializedInputs() []string {
	return copyStrings(c.serializedInputs)
}

// SerializedOutputs returns the backend encodings of the outputs.
func (c *Call) SerializedOutputs() []string {
	return copyStrings(c.serializedOutputs)
}

// Tolerances returns the relative and absolute comparison tolerances.
func (c *Call) Tolerances() (rtol, atol float64) {
	return c.rtol, c.atol
}

// Signature returns the method and tolerances.
func (c *Call) Signature() Signature {
	return Signature{Method: c.method, RTol: c.rtol, ATol: c.atol}
}

// String renders the call with default array formatting.
func (c *Call) String() string {
	return c.Format(value.DefaultFormatOptions())
}

// Format renders the call as:
//
//	Method: add
//	  Inputs: (2,) float32, int
//	    [1.0 2.0]
//	    3
//	  Outputs: (2,) float32
//	    [4.0 5.0]
//	  Tolerances:
//	    rtol=1e-06, atol=1e-06
func (c *Call) Format(opts value.FormatOptions) string {
	var b strings.Builder
	b.WriteString("Method: " + c.method + "\n")
	writeValues(&b, "Inputs:", c.inputs, opts)
	writeValues(&b, "Outputs:", c.outputs, opts)
	b.WriteString("  Tolerances:\n")
	b.WriteString(fmt.Sprintf("    rtol=%s, atol=%s", formatTolerance(c.rtol), formatTolerance(c.atol)))
	return b.String()
}

func writeValues(b *strings.Builder, label string, vals []value.Value, opts value.FormatOptions) {
	descs := make([]string, len(vals))
	for i, v := range vals {
		descs[i] = value.Describe(v)
	}
	b.WriteString("  " + label)
	if len(descs) > 0 {
		b.WriteString(" " + strings.Join(descs, ", "))
	}
	b.WriteByte('\n')
	for _, v := range vals {
		b.WriteString(indent(value.Format(v, opts), 4))
		b.WriteByte('\n')
	}
}

// indent prefixes every non-empty line with n spaces.
func indent(s string, n int) string {
	pad := strings.Repeat(" ", n)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n")
}

func formatTolerance(tol float64) string {
	return value.String(value.Float(tol))
}

func cloneValues(vals []value.Value) []value.Value {
	out := make([]value.Value, len(vals))
	for i, v := range vals {
		if v != nil {
			out[i] = v.Clone()
		}
	}
	return out
}

func nonNilValues(vals []value.Value) []value.Value {
	if vals == nil {
		return []value.Value{}
	}
	return vals
}

func copyStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
