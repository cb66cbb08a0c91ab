package trace

import (
	"fmt"
	"strings"

	"github.com/roach88/difftrace/internal/backend"
	"github.com/roach88/difftrace/internal/value"
)

// FormatVersion is the on-disk layout version written to metadata.json.
const FormatVersion = 1

// Func is a trace function: it drives a module through a sequence of calls.
// The same function runs once per backend.
type Func func(m *TracedModule) error

// Metadata describes the module, backend and function behind a trace.
type Metadata struct {
	FormatVersion         int               `json:"format_version"`
	ModuleName            string            `json:"module_name"`
	CompiledPaths         map[string]string `json:"compiled_paths"`
	BackendName           string            `json:"backend_name"`
	BackendID             string            `json:"backend_id"`
	BackendDriver         string            `json:"backend_driver"`
	BenchmarkSerializable bool              `json:"benchmark_serializable"`
	GraphSerializable     bool              `json:"graph_serializable"`
	FunctionName          string            `json:"function_name"`
	FunctionSourceFile    string            `json:"function_sourcefile"`
	FunctionLineNumbers   [2]int            `json:"function_line_numbers"`
	FunctionSource        string            `json:"function_source"`
}

// Trace is the ordered record of calls one trace function made against one
// backend module.
//
// Calls are appended while the function runs. After Freeze the trace is
// read-only. A Trace loaded from disk has no live module.
type Trace struct {
	Metadata

	calls  []*Call
	frozen bool
}

// New creates an empty trace for running fn against module.
func New(module backend.CompiledModule, fn Func) *Trace {
	return NewWithFunc(module, DescribeFunc(fn))
}

// NewWithFunc creates an empty trace with explicit function provenance.
func NewWithFunc(module backend.CompiledModule, fn FuncInfo) *Trace {
	info := module.BackendInfo()
	var paths map[string]string
	if cp := module.CompiledPaths(); cp != nil {
		paths = make(map[string]string, len(cp))
		for k, v := range cp {
			paths[k] = v
		}
	}
	return &Trace{
		Metadata: Metadata{
			FormatVersion:         FormatVersion,
			ModuleName:            module.ModuleName(),
			CompiledPaths:         paths,
			BackendName:           info.Name,
			BackendID:             info.ID,
			BackendDriver:         info.Driver,
			BenchmarkSerializable: module.BenchmarkSerializable(),
			GraphSerializable:     module.GraphSerializable(),
			FunctionName:          fn.Name,
			FunctionSourceFile:    fn.File,
			FunctionLineNumbers:   fn.Lines,
			FunctionSource:        fn.Source,
		},
		calls: []*Call{},
	}
}

// Append records a call. It fails with ErrTraceFrozen after Freeze.
func (t *Trace) Append(c *Call) error {
	if t.frozen {
		return ErrTraceFrozen
	}
	t.calls = append(t.calls, c)
	return nil
}

// Freeze makes the trace read-only.
func (t *Trace) Freeze() {
	t.frozen = true
}

// Frozen reports whether Freeze has been called.
func (t *Trace) Frozen() bool {
	return t.frozen
}

// Calls returns the recorded calls in order. The slice is a copy; the calls
// themselves are immutable.
func (t *Trace) Calls() []*Call {
	out := make([]*Call, len(t.calls))
	copy(out, t.calls)
	return out
}

// Len returns the number of recorded calls.
func (t *Trace) Len() int {
	return len(t.calls)
}

// Signatures returns the (method, rtol, atol) sequence of the trace.
func (t *Trace) Signatures() []Signature {
	sigs := make([]Signature, len(t.calls))
	for i, c := range t.calls {
		sigs[i] = c.Signature()
	}
	return sigs
}

// String renders the trace with default array formatting.
func (t *Trace) String() string {
	return t.Format(value.DefaultFormatOptions())
}

// Format renders a header line followed by every call, numbered from 1 so
// traces of different backends can be compared side by side.
func (t *Trace) Format(opts value.FormatOptions) string {
	header := fmt.Sprintf("Trace of %s compiled to '%s' on function '%s':", t.ModuleName, t.BackendID, t.FunctionName)
	calls := make([]string, len(t.calls))
	for i, c := range t.calls {
		calls[i] = fmt.Sprintf("%d. %s", i+1, c.Format(opts))
	}
	return header + "\n" + indent(strings.Join(calls, "\n"), 2)
}
