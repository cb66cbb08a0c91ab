package testutil

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	"github.com/roach88/difftrace/internal/backend"
	"github.com/roach88/difftrace/internal/value"
)

// ErrInjected is returned by ArithmeticModule.Fail.
var ErrInjected = errors.New("injected failure")

// Model is a named backend.Model.
type Model string

// Name implements backend.Model.
func (m Model) Name() string { return string(m) }

// ArithmeticMethods lists the methods ArithmeticModule exports for tracing.
var ArithmeticMethods = []string{"Add", "Scale", "Sum", "Count", "Stats", "Noop", "Lazy", "Fail"}

// ArithmeticModule is a deterministic in-memory "compiled" module.
//
// Drift is added to every floating result, so a module with non-zero drift
// plays a backend that diverges numerically from the reference.
type ArithmeticModule struct {
	Info  backend.Info
	Drift float64

	// Version is a plain exported field, returned untraced by Attr.
	Version string

	// Offset is a func-typed field, traced like a method when set.
	Offset func(x float64) float64

	Paths     map[string]string
	Benchmark bool
	Graph     bool

	mu      sync.Mutex
	resets  int
	counter int64
}

// ModuleName implements backend.CompiledModule.
func (m *ArithmeticModule) ModuleName() string { return "Arithmetic" }

// BackendInfo implements backend.CompiledModule.
func (m *ArithmeticModule) BackendInfo() backend.Info { return m.Info }

// CompiledPaths implements backend.CompiledModule.
func (m *ArithmeticModule) CompiledPaths() map[string]string { return m.Paths }

// BenchmarkSerializable implements backend.CompiledModule.
func (m *ArithmeticModule) BenchmarkSerializable() bool { return m.Benchmark }

// GraphSerializable implements backend.CompiledModule.
func (m *ArithmeticModule) GraphSerializable() bool { return m.Graph }

// Reinitialize implements backend.CompiledModule. It clears the call counter.
func (m *ArithmeticModule) Reinitialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	m.counter = 0
	return nil
}

// Resets returns how often Reinitialize ran.
func (m *ArithmeticModule) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}

// Add returns a + b element-wise.
func (m *ArithmeticModule) Add(a, b []float32) []float32 {
	out := make([]float32, len(a))
	for i := range a {
		out[i] = a[i] + b[i] + float32(m.Drift)
	}
	return out
}

// Scale returns xs * factor as a 2-D array of shape (1, len(xs)).
func (m *ArithmeticModule) Scale(xs []float64, factor float64) *value.Array {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = x*factor + m.Drift
	}
	return value.MustArray(out, 1, len(out))
}

// Sum returns the sum of xs.
func (m *ArithmeticModule) Sum(xs ...float64) float64 {
	total := m.Drift
	for _, x := range xs {
		total += x
	}
	return total
}

// Count returns the number of non-zero entries and bumps the stateful call
// counter.
func (m *ArithmeticModule) Count(xs []int32) (int64, int64) {
	m.mu.Lock()
	m.counter++
	calls := m.counter
	m.mu.Unlock()

	var n int64
	for _, x := range xs {
		if x != 0 {
			n++
		}
	}
	return n, calls
}

// Stats returns summary statistics as a mapping.
func (m *ArithmeticModule) Stats(xs []float32) map[string]any {
	var sum float64
	var peak float32
	for i, x := range xs {
		sum += float64(x)
		if i == 0 || x > peak {
			peak = x
		}
	}
	mean := m.Drift
	if len(xs) > 0 {
		mean += sum / float64(len(xs))
	}
	return map[string]any{
		"mean": mean,
		"peak": []float32{peak + float32(m.Drift)},
		"n":    len(xs),
	}
}

// Noop returns nothing.
func (m *ArithmeticModule) Noop() {}

// Lazy returns a handle that materializes to xs doubled.
func (m *ArithmeticModule) Lazy(xs []float32) *LazyTensor {
	out := make([]float32, len(xs))
	for i, x := range xs {
		out[i] = 2*x + float32(m.Drift)
	}
	return &LazyTensor{data: out}
}

// Fail always returns ErrInjected.
func (m *ArithmeticModule) Fail() (float64, error) {
	return 0, ErrInjected
}

// LazyTensor is a backend-native handle. It is accepted as an output (the
// recorder materializes it) and rejected as an input.
type LazyTensor struct {
	data []float32
}

// Materialize implements value.Handle.
func (l *LazyTensor) Materialize() (*value.Array, error) {
	return value.Vector(l.data), nil
}

// ArithmeticCompiler compiles any model to an ArithmeticModule.
type ArithmeticCompiler struct {
	DriverName string
	Drift      float64
	Benchmark  bool
	Graph      bool

	mu       sync.Mutex
	compiles int
	modules  []*ArithmeticModule
}

// NewArithmeticCompiler returns a compiler for the given driver and drift.
func NewArithmeticCompiler(driver string, drift float64) *ArithmeticCompiler {
	return &ArithmeticCompiler{DriverName: driver, Drift: drift}
}

// Driver implements backend.Compiler.
func (c *ArithmeticCompiler) Driver() string { return c.DriverName }

// Compile implements backend.Compiler. Compiled paths point into
// opts.ArtifactsDir; nothing is written.
func (c *ArithmeticCompiler) Compile(ctx context.Context, model backend.Model, info backend.Info, opts backend.CompileOptions) (backend.CompiledModule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names := opts.ExportedNames
	if len(names) == 0 {
		names = ArithmeticMethods
	}
	paths := make(map[string]string, len(names))
	for _, name := range names {
		paths[name] = filepath.Join(opts.ArtifactsDir, info.ID, model.Name()+".bin")
	}

	mod := &ArithmeticModule{
		Info:      info,
		Drift:     c.Drift,
		Version:   "1",
		Paths:     paths,
		Benchmark: c.Benchmark,
		Graph:     c.Graph,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.compiles++
	c.modules = append(c.modules, mod)
	return mod, nil
}

// Compiles returns how many modules were compiled.
func (c *ArithmeticCompiler) Compiles() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compiles
}

// NewArithmeticModule returns a module bound to a backend without going
// through a compiler.
func NewArithmeticModule(name, id string, drift float64) *ArithmeticModule {
	return &ArithmeticModule{
		Info:    backend.Info{Name: name, ID: id, Driver: name},
		Drift:   drift,
		Version: "1",
	}
}

// NewRegistry returns a registry with a reference backend "ref" and two
// targets: "interp" which matches the reference exactly and "drift" which is
// off by drift.
func NewRegistry(drift float64) *backend.Registry {
	reg := backend.NewRegistry()
	reg.Register("ref", NewArithmeticCompiler("host", 0))
	reg.Register("interp", NewArithmeticCompiler("interp", 0))
	reg.Register("drift", NewArithmeticCompiler("interp", drift))
	return reg
}
