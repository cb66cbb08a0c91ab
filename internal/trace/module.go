package trace

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"reflect"

	"github.com/roach88/difftrace/internal/backend"
	"github.com/roach88/difftrace/internal/value"
)

// RTol is passed as a call argument to override the relative tolerance of
// that call. It is consumed by the proxy and never reaches the module:
//
//	m.Call("Add", a, b, trace.RTol(1e-3))
type RTol float64

// ATol overrides the absolute tolerance of a call. See RTol.
type ATol float64

// DefaultSeed seeds the random source when none is supplied.
const DefaultSeed uint64 = 0

var (
	errorType  = reflect.TypeOf((*error)(nil)).Elem()
	moduleType = reflect.TypeOf((*backend.CompiledModule)(nil)).Elem()
)

// TracedModule wraps a compiled module so every call made through it is
// recorded in a Trace. Results are returned to the caller unchanged.
//
// Go has no dynamic attribute hook, so the proxy reflects once over the
// module's exported methods and fields and serves lookups from that table.
// Methods of backend.CompiledModule itself are metadata and pass through
// without being recorded.
type TracedModule struct {
	module     backend.CompiledModule
	trace      *Trace
	rv         reflect.Value
	methods    map[string]reflect.Value
	metadata   map[string]reflect.Value
	fields     map[string][]int
	serializer ValueSerializer
	rng        *rand.Rand
	logger     *slog.Logger
}

// Option configures a TracedModule.
type Option func(*TracedModule)

// WithRand shares a random source with the trace function. The harness
// reseeds it before every backend run.
func WithRand(r *rand.Rand) Option {
	return func(m *TracedModule) { m.rng = r }
}

// WithSerializer overrides how call values are encoded.
func WithSerializer(s ValueSerializer) Option {
	return func(m *TracedModule) { m.serializer = s }
}

// WithLogger sets the logger for recorded calls.
func WithLogger(l *slog.Logger) Option {
	return func(m *TracedModule) { m.logger = l }
}

// NewTracedModule wraps module, recording into tr.
func NewTracedModule(module backend.CompiledModule, tr *Trace, opts ...Option) *TracedModule {
	m := &TracedModule{
		module:   module,
		trace:    tr,
		rv:       reflect.ValueOf(module),
		methods:  make(map[string]reflect.Value),
		metadata: make(map[string]reflect.Value),
		fields:   make(map[string][]int),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if s, ok := module.(ValueSerializer); ok {
		m.serializer = s
	} else {
		m.serializer = DefaultSerializer{}
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewPCG(DefaultSeed, DefaultSeed))
	}
	m.buildTable()
	return m
}

func (m *TracedModule) buildTable() {
	t := m.rv.Type()
	for i := 0; i < t.NumMethod(); i++ {
		name := t.Method(i).Name
		if _, ok := moduleType.MethodByName(name); ok {
			m.metadata[name] = m.rv.Method(i)
			continue
		}
		m.methods[name] = m.rv.Method(i)
	}

	st := t
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return
	}
	for _, f := range reflect.VisibleFields(st) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		if _, shadowed := m.methods[f.Name]; shadowed {
			continue
		}
		m.fields[f.Name] = f.Index
	}
}

// Module returns the wrapped module.
func (m *TracedModule) Module() backend.CompiledModule {
	return m.module
}

// Trace returns the trace being recorded.
func (m *TracedModule) Trace() *Trace {
	return m.trace
}

// Rand returns the run's seeded random source. Trace functions draw their
// inputs from it so every backend sees identical data.
func (m *TracedModule) Rand() *rand.Rand {
	return m.rng
}

// Attr resolves name on the module. Methods and func-typed fields come back
// as a *Method that records when called; CompiledModule methods come back as
// their raw func value; other fields are returned as-is.
func (m *TracedModule) Attr(name string) (any, error) {
	if meth, err := m.Method(name); err == nil {
		return meth, nil
	}
	if fn, ok := m.metadata[name]; ok {
		return fn.Interface(), nil
	}
	if idx, ok := m.fields[name]; ok {
		return m.field(idx).Interface(), nil
	}
	return nil, m.missing(name)
}

// Method returns a recording wrapper around the named method or func field.
func (m *TracedModule) Method(name string) (*Method, error) {
	if fn, ok := m.methods[name]; ok {
		return &Method{m: m, name: name, fn: fn}, nil
	}
	if idx, ok := m.fields[name]; ok {
		f := m.field(idx)
		if f.Kind() == reflect.Func && !f.IsNil() {
			return &Method{m: m, name: name, fn: f}, nil
		}
	}
	return nil, m.missing(name)
}

// Call invokes the named method and records it. It is shorthand for
// Method(name) followed by Method.Call.
func (m *TracedModule) Call(name string, args ...any) ([]any, error) {
	meth, err := m.Method(name)
	if err != nil {
		return nil, err
	}
	return meth.Call(args...)
}

func (m *TracedModule) field(idx []int) reflect.Value {
	return reflect.Indirect(m.rv).FieldByIndex(idx)
}

func (m *TracedModule) missing(name string) error {
	return &MissingAttributeError{Module: m.module.ModuleName(), Name: name}
}

// Method is a recording wrapper around one module method.
type Method struct {
	m    *TracedModule
	name string
	fn   reflect.Value
}

// Name returns the method name.
func (meth *Method) Name() string {
	return meth.name
}

// Call invokes the method with args and records the call.
//
// RTol and ATol arguments set the call's tolerances and are not forwarded.
// Inputs are validated before the method runs. A trailing error result is
// stripped; when it is non-nil it is returned unchanged and nothing is
// recorded. The remaining results are returned exactly as the module
// produced them.
func (meth *Method) Call(args ...any) ([]any, error) {
	var opts []CallOption
	positional := make([]any, 0, len(args))
	for _, arg := range args {
		switch tol := arg.(type) {
		case RTol:
			opts = append(opts, WithRTol(float64(tol)))
		case ATol:
			opts = append(opts, WithATol(float64(tol)))
		default:
			positional = append(positional, arg)
		}
	}

	inputs, err := value.FromGoAll("inputs", positional)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", meth.name, err)
	}
	in, err := meth.arguments(positional)
	if err != nil {
		return nil, err
	}

	out := meth.fn.Call(in)
	if n := len(out); n > 0 && meth.fn.Type().Out(n-1) == errorType {
		if errVal := out[n-1]; !errVal.IsNil() {
			return nil, errVal.Interface().(error)
		}
		out = out[:n-1]
	}
	results := make([]any, len(out))
	for i, o := range out {
		results[i] = o.Interface()
	}

	outputs, err := outputValues(results)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", meth.name, err)
	}
	serIn, serOut := meth.m.serializer.SerializeValues(meth.name, inputs, outputs)
	call := newCall(meth.name, inputs, outputs, serIn, serOut, opts...)
	if err := meth.m.trace.Append(call); err != nil {
		return nil, fmt.Errorf("record %s: %w", meth.name, err)
	}
	meth.m.logger.Debug("recorded call",
		"backend", meth.m.trace.BackendID,
		"method", meth.name,
		"inputs", len(inputs),
		"outputs", len(outputs))
	return results, nil
}

// arguments converts args to the method's parameter types. Numeric values
// convert between numeric kinds so untyped constants work naturally.
func (meth *Method) arguments(args []any) ([]reflect.Value, error) {
	ft := meth.fn.Type()
	numIn := ft.NumIn()
	if ft.IsVariadic() {
		if len(args) < numIn-1 {
			return nil, &ArgumentError{Method: meth.name, Reason: fmt.Sprintf("want at least %d arguments, got %d", numIn-1, len(args))}
		}
	} else if len(args) != numIn {
		return nil, &ArgumentError{Method: meth.name, Reason: fmt.Sprintf("want %d arguments, got %d", numIn, len(args))}
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		var pt reflect.Type
		if ft.IsVariadic() && i >= numIn-1 {
			pt = ft.In(numIn - 1).Elem()
		} else {
			pt = ft.In(i)
		}

		if arg == nil {
			switch pt.Kind() {
			case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
				in[i] = reflect.Zero(pt)
				continue
			}
			return nil, &ArgumentError{Method: meth.name, Reason: fmt.Sprintf("argument %d: nil is not a valid %s", i, pt)}
		}

		av := reflect.ValueOf(arg)
		switch {
		case av.Type().AssignableTo(pt):
			in[i] = av
		case isNumeric(av.Kind()) && isNumeric(pt.Kind()):
			in[i] = av.Convert(pt)
		default:
			return nil, &ArgumentError{Method: meth.name, Reason: fmt.Sprintf("argument %d: %s is not assignable to %s", i, av.Type(), pt)}
		}
	}
	return in, nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
