package trace

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/difftrace/internal/backend"
	"github.com/roach88/difftrace/internal/testutil"
	"github.com/roach88/difftrace/internal/value"
)

func newTraced(t *testing.T, drift float64) (*TracedModule, *testutil.ArithmeticModule) {
	t.Helper()
	mod := testutil.NewArithmeticModule("ref", "ref_ref", drift)
	return NewTracedModule(mod, NewWithFunc(mod, FuncInfo{Name: "test"})), mod
}

func TestTracedModuleReturnsResultsUnchanged(t *testing.T) {
	m, mod := newTraced(t, 0)

	got, err := m.Call("Add", []float32{1, 2}, []float32{3, 4})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mod.Add([]float32{1, 2}, []float32{3, 4}), got[0])

	got, err = m.Call("Scale", []float64{1, 2}, 3.0)
	require.NoError(t, err)
	arr, ok := got[0].(*value.Array)
	require.True(t, ok)
	assert.Equal(t, value.Shape{1, 2}, arr.Shape())

	got, err = m.Call("Count", []int32{0, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(2), int64(1)}, got)
}

func TestTracedModuleRecordsCalls(t *testing.T) {
	m, _ := newTraced(t, 0)

	_, err := m.Call("Add", []float32{1, 2}, []float32{3, 4})
	require.NoError(t, err)
	_, err = m.Call("Stats", []float32{1, 3})
	require.NoError(t, err)

	calls := m.Trace().Calls()
	require.Len(t, calls, 2)

	add := calls[0]
	assert.Equal(t, "Add", add.Method())
	assert.Equal(t, []value.Value{value.Vector([]float32{1, 2}), value.Vector([]float32{3, 4})}, add.Inputs())
	assert.Equal(t, []value.Value{value.Vector([]float32{4, 6})}, add.Outputs())
	assert.Equal(t, []string{"2xf32=1 2", "2xf32=3 4"}, add.SerializedInputs())
	assert.Equal(t, []string{"2xf32=4 6"}, add.SerializedOutputs())

	stats := calls[1].Outputs()
	require.Len(t, stats, 1)
	assert.Equal(t, value.Map{
		"mean": value.Float(2),
		"peak": value.Vector([]float32{3}),
		"n":    value.Int(2),
	}, stats[0])
}

func TestTracedModuleTolerances(t *testing.T) {
	m, mod := newTraced(t, 0)

	got, err := m.Call("Sum", 1.0, RTol(1e-3), 2.0, ATol(1e-2))
	require.NoError(t, err)
	assert.Equal(t, []any{mod.Sum(1, 2)}, got)

	calls := m.Trace().Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, Signature{Method: "Sum", RTol: 1e-3, ATol: 1e-2}, calls[0].Signature())
	assert.Equal(t, []value.Value{value.Float(1), value.Float(2)}, calls[0].Inputs())
}

func TestTracedModuleVariadicAndConversion(t *testing.T) {
	m, _ := newTraced(t, 0)

	got, err := m.Call("Sum")
	require.NoError(t, err)
	assert.Equal(t, []any{0.0}, got)

	got, err = m.Call("Scale", []float64{1}, 2)
	require.NoError(t, err)
	data, ok := value.ArrayData[float64](got[0].(*value.Array))
	require.True(t, ok)
	assert.Equal(t, []float64{2}, data)
}

func TestTracedModuleNoResults(t *testing.T) {
	m, _ := newTraced(t, 0)

	got, err := m.Call("Noop")
	require.NoError(t, err)
	assert.Empty(t, got)

	calls := m.Trace().Calls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Inputs())
	assert.Empty(t, calls[0].Outputs())
}

func TestTracedModuleMaterializesHandles(t *testing.T) {
	m, _ := newTraced(t, 0)

	got, err := m.Call("Lazy", []float32{1, 2})
	require.NoError(t, err)
	_, isHandle := got[0].(*testutil.LazyTensor)
	assert.True(t, isHandle, "caller receives the handle itself")

	calls := m.Trace().Calls()
	assert.Equal(t, []value.Value{value.Vector([]float32{2, 4})}, calls[0].Outputs())
}

func TestTracedModuleRejectsHandleInputBeforeInvoking(t *testing.T) {
	m, mod := newTraced(t, 0)
	lazy := mod.Lazy([]float32{1})

	_, err := m.Call("Count", lazy)
	require.Error(t, err)
	assert.True(t, value.IsHandleError(err))
	assert.Equal(t, 0, m.Trace().Len())

	n, calls := mod.Count(nil)
	assert.Equal(t, int64(0), n)
	assert.Equal(t, int64(1), calls, "Count never ran through the proxy")
}

func TestTracedModuleErrorIsNotRecorded(t *testing.T) {
	m, _ := newTraced(t, 0)

	_, err := m.Call("Fail")
	require.ErrorIs(t, err, testutil.ErrInjected)
	assert.Equal(t, 0, m.Trace().Len())
}

func TestTracedModuleArgumentErrors(t *testing.T) {
	m, _ := newTraced(t, 0)

	tests := []struct {
		name   string
		method string
		args   []any
	}{
		{"too few", "Add", []any{[]float32{1}}},
		{"too many", "Add", []any{[]float32{1}, []float32{1}, []float32{1}}},
		{"wrong type", "Add", []any{[]float32{1}, []int32{1}}},
		{"nil scalar", "Scale", []any{[]float64{1}, nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Call(tt.method, tt.args...)
			require.Error(t, err)
		})
	}
	assert.Equal(t, 0, m.Trace().Len())
}

func TestTracedModuleFrozenTrace(t *testing.T) {
	m, _ := newTraced(t, 0)
	m.Trace().Freeze()

	_, err := m.Call("Noop")
	require.ErrorIs(t, err, ErrTraceFrozen)
}

func TestTracedModuleAttr(t *testing.T) {
	m, mod := newTraced(t, 0)
	mod.Offset = func(x float64) float64 { return x + 1 }

	t.Run("method", func(t *testing.T) {
		got, err := m.Attr("Add")
		require.NoError(t, err)
		meth, ok := got.(*Method)
		require.True(t, ok)
		assert.Equal(t, "Add", meth.Name())
	})

	t.Run("plain field is read live", func(t *testing.T) {
		mod.Version = "2"
		got, err := m.Attr("Version")
		require.NoError(t, err)
		assert.Equal(t, "2", got)
	})

	t.Run("func field is traced", func(t *testing.T) {
		before := m.Trace().Len()
		got, err := m.Call("Offset", 1.5)
		require.NoError(t, err)
		assert.Equal(t, []any{2.5}, got)
		require.Equal(t, before+1, m.Trace().Len())
		assert.Equal(t, "Offset", m.Trace().Calls()[before].Method())
	})

	t.Run("metadata passes through", func(t *testing.T) {
		before := m.Trace().Len()
		got, err := m.Attr("BackendInfo")
		require.NoError(t, err)
		fn, ok := got.(func() backend.Info)
		require.True(t, ok)
		assert.Equal(t, "ref_ref", fn().ID)
		assert.Equal(t, before, m.Trace().Len())

		_, err = m.Method("ModuleName")
		assert.True(t, IsMissingAttribute(err))
	})

	t.Run("missing", func(t *testing.T) {
		_, err := m.Attr("Subtract")
		require.Error(t, err)
		assert.True(t, IsMissingAttribute(err))
		assert.Equal(t, `the compiled module Arithmetic does not have attr "Subtract"`, err.Error())
	})
}

func TestTracedModuleNilFuncFieldIsNotCallable(t *testing.T) {
	m, _ := newTraced(t, 0)

	_, err := m.Call("Offset", 1.0)
	assert.True(t, IsMissingAttribute(err))

	got, err := m.Attr("Offset")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTracedModuleRand(t *testing.T) {
	m1, _ := newTraced(t, 0)
	m2, _ := newTraced(t, 0)
	assert.Equal(t, m1.Rand().Uint64(), m2.Rand().Uint64(), "default seed is fixed")

	shared := rand.New(rand.NewPCG(7, 7))
	mod := testutil.NewArithmeticModule("ref", "ref_ref", 0)
	m3 := NewTracedModule(mod, NewWithFunc(mod, FuncInfo{}), WithRand(shared))
	assert.Same(t, shared, m3.Rand())
}

type recordingSerializer struct {
	methods []string
}

func (s *recordingSerializer) SerializeValues(method string, inputs, outputs []value.Value) ([]string, []string) {
	s.methods = append(s.methods, method)
	return []string{"in"}, []string{"out"}
}

func TestTracedModuleCustomSerializer(t *testing.T) {
	mod := testutil.NewArithmeticModule("ref", "ref_ref", 0)
	ser := &recordingSerializer{}
	m := NewTracedModule(mod, NewWithFunc(mod, FuncInfo{}), WithSerializer(ser))

	_, err := m.Call("Sum", 1.0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Sum"}, ser.methods)
	assert.Equal(t, []string{"in"}, m.Trace().Calls()[0].SerializedInputs())
	assert.Equal(t, []string{"out"}, m.Trace().Calls()[0].SerializedOutputs())
}
