package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/difftrace/internal/backend"
	"github.com/roach88/difftrace/internal/value"
)

func TestArithmeticModuleDrift(t *testing.T) {
	exact := NewArithmeticModule("ref", "ref_ref", 0)
	off := NewArithmeticModule("drift", "drift", 0.5)

	assert.Equal(t, []float32{4, 6}, exact.Add([]float32{1, 2}, []float32{3, 4}))
	assert.Equal(t, []float32{4.5, 6.5}, off.Add([]float32{1, 2}, []float32{3, 4}))
	assert.Equal(t, 6.0, exact.Sum(1, 2, 3))
}

func TestArithmeticModuleReinitialize(t *testing.T) {
	m := NewArithmeticModule("ref", "ref_ref", 0)
	_, calls := m.Count([]int32{1, 0, 2})
	assert.Equal(t, int64(1), calls)

	require.NoError(t, m.Reinitialize())
	n, calls := m.Count([]int32{1, 0, 2})
	assert.Equal(t, int64(2), n)
	assert.Equal(t, int64(1), calls)
	assert.Equal(t, 1, m.Resets())
}

func TestLazyTensorMaterializes(t *testing.T) {
	m := NewArithmeticModule("ref", "ref_ref", 0)
	var h value.Handle = m.Lazy([]float32{1, 2})

	arr, err := h.Materialize()
	require.NoError(t, err)
	data, ok := value.ArrayData[float32](arr)
	require.True(t, ok)
	assert.Equal(t, []float32{2, 4}, data)
}

func TestArithmeticCompiler(t *testing.T) {
	reg := NewRegistry(0.25)
	info, err := reg.Info("drift", "drift")
	require.NoError(t, err)

	mod, err := reg.Compile(context.Background(), Model("Arithmetic"), info, backend.CompileOptions{
		ExportedNames: []string{"Add"},
		ArtifactsDir:  "/artifacts",
	})
	require.NoError(t, err)

	am := mod.(*ArithmeticModule)
	assert.Equal(t, 0.25, am.Drift)
	assert.Equal(t, map[string]string{"Add": "/artifacts/drift/Arithmetic.bin"}, mod.CompiledPaths())
	assert.Equal(t, "interp", mod.BackendInfo().Driver)
}
