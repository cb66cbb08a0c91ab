package trace

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/difftrace/internal/testutil"
	"github.com/roach88/difftrace/internal/value"
)

func TestPadWidth(t *testing.T) {
	tests := []struct {
		count, want int
	}{
		{0, 0}, {1, 0}, {2, 1}, {10, 1}, {11, 2}, {100, 2}, {101, 3}, {1000, 3}, {1001, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PadWidth(tt.count), "PadWidth(%d)", tt.count)
	}
}

func TestDir(t *testing.T) {
	tr := recordArithmetic(t, testutil.NewArithmeticModule("interp", "interp_1", 0), addThenSum)
	assert.Equal(t, filepath.Join("/artifacts", "interp_1", "traces", "arith"), Dir("/artifacts", tr))
}

func TestSerializeLoadRoundTrip(t *testing.T) {
	mod := testutil.NewArithmeticModule("ref", "ref_ref", 0)
	mod.Paths = map[string]string{"Add": "/x/Arithmetic.bin"}
	tr := recordArithmetic(t, mod, func(m *TracedModule) error {
		if err := addThenSum(m); err != nil {
			return err
		}
		if _, err := m.Call("Stats", []float32{1, 2}); err != nil {
			return err
		}
		_, err := m.Call("Noop", ATol(0.5))
		return err
	})

	dir := t.TempDir()
	require.NoError(t, tr.Serialize(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, tr, loaded)
	assert.True(t, loaded.Frozen())

	want, err := Digest(tr)
	require.NoError(t, err)
	got, err := Digest(loaded)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSerializeLayout(t *testing.T) {
	tr := recordArithmetic(t, testutil.NewArithmeticModule("ref", "ref_ref", 0), func(m *TracedModule) error {
		for i := 0; i < 12; i++ {
			if _, err := m.Call("Sum", float64(i)); err != nil {
				return err
			}
		}
		return nil
	})

	dir := t.TempDir()
	require.NoError(t, tr.Serialize(dir))

	assert.FileExists(t, filepath.Join(dir, MetadataFile))
	assert.DirExists(t, filepath.Join(dir, "call_00"))
	assert.DirExists(t, filepath.Join(dir, "call_11"))
	assert.FileExists(t, filepath.Join(dir, "call_03", "input_0.json"))
	assert.FileExists(t, filepath.Join(dir, "call_03", "output_0.json"))
	assert.NoFileExists(t, filepath.Join(dir, FlagFile))
	assert.NoFileExists(t, filepath.Join(dir, GraphPathFile))

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 12, loaded.Len())
	for i, c := range loaded.Calls() {
		assert.Equal(t, []value.Value{value.Float(float64(i))}, c.Inputs(), "call %d", i)
	}
}

func TestSerializeOverwritesLongerTrace(t *testing.T) {
	sums := func(n int) Func {
		return func(m *TracedModule) error {
			for i := 0; i < n; i++ {
				if _, err := m.Call("Sum", float64(i)); err != nil {
					return err
				}
			}
			return nil
		}
	}
	mod := testutil.NewArithmeticModule("ref", "ref_ref", 0)
	mod.Benchmark = true
	mod.Paths = map[string]string{"Sum": "/x/Arithmetic.bin"}

	dir := t.TempDir()
	require.NoError(t, recordArithmetic(t, mod, sums(3)).Serialize(dir))
	require.FileExists(t, filepath.Join(dir, FlagFile))

	mod.Benchmark = false
	short := recordArithmetic(t, mod, sums(1))
	require.NoError(t, short.Serialize(dir))

	assert.DirExists(t, filepath.Join(dir, "call_0"))
	assert.NoDirExists(t, filepath.Join(dir, "call_1"))
	assert.NoDirExists(t, filepath.Join(dir, "call_2"))
	assert.NoFileExists(t, filepath.Join(dir, FlagFile))
	assert.FileExists(t, filepath.Join(dir, MetadataFile))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, short, loaded)
}

func TestSerializeCallMetadata(t *testing.T) {
	tr := recordArithmetic(t, testutil.NewArithmeticModule("ref", "ref_ref", 0), func(m *TracedModule) error {
		_, err := m.Call("Sum", 1.0, 2.0, RTol(1e-3))
		return err
	})

	dir := t.TempDir()
	require.NoError(t, tr.Serialize(dir))

	data, err := os.ReadFile(filepath.Join(dir, "call_0", MetadataFile))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"method": "Sum",
		"serialized_inputs": ["f64=1", "f64=2"],
		"serialized_outputs": ["f64=3"],
		"rtol": 0.001,
		"atol": 0.000001
	}`, string(data))

	data, err = os.ReadFile(filepath.Join(dir, "call_0", "input_1.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type": "float", "value": "2"}`, string(data))
}

func TestSerializeEmptyTrace(t *testing.T) {
	mod := testutil.NewArithmeticModule("ref", "ref_ref", 0)
	mod.Benchmark = true
	tr := recordArithmetic(t, mod, func(*TracedModule) error { return nil })

	dir := t.TempDir()
	require.NoError(t, tr.Serialize(dir))
	assert.NoFileExists(t, filepath.Join(dir, FlagFile))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())
	assert.Equal(t, tr, loaded)
}

func TestSerializeFlagfile(t *testing.T) {
	mod := testutil.NewArithmeticModule("interp", "interp", 0)
	mod.Info.Driver = "interp"
	mod.Benchmark = true
	mod.Graph = true
	mod.Paths = map[string]string{"Add": "/x/Arithmetic.bin"}
	tr := recordArithmetic(t, mod, addThenSum)

	dir := t.TempDir()
	require.NoError(t, tr.Serialize(dir))

	data, err := os.ReadFile(filepath.Join(dir, FlagFile))
	require.NoError(t, err)
	assert.Equal(t, "--module_file=/x/Arithmetic.bin\n"+
		"--driver=interp\n"+
		"--function_inputs=2xf32=1 2, 2xf32=3 4\n"+
		"--entry_function=Add\n", string(data))
	assert.NoFileExists(t, filepath.Join(dir, GraphPathFile))
}

func TestSerializeGraphPath(t *testing.T) {
	mod := testutil.NewArithmeticModule("interp", "interp", 0)
	mod.Graph = true
	mod.Paths = map[string]string{"Add": "/x/Arithmetic.bin"}
	tr := recordArithmetic(t, mod, addThenSum)

	dir := t.TempDir()
	require.NoError(t, tr.Serialize(dir))

	data, err := os.ReadFile(filepath.Join(dir, GraphPathFile))
	require.NoError(t, err)
	assert.Equal(t, "/x/Arithmetic.bin\n", string(data))
}

func TestSerializeMissingCompiledPath(t *testing.T) {
	mod := testutil.NewArithmeticModule("interp", "interp", 0)
	mod.Graph = true
	tr := recordArithmetic(t, mod, addThenSum)

	err := tr.Serialize(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Add"`)
}

func TestLoadErrors(t *testing.T) {
	t.Run("not a trace directory", func(t *testing.T) {
		_, err := Load(t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a trace directory")
	})

	t.Run("newer format", func(t *testing.T) {
		dir := t.TempDir()
		meta := fmt.Sprintf(`{"format_version": %d}`, FormatVersion+1)
		require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), []byte(meta), 0o644))
		_, err := Load(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "newer than supported")
	})

	t.Run("corrupt value", func(t *testing.T) {
		tr := recordArithmetic(t, testutil.NewArithmeticModule("ref", "ref_ref", 0), addThenSum)
		dir := t.TempDir()
		require.NoError(t, tr.Serialize(dir))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "call_1", "output_0.json"), []byte(`{"type": "float"}`), 0o644))

		_, err := Load(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "call_1")
	})
}

func TestSavePlaintext(t *testing.T) {
	tr := recordArithmetic(t, testutil.NewArithmeticModule("ref", "ref_ref", 0), addThenSum)
	tr.FunctionName = "add_and_sum"

	dir := t.TempDir()
	require.NoError(t, tr.SavePlaintext(dir, true))

	data, err := os.ReadFile(filepath.Join(dir, PlaintextFile))
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "log_add_and_sum", data)
}

func TestSavePlaintextSummarize(t *testing.T) {
	big := make([]float32, 2000)
	tr := recordArithmetic(t, testutil.NewArithmeticModule("ref", "ref_ref", 0), func(m *TracedModule) error {
		_, err := m.Call("Add", big, big)
		return err
	})

	summarized := t.TempDir()
	require.NoError(t, tr.SavePlaintext(summarized, true))
	data, err := os.ReadFile(filepath.Join(summarized, PlaintextFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "...")

	full := t.TempDir()
	require.NoError(t, tr.SavePlaintext(full, false))
	data, err = os.ReadFile(filepath.Join(full, PlaintextFile))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "...")
}
