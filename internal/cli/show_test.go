package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/difftrace/internal/trace"
)

func TestShowMatchesLogFile(t *testing.T) {
	dir := writeTrace(t, t.TempDir(), "ref", "ref_ref", 0, addThenSum)

	out, err := execute(t, "show", dir)
	require.NoError(t, err)

	logTxt, err := os.ReadFile(filepath.Join(dir, trace.PlaintextFile))
	require.NoError(t, err)
	assert.Equal(t, string(logTxt), out)
	assert.Contains(t, out, "Trace of Arithmetic compiled to 'ref_ref' on function 'add_then_sum':\n")
}

func TestShowSummarize(t *testing.T) {
	big := func(m *trace.TracedModule) error {
		_, err := m.Call("Add", make([]float32, 2000), make([]float32, 2000))
		return err
	}
	dir := writeTrace(t, t.TempDir(), "ref", "ref_ref", 0, big)

	out, err := execute(t, "show", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "...")

	out, err = execute(t, "show", "--summarize=false", dir)
	require.NoError(t, err)
	assert.NotContains(t, out, "...")
}

func TestShowJSON(t *testing.T) {
	dir := writeTrace(t, t.TempDir(), "ref", "ref_ref", 0, addThenSum)

	out, err := execute(t, "--format", "json", "show", dir)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   ShowResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ref_ref", resp.Data.BackendID)
	assert.Equal(t, "Arithmetic", resp.Data.ModuleName)
	assert.Equal(t, []string{"Add(rtol=1e-06, atol=1e-06)", "Sum(rtol=0.001, atol=1e-06)"}, resp.Data.Calls)
	assert.Len(t, resp.Data.Digest, 64)
	assert.Len(t, resp.Data.ContentDigest, 64)
	assert.NotEqual(t, resp.Data.Digest, resp.Data.ContentDigest)
}

func TestShowMissingTrace(t *testing.T) {
	_, err := execute(t, "show", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
