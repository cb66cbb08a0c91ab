package cli

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/difftrace/internal/store"
)

// recordRuns compares a passing and a failing pair into a fresh database.
func recordRuns(t *testing.T) (dbPath string, refDir string) {
	t.Helper()
	root := t.TempDir()
	refDir = writeTrace(t, root, "ref", "ref_ref", 0, addThenSum)
	interp := writeTrace(t, root, "interp", "interp", 0, addThenSum)
	drift := writeTrace(t, root, "drift", "drift", 0.5, addThenSum)
	dbPath = filepath.Join(t.TempDir(), "runs.db")

	_, err := execute(t, "compare", "--db", dbPath, refDir, interp)
	require.NoError(t, err)
	_, err = execute(t, "compare", "--db", dbPath, refDir, drift)
	require.Equal(t, ExitFailure, GetExitCode(err))
	return dbPath, refDir
}

func TestRunsList(t *testing.T) {
	dbPath, _ := recordRuns(t)

	out, err := execute(t, "runs", "--db", dbPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "SEQ"))
	assert.True(t, strings.HasPrefix(lines[1], "2 "), "newest first: %q", lines[1])
	assert.Contains(t, lines[1], "FAIL")
	assert.Contains(t, lines[2], "PASS")

	out, err = execute(t, "runs", "--db", dbPath, "--limit", "1")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)
}

func TestRunsEmpty(t *testing.T) {
	out, err := execute(t, "runs", "--db", filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	assert.Equal(t, "No runs recorded.\n", out)
}

func TestRunsNeedsDatabase(t *testing.T) {
	_, err := execute(t, "runs")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no database")
}

func TestRunsDatabaseFromConfig(t *testing.T) {
	dbPath, _ := recordRuns(t)
	cfg := writeConfig(t, "db: "+dbPath+"\n")

	out, err := execute(t, "--config", cfg, "--format", "json", "runs")
	require.NoError(t, err)

	var resp struct {
		Data []store.Run `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, int64(2), resp.Data[0].Seq)
	assert.Equal(t, int64(1), resp.Data[1].Seq)
}

func TestRunsShowRun(t *testing.T) {
	dbPath, refDir := recordRuns(t)

	out, err := execute(t, "--format", "json", "runs", "--db", dbPath, "--limit", "1")
	require.NoError(t, err)
	var list struct {
		Data []store.Run `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list.Data, 1)
	id := list.Data[0].ID

	out, err = execute(t, "runs", "--db", dbPath, "--run", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Run "+id+" (#2) FAIL\n")
	assert.Contains(t, out, "Function: add_then_sum\n")
	assert.Contains(t, out, refDir)
	assert.Contains(t, out, "Errors:\n  - outputs[0]")

	_, err = execute(t, "runs", "--db", dbPath, "--run", "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunsDigest(t *testing.T) {
	dbPath, refDir := recordRuns(t)

	out, err := execute(t, "--format", "json", "show", refDir)
	require.NoError(t, err)
	var shown struct {
		Data ShowResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &shown))

	out, err = execute(t, "--format", "json", "runs", "--db", dbPath, "--digest", shown.Data.ContentDigest)
	require.NoError(t, err)
	var found struct {
		Data []store.TraceRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &found))

	// the reference twice, and interp which matched it exactly
	require.Len(t, found.Data, 3)
	backends := map[string]int{}
	for _, rec := range found.Data {
		backends[rec.BackendID]++
	}
	assert.Equal(t, map[string]int{"ref_ref": 2, "interp": 1}, backends)
}
