package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s := openAt(t, filepath.Join(t.TempDir(), "test.db"))
	t.Cleanup(func() { s.Close() })
	return s
}

// openAt opens the index at path; the caller closes it.
func openAt(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	return s
}

// createTestRun creates a passing run with minimal required fields.
func createTestRun(id string) Run {
	return Run{
		ID:           id,
		FunctionName: "test_add",
		ReferenceID:  "ref_ref",
		TargetIDs:    []string{"interp", "drift"},
		Passed:       true,
		Errors:       []string{},
		StartedAt:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// createTestTrace creates a trace record for run and backend.
func createTestTrace(runID, backendID, role, contentDigest string) TraceRecord {
	return TraceRecord{
		RunID:         runID,
		BackendID:     backendID,
		Role:          role,
		Dir:           filepath.Join("/artifacts", backendID, "traces", "test_add"),
		Digest:        "digest-" + backendID,
		ContentDigest: contentDigest,
		Calls:         2,
		Passed:        true,
	}
}
