package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/difftrace/internal/store"
	"github.com/roach88/difftrace/internal/trace"
)

// DuplicateBackendError reports two traces of one comparison made by the
// same backend. Results and the run index key traces by backend id.
type DuplicateBackendError struct {
	BackendID string
	First     int
	Second    int
}

func (e *DuplicateBackendError) Error() string {
	return fmt.Sprintf("traces %d and %d were both recorded on backend %q", e.First, e.Second, e.BackendID)
}

// CheckUniqueBackends returns a *DuplicateBackendError when two traces share
// a backend id.
func CheckUniqueBackends(traces []*trace.Trace) error {
	seen := make(map[string]int, len(traces))
	for i, tr := range traces {
		if j, ok := seen[tr.BackendID]; ok {
			return &DuplicateBackendError{BackendID: tr.BackendID, First: j, Second: i}
		}
		seen[tr.BackendID] = i
	}
	return nil
}

// RecordRun writes res to st: one run row and one trace row per trace.
// traces[0] is the reference; its row carries the run outcome. Trace dirs and
// content digests are taken from res.
func RecordRun(ctx context.Context, st *store.Store, res *Result, function string, start time.Time, traces []*trace.Trace) error {
	if len(traces) == 0 {
		return fmt.Errorf("record run %s: no traces", res.RunID)
	}
	if err := CheckUniqueBackends(traces); err != nil {
		return fmt.Errorf("record run %s: %w", res.RunID, err)
	}

	ref := traces[0]
	targetIDs := make([]string, 0, len(traces)-1)
	for _, tr := range traces[1:] {
		targetIDs = append(targetIDs, tr.BackendID)
	}
	run := store.Run{
		ID:           res.RunID,
		FunctionName: function,
		ReferenceID:  ref.BackendID,
		TargetIDs:    targetIDs,
		Passed:       res.Passed,
		Errors:       res.Errors,
		StartedAt:    start,
	}
	if _, err := st.WriteRun(ctx, run); err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	failed := make(map[string]bool, len(res.FailedBackends))
	for _, id := range res.FailedBackends {
		failed[id] = true
	}
	for i, tr := range traces {
		digest, err := trace.Digest(tr)
		if err != nil {
			return fmt.Errorf("digest %s: %w", tr.BackendID, err)
		}
		rec := store.TraceRecord{
			RunID:         res.RunID,
			BackendID:     tr.BackendID,
			Role:          store.RoleTarget,
			Dir:           res.TraceDirs[tr.BackendID],
			Digest:        digest,
			ContentDigest: res.Digests[tr.BackendID],
			Calls:         tr.Len(),
			Passed:        !failed[tr.BackendID],
		}
		if i == 0 {
			rec.Role = store.RoleReference
			rec.Passed = res.Passed
		}
		if err := st.WriteTrace(ctx, rec); err != nil {
			return fmt.Errorf("record trace %s: %w", tr.BackendID, err)
		}
	}
	return nil
}
