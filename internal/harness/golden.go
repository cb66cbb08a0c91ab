package harness

import (
	"strconv"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/difftrace/internal/trace"
	"github.com/roach88/difftrace/internal/value"
)

// Snapshot renders the calls of tr as canonical JSON for golden files.
// Values appear as their log.txt rendering, so a snapshot stays readable
// and ignores which backend produced the trace.
func Snapshot(tr *trace.Trace) ([]byte, error) {
	calls := make([]any, 0, tr.Len())
	for _, c := range tr.Calls() {
		rtol, atol := c.Tolerances()
		calls = append(calls, map[string]any{
			"method":  c.Method(),
			"rtol":    strconv.FormatFloat(rtol, 'g', -1, 64),
			"atol":    strconv.FormatFloat(atol, 'g', -1, 64),
			"inputs":  snapshotValues(c.Inputs()),
			"outputs": snapshotValues(c.Outputs()),
		})
	}
	return value.MarshalCanonical(map[string]any{
		"module_name":   tr.ModuleName,
		"function_name": tr.FunctionName,
		"calls":         calls,
	})
}

func snapshotValues(vals []value.Value) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = map[string]any{
			"type":  value.Describe(v),
			"value": value.String(v),
		}
	}
	return out
}

// AssertGolden compares the snapshot of tr with testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, tr *trace.Trace) {
	t.Helper()

	got, err := Snapshot(tr)
	if err != nil {
		t.Fatalf("snapshot %s: %v", name, err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, got)
}
