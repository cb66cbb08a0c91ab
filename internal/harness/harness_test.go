package harness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/difftrace/internal/config"
	"github.com/roach88/difftrace/internal/metrics"
	"github.com/roach88/difftrace/internal/store"
	"github.com/roach88/difftrace/internal/testutil"
	"github.com/roach88/difftrace/internal/trace"
)

func addThenSum(m *trace.TracedModule) error {
	if _, err := m.Call("Add", []float32{1, 2}, []float32{3, 4}); err != nil {
		return err
	}
	_, err := m.Call("Sum", 1.0, 2.0, trace.RTol(1e-3))
	return err
}

func compileFor(t *testing.T, drift float64, targets ...string) *Modules {
	t.Helper()
	mods, err := CompileModules(context.Background(), nil, testutil.NewRegistry(drift), testutil.Model("Arithmetic"), CompileConfig{
		Reference:     "ref",
		Targets:       targets,
		ArtifactsRoot: t.TempDir(),
	})
	require.NoError(t, err)
	return mods
}

func newTestHarness(opts ...Option) *Harness {
	base := []Option{
		WithClock(testutil.NewDeterministicClock()),
		WithIDGenerator(testutil.NewSequentialIDs("run")),
	}
	return New(append(base, opts...)...)
}

func TestCompareBackendsMatch(t *testing.T) {
	mods := compileFor(t, 0, "interp")

	res, err := newTestHarness().CompareBackends(context.Background(), addThenSum, mods)
	require.NoError(t, err)
	require.NoError(t, res.Err())

	assert.Equal(t, "run-0001", res.RunID)
	assert.True(t, res.Passed)
	assert.Empty(t, res.FailedBackends)
	assert.Empty(t, res.Errors)

	refDir := filepath.Join(mods.ArtifactsDir, "ref_ref", "traces", "addThenSum")
	assert.Equal(t, map[string]string{
		"ref_ref": refDir,
		"interp":  filepath.Join(mods.ArtifactsDir, "interp", "traces", "addThenSum"),
	}, res.TraceDirs)
	assert.FileExists(t, filepath.Join(refDir, "log.txt"))
	assert.FileExists(t, filepath.Join(refDir, "metadata.json"))

	assert.Equal(t, res.Digests["ref_ref"], res.Digests["interp"], "content digest ignores the backend")

	loaded, err := trace.Load(refDir)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
	assert.Equal(t, "addThenSum", loaded.FunctionName)
}

func TestCompareBackendsMismatch(t *testing.T) {
	mods := compileFor(t, 0.5, "interp", "drift")

	res, err := newTestHarness().CompareBackends(context.Background(), addThenSum, mods)
	require.NoError(t, err)

	assert.False(t, res.Passed)
	assert.Equal(t, []string{"drift"}, res.FailedBackends)
	require.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0], "outputs[0]: Floating point difference")
	assert.NotEqual(t, res.Digests["ref_ref"], res.Digests["drift"])

	var mismatch *MismatchError
	require.ErrorAs(t, res.Err(), &mismatch)
	msg := mismatch.Error()
	assert.True(t, strings.HasPrefix(msg,
		"Comparison between the reference backend and the following targets failed: [drift]. Errors: \n  - "), msg)
	assert.True(t, strings.HasSuffix(msg, "\nSee the logs above for more details about the non-matching calls."), msg)

	// every trace is persisted regardless of the outcome
	assert.Len(t, res.TraceDirs, 3)
}

func TestCompareBackendsStructuralMismatch(t *testing.T) {
	mods := compileFor(t, 0, "interp")
	fn := func(m *trace.TracedModule) error {
		if err := addThenSum(m); err != nil {
			return err
		}
		if m.Module().BackendInfo().Name == "interp" {
			_, err := m.Call("Noop")
			return err
		}
		return nil
	}

	res, err := newTestHarness().CompareBackends(context.Background(), fn, mods)
	require.Error(t, err)
	assert.True(t, trace.IsStructuralError(err))
	require.NotNil(t, res)
	assert.False(t, res.Passed)
	assert.Equal(t, []string{"interp"}, res.FailedBackends)
	assert.Len(t, res.TraceDirs, 2, "traces are saved before the error is returned")
}

func TestCompareBackendsTraceFunctionError(t *testing.T) {
	mods := compileFor(t, 0, "interp")
	fn := func(m *trace.TracedModule) error {
		_, err := m.Call("Fail")
		return err
	}

	res, err := newTestHarness().CompareBackends(context.Background(), fn, mods)
	require.ErrorIs(t, err, testutil.ErrInjected)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "on ref_ref")
}

func TestCompareBackendsCancelled(t *testing.T) {
	mods := compileFor(t, 0, "interp")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestHarness().CompareBackends(ctx, addThenSum, mods)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCompareBackendsReseedsEveryBackend(t *testing.T) {
	mods := compileFor(t, 0, "interp", "interp")
	var seeds []uint64
	h := newTestHarness(WithSeed(7), WithSeeders(SeederFunc(func(seed uint64) {
		seeds = append(seeds, seed)
	})))

	fn := func(m *trace.TracedModule) error {
		_, err := m.Call("Sum", m.Rand().Float64(), m.Rand().Float64())
		return err
	}

	res, err := h.CompareBackends(context.Background(), fn, mods)
	require.NoError(t, err)
	assert.True(t, res.Passed, "every backend sees the same random draws: %v", res.Errors)
	assert.Equal(t, []uint64{7, 7, 7}, seeds)
}

func TestCompareBackendsRecordsRun(t *testing.T) {
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mods := compileFor(t, 0.5, "interp", "drift")
	h := newTestHarness(WithStore(st))

	res, err := h.CompareBackends(context.Background(), addThenSum, mods)
	require.NoError(t, err)

	ctx := context.Background()
	run, err := st.ReadRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), run.Seq)
	assert.Equal(t, "addThenSum", run.FunctionName)
	assert.Equal(t, "ref_ref", run.ReferenceID)
	assert.Equal(t, []string{"interp", "drift"}, run.TargetIDs)
	assert.False(t, run.Passed)
	assert.Equal(t, res.Errors, run.Errors)
	assert.True(t, run.StartedAt.Equal(testutil.Epoch))

	recs, err := st.ReadTraces(ctx, res.RunID)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, store.RoleReference, recs[0].Role)
	assert.Equal(t, "ref_ref", recs[0].BackendID)
	assert.Equal(t, 2, recs[0].Calls)

	byID := map[string]store.TraceRecord{}
	for _, rec := range recs {
		byID[rec.BackendID] = rec
	}
	assert.True(t, byID["interp"].Passed)
	assert.False(t, byID["drift"].Passed)
	assert.Equal(t, res.TraceDirs["drift"], byID["drift"].Dir)

	same, err := st.FindByContentDigest(ctx, res.Digests["ref_ref"])
	require.NoError(t, err)
	assert.Len(t, same, 2, "reference and interp produced identical traces")
}

func TestCompareBackendsMetrics(t *testing.T) {
	m := metrics.New()
	textfile := filepath.Join(t.TempDir(), "difftrace.prom")
	mods := compileFor(t, 0.5, "interp", "drift")
	h := newTestHarness(WithMetrics(m), WithMetricsTextfile(textfile))

	_, err := h.CompareBackends(context.Background(), addThenSum, mods)
	require.NoError(t, err)

	count, err := promtest.GatherAndCount(m.Registry(), "difftrace_comparisons_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	data, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `difftrace_runs_total{outcome="mismatch"} 1`)
	assert.Contains(t, string(data), `difftrace_mismatch_messages_total{backend="drift"} 2`)
	assert.Contains(t, string(data), `difftrace_calls_recorded_total{backend="ref_ref"} 2`)
}

func TestCompareBackendsPersistFailure(t *testing.T) {
	mods := compileFor(t, 0, "interp")
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	mods.ArtifactsDir = blocker

	m := metrics.New()
	res, err := newTestHarness(WithMetrics(m)).CompareBackends(context.Background(), addThenSum, mods)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Passed, "comparison still ran")
	assert.Empty(t, res.TraceDirs)
	assert.False(t, errors.As(err, new(*trace.StructuralError)))

	count, err := promtest.GatherAndCount(m.Registry(), "difftrace_persist_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.TargetBackends = []string{"interp"}
	cfg.Seed = 42
	cfg.Summarize = false
	cfg.LogAllTraces = true
	return cfg
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := testConfig()
	h := newTestHarness(OptionsFromConfig(cfg)...)
	assert.Equal(t, uint64(42), h.seed)
	assert.False(t, h.summarize)
	assert.True(t, h.logAllTraces)

	cc := CompileConfigFromConfig(cfg)
	assert.Equal(t, "ref", cc.Reference)
	assert.Equal(t, []string{"interp"}, cc.Targets)
}

func TestGoldenSnapshot(t *testing.T) {
	mods := compileFor(t, 0, "interp")
	tr := trace.New(mods.Reference, addThenSum)
	require.NoError(t, addThenSum(trace.NewTracedModule(mods.Reference, tr)))

	AssertGolden(t, "add_then_sum", tr)
}
