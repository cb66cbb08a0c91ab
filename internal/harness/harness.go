package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/roach88/difftrace/internal/backend"
	"github.com/roach88/difftrace/internal/config"
	"github.com/roach88/difftrace/internal/metrics"
	"github.com/roach88/difftrace/internal/store"
	"github.com/roach88/difftrace/internal/trace"
)

// Harness runs one trace function against a reference backend and a set of
// targets and compares the resulting traces.
//
// A Harness is not safe for concurrent use: every backend run reseeds the
// shared random source.
type Harness struct {
	logger          *slog.Logger
	store           *store.Store
	metrics         *metrics.Metrics
	metricsTextfile string
	clock           Clock
	ids             IDGenerator

	seed    uint64
	pcg     *rand.PCG
	rng     *rand.Rand
	seeders []Seeder

	logAllTraces bool
	summarize    bool
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithStore records every run in st.
func WithStore(st *store.Store) Option {
	return func(h *Harness) { h.store = st }
}

// WithMetrics records comparison outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Harness) { h.metrics = m }
}

// WithMetricsTextfile rewrites path with the metrics registry after every
// run. It has no effect without WithMetrics.
func WithMetricsTextfile(path string) Option {
	return func(h *Harness) { h.metricsTextfile = path }
}

// WithSeed sets the seed used before every backend run.
func WithSeed(seed uint64) Option {
	return func(h *Harness) { h.seed = seed }
}

// WithSeeders registers extra random sources to reseed before every
// backend run.
func WithSeeders(s ...Seeder) Option {
	return func(h *Harness) { h.seeders = append(h.seeders, s...) }
}

// WithLogAllTraces logs every trace, not only the mismatching calls.
func WithLogAllTraces(on bool) Option {
	return func(h *Harness) { h.logAllTraces = on }
}

// WithSummarize controls whether log.txt elides large arrays.
func WithSummarize(on bool) Option {
	return func(h *Harness) { h.summarize = on }
}

// WithClock sets the source of run timestamps.
func WithClock(c Clock) Option {
	return func(h *Harness) { h.clock = c }
}

// WithIDGenerator sets the source of run ids.
func WithIDGenerator(g IDGenerator) Option {
	return func(h *Harness) { h.ids = g }
}

// New creates a Harness.
func New(opts ...Option) *Harness {
	h := &Harness{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:     systemClock{},
		ids:       uuidV7{},
		seed:      trace.DefaultSeed,
		summarize: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.pcg = rand.NewPCG(h.seed, h.seed)
	h.rng = rand.New(h.pcg)
	return h
}

// OptionsFromConfig translates the harness settings of cfg into options.
// The store and metrics are opened by the caller.
func OptionsFromConfig(cfg config.Config) []Option {
	return []Option{
		WithSeed(cfg.Seed),
		WithSummarize(cfg.Summarize),
		WithLogAllTraces(cfg.LogAllTraces),
		WithMetricsTextfile(cfg.MetricsTextfile),
	}
}

// CompileConfigFromConfig returns the backend selection of cfg.
func CompileConfigFromConfig(cfg config.Config) CompileConfig {
	return CompileConfig{
		Reference:     cfg.ReferenceBackend,
		Targets:       cfg.TargetBackends,
		ArtifactsRoot: cfg.ArtifactsDir,
	}
}

// Rand returns the shared random source handed to every traced module.
func (h *Harness) Rand() *rand.Rand {
	return h.rng
}

func (h *Harness) reseed() {
	h.pcg.Seed(h.seed, h.seed)
	for _, s := range h.seeders {
		s.Seed(h.seed)
	}
}

// CompareBackends runs fn against the reference module and every target,
// compares each target trace with the reference and persists all traces
// under mods.ArtifactsDir.
//
// A numeric mismatch is not an error: it is reported in the Result, and
// Result.Err turns it into a *MismatchError. A returned error means the run
// itself failed: fn returned an error, ctx was cancelled, the traces made
// different calls (*trace.StructuralError), or persisting failed. A
// structural error is returned together with the partial Result once the
// traces are saved.
func (h *Harness) CompareBackends(ctx context.Context, fn trace.Func, mods *Modules) (*Result, error) {
	runID, err := h.ids.NewID()
	if err != nil {
		return nil, err
	}
	start := h.clock.Now()
	info := trace.DescribeFunc(fn)
	logger := h.logger.With("run_id", runID, "function", info.Name)

	ref, err := h.runBackend(ctx, logger, fn, info, mods.Reference)
	if err != nil {
		return nil, err
	}
	traces := []*trace.Trace{ref}
	for _, mod := range mods.Targets {
		tar, err := h.runBackend(ctx, logger, fn, info, mod)
		if err != nil {
			return nil, err
		}
		traces = append(traces, tar)
	}

	res := NewResult(runID)
	structErr := h.compare(logger, res, ref, traces[1:])

	persistErr := h.persist(logger, res, mods.ArtifactsDir, traces)
	storeErr := h.record(ctx, res, info.Name, start, traces)

	h.metrics.RecordRun(res.Passed && structErr == nil, h.clock.Now().Sub(start))
	if h.metricsTextfile != "" {
		if err := h.metrics.WriteTextfile(h.metricsTextfile); err != nil {
			logger.Warn("writing metrics textfile failed", "path", h.metricsTextfile, "error", err)
		}
	}

	if res.Passed && structErr == nil {
		logger.Info("all backends matched the reference", "reference", ref.BackendID, "targets", len(mods.Targets))
	}
	return res, errors.Join(structErr, persistErr, storeErr)
}

// runBackend records one trace of fn against mod.
func (h *Harness) runBackend(ctx context.Context, logger *slog.Logger, fn trace.Func, info trace.FuncInfo, mod backend.CompiledModule) (*trace.Trace, error) {
	id := mod.BackendInfo().ID
	if err := contextErr(ctx, id); err != nil {
		return nil, err
	}

	h.reseed()
	tr := trace.NewWithFunc(mod, info)
	tm := trace.NewTracedModule(mod, tr, trace.WithRand(h.rng), trace.WithLogger(logger))
	if err := fn(tm); err != nil {
		return nil, fmt.Errorf("trace function %s on %s: %w", info.Name, id, err)
	}
	tr.Freeze()

	h.metrics.RecordTrace(id, tr.Len())
	logger.Debug("recorded trace", "backend", id, "calls", tr.Len())
	if h.logAllTraces {
		logger.Info("trace", "backend", id, "trace", tr.String())
	}
	return tr, nil
}

// compare checks every target against ref, stopping at the first
// structural error.
func (h *Harness) compare(logger *slog.Logger, res *Result, ref *trace.Trace, targets []*trace.Trace) error {
	cmp := trace.NewComparator(logger)
	for _, tar := range targets {
		logger.Info("comparing traces", "reference", ref.BackendID, "target", tar.BackendID)
		ok, messages, err := cmp.CompareTraces(ref, tar)
		if err != nil {
			if trace.IsStructuralError(err) {
				h.metrics.RecordComparison(tar.BackendID, metrics.OutcomeStructural, 0)
				res.AddFailure(tar.BackendID, []string{err.Error()})
			}
			return err
		}
		if ok {
			h.metrics.RecordComparison(tar.BackendID, metrics.OutcomePass, 0)
			continue
		}
		h.metrics.RecordComparison(tar.BackendID, metrics.OutcomeMismatch, len(messages))
		res.AddFailure(tar.BackendID, messages)
		logger.Warn("target did not match the reference", "target", tar.BackendID, "mismatches", len(messages))
	}
	return nil
}

// persist saves every trace and fills the result's directories and digests.
func (h *Harness) persist(logger *slog.Logger, res *Result, artifactsDir string, traces []*trace.Trace) error {
	var errs []error
	for _, tr := range traces {
		dir := trace.Dir(artifactsDir, tr)
		if err := savePair(tr, dir, h.summarize); err != nil {
			h.metrics.RecordPersistError()
			logger.Error("saving trace failed", "backend", tr.BackendID, "dir", dir, "error", err)
			errs = append(errs, err)
			continue
		}
		res.TraceDirs[tr.BackendID] = dir

		digest, err := trace.ContentDigest(tr)
		if err != nil {
			errs = append(errs, fmt.Errorf("digest %s: %w", tr.BackendID, err))
			continue
		}
		res.Digests[tr.BackendID] = digest
	}
	return errors.Join(errs...)
}

func savePair(tr *trace.Trace, dir string, summarize bool) error {
	if err := tr.SavePlaintext(dir, summarize); err != nil {
		return fmt.Errorf("save %s log: %w", tr.BackendID, err)
	}
	if err := tr.Serialize(dir); err != nil {
		return fmt.Errorf("serialize %s: %w", tr.BackendID, err)
	}
	return nil
}

// record writes the run and its traces to the store, if one is configured.
func (h *Harness) record(ctx context.Context, res *Result, function string, start time.Time, traces []*trace.Trace) error {
	if h.store == nil {
		return nil
	}
	return RecordRun(ctx, h.store, res, function, start, traces)
}
