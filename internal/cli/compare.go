package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/difftrace/internal/harness"
	"github.com/roach88/difftrace/internal/metrics"
	"github.com/roach88/difftrace/internal/store"
	"github.com/roach88/difftrace/internal/trace"
)

// CompareOptions holds flags for the compare command.
type CompareOptions struct {
	*RootOptions
	Database string
}

// TargetResult is the outcome for one target trace.
type TargetResult struct {
	BackendID string   `json:"backend_id"`
	Dir       string   `json:"dir"`
	Passed    bool     `json:"passed"`
	Messages  []string `json:"messages"`

	// Identical is true when the content digest equals the reference's.
	Identical bool `json:"identical"`
}

// CompareResult is the output of the compare command.
type CompareResult struct {
	*harness.Result

	Function  string         `json:"function"`
	Reference string         `json:"reference"`
	Targets   []TargetResult `json:"targets"`
}

// NewCompareCommand creates the compare command.
func NewCompareCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompareOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compare <reference-dir> <target-dir>...",
		Short: "Compare persisted target traces with a reference trace",
		Long: `Load traces written by the harness and compare every target with the
reference, call by call, using the tolerances recorded with each call.

Exit codes:
  0 - Every target matched the reference
  1 - At least one target produced different values
  2 - The traces made different calls, or a trace could not be read

Examples:
  difftrace compare artifacts/Arithmetic/ref_ref/traces/add artifacts/Arithmetic/interp/traces/add
  difftrace compare --db runs.db ref/traces/add interp/traces/add drift/traces/add
  difftrace compare --format json ref/traces/add interp/traces/add`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd.Context(), opts, cmd, args[0], args[1:])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite database (overrides config db)")

	return cmd
}

func runCompare(ctx context.Context, opts *CompareOptions, cmd *cobra.Command, refDir string, tarDirs []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.logger(cmd.ErrOrStderr(), cfg)
	out := opts.formatter(cmd)
	start := time.Now().UTC()

	ref, err := trace.Load(refDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load reference trace", err)
	}
	targets := make([]*trace.Trace, len(tarDirs))
	for i, dir := range tarDirs {
		if targets[i], err = trace.Load(dir); err != nil {
			return WrapExitError(ExitCommandError, "failed to load target trace", err)
		}
	}

	if err := harness.CheckUniqueBackends(append([]*trace.Trace{ref}, targets...)); err != nil {
		return WrapExitError(ExitCommandError, "cannot compare traces of one backend", err)
	}

	runID, err := uuid.NewV7()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to generate run id", err)
	}
	result := &CompareResult{
		Result:    harness.NewResult(runID.String()),
		Function:  ref.FunctionName,
		Reference: ref.BackendID,
		Targets:   make([]TargetResult, 0, len(targets)),
	}
	result.TraceDirs[ref.BackendID] = refDir
	refDigest, err := trace.ContentDigest(ref)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to digest reference trace", err)
	}
	result.Digests[ref.BackendID] = refDigest

	var m *metrics.Metrics
	if cfg.MetricsTextfile != "" {
		m = metrics.New()
	}

	cmp := trace.NewComparator(logger)
	for i, tar := range targets {
		out.VerboseLog("comparing %s with %s", tar.BackendID, ref.BackendID)
		ok, messages, err := cmp.CompareTraces(ref, tar)
		if err != nil {
			if trace.IsStructuralError(err) {
				m.RecordComparison(tar.BackendID, metrics.OutcomeStructural, 0)
				if out.JSON() {
					_ = out.Error(CodeStructural, err.Error(), map[string]string{"target": tar.BackendID})
				}
			}
			return WrapExitError(ExitCommandError, fmt.Sprintf("cannot compare %s", tar.BackendID), err)
		}

		digest, err := trace.ContentDigest(tar)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to digest target trace", err)
		}
		result.TraceDirs[tar.BackendID] = tarDirs[i]
		result.Digests[tar.BackendID] = digest
		result.Targets = append(result.Targets, TargetResult{
			BackendID: tar.BackendID,
			Dir:       tarDirs[i],
			Passed:    ok,
			Messages:  append([]string{}, messages...),
			Identical: digest == refDigest,
		})

		if ok {
			m.RecordComparison(tar.BackendID, metrics.OutcomePass, 0)
			continue
		}
		m.RecordComparison(tar.BackendID, metrics.OutcomeMismatch, len(messages))
		result.AddFailure(tar.BackendID, messages)
	}

	database := opts.Database
	if database == "" {
		database = cfg.DB
	}
	if database != "" {
		if err := recordComparison(ctx, database, result, start, ref, targets); err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
	}

	m.RecordRun(result.Passed, time.Since(start))
	if err := m.WriteTextfile(cfg.MetricsTextfile); err != nil {
		logger.Warn("writing metrics textfile failed", "path", cfg.MetricsTextfile, "error", err)
	}

	mismatch := result.Err()
	if out.JSON() {
		if mismatch != nil {
			if err := out.Failure(CodeMismatch, mismatch.Error(), result); err != nil {
				return err
			}
		} else if err := out.Success(result); err != nil {
			return err
		}
	} else {
		writeCompareText(out, result, ref)
	}

	if mismatch != nil {
		return WrapExitError(ExitFailure, "traces differ", mismatch)
	}
	return nil
}

func writeCompareText(out *OutputFormatter, result *CompareResult, ref *trace.Trace) {
	w := out.Writer
	fmt.Fprintf(w, "Reference: %s (%d calls) on function '%s'\n", ref.BackendID, ref.Len(), result.Function)
	for _, tr := range result.Targets {
		switch {
		case tr.Passed && tr.Identical:
			fmt.Fprintf(w, "PASS %s (identical)\n", tr.BackendID)
		case tr.Passed:
			fmt.Fprintf(w, "PASS %s\n", tr.BackendID)
		default:
			fmt.Fprintf(w, "FAIL %s\n", tr.BackendID)
			for _, msg := range tr.Messages {
				fmt.Fprintf(w, "  - %s\n", msg)
			}
		}
	}
	if result.Passed {
		fmt.Fprintf(w, "All %d target(s) matched the reference\n", len(result.Targets))
		return
	}
	fmt.Fprintf(w, "%d of %d target(s) failed\n", len(result.FailedBackends), len(result.Targets))
}

func recordComparison(ctx context.Context, path string, result *CompareResult, start time.Time, ref *trace.Trace, targets []*trace.Trace) error {
	st, err := store.Open(ctx, path)
	if err != nil {
		return err
	}
	defer st.Close()
	return harness.RecordRun(ctx, st, result.Result, result.Function, start, append([]*trace.Trace{ref}, targets...))
}
