package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/difftrace/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Database string
	Limit    int
	RunID    string
	Digest   string
}

// RunDetail is a run with its traces.
type RunDetail struct {
	store.Run
	Traces []store.TraceRecord `json:"traces"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded comparison runs",
		Long: `List the runs recorded in the run index, newest first.

--run prints one run with its traces. --digest lists every recorded trace
with the given content digest, which finds runs that produced the same
calls and values.

Examples:
  difftrace runs --db runs.db
  difftrace runs --db runs.db --limit 5
  difftrace runs --db runs.db --run 01890a5d-ac96-774b-bcce-b302099a8057
  difftrace runs --db runs.db --digest 3f2a...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config db)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs to list (0 for all)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show a single run")
	cmd.Flags().StringVar(&opts.Digest, "digest", "", "list traces with this content digest")
	cmd.MarkFlagsMutuallyExclusive("run", "digest")

	return cmd
}

func runRuns(ctx context.Context, opts *RunsOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	database := opts.Database
	if database == "" {
		database = cfg.DB
	}
	if database == "" {
		return NewExitError(ExitCommandError, "no database: pass --db or set db in the config")
	}

	st, err := store.Open(ctx, database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	out := opts.formatter(cmd)
	switch {
	case opts.RunID != "":
		return showRun(ctx, st, out, opts.RunID)
	case opts.Digest != "":
		return findDigest(ctx, st, out, opts.Digest)
	}

	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	if out.JSON() {
		return out.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out.Writer, "No runs recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(out.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tRUN\tFUNCTION\tREFERENCE\tTARGETS\tSTATUS\tSTARTED")
	for _, run := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			run.Seq, run.ID, run.FunctionName, run.ReferenceID,
			strings.Join(run.TargetIDs, ","), status(run.Passed), run.StartedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func showRun(ctx context.Context, st *store.Store, out *OutputFormatter, id string) error {
	run, err := st.ReadRun(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return WrapExitError(ExitCommandError, "unknown run", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	traces, err := st.ReadTraces(ctx, id)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read traces", err)
	}
	if out.JSON() {
		return out.Success(RunDetail{Run: run, Traces: traces})
	}

	w := out.Writer
	fmt.Fprintf(w, "Run %s (#%d) %s\n", run.ID, run.Seq, status(run.Passed))
	fmt.Fprintf(w, "Function: %s\n", run.FunctionName)
	fmt.Fprintf(w, "Started: %s\n", run.StartedAt.Format(time.RFC3339))
	writeTraces(w, traces)
	if len(run.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, msg := range run.Errors {
			fmt.Fprintf(w, "  - %s\n", msg)
		}
	}
	return nil
}

func findDigest(ctx context.Context, st *store.Store, out *OutputFormatter, digest string) error {
	traces, err := st.FindByContentDigest(ctx, digest)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query traces", err)
	}
	if out.JSON() {
		return out.Success(traces)
	}
	if len(traces) == 0 {
		fmt.Fprintln(out.Writer, "No traces with that digest.")
		return nil
	}
	writeTraces(out.Writer, traces)
	return nil
}

func writeTraces(w io.Writer, traces []store.TraceRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tBACKEND\tROLE\tCALLS\tSTATUS\tDIR")
	for _, rec := range traces {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			rec.RunID, rec.BackendID, rec.Role, rec.Calls, status(rec.Passed), rec.Dir)
	}
	tw.Flush()
}

func status(passed bool) string {
	if passed {
		return "PASS"
	}
	return "FAIL"
}
