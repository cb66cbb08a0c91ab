package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/difftrace/internal/trace"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Summarize bool
}

// ShowResult is the JSON output of the show command.
type ShowResult struct {
	trace.Metadata

	Calls         []string `json:"calls"`
	Digest        string   `json:"digest"`
	ContentDigest string   `json:"content_digest"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show <trace-dir>",
		Short: "Print a persisted trace",
		Long: `Print a persisted trace in the log.txt rendering.

With --format json the trace metadata, call signatures and digests are
printed instead.

Examples:
  difftrace show artifacts/Arithmetic/ref_ref/traces/add
  difftrace show --summarize=false artifacts/Arithmetic/ref_ref/traces/add`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Summarize, "summarize", true, "elide large arrays (default from config summarize)")

	return cmd
}

func runShow(opts *ShowOptions, cmd *cobra.Command, dir string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	summarize := opts.Summarize
	if !cmd.Flags().Changed("summarize") {
		summarize = cfg.Summarize
	}

	tr, err := trace.Load(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load trace", err)
	}
	out := opts.formatter(cmd)

	if !out.JSON() {
		fmt.Fprintln(out.Writer, tr.Format(trace.PlaintextOptions(summarize)))
		return nil
	}

	digest, err := trace.Digest(tr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to digest trace", err)
	}
	content, err := trace.ContentDigest(tr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to digest trace", err)
	}
	calls := make([]string, 0, tr.Len())
	for _, sig := range tr.Signatures() {
		calls = append(calls, sig.String())
	}
	return out.Success(ShowResult{
		Metadata:      tr.Metadata,
		Calls:         calls,
		Digest:        digest,
		ContentDigest: content,
	})
}
