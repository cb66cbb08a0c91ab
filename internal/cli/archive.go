package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/difftrace/internal/archive"
	"github.com/roach88/difftrace/internal/store"
)

// ArchiveOptions holds flags for the archive command.
type ArchiveOptions struct {
	*RootOptions
	Database string
	RunID    string
	Root     string
}

// ArchiveResult lists the uploaded objects.
type ArchiveResult struct {
	RunID  string   `json:"run_id"`
	Bucket string   `json:"bucket"`
	Keys   []string `json:"keys"`
}

// newObjectPutter connects to the configured bucket. Tests replace it.
var newObjectPutter = func(ctx context.Context, cfg archive.Config) (archive.ObjectPutter, error) {
	return archive.NewClient(ctx, cfg)
}

// NewArchiveCommand creates the archive command.
func NewArchiveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ArchiveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "archive [trace-dir]...",
		Short: "Upload persisted traces to object storage",
		Long: `Upload trace directories to the S3-compatible bucket of the archive
section of the config file.

Object keys keep the layout below the artifacts root under a per-run
prefix: <prefix>/<run-id>/<backend-id>/traces/<function>/... The root
defaults to three levels above each trace directory, which is the module
artifacts directory the harness writes to.

With --run, every trace of a recorded run is uploaded.

Examples:
  difftrace archive --config difftrace.yaml artifacts/Arithmetic/ref_ref/traces/add
  difftrace archive --config difftrace.yaml --db runs.db --run 01890a5d-ac96-774b-bcce-b302099a8057`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchive(cmd.Context(), opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config db)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "archive every trace of this recorded run")
	cmd.Flags().StringVar(&opts.Root, "root", "", "directory object keys are relative to")

	return cmd
}

func runArchive(ctx context.Context, opts *ArchiveOptions, cmd *cobra.Command, dirs []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Archive.Enabled() {
		return NewExitError(ExitCommandError, "archive endpoint is not configured")
	}

	runID := opts.RunID
	if runID != "" {
		recorded, err := recordedDirs(ctx, opts, cfg.DB, runID)
		if err != nil {
			return err
		}
		dirs = append(dirs, recorded...)
	} else {
		id, err := uuid.NewV7()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to generate run id", err)
		}
		runID = id.String()
	}
	if len(dirs) == 0 {
		return NewExitError(ExitCommandError, "nothing to archive: pass trace directories or --run")
	}

	putter, err := newObjectPutter(ctx, cfg.Archive)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect to object storage", err)
	}
	logger := opts.logger(cmd.ErrOrStderr(), cfg)
	up := archive.NewUploader(putter, cfg.Archive.Bucket, cfg.Archive.Prefix, logger)

	result := ArchiveResult{RunID: runID, Bucket: cfg.Archive.Bucket, Keys: []string{}}
	for _, dir := range dirs {
		root := opts.Root
		if root == "" {
			root = artifactsRoot(dir)
		}
		keys, err := up.UploadDir(ctx, runID, root, dir)
		result.Keys = append(result.Keys, keys...)
		if err != nil {
			return WrapExitError(ExitCommandError, "upload failed", err)
		}
	}

	out := opts.formatter(cmd)
	if out.JSON() {
		return out.Success(result)
	}
	fmt.Fprintf(out.Writer, "Uploaded %d object(s) to %s for run %s\n", len(result.Keys), result.Bucket, result.RunID)
	for _, key := range result.Keys {
		out.VerboseLog("  %s", key)
	}
	return nil
}

func recordedDirs(ctx context.Context, opts *ArchiveOptions, configDB, runID string) ([]string, error) {
	database := opts.Database
	if database == "" {
		database = configDB
	}
	if database == "" {
		return nil, NewExitError(ExitCommandError, "--run needs a database: pass --db or set db in the config")
	}
	st, err := store.Open(ctx, database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if _, err := st.ReadRun(ctx, runID); err != nil {
		return nil, WrapExitError(ExitCommandError, "unknown run", err)
	}
	traces, err := st.ReadTraces(ctx, runID)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read traces", err)
	}
	var dirs []string
	for _, rec := range traces {
		if rec.Dir != "" {
			dirs = append(dirs, rec.Dir)
		}
	}
	return dirs, nil
}

// artifactsRoot maps <root>/<backend-id>/traces/<function> to <root>.
func artifactsRoot(dir string) string {
	return filepath.Dir(filepath.Dir(filepath.Dir(filepath.Clean(dir))))
}
