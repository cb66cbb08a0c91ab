package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/difftrace/internal/backend"
)

// BackendID pairs a backend name with its trace id.
type BackendID struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// BackendsResult is the output of the backends command.
type BackendsResult struct {
	Reference BackendID   `json:"reference"`
	Targets   []BackendID `json:"targets"`
}

// NewBackendsCommand creates the backends command.
func NewBackendsCommand(rootOpts *RootOptions) *cobra.Command {
	var reference string

	cmd := &cobra.Command{
		Use:   "backends [name]...",
		Short: "Print the trace ids assigned to backends",
		Long: `Print the ids traces are stored under for a backend selection.

Names may be given as separate arguments or comma separated. Repeated names
are numbered in order; the reference backend gets a "_ref" suffix. Without
arguments the backends of the config file are used.

Examples:
  difftrace backends --reference tf tflite iree_vmvx tflite
  difftrace backends tf,iree_llvmcpu`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("reference") {
				reference = cfg.ReferenceBackend
			}
			var names []string
			for _, arg := range args {
				names = append(names, backend.SplitNames(arg)...)
			}
			if len(args) == 0 {
				names = cfg.TargetBackends
			}

			result := BackendsResult{
				Reference: BackendID{Name: reference, ID: backend.ReferenceID(reference)},
				Targets:   make([]BackendID, len(names)),
			}
			for i, id := range backend.TargetIDs(names) {
				result.Targets[i] = BackendID{Name: names[i], ID: id}
			}

			out := rootOpts.formatter(cmd)
			if out.JSON() {
				return out.Success(result)
			}
			fmt.Fprintf(out.Writer, "reference %s -> %s\n", result.Reference.Name, result.Reference.ID)
			for _, t := range result.Targets {
				fmt.Fprintf(out.Writer, "target    %s -> %s\n", t.Name, t.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&reference, "reference", "", "reference backend name (default from config)")

	return cmd
}
