// Command difftrace inspects and compares traces recorded by the
// differential testing harness.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/roach88/difftrace/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
