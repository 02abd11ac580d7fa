// Command settle runs a shell command over many inputs with bounded
// concurrency and retries.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/petrijr/settle/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "settle:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
