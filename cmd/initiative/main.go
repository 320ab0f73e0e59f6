// Command initiative operates the offline-first sync core: the local entity
// store, the pending operation queue and the background sync coordinator.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/initiative/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	err := cmd.ExecuteContext(context.Background())
	if err == nil {
		return
	}

	// Commands that already reported through the formatter return an
	// ExitError; anything else (flag parsing, unknown command) is printed here.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cli.GetExitCode(err))
}
