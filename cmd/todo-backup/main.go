// Command todo-backup takes and restores snapshots of the todo database.
// It reads the same configuration as the server (TODO_CONFIG, DATABASE_DIR, ...).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sakif/todo-tracker/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCommand(cli.Deps{
		Out:    os.Stdout,
		ErrOut: os.Stderr,
		Getenv: os.Getenv,
	})
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
