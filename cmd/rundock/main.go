// rundock drives ensemble docking runs: every configured engine instance
// against every binding site, followed by pose consolidation.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		slog.Error("Run failed", "error", err)
		os.Exit(1)
	}
}
