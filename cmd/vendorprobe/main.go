// Command vendorprobe embeds a query with Ollama, searches Qdrant, and joins
// the hits against the vendors table in Postgres.
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

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		slog.Error("❌ probe failed", "err", err)
		stop()
		os.Exit(1)
	}
}
