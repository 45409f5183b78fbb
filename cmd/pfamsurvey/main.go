package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := &rootOptions{}
	if err := buildRootCmd(opts).ExecuteContext(ctx); err != nil {
		opts.errorLogger().Error("application stopped", "error", err)
		stop()
		os.Exit(1)
	}
}
