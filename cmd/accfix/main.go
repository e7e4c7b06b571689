package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hudmol/yale-as-post-mig-acc-fix/internal/config"
)

func main() {
	config.LoadEnvFiles()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
