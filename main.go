package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/m-mizutani/mnemo/pkg/cli"
	"github.com/m-mizutani/mnemo/pkg/utils/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Run(ctx, os.Args); err != nil {
		logging.Default().Error("command failed", "error", err.Message)
		stop()
		os.Exit(err.Code)
	}
}
