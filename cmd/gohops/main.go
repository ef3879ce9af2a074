package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/3leaps/gohops/internal/cmd"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cmd.SetVersionInfo(version, commit, buildDate)
	err := cmd.Execute(ctx)
	stop()
	if err != nil {
		cmd.ReportError(err)
	}
	os.Exit(cmd.ExitCode(err))
}
