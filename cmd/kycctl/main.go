package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/afero"

	"kycflow/internal/cli"
	"kycflow/internal/platform/config"
	"kycflow/internal/platform/logger"
)

func main() {
	cfg := config.WizardFromEnv()
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	log := logger.NewWithWriter(os.Stderr, level)

	app := &cli.App{
		Fs:     afero.NewOsFs(),
		Config: cfg,
		Server: config.FromEnv(),
		Dial:   cli.DialHTTP(log),
		Logger: log,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := cli.NewRootCommand(app).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
