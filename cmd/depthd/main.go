package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sensekit/depthsuite/cmd/depthd/app"
)

func main() {
	var logLevel slog.LevelVar

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &logLevel}))

	var configPath string
	flag.StringVar(&configPath, "c", "", "Path to config file")
	flag.Parse()

	config, err := app.LoadConfig(configPath)
	if err != nil {
		logger.Error(fmt.Sprintf("Error loading config: %v", err))
		os.Exit(1)
	}

	logLevel.Set(config.Settings.Level())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, config, logger); err != nil {
		logger.Error(fmt.Sprintf("Error running application: %v", err))
		os.Exit(1)
	}
}
