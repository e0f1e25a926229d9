package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/roman-kulish/drone-mission/cmd/mission/app"
)

func main() {
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &logLevel}))

	var (
		configPath string
		locationID string
		history    bool
	)
	flag.StringVar(&configPath, "c", "", "Path to the configuration file")
	flag.StringVar(&locationID, "l", "", "Location to fly the mission to")
	flag.BoolVar(&history, "history", false, "List recorded missions and exit")
	flag.Parse()

	if configPath == "" {
		logger.Error("no configuration file provided")
		os.Exit(1)
	}

	config, err := app.LoadConfig(configPath)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to load configuration file: %s", err.Error()), slog.String("path", configPath))
		os.Exit(1)
	}

	if err = logLevel.UnmarshalText([]byte(config.Settings.LogLevel)); err != nil {
		logger.Error(fmt.Sprintf("invalid log level: %s", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case history:
		err = app.History(ctx, config, os.Stdout)

	case locationID != "":
		err = app.Run(ctx, config, locationID, os.Stdout, logger)

	default:
		logger.Error("no location provided")
		cancel()
		os.Exit(1)
	}

	if err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}
