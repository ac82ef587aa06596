package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bn-basis-bot/internal/app"
	"bn-basis-bot/internal/config"
	"bn-basis-bot/internal/engine"
	"bn-basis-bot/internal/logging"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	phaseFlag := flag.String("phase", "open", "trading phase: open or close")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	phase, err := app.ParsePhase(*phaseFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := logging.New(cfg.Log)
	log.Info("config loaded", zap.String("path", *configPath), zap.String("phase", string(phase)))

	application, err := app.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize app", zap.Error(err))
		os.Exit(1)
	}
	log.Info("app initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = application.Run(ctx, phase)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, engine.ErrPhaseComplete):
		log.Info("phase complete")
	default:
		log.Error("bot terminated", zap.Error(err))
		os.Exit(1)
	}
}
