package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"kit-sync/internal/app"
	"kit-sync/internal/config"
	"kit-sync/internal/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	log := logger.NewLogger("syncclient", cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("sync session")
	}
	log.Info().Msg("bye")
}
