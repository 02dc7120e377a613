package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"kit-sync/internal/auth"
	"kit-sync/internal/config"
	"kit-sync/internal/logger"
	"kit-sync/internal/server"
	"kit-sync/internal/store"
)

func main() {
	cfg, err := config.LoadConfig()
	log := logger.NewLogger("devserver", cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := config.ValidateServer(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	gin.SetMode(cfg.Server.GinMode)
	st := store.New()

	tokenCfg := auth.DefaultTokenConfig(cfg.Server.MasterSecret)
	tokenCfg.Expiry = cfg.Server.TokenExpiry

	// Handy for pointing a sync client at a fresh backend.
	if token, err := auth.CreateToken(1, "dev", tokenCfg); err == nil {
		log.Info().Str("token", token).Msg("dev token for user 1")
	}

	router := server.NewRouter(server.Deps{Store: st, TokenConfig: tokenCfg, Logger: log})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Int("port", cfg.Server.Port).Msg("listening")
	if err := server.Run(ctx, cfg.Server, router); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
