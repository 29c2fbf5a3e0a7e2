package main

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/tg-userharvest/config"
	"github.com/Conte777/tg-userharvest/internal/app"
)

func main() {
	fx.New(
		app.CreateApp(),
		fx.Invoke(run),
	).Run()
}

func run(lc fx.Lifecycle, cfg *config.ServiceConfig, logger zerolog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info().
				Str("service", cfg.Name).
				Str("port", cfg.Port).
				Msg("Speaker collection service initialized successfully")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("Shutting down speaker collection service...")
			return nil
		},
	})
}
