package app

import (
	"context"

	"go.uber.org/fx"

	"github.com/Conte777/tg-userharvest/config"
	"github.com/Conte777/tg-userharvest/internal/domain/account"
	"github.com/Conte777/tg-userharvest/internal/domain/collector"
	"github.com/Conte777/tg-userharvest/internal/domain/listener"
	"github.com/Conte777/tg-userharvest/internal/domain/progress"
	"github.com/Conte777/tg-userharvest/internal/domain/speaker"
	"github.com/Conte777/tg-userharvest/internal/infrastructure"
)

// CreateApp assembles the service: config, infrastructure and the domain modules
func CreateApp() fx.Option {
	return fx.Options(
		fx.Provide(config.Out, context.Background),
		infrastructure.Module,
		account.Module,
		progress.Module,
		speaker.Module,
		collector.Module,
		listener.Module,
	)
}
