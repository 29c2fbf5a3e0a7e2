package listener

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	listenerhttp "github.com/Conte777/tg-userharvest/internal/domain/listener/delivery/http"
	"github.com/Conte777/tg-userharvest/internal/domain/listener/usecase/business"
	"github.com/Conte777/tg-userharvest/internal/infrastructure/http/server"
)

// Module provides the live listener for fx DI
var Module = fx.Module("listener",
	fx.Provide(
		business.NewListener,
		listenerhttp.NewHandler,
	),
	fx.Invoke(registerRoutes, registerLifecycle),
)

func registerRoutes(srv *server.Server, h *listenerhttp.Handler) {
	h.RegisterRoutes(srv.Router, srv.Middleware()...)
}

// registerLifecycle stops every listener before connections are torn down
func registerLifecycle(lc fx.Lifecycle, l *business.Listener, logger zerolog.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopped := l.StopAll(ctx)
			logger.Info().Int("stopped", len(stopped)).Msg("Listeners stopped")
			return nil
		},
	})
}
