package collector

import (
	"context"

	"go.uber.org/fx"

	collectorhttp "github.com/Conte777/tg-userharvest/internal/domain/collector/delivery/http"
	"github.com/Conte777/tg-userharvest/internal/domain/collector/usecase/business"
	"github.com/Conte777/tg-userharvest/internal/infrastructure/http/server"
)

// Module provides the historical crawler and orchestrator for fx DI
var Module = fx.Module("collector",
	fx.Provide(
		fx.Annotate(business.NewCrawler, fx.As(new(business.AccountCrawler))),
		fx.Annotate(business.NewOrchestrator, fx.As(fx.Self()), fx.As(new(collectorhttp.CrawlStarter))),
		collectorhttp.NewHandler,
	),
	fx.Invoke(registerRoutes, registerLifecycle),
)

func registerRoutes(srv *server.Server, h *collectorhttp.Handler) {
	h.RegisterRoutes(srv.Router, srv.Middleware()...)
}

// registerLifecycle lets in-flight runs finish within the stop timeout
func registerLifecycle(lc fx.Lifecycle, o *business.Orchestrator) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return o.Wait(ctx)
		},
	})
}
