package progress

import (
	"go.uber.org/fx"

	"github.com/Conte777/tg-userharvest/internal/domain"
	"github.com/Conte777/tg-userharvest/internal/domain/progress/deps"
	progresshttp "github.com/Conte777/tg-userharvest/internal/domain/progress/delivery/http"
	"github.com/Conte777/tg-userharvest/internal/domain/progress/repository/postgres"
	"github.com/Conte777/tg-userharvest/internal/domain/progress/usecase/business"
	"github.com/Conte777/tg-userharvest/internal/infrastructure/http/server"
)

// Module provides the progress tracker for fx DI
var Module = fx.Module("progress",
	fx.Provide(
		fx.Annotate(postgres.NewRepository, fx.As(new(deps.Repository))),
		fx.Annotate(business.NewTracker, fx.As(new(domain.ProgressTracker))),
		progresshttp.NewHandler,
	),
	fx.Invoke(registerRoutes),
)

func registerRoutes(srv *server.Server, h *progresshttp.Handler) {
	h.RegisterRoutes(srv.Router, srv.Middleware()...)
}
