package account

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/tg-userharvest/config"
	"github.com/Conte777/tg-userharvest/internal/domain"
	accounthttp "github.com/Conte777/tg-userharvest/internal/domain/account/delivery/http"
	"github.com/Conte777/tg-userharvest/internal/domain/account/repository/postgres"
	"github.com/Conte777/tg-userharvest/internal/infrastructure/http/server"
)

// Module provides the account registry and the health endpoint for fx DI
var Module = fx.Module("account",
	fx.Provide(
		fx.Annotate(postgres.NewRepository, fx.As(fx.Self()), fx.As(new(domain.AccountRepository))),
		newHealthHandler,
	),
	fx.Invoke(registerRoutes),
)

func newHealthHandler(
	cfg *config.ServiceConfig,
	repo *postgres.Repository,
	connections domain.ConnectionSupervisor,
	publisher domain.EventPublisher,
	logger zerolog.Logger,
) *accounthttp.HealthHandler {
	return accounthttp.NewHealthHandler(cfg.Name, repo, connections, publisher, logger)
}

func registerRoutes(srv *server.Server, h *accounthttp.HealthHandler) {
	h.RegisterRoutes(srv.Router, srv.Middleware()...)
}
