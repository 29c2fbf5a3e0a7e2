package speaker

import (
	"go.uber.org/fx"

	"github.com/Conte777/tg-userharvest/internal/domain"
	speakerhttp "github.com/Conte777/tg-userharvest/internal/domain/speaker/delivery/http"
	"github.com/Conte777/tg-userharvest/internal/domain/speaker/deps"
	"github.com/Conte777/tg-userharvest/internal/domain/speaker/repository/postgres"
	"github.com/Conte777/tg-userharvest/internal/domain/speaker/usecase/business"
	"github.com/Conte777/tg-userharvest/internal/infrastructure/http/server"
)

// Module provides speaker storage, exports and maintenance for fx DI
var Module = fx.Module("speaker",
	fx.Provide(
		fx.Annotate(
			postgres.NewRepository,
			fx.As(new(deps.Repository)),
			fx.As(new(domain.SpeakerRepository)),
		),
		business.NewUseCase,
		speakerhttp.NewHandler,
	),
	fx.Invoke(registerRoutes),
)

func registerRoutes(srv *server.Server, h *speakerhttp.Handler) {
	h.RegisterRoutes(srv.Router, srv.Middleware()...)
}
