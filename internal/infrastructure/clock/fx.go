package clock

import (
	"go.uber.org/fx"

	"github.com/Conte777/tg-userharvest/internal/domain"
)

// Module provides the system clock for fx DI
var Module = fx.Module("clock",
	fx.Provide(fx.Annotate(New, fx.As(new(domain.Clock)))),
)
