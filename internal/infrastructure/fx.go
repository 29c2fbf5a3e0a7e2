package infrastructure

import (
	"go.uber.org/fx"

	"github.com/Conte777/tg-userharvest/internal/infrastructure/clock"
	"github.com/Conte777/tg-userharvest/internal/infrastructure/database"
	httpfx "github.com/Conte777/tg-userharvest/internal/infrastructure/http"
	"github.com/Conte777/tg-userharvest/internal/infrastructure/kafka"
	"github.com/Conte777/tg-userharvest/internal/infrastructure/logger"
	"github.com/Conte777/tg-userharvest/internal/infrastructure/metrics"
	"github.com/Conte777/tg-userharvest/internal/infrastructure/s3"
	"github.com/Conte777/tg-userharvest/internal/infrastructure/telegram"
)

// Module aggregates all infrastructure modules
var Module = fx.Module("infrastructure",
	logger.Module,
	clock.Module,
	database.Module, // Must be before telegram (session storage depends on *gorm.DB)
	metrics.Module,
	telegram.Module,
	kafka.Module,
	s3.Module,
	httpfx.Module,
)
