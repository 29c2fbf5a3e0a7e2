package telegram

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Conte777/tg-userharvest/config"
	"github.com/Conte777/tg-userharvest/internal/domain"
	"github.com/Conte777/tg-userharvest/internal/infrastructure/metrics"
)

// Module provides the connection supervisor for fx DI
var Module = fx.Module("telegram",
	fx.Provide(
		NewUpdatesStateStorage,
		NewSupervisorFx,
	),
)

// NewSupervisorFx creates the connection supervisor with lifecycle hooks for fx DI
func NewSupervisorFx(
	lc fx.Lifecycle,
	telegramCfg *config.TelegramConfig,
	loggingCfg *config.LoggingConfig,
	accounts domain.AccountRepository,
	states *UpdatesStateStorage,
	m *metrics.Metrics,
	logger zerolog.Logger,
) domain.ConnectionSupervisor {
	clientLogger := newClientLogger(loggingCfg.Level)

	dial := func(ctx context.Context, account *domain.Account) (ManagedConnection, error) {
		conn, err := NewConnection(ConnectionConfig{
			APIID:           telegramCfg.APIID,
			APIHash:         telegramCfg.APIHash,
			DeviceModel:     telegramCfg.DeviceModel,
			AccountID:       account.ID,
			Session:         NewCredentialStorage(account.ID, account.Credential, accounts),
			StateStorage:    states,
			RateLimit:       telegramCfg.RateLimit,
			RateBurst:       telegramCfg.RateBurst,
			DialogsPageSize: telegramCfg.DialogsPageSize,
			Logger:          logger,
			ClientLogger:    clientLogger.With(zap.Int64("account_id", account.ID)),
		})
		if err != nil {
			return nil, err
		}
		if err := conn.Connect(ctx); err != nil {
			return nil, err
		}
		return conn, nil
	}

	supervisor := NewSupervisor(dial, telegramCfg.ConnectTimeout, m, logger)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			closed := supervisor.Shutdown(ctx)
			logger.Info().Int("disconnected", closed).Msg("Telegram connections closed")
			_ = clientLogger.Sync()
			return nil
		},
	})

	return supervisor
}

// newClientLogger builds the zap logger gotd logs through. It stays at warn
// unless the service runs at debug.
func newClientLogger(level string) *zap.Logger {
	zapLevel := zapcore.WarnLevel
	if strings.EqualFold(level, "debug") {
		zapLevel = zapcore.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger.Named("gotd")
}
