package s3

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/tg-userharvest/config"
	"github.com/Conte777/tg-userharvest/internal/domain/speaker/deps"
)

// Module provides the export object store for fx DI
var Module = fx.Module("s3",
	fx.Provide(NewObjectStoreFx),
)

// NewObjectStoreFx returns the MinIO-backed store, or nil when S3 is disabled
func NewObjectStoreFx(
	lc fx.Lifecycle,
	cfg *config.S3Config,
	logger zerolog.Logger,
) (deps.ObjectStore, error) {
	if !cfg.Enabled {
		logger.Info().Msg("S3 disabled, export uploads are unavailable")
		return nil, nil
	}

	client, err := NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.EnsureBucket(ctx)
		},
	})

	return client, nil
}
