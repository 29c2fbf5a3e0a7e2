package kafka

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/tg-userharvest/config"
	"github.com/Conte777/tg-userharvest/internal/domain"
	"github.com/Conte777/tg-userharvest/internal/infrastructure/metrics"
)

// Module provides the event publisher for fx DI
var Module = fx.Module("kafka",
	fx.Provide(NewPublisherFx),
)

// NewPublisherFx creates the Kafka producer, or a no-op publisher when Kafka is disabled
func NewPublisherFx(
	lc fx.Lifecycle,
	kafkaCfg *config.KafkaConfig,
	serviceCfg *config.ServiceConfig,
	m *metrics.Metrics,
	logger zerolog.Logger,
) (domain.EventPublisher, error) {
	if !kafkaCfg.Enabled {
		logger.Info().Msg("Kafka disabled, discovery events will not be published")
		return NoopPublisher{}, nil
	}

	producer, err := NewProducer(ProducerConfig{
		Brokers:       kafkaCfg.Brokers,
		TopicSpeakers: kafkaCfg.TopicSpeakers,
		TopicCrawls:   kafkaCfg.TopicCrawls,
		ClientID:      serviceCfg.Name + "-producer",
		Logger:        logger,
		Metrics:       m,
	})
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return producer.Close()
		},
	})

	return producer, nil
}
