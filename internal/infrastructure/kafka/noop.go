package kafka

import (
	"context"

	"github.com/Conte777/tg-userharvest/internal/domain"
)

// NoopPublisher drops every event; used when Kafka is disabled
type NoopPublisher struct{}

func (NoopPublisher) PublishSpeakerDiscovered(context.Context, domain.SpeakerDiscovered) error {
	return nil
}

func (NoopPublisher) PublishCrawlCompleted(context.Context, domain.CrawlSummary) error {
	return nil
}

// IsHealthy is always true; a disabled publisher cannot be degraded
func (NoopPublisher) IsHealthy() bool { return true }

func (NoopPublisher) Close() error { return nil }

var _ domain.EventPublisher = NoopPublisher{}
