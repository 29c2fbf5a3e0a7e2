package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/Conte777/tg-userharvest/internal/domain"
	"github.com/Conte777/tg-userharvest/internal/infrastructure/metrics"
)

const (
	// maxStoredErrors bounds the in-memory error history used by IsHealthy
	maxStoredErrors = 100
)

// ProducerConfig holds configuration for Kafka producer
type ProducerConfig struct {
	Brokers         []string
	TopicSpeakers   string
	TopicCrawls     string
	ClientID        string
	MaxMessageBytes int // default: 1MB
	MaxRetries      int // default: 5
	Logger          zerolog.Logger
	Metrics         *metrics.Metrics
}

// Producer publishes discovery events using an asynchronous sarama producer
type Producer struct {
	producer      sarama.AsyncProducer
	topicSpeakers string
	topicCrawls   string
	logger        zerolog.Logger
	metrics       *metrics.Metrics

	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
	closed    bool
	closeMu   sync.Mutex

	errors   []error
	errorsMu sync.Mutex
}

// NewProducer creates a Kafka producer. Speaker events are keyed by user id
// so every event for one user lands on the same partition.
func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers specified")
	}
	if cfg.TopicSpeakers == "" || cfg.TopicCrawls == "" {
		return nil, fmt.Errorf("kafka topics are required")
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 1000000
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "tg-userharvest-producer"
	}

	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Net.MaxOpenRequests = 1
	config.Producer.MaxMessageBytes = cfg.MaxMessageBytes
	config.Producer.Retry.Max = cfg.MaxRetries
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.ClientID = cfg.ClientID
	config.Version = sarama.V2_6_0_0

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	p := newProducer(producer, cfg)

	cfg.Logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic_speakers", cfg.TopicSpeakers).
		Str("topic_crawls", cfg.TopicCrawls).
		Msg("Kafka producer initialized successfully")

	return p, nil
}

func newProducer(producer sarama.AsyncProducer, cfg ProducerConfig) *Producer {
	p := &Producer{
		producer:      producer,
		topicSpeakers: cfg.TopicSpeakers,
		topicCrawls:   cfg.TopicCrawls,
		logger:        cfg.Logger.With().Str("component", "kafka_producer").Logger(),
		metrics:       cfg.Metrics,
	}

	p.wg.Add(2)
	go p.handleSuccesses()
	go p.handleErrors()

	return p
}

// PublishSpeakerDiscovered queues a speaker.discovered event
func (p *Producer) PublishSpeakerDiscovered(ctx context.Context, event domain.SpeakerDiscovered) error {
	if event.TgUserID == 0 {
		return fmt.Errorf("tg_user_id is required")
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal speaker event: %w", err)
	}

	return p.send(ctx, &sarama.ProducerMessage{
		Topic:     p.topicSpeakers,
		Key:       sarama.StringEncoder(strconv.FormatInt(event.TgUserID, 10)),
		Value:     sarama.ByteEncoder(value),
		Timestamp: event.MessageDate,
	})
}

// PublishCrawlCompleted queues a crawl.completed summary
func (p *Producer) PublishCrawlCompleted(ctx context.Context, summary domain.CrawlSummary) error {
	if summary.RunID == "" {
		return fmt.Errorf("run_id is required")
	}

	value, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal crawl summary: %w", err)
	}

	return p.send(ctx, &sarama.ProducerMessage{
		Topic:     p.topicCrawls,
		Key:       sarama.StringEncoder(summary.RunID),
		Value:     sarama.ByteEncoder(value),
		Timestamp: summary.FinishedAt,
	})
}

func (p *Producer) send(ctx context.Context, msg *sarama.ProducerMessage) error {
	p.closeMu.Lock()
	closed := p.closed
	p.closeMu.Unlock()
	if closed {
		return fmt.Errorf("kafka producer is closed")
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled before sending: %w", ctx.Err())
	default:
	}

	select {
	case p.producer.Input() <- msg:
		p.logger.Debug().
			Str("topic", msg.Topic).
			Msg("Event queued for sending to Kafka")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while sending message: %w", ctx.Err())
	}
}

func (p *Producer) handleSuccesses() {
	defer p.wg.Done()

	for msg := range p.producer.Successes() {
		if p.metrics != nil {
			p.metrics.KafkaMessagesProduced.Inc()
		}
		p.logger.Debug().
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("Message sent to Kafka successfully")
	}
}

func (p *Producer) handleErrors() {
	defer p.wg.Done()

	for producerErr := range p.producer.Errors() {
		p.logger.Error().
			Err(producerErr.Err).
			Str("topic", producerErr.Msg.Topic).
			Msg("Failed to send message to Kafka")

		if p.metrics != nil {
			p.metrics.RecordKafkaError(producerErr.Msg.Topic)
		}

		p.errorsMu.Lock()
		if len(p.errors) < maxStoredErrors {
			p.errors = append(p.errors, producerErr.Err)
		}
		p.errorsMu.Unlock()
	}
}

// IsHealthy reports false once closed or after too many delivery failures
func (p *Producer) IsHealthy() bool {
	p.closeMu.Lock()
	closed := p.closed
	p.closeMu.Unlock()
	if closed {
		return false
	}

	p.errorsMu.Lock()
	defer p.errorsMu.Unlock()
	return len(p.errors) < maxStoredErrors
}

// Close flushes pending messages with a 10 second timeout
func (p *Producer) Close() error {
	return p.CloseWithTimeout(10 * time.Second)
}

// CloseWithTimeout closes the producer and waits for the response handlers.
// It is idempotent; later calls return the first result.
func (p *Producer) CloseWithTimeout(timeout time.Duration) error {
	p.closeOnce.Do(func() {
		p.logger.Info().Dur("timeout", timeout).Msg("Closing Kafka producer")

		p.closeMu.Lock()
		p.closed = true
		p.closeMu.Unlock()

		var errs []error
		if err := p.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close failed: %w", err))
		}

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(timeout):
			errs = append(errs, fmt.Errorf("close timeout after %s: handlers did not finish in time", timeout))
		}

		p.errorsMu.Lock()
		errorCount := len(p.errors)
		p.errorsMu.Unlock()
		if errorCount > 0 {
			p.logger.Warn().Int("error_count", errorCount).Msg("Kafka producer closed with errors")
			errs = append(errs, fmt.Errorf("producer had %d send errors during operation", errorCount))
		}

		p.closeErr = errors.Join(errs...)
	})

	return p.closeErr
}

var _ domain.EventPublisher = (*Producer)(nil)
