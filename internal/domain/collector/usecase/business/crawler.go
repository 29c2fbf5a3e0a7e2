package business

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/tg-userharvest/config"
	"github.com/Conte777/tg-userharvest/internal/domain"
	"github.com/Conte777/tg-userharvest/internal/domain/collector/entities"
	"github.com/Conte777/tg-userharvest/internal/domain/resolver"
	"github.com/Conte777/tg-userharvest/internal/infrastructure/metrics"
)

const crawlSource = "crawl"

// Crawler backfills speakers from the selected groups of one account
type Crawler struct {
	accounts    domain.AccountRepository
	connections domain.ConnectionSupervisor
	speakers    domain.SpeakerRepository
	progress    domain.ProgressTracker
	publisher   domain.EventPublisher
	clock       domain.Clock
	cfg         *config.CollectorConfig
	metrics     *metrics.Metrics
	logger      zerolog.Logger

	flood    domain.FloodWaitPolicy
	resolver *resolver.Resolver
	admins   *resolver.AdminResolver
}

// CrawlerParams are the fx dependencies of Crawler
type CrawlerParams struct {
	fx.In

	Accounts    domain.AccountRepository
	Connections domain.ConnectionSupervisor
	Speakers    domain.SpeakerRepository
	Progress    domain.ProgressTracker
	Publisher   domain.EventPublisher
	Clock       domain.Clock
	Config      *config.CollectorConfig
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
}

// NewCrawler creates a historical crawler
func NewCrawler(p CrawlerParams) *Crawler {
	logger := p.Logger.With().Str("component", "historical_crawler").Logger()

	flood := domain.FloodWaitPolicy{
		Clock:      p.Clock,
		Margin:     p.Config.FloodWaitMargin,
		MaxRetries: p.Config.FloodWaitMaxRetries,
		OnWait: func(wait time.Duration) {
			p.Metrics.RecordFloodWait(wait)
			logger.Warn().Dur("wait", wait).Msg("flood wait, backing off")
		},
	}

	return &Crawler{
		accounts:    p.Accounts,
		connections: p.Connections,
		speakers:    p.Speakers,
		progress:    p.Progress,
		publisher:   p.Publisher,
		clock:       p.Clock,
		cfg:         p.Config,
		metrics:     p.Metrics,
		logger:      logger,
		flood:       flood,
		resolver: resolver.New(resolver.Config{
			Strategies:  resolver.CrawlerStrategies(),
			FloodWait:   flood,
			FailurePace: p.Config.LookupFailurePace,
			Logger:      p.Logger,
		}),
		admins: resolver.NewAdminResolver(flood, p.Logger),
	}
}

// Crawl scans the account's selected groups over the last windowDays days.
// Per-group failures are absorbed; only account, selection and connection
// failures are returned.
func (c *Crawler) Crawl(ctx context.Context, accountID int64, windowDays int) (*entities.CrawlResult, error) {
	account, err := c.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	groups, err := c.accounts.ListSelectedGroups(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("account %d: %w", accountID, domain.ErrNoSelectedGroups)
	}

	total := len(groups)
	c.progress.Update(ctx, accountID, 0, total, domain.LabelPreparing, domain.ProgressPreparing)

	conn, err := c.connections.Acquire(ctx, account)
	if err != nil {
		c.progress.Update(ctx, accountID, 0, total, "Connection failed", domain.ProgressError)
		return nil, err
	}
	defer c.connections.Release(accountID)

	start := c.clock.Now().Add(-time.Duration(windowDays) * 24 * time.Hour)
	log := c.logger.With().Int64("account_id", accountID).Logger()
	log.Info().Int("groups", total).Time("since", start).Msg("starting historical crawl")

	result := &entities.CrawlResult{
		AccountID: accountID,
		PerGroup:  make([]entities.GroupCount, 0, total),
	}

	for i, chatID := range groups {
		count, err := c.crawlGroup(ctx, conn, accountID, chatID, start, result)
		result.PerGroup = append(result.PerGroup, count)

		if err != nil {
			switch {
			case ctx.Err() != nil:
				c.progress.Update(ctx, accountID, i, total, count.Title, domain.ProgressError)
				return result, ctx.Err()
			case connectionLost(err) || !conn.IsConnected():
				log.Error().Err(err).Int64("chat_id", chatID).Msg("connection lost during crawl")
				c.progress.Update(ctx, accountID, i, total, "Connection lost", domain.ProgressError)
				return result, fmt.Errorf("account %d: %w: %v", accountID, domain.ErrConnectionFailed, err)
			case errors.Is(err, domain.ErrEntityResolution):
				result.Skipped++
				c.metrics.RecordGroupSkipped("unresolved")
				log.Warn().Err(err).Int64("chat_id", chatID).Msg("group skipped, entity not resolved")
			default:
				c.metrics.RecordGroupSkipped("transient")
				log.Warn().Err(err).Int64("chat_id", chatID).Msg("group failed, moving on")
				if sleepErr := c.pace(ctx, c.cfg.GroupFailurePace); sleepErr != nil {
					return result, sleepErr
				}
			}
		} else {
			c.metrics.GroupsProcessed.Inc()
		}

		c.progress.Update(ctx, accountID, i+1, total, count.Title, domain.ProgressCollecting)
	}

	c.progress.Update(ctx, accountID, total, total, domain.LabelCompleted, domain.ProgressCompleted)

	log.Info().
		Int("new_speakers", result.NewSpeakers).
		Int("new_events", result.NewEvents).
		Int("scanned", result.Scanned).
		Int("skipped", result.Skipped).
		Msg("historical crawl completed")

	return result, nil
}

// crawlGroup resolves one group and streams its window oldest-first. The
// returned count reflects whatever was stored before an error.
func (c *Crawler) crawlGroup(ctx context.Context, conn domain.Connection, accountID, chatID int64, start time.Time, result *entities.CrawlResult) (entities.GroupCount, error) {
	count := entities.GroupCount{ChatID: chatID}

	handle, err := c.resolver.Resolve(ctx, conn, chatID)
	if err != nil {
		count.Title = (*domain.ChatHandle)(nil).Label(chatID)
		count.Skipped = true
		return count, err
	}
	count.Title = handle.Label(chatID)

	admins := c.admins.Admins(ctx, conn, handle)

	cursor := domain.HistoryCursor{Since: start}
	for {
		var page *domain.HistoryPage
		err := c.flood.Do(ctx, func() error {
			var pageErr error
			page, pageErr = conn.HistoryPage(ctx, handle, cursor, c.cfg.HistoryPageSize)
			return pageErr
		})
		if err != nil {
			return count, fmt.Errorf("history of chat %d: %w", chatID, err)
		}

		for _, msg := range page.Messages {
			result.Scanned++
			c.metrics.MessagesScanned.Inc()

			if c.collect(ctx, accountID, chatID, msg, start, admins, &count, result) {
				if err := c.pace(ctx, c.cfg.MessagePace); err != nil {
					return count, err
				}
			}
		}

		if page.Done {
			return count, nil
		}
		cursor = page.Next
	}
}

// collect applies the sender filters and stores the observation. It reports
// whether the message reached persistence.
func (c *Crawler) collect(ctx context.Context, accountID, chatID int64, msg domain.Message, start time.Time, admins map[int64]struct{}, count *entities.GroupCount, result *entities.CrawlResult) bool {
	if msg.Date.IsZero() || msg.Date.Before(start) {
		return false
	}
	sender := msg.Sender
	if !sender.IsRegularUser() {
		return false
	}
	if _, isAdmin := admins[sender.ID]; isAdmin {
		return false
	}

	count.Speakers++
	result.NewSpeakers++

	obs := domain.Observation{
		Speaker: domain.Speaker{
			TgUserID:  sender.ID,
			Username:  sender.Username,
			FirstName: sender.FirstName,
			LastName:  sender.LastName,
			IsBot:     sender.Bot,
		},
		Event: domain.SpeakEvent{
			AccountID:   accountID,
			ChatID:      chatID,
			TgUserID:    sender.ID,
			MessageID:   msg.ID,
			MessageDate: msg.Date,
		},
	}

	inserted, err := c.speakers.SaveObservation(ctx, obs)
	if err != nil {
		c.logger.Warn().Err(err).
			Int64("account_id", accountID).
			Int64("chat_id", chatID).
			Int("message_id", msg.ID).
			Msg("failed to save observation")
		return true
	}
	if !inserted {
		return true
	}

	count.Events++
	result.NewEvents++
	c.metrics.RecordSpeakEvent(crawlSource)

	if err := c.publisher.PublishSpeakerDiscovered(ctx, domain.SpeakerDiscovered{
		AccountID:   accountID,
		ChatID:      chatID,
		TgUserID:    sender.ID,
		Username:    sender.Username,
		MessageID:   msg.ID,
		MessageDate: msg.Date,
		Source:      crawlSource,
	}); err != nil {
		c.logger.Warn().Err(err).Int64("tg_user_id", sender.ID).Msg("failed to publish speaker discovered")
	}

	return true
}

func (c *Crawler) pace(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return c.clock.Sleep(ctx, d)
}

func connectionLost(err error) bool {
	return errors.Is(err, domain.ErrNotConnected) || errors.Is(err, domain.ErrNotAuthorized)
}
