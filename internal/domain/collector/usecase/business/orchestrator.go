package business

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/tg-userharvest/config"
	"github.com/Conte777/tg-userharvest/internal/domain"
	"github.com/Conte777/tg-userharvest/internal/domain/collector/entities"
	collectorerrors "github.com/Conte777/tg-userharvest/internal/domain/collector/errors"
	"github.com/Conte777/tg-userharvest/internal/infrastructure/metrics"
)

// AccountCrawler runs the historical crawl of one account
type AccountCrawler interface {
	Crawl(ctx context.Context, accountID int64, windowDays int) (*entities.CrawlResult, error)
}

// Orchestrator fans crawls out over accounts with bounded concurrency
type Orchestrator struct {
	crawler   AccountCrawler
	accounts  domain.AccountRepository
	progress  domain.ProgressTracker
	publisher domain.EventPublisher
	clock     domain.Clock
	cfg       *config.CollectorConfig
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	mu     sync.Mutex
	leases map[int64]string
	wg     sync.WaitGroup
}

// OrchestratorParams are the fx dependencies of Orchestrator
type OrchestratorParams struct {
	fx.In

	Crawler   AccountCrawler
	Accounts  domain.AccountRepository
	Progress  domain.ProgressTracker
	Publisher domain.EventPublisher
	Clock     domain.Clock
	Config    *config.CollectorConfig
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
}

// NewOrchestrator creates a crawl orchestrator
func NewOrchestrator(p OrchestratorParams) *Orchestrator {
	return &Orchestrator{
		crawler:   p.Crawler,
		accounts:  p.Accounts,
		progress:  p.Progress,
		publisher: p.Publisher,
		clock:     p.Clock,
		cfg:       p.Config,
		metrics:   p.Metrics,
		logger:    p.Logger.With().Str("component", "crawl_orchestrator").Logger(),
		leases:    make(map[int64]string),
	}
}

// StartCrawl launches a run in the background and returns its handle at once.
// An empty accountIDs means every enabled account; windowDays <= 0 means the
// configured default.
func (o *Orchestrator) StartCrawl(ctx context.Context, accountIDs []int64, windowDays int) (*entities.CrawlHandle, error) {
	if windowDays <= 0 {
		windowDays = o.cfg.DefaultWindowDays
	}

	ids := dedupe(accountIDs)
	if len(ids) == 0 {
		enabled, err := o.accounts.ListEnabledAccountIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list enabled accounts: %w", err)
		}
		ids = enabled
	}
	if len(ids) == 0 {
		return nil, collectorerrors.ErrNoAccounts
	}

	handle := entities.NewCrawlHandle(uuid.NewString(), ids, windowDays, o.clock.Now())
	runCtx := context.WithoutCancel(ctx)

	o.logger.Info().
		Str("run_id", handle.RunID).
		Ints64("accounts", ids).
		Int("window_days", windowDays).
		Msg("crawl run started")

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		outcomes := o.collect(runCtx, handle.RunID, ids, windowDays, o.cfg.MaxConcurrency)
		handle.Finish(outcomes)
		o.publishSummary(runCtx, handle, outcomes)
	}()

	return handle, nil
}

// CollectMany crawls every account with at most maxConcurrency running at
// once. Each account's failure, panics included, lands in its own outcome.
func (o *Orchestrator) CollectMany(ctx context.Context, accountIDs []int64, windowDays, maxConcurrency int) map[int64]entities.AccountOutcome {
	return o.collect(ctx, uuid.NewString(), dedupe(accountIDs), windowDays, maxConcurrency)
}

func (o *Orchestrator) collect(ctx context.Context, runID string, accountIDs []int64, windowDays, maxConcurrency int) map[int64]entities.AccountOutcome {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	sem := make(chan struct{}, maxConcurrency)
	outcomes := make(map[int64]entities.AccountOutcome, len(accountIDs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, id := range accountIDs {
		wg.Add(1)
		go func(accountID int64) {
			defer wg.Done()

			var outcome entities.AccountOutcome
			if !o.acquireLease(accountID, runID) {
				outcome.Err = fmt.Errorf("account %d: %w", accountID, collectorerrors.ErrCrawlInProgress)
			} else {
				select {
				case sem <- struct{}{}:
					outcome = o.runAccount(ctx, accountID, windowDays)
					<-sem
				case <-ctx.Done():
					outcome.Err = ctx.Err()
				}
				o.releaseLease(accountID, runID)
			}

			mu.Lock()
			outcomes[accountID] = outcome
			mu.Unlock()
		}(id)
	}

	wg.Wait()
	return outcomes
}

// runAccount crawls one account and always clears its progress afterwards
func (o *Orchestrator) runAccount(ctx context.Context, accountID int64, windowDays int) (outcome entities.AccountOutcome) {
	started := o.clock.Now()
	o.metrics.ActiveCrawls.Inc()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().
				Int64("account_id", accountID).
				Interface("panic", r).
				Msg("crawl panicked")
			outcome = entities.AccountOutcome{Err: fmt.Errorf("account %d: crawl panicked: %v", accountID, r)}
		}

		o.progress.Clear(context.WithoutCancel(ctx), accountID)
		o.metrics.ActiveCrawls.Dec()

		result := "completed"
		if outcome.Err != nil {
			result = "error"
		}
		o.metrics.RecordCrawl(result, o.clock.Now().Sub(started))
	}()

	res, err := o.crawler.Crawl(ctx, accountID, windowDays)
	if err != nil {
		o.logger.Error().Err(err).Int64("account_id", accountID).Msg("account crawl failed")
	}
	return entities.AccountOutcome{Result: res, Err: err}
}

func (o *Orchestrator) acquireLease(accountID int64, runID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, held := o.leases[accountID]; held {
		return false
	}
	o.leases[accountID] = runID
	return true
}

func (o *Orchestrator) releaseLease(accountID int64, runID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.leases[accountID] == runID {
		delete(o.leases, accountID)
	}
}

// Crawling reports whether the account currently holds a crawl lease
func (o *Orchestrator) Crawling(accountID int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, held := o.leases[accountID]
	return held
}

func (o *Orchestrator) publishSummary(ctx context.Context, handle *entities.CrawlHandle, outcomes map[int64]entities.AccountOutcome) {
	summary := domain.CrawlSummary{
		RunID:      handle.RunID,
		WindowDays: handle.WindowDays,
		StartedAt:  handle.StartedAt,
		FinishedAt: o.clock.Now(),
		Accounts:   make(map[int64]domain.AccountReport, len(outcomes)),
	}
	failed := 0
	for id, outcome := range outcomes {
		report := domain.AccountReport{}
		if outcome.Result != nil {
			report.NewSpeakers = outcome.Result.NewSpeakers
			report.NewEvents = outcome.Result.NewEvents
		}
		if outcome.Err != nil {
			report.Error = outcome.Err.Error()
			failed++
		}
		summary.Accounts[id] = report
	}

	o.logger.Info().
		Str("run_id", handle.RunID).
		Int("accounts", len(outcomes)).
		Int("failed", failed).
		Dur("duration", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("crawl run finished")

	if err := o.publisher.PublishCrawlCompleted(ctx, summary); err != nil {
		o.logger.Warn().Err(err).Str("run_id", handle.RunID).Msg("failed to publish crawl summary")
	}
}

// Wait blocks until every background run has finished or ctx is done
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func dedupe(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

var _ AccountCrawler = (*Crawler)(nil)
