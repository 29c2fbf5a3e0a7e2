package business

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Conte777/tg-userharvest/internal/domain"
	"github.com/Conte777/tg-userharvest/internal/domain/progress/deps"
	"github.com/Conte777/tg-userharvest/internal/infrastructure/metrics"
)

// Tracker is a write-through progress cache over a durable repository.
// The cache answers reads while a run is live; the repository answers cold
// reads after a restart.
type Tracker struct {
	repo    deps.Repository
	clock   domain.Clock
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu    sync.Mutex
	cache map[int64]domain.ProgressRecord
	locks map[int64]*accountLock
}

// accountLock is dropped from the map once nobody holds or waits on it
type accountLock struct {
	sync.Mutex
	refs int
}

// NewTracker creates a progress tracker
func NewTracker(repo deps.Repository, clock domain.Clock, m *metrics.Metrics, logger zerolog.Logger) *Tracker {
	return &Tracker{
		repo:    repo,
		clock:   clock,
		metrics: m,
		logger:  logger.With().Str("component", "progress_tracker").Logger(),
		cache:   make(map[int64]domain.ProgressRecord),
		locks:   make(map[int64]*accountLock),
	}
}

// lock serializes writes for one account
func (t *Tracker) lock(accountID int64) *accountLock {
	t.mu.Lock()
	l, ok := t.locks[accountID]
	if !ok {
		l = &accountLock{}
		t.locks[accountID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.Lock()
	return l
}

func (t *Tracker) unlock(accountID int64, l *accountLock) {
	l.Unlock()

	t.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, accountID)
	}
	t.mu.Unlock()
}

// Update never fails; a durable write error is logged and counted
func (t *Tracker) Update(ctx context.Context, accountID int64, current, total int, label string, status domain.ProgressStatus) {
	l := t.lock(accountID)
	defer t.unlock(accountID, l)

	rec := domain.ProgressRecord{
		AccountID:  accountID,
		Current:    current,
		Total:      total,
		Percentage: domain.Percentage(current, total),
		Label:      label,
		Status:     status,
		UpdatedAt:  t.clock.Now(),
	}

	t.mu.Lock()
	t.cache[accountID] = rec
	t.mu.Unlock()

	if err := t.repo.Upsert(ctx, rec); err != nil {
		t.logger.Warn().Err(err).
			Int64("account_id", accountID).
			Str("status", string(status)).
			Msg("durable progress write failed")
		if t.metrics != nil {
			t.metrics.ProgressWriteFailures.Inc()
		}
	}
}

// Get returns the cached record, else the durable one, else a preparing default
func (t *Tracker) Get(ctx context.Context, accountID int64) domain.ProgressRecord {
	t.mu.Lock()
	rec, ok := t.cache[accountID]
	t.mu.Unlock()
	if ok {
		return rec
	}

	l := t.lock(accountID)
	defer t.unlock(accountID, l)

	// an Update may have landed while we waited for the lock
	t.mu.Lock()
	rec, ok = t.cache[accountID]
	t.mu.Unlock()
	if ok {
		return rec
	}

	durable, err := t.repo.Get(ctx, accountID)
	if err != nil {
		t.logger.Warn().Err(err).Int64("account_id", accountID).Msg("durable progress read failed")
		return domain.DefaultProgress(accountID)
	}
	if durable == nil {
		return domain.DefaultProgress(accountID)
	}

	t.mu.Lock()
	t.cache[accountID] = *durable
	t.mu.Unlock()
	return *durable
}

// Clear removes the account from both layers
func (t *Tracker) Clear(ctx context.Context, accountID int64) {
	l := t.lock(accountID)
	defer t.unlock(accountID, l)

	t.mu.Lock()
	delete(t.cache, accountID)
	t.mu.Unlock()

	if err := t.repo.Delete(ctx, accountID); err != nil {
		t.logger.Warn().Err(err).Int64("account_id", accountID).Msg("durable progress delete failed")
	}
}

var _ domain.ProgressTracker = (*Tracker)(nil)
