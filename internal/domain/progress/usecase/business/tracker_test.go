package business

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conte777/tg-userharvest/internal/domain"
	"github.com/Conte777/tg-userharvest/internal/infrastructure/clock"
	"github.com/Conte777/tg-userharvest/internal/infrastructure/metrics"
)

type mockRepo struct {
	mu        sync.Mutex
	records   map[int64]domain.ProgressRecord
	upsertErr error
	getErr    error
	upserts   int
	deletes   int
}

func newMockRepo() *mockRepo {
	return &mockRepo{records: make(map[int64]domain.ProgressRecord)}
}

func (m *mockRepo) Upsert(ctx context.Context, rec domain.ProgressRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.records[rec.AccountID] = rec
	return nil
}

func (m *mockRepo) Get(ctx context.Context, accountID int64) (*domain.ProgressRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.records[accountID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *mockRepo) Delete(ctx context.Context, accountID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.records, accountID)
	return nil
}

func newTestTracker(repo *mockRepo) *Tracker {
	return NewTracker(repo, clock.NewFake(time.Unix(1700000000, 0)), metrics.GetDefaultMetrics(), zerolog.Nop())
}

func TestUpdate_WritesBothLayers(t *testing.T) {
	repo := newMockRepo()
	tracker := newTestTracker(repo)
	ctx := context.Background()

	tracker.Update(ctx, 1, 1, 3, "Dev chat", domain.ProgressCollecting)

	got := tracker.Get(ctx, 1)
	assert.Equal(t, 1, got.Current)
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, 33, got.Percentage)
	assert.Equal(t, "Dev chat", got.Label)
	assert.Equal(t, domain.ProgressCollecting, got.Status)
	assert.Equal(t, time.Unix(1700000000, 0), got.UpdatedAt)

	durable, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, got, *durable)
}

func TestUpdate_ZeroTotal(t *testing.T) {
	tracker := newTestTracker(newMockRepo())

	tracker.Update(context.Background(), 1, 0, 0, "", domain.ProgressPreparing)

	assert.Equal(t, 0, tracker.Get(context.Background(), 1).Percentage)
}

func TestUpdate_DurableFailureDoesNotPropagate(t *testing.T) {
	repo := newMockRepo()
	repo.upsertErr = errors.New("db down")
	tracker := newTestTracker(repo)

	assert.NotPanics(t, func() {
		tracker.Update(context.Background(), 1, 2, 4, "x", domain.ProgressCollecting)
	})
	assert.Equal(t, 50, tracker.Get(context.Background(), 1).Percentage, "cache still serves the update")
}

func TestGet_DefaultWhenUnknown(t *testing.T) {
	tracker := newTestTracker(newMockRepo())

	got := tracker.Get(context.Background(), 9)

	assert.Equal(t, domain.DefaultProgress(9), got)
	assert.Equal(t, domain.ProgressPreparing, got.Status)
	assert.Equal(t, domain.LabelPreparing, got.Label)
}

func TestGet_DefaultWhenDurableUnreadable(t *testing.T) {
	repo := newMockRepo()
	repo.getErr = errors.New("timeout")
	tracker := newTestTracker(repo)

	assert.Equal(t, domain.DefaultProgress(2), tracker.Get(context.Background(), 2))
}

func TestGet_ColdReadFromDurable(t *testing.T) {
	repo := newMockRepo()
	repo.records[5] = domain.ProgressRecord{AccountID: 5, Current: 2, Total: 2, Percentage: 100, Status: domain.ProgressCompleted}
	tracker := newTestTracker(repo)

	got := tracker.Get(context.Background(), 5)
	assert.Equal(t, domain.ProgressCompleted, got.Status)

	repo.getErr = errors.New("gone")
	assert.Equal(t, domain.ProgressCompleted, tracker.Get(context.Background(), 5).Status, "second read is served from cache")
}

func TestClear_RemovesBothLayers(t *testing.T) {
	repo := newMockRepo()
	tracker := newTestTracker(repo)
	ctx := context.Background()

	tracker.Update(ctx, 1, 1, 1, "x", domain.ProgressCompleted)
	tracker.Clear(ctx, 1)

	assert.Equal(t, domain.DefaultProgress(1), tracker.Get(ctx, 1))
	assert.Equal(t, 1, repo.deletes)
}

func TestUpdate_ConcurrentAccounts(t *testing.T) {
	repo := newMockRepo()
	tracker := newTestTracker(repo)
	ctx := context.Background()

	var wg sync.WaitGroup
	for acc := int64(1); acc <= 8; acc++ {
		wg.Add(1)
		go func(acc int64) {
			defer wg.Done()
			for i := 1; i <= 20; i++ {
				tracker.Update(ctx, acc, i, 20, "g", domain.ProgressCollecting)
			}
		}(acc)
	}
	wg.Wait()

	for acc := int64(1); acc <= 8; acc++ {
		got := tracker.Get(ctx, acc)
		assert.Equal(t, 20, got.Current)
		assert.Equal(t, 100, got.Percentage)
	}
	assert.Equal(t, 160, repo.upserts)
}

func TestLocks_ReleasedWhenIdle(t *testing.T) {
	repo := newMockRepo()
	tracker := newTestTracker(repo)
	ctx := context.Background()

	var wg sync.WaitGroup
	for acc := int64(1); acc <= 16; acc++ {
		wg.Add(1)
		go func(acc int64) {
			defer wg.Done()
			tracker.Update(ctx, acc, 1, 2, "g", domain.ProgressCollecting)
			tracker.Get(ctx, acc)
			tracker.Clear(ctx, acc)
		}(acc)
	}
	wg.Wait()

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	assert.Empty(t, tracker.locks)
	assert.Empty(t, tracker.cache)
}
