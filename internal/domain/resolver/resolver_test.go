package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conte777/tg-userharvest/internal/domain"
	"github.com/Conte777/tg-userharvest/internal/infrastructure/clock"
)

type fakeLookup struct {
	known    map[int64]*domain.ChatHandle
	attempts []int64
	errs     map[int64][]error
}

func (f *fakeLookup) ResolveChat(ctx context.Context, markedID int64) (*domain.ChatHandle, error) {
	f.attempts = append(f.attempts, markedID)
	if queued := f.errs[markedID]; len(queued) > 0 {
		f.errs[markedID] = queued[1:]
		return nil, queued[0]
	}
	if h, ok := f.known[markedID]; ok {
		return h, nil
	}
	return nil, errors.New("PEER_ID_INVALID")
}

func newTestResolver(clk domain.Clock, strategies []Strategy) *Resolver {
	return New(Config{
		Strategies:  strategies,
		FloodWait:   domain.FloodWaitPolicy{Clock: clk, Margin: time.Second, MaxRetries: 3},
		FailurePace: 20 * time.Millisecond,
		Logger:      zerolog.Nop(),
	})
}

func TestCandidates(t *testing.T) {
	assert.Equal(t, []int64{100, -1000000000100}, Candidates(CrawlerStrategies(), 100))
	assert.Equal(t, []int64{-1000000000100}, Candidates(CrawlerStrategies(), -1000000000100))
	assert.Equal(t, []int64{-1000000000100}, Candidates(ListenerStrategies(), 100))
	assert.Equal(t, []int64{-55}, Candidates(ListenerStrategies(), -55))
}

func TestResolve_DirectHit(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	handle := &domain.ChatHandle{MarkedID: 100}
	lookup := &fakeLookup{known: map[int64]*domain.ChatHandle{100: handle}}

	got, err := newTestResolver(clk, CrawlerStrategies()).Resolve(context.Background(), lookup, 100)

	require.NoError(t, err)
	assert.Same(t, handle, got)
	assert.Equal(t, []int64{100}, lookup.attempts)
	assert.Empty(t, clk.Sleeps())
}

func TestResolve_FallsBackToChannelEncoding(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	handle := &domain.ChatHandle{MarkedID: -1000000000100, Kind: domain.ChatKindChannel}
	lookup := &fakeLookup{known: map[int64]*domain.ChatHandle{-1000000000100: handle}}

	got, err := newTestResolver(clk, CrawlerStrategies()).Resolve(context.Background(), lookup, 100)

	require.NoError(t, err)
	assert.Same(t, handle, got)
	assert.Equal(t, []int64{100, -1000000000100}, lookup.attempts)
	assert.Equal(t, []time.Duration{20 * time.Millisecond}, clk.Sleeps())
}

func TestResolve_NegativeIDUsedDirectly(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	lookup := &fakeLookup{}

	_, err := newTestResolver(clk, CrawlerStrategies()).Resolve(context.Background(), lookup, -1000000000100)

	assert.ErrorIs(t, err, domain.ErrEntityResolution)
	assert.Equal(t, []int64{-1000000000100}, lookup.attempts)
}

func TestResolve_AllStrategiesFail(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	lookup := &fakeLookup{}

	_, err := newTestResolver(clk, CrawlerStrategies()).Resolve(context.Background(), lookup, 7)

	assert.ErrorIs(t, err, domain.ErrEntityResolution)
	assert.ErrorContains(t, err, "PEER_ID_INVALID")
	assert.Len(t, lookup.attempts, 2)
}

func TestResolve_FloodWaitRetriesSameStrategy(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	handle := &domain.ChatHandle{MarkedID: 100}
	lookup := &fakeLookup{
		known: map[int64]*domain.ChatHandle{100: handle},
		errs:  map[int64][]error{100: {&domain.FloodWaitError{Wait: 2 * time.Second}}},
	}

	got, err := newTestResolver(clk, CrawlerStrategies()).Resolve(context.Background(), lookup, 100)

	require.NoError(t, err)
	assert.Same(t, handle, got)
	assert.Equal(t, []int64{100, 100}, lookup.attempts)
	assert.Equal(t, []time.Duration{3 * time.Second}, clk.Sleeps())
}

type fakeAdmins struct {
	admins map[int64]struct{}
	errs   []error
	calls  int
}

func (f *fakeAdmins) AdminIDs(ctx context.Context, chat *domain.ChatHandle) (map[int64]struct{}, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return f.admins, nil
}

func TestAdmins_DegradesToEmptySet(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	ar := NewAdminResolver(domain.FloodWaitPolicy{Clock: clk, Margin: time.Second}, zerolog.Nop())
	src := &fakeAdmins{errs: []error{errors.New("CHAT_ADMIN_REQUIRED")}}

	got := ar.Admins(context.Background(), src, &domain.ChatHandle{MarkedID: -1})

	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAdmins_FloodWaitThenSuccess(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	ar := NewAdminResolver(domain.FloodWaitPolicy{Clock: clk, Margin: time.Second}, zerolog.Nop())
	src := &fakeAdmins{
		admins: map[int64]struct{}{42: {}},
		errs:   []error{&domain.FloodWaitError{Wait: 5 * time.Second}},
	}

	got := ar.Admins(context.Background(), src, &domain.ChatHandle{MarkedID: -1})

	assert.Contains(t, got, int64(42))
	assert.Equal(t, 2, src.calls)
	assert.Equal(t, []time.Duration{6 * time.Second}, clk.Sleeps())
}

func TestAdmins_ExhaustedFloodWaitDegradesToEmptySet(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	ar := NewAdminResolver(domain.FloodWaitPolicy{Clock: clk, Margin: time.Second, MaxRetries: 1}, zerolog.Nop())
	src := &fakeAdmins{
		admins: map[int64]struct{}{42: {}},
		errs: []error{
			&domain.FloodWaitError{Wait: 5 * time.Second},
			&domain.FloodWaitError{Wait: 5 * time.Second},
		},
	}

	got := ar.Admins(context.Background(), src, &domain.ChatHandle{MarkedID: -1})

	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, 2, src.calls)
}
