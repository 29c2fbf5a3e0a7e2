package business

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conte777/tg-userharvest/config"
	"github.com/Conte777/tg-userharvest/internal/domain"
	"github.com/Conte777/tg-userharvest/internal/domain/collector/entities"
	"github.com/Conte777/tg-userharvest/internal/infrastructure/clock"
	"github.com/Conte777/tg-userharvest/internal/infrastructure/metrics"
)

var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

type crawlerFixture struct {
	accounts  *mockAccounts
	conn      *mockConnection
	sup       *mockSupervisor
	speakers  *mockSpeakers
	progress  *mockProgress
	publisher *mockPublisher
	clock     *clock.Fake
	crawler   *Crawler
}

func newCrawlerFixture(t *testing.T, groups []int64) *crawlerFixture {
	t.Helper()

	f := &crawlerFixture{
		accounts: &mockAccounts{
			accounts: map[int64]*domain.Account{1: {ID: 1, Name: "main", Enabled: true}},
			groups:   map[int64][]int64{1: groups},
		},
		conn: &mockConnection{
			handles: map[int64]*domain.ChatHandle{},
			admins:  map[int64]map[int64]struct{}{},
			history: map[int64][]domain.Message{},
			flood:   map[int]error{},
		},
		speakers:  newMockSpeakers(),
		progress:  newMockProgress(),
		publisher: &mockPublisher{},
		clock:     clock.NewFake(testNow),
	}
	f.sup = &mockSupervisor{conn: f.conn}

	f.crawler = NewCrawler(CrawlerParams{
		Accounts:    f.accounts,
		Connections: f.sup,
		Speakers:    f.speakers,
		Progress:    f.progress,
		Publisher:   f.publisher,
		Clock:       f.clock,
		Config: &config.CollectorConfig{
			HistoryPageSize:     2,
			FloodWaitMargin:     time.Second,
			FloodWaitMaxRetries: 3,
		},
		Metrics: metrics.GetDefaultMetrics(),
		Logger:  zerolog.Nop(),
	})
	return f
}

func (f *crawlerFixture) addChat(h *domain.ChatHandle, msgs ...domain.Message) {
	f.conn.handles[h.MarkedID] = h
	f.conn.history[h.MarkedID] = msgs
}

func user(id int64, username string) *domain.Sender {
	return &domain.Sender{ID: id, Kind: domain.SenderUser, Username: username, FirstName: "F"}
}

func msgAt(id int, sender *domain.Sender, ago time.Duration) domain.Message {
	return domain.Message{ID: id, Sender: sender, Date: testNow.Add(-ago)}
}

func TestCrawl_SkipsUnresolvableGroup(t *testing.T) {
	channel := domain.ChannelMarkedID(300)
	f := newCrawlerFixture(t, []int64{-5, 200, channel})

	f.addChat(&domain.ChatHandle{RawID: 5, MarkedID: -5, Kind: domain.ChatKindBasic, Title: "Basic"},
		msgAt(1, user(1, "alice"), time.Hour),
		msgAt(2, &domain.Sender{ID: 2, Kind: domain.SenderUser, Bot: true, Username: "bot"}, time.Hour),
		msgAt(3, nil, time.Hour),
		domain.Message{ID: 4, Sender: user(3, "nodate")},
		msgAt(5, user(4, "old"), 8*24*time.Hour),
		msgAt(6, &domain.Sender{ID: -5, Kind: domain.SenderChat}, time.Hour),
		msgAt(7, user(1, "alice"), 30*time.Minute),
	)
	f.addChat(&domain.ChatHandle{RawID: 300, MarkedID: channel, Kind: domain.ChatKindChannel},
		msgAt(10, user(5, "eve"), 2*time.Hour),
	)

	res, err := f.crawler.Crawl(context.Background(), 1, 7)
	require.NoError(t, err)

	assert.Equal(t, []entities.GroupCount{
		{ChatID: -5, Title: "Basic", Speakers: 2, Events: 2},
		{ChatID: 200, Title: "Group 200", Skipped: true},
		{ChatID: channel, Title: "Group -1000000000300", Speakers: 1, Events: 1},
	}, res.PerGroup)
	assert.Equal(t, 3, res.NewSpeakers)
	assert.Equal(t, 3, res.NewEvents)
	assert.Equal(t, 8, res.Scanned)
	assert.Equal(t, 1, res.Skipped)

	assert.Contains(t, f.conn.resolved, int64(200))
	assert.Contains(t, f.conn.resolved, domain.ChannelMarkedID(200), "positive id falls back to the channel encoding")

	last := f.progress.last(1)
	assert.Equal(t, progressUpdate{3, 3, domain.LabelCompleted, domain.ProgressCompleted}, last)
	assert.Contains(t, f.progress.updates[1], progressUpdate{2, 3, "Group 200", domain.ProgressCollecting})

	assert.Len(t, f.publisher.speakers, 3)
	assert.Equal(t, "crawl", f.publisher.speakers[0].Source)
	assert.Equal(t, []int64{1}, f.sup.released)
}

func TestCrawl_RescanIsIdempotent(t *testing.T) {
	f := newCrawlerFixture(t, []int64{-5})
	f.addChat(&domain.ChatHandle{RawID: 5, MarkedID: -5, Kind: domain.ChatKindBasic, Title: "Basic"},
		msgAt(1, user(1, "alice"), time.Hour),
		msgAt(2, user(2, "bob"), time.Hour),
	)

	first, err := f.crawler.Crawl(context.Background(), 1, 7)
	require.NoError(t, err)
	second, err := f.crawler.Crawl(context.Background(), 1, 7)
	require.NoError(t, err)

	assert.Equal(t, 2, first.NewEvents)
	assert.Equal(t, 0, second.NewEvents)
	assert.Equal(t, 2, second.NewSpeakers)
	assert.Len(t, f.speakers.eventsIn(-5), 2)
}

func TestCrawl_ExcludesAdminsPerGroup(t *testing.T) {
	f := newCrawlerFixture(t, []int64{-5, -6})
	f.addChat(&domain.ChatHandle{RawID: 5, MarkedID: -5, Kind: domain.ChatKindBasic}, msgAt(1, user(7, "boss"), time.Hour))
	f.addChat(&domain.ChatHandle{RawID: 6, MarkedID: -6, Kind: domain.ChatKindBasic}, msgAt(1, user(7, "boss"), time.Hour))
	f.conn.admins[-5] = map[int64]struct{}{7: {}}

	res, err := f.crawler.Crawl(context.Background(), 1, 7)
	require.NoError(t, err)

	assert.Empty(t, f.speakers.eventsIn(-5))
	require.Len(t, f.speakers.eventsIn(-6), 1)
	assert.Equal(t, int64(7), f.speakers.eventsIn(-6)[0].Speaker.TgUserID)
	assert.Equal(t, 1, res.NewEvents)
}

func TestCrawl_FloodWaitResumesSameCursor(t *testing.T) {
	f := newCrawlerFixture(t, []int64{-5})
	f.addChat(&domain.ChatHandle{RawID: 5, MarkedID: -5, Kind: domain.ChatKindBasic},
		msgAt(1, user(1, "a"), 5*time.Hour),
		msgAt(2, user(2, "b"), 4*time.Hour),
		msgAt(3, user(3, "c"), 3*time.Hour),
		msgAt(4, user(4, "d"), 2*time.Hour),
		msgAt(5, user(5, "e"), time.Hour),
	)
	f.conn.flood[2] = &domain.FloodWaitError{Wait: 5 * time.Second}

	res, err := f.crawler.Crawl(context.Background(), 1, 7)
	require.NoError(t, err)

	assert.Equal(t, 5, res.NewEvents)
	assert.Contains(t, f.clock.Sleeps(), 6*time.Second)
	assert.GreaterOrEqual(t, f.clock.Slept(), 6*time.Second)

	var afterIDs []int
	for _, c := range f.conn.cursors {
		afterIDs = append(afterIDs, c.AfterID)
	}
	assert.Equal(t, []int{0, 2, 2, 4, 5}, afterIDs, "the flooded page is retried, not restarted")
	assert.Equal(t, f.conn.cursors[1], f.conn.cursors[2])
}

func TestCrawl_FloodWaitExhaustedSkipsGroup(t *testing.T) {
	f := newCrawlerFixture(t, []int64{-5, -6})
	f.addChat(&domain.ChatHandle{RawID: 5, MarkedID: -5, Kind: domain.ChatKindBasic}, msgAt(1, user(1, "a"), time.Hour))
	f.addChat(&domain.ChatHandle{RawID: 6, MarkedID: -6, Kind: domain.ChatKindBasic}, msgAt(1, user(2, "b"), time.Hour))
	f.crawler.flood.MaxRetries = 1

	flooding := &floodingConnection{mockConnection: f.conn, chat: -5}
	f.sup.conn = flooding

	res, err := f.crawler.Crawl(context.Background(), 1, 7)
	require.NoError(t, err)

	assert.Equal(t, 0, res.PerGroup[0].Events)
	assert.Equal(t, 1, res.PerGroup[1].Events)
	assert.Equal(t, domain.ProgressCompleted, f.progress.last(1).status)
}

// floodingConnection always floods the history of one chat
type floodingConnection struct {
	*mockConnection
	chat int64
}

func (c *floodingConnection) HistoryPage(ctx context.Context, chat *domain.ChatHandle, cursor domain.HistoryCursor, limit int) (*domain.HistoryPage, error) {
	if chat.MarkedID == c.chat {
		return nil, &domain.FloodWaitError{Wait: time.Second}
	}
	return c.mockConnection.HistoryPage(ctx, chat, cursor, limit)
}

func TestCrawl_AccountErrors(t *testing.T) {
	f := newCrawlerFixture(t, nil)

	_, err := f.crawler.Crawl(context.Background(), 99, 7)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = f.crawler.Crawl(context.Background(), 1, 7)
	assert.ErrorIs(t, err, domain.ErrNoSelectedGroups)
}

func TestCrawl_ConnectionFailureMarksError(t *testing.T) {
	f := newCrawlerFixture(t, []int64{-5})
	f.sup.err = domain.ErrConnectionFailed

	_, err := f.crawler.Crawl(context.Background(), 1, 7)
	assert.ErrorIs(t, err, domain.ErrConnectionFailed)
	assert.Equal(t, domain.ProgressError, f.progress.last(1).status)
	assert.Empty(t, f.sup.released)
}

// droppingConnection loses the link while reading the history of one chat
type droppingConnection struct {
	*mockConnection
	chat    int64
	dropped bool
}

func (c *droppingConnection) IsConnected() bool { return !c.dropped }

func (c *droppingConnection) HistoryPage(ctx context.Context, chat *domain.ChatHandle, cursor domain.HistoryCursor, limit int) (*domain.HistoryPage, error) {
	if chat.MarkedID == c.chat {
		c.dropped = true
		return nil, domain.ErrNotConnected
	}
	return c.mockConnection.HistoryPage(ctx, chat, cursor, limit)
}

func TestCrawl_ConnectionLostMidCrawl(t *testing.T) {
	f := newCrawlerFixture(t, []int64{-5, -6, -7})
	f.addChat(&domain.ChatHandle{RawID: 5, MarkedID: -5, Kind: domain.ChatKindBasic, Title: "First"}, msgAt(1, user(1, "a"), time.Hour))
	f.addChat(&domain.ChatHandle{RawID: 6, MarkedID: -6, Kind: domain.ChatKindBasic, Title: "Second"}, msgAt(1, user(2, "b"), time.Hour))
	f.addChat(&domain.ChatHandle{RawID: 7, MarkedID: -7, Kind: domain.ChatKindBasic, Title: "Third"}, msgAt(1, user(3, "c"), time.Hour))
	f.sup.conn = &droppingConnection{mockConnection: f.conn, chat: -6}

	res, err := f.crawler.Crawl(context.Background(), 1, 7)
	require.ErrorIs(t, err, domain.ErrConnectionFailed)
	require.NotNil(t, res)

	require.Len(t, res.PerGroup, 2)
	assert.Equal(t, 1, res.PerGroup[0].Events)
	assert.Equal(t, 0, res.PerGroup[1].Events)
	assert.Len(t, f.speakers.eventsIn(-5), 1)
	assert.NotContains(t, f.conn.resolved, int64(-7), "the crawl stops at the lost group")

	last := f.progress.last(1)
	assert.Equal(t, domain.ProgressError, last.status)
	assert.Equal(t, 1, last.current)
	assert.Equal(t, 3, last.total)
	assert.Equal(t, "Connection lost", last.label)
	assert.Equal(t, []int64{1}, f.sup.released)
}
