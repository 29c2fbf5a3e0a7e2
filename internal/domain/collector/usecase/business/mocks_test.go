package business

import (
	"context"
	"fmt"
	"sync"

	"github.com/Conte777/tg-userharvest/internal/domain"
)

type mockAccounts struct {
	accounts map[int64]*domain.Account
	groups   map[int64][]int64
	enabled  []int64
}

func (m *mockAccounts) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	acc, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %d: %w", id, domain.ErrAccountNotFound)
	}
	return acc, nil
}

func (m *mockAccounts) ListSelectedGroups(ctx context.Context, accountID int64) ([]int64, error) {
	return m.groups[accountID], nil
}

func (m *mockAccounts) ListEnabledAccountIDs(ctx context.Context) ([]int64, error) {
	return m.enabled, nil
}

func (m *mockAccounts) UpdateCredential(ctx context.Context, id int64, credential []byte) error {
	return nil
}

type mockSupervisor struct {
	conn     domain.Connection
	err      error
	released []int64
}

func (m *mockSupervisor) Acquire(ctx context.Context, account *domain.Account) (domain.Connection, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.conn, nil
}

func (m *mockSupervisor) Release(accountID int64) { m.released = append(m.released, accountID) }
func (m *mockSupervisor) ActiveCount() int        { return 1 }

func (m *mockSupervisor) Watch(accountID int64, fn domain.ReconnectFunc) func() {
	return func() {}
}
func (m *mockSupervisor) Shutdown(ctx context.Context) int {
	return 0
}

type mockConnection struct {
	mu       sync.Mutex
	handles  map[int64]*domain.ChatHandle
	admins   map[int64]map[int64]struct{}
	history  map[int64][]domain.Message
	flood    map[int]error
	cursors  []domain.HistoryCursor
	resolved []int64
}

func (m *mockConnection) AccountID() int64  { return 1 }
func (m *mockConnection) IsConnected() bool { return true }

func (m *mockConnection) ResolveChat(ctx context.Context, markedID int64) (*domain.ChatHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolved = append(m.resolved, markedID)
	h, ok := m.handles[markedID]
	if !ok {
		return nil, fmt.Errorf("PEER_ID_INVALID")
	}
	return h, nil
}

func (m *mockConnection) AdminIDs(ctx context.Context, chat *domain.ChatHandle) (map[int64]struct{}, error) {
	return m.admins[chat.MarkedID], nil
}

// HistoryPage serves ascending messages after the cursor. An entry in flood
// keyed by cursor.AfterID fails once with that error.
func (m *mockConnection) HistoryPage(ctx context.Context, chat *domain.ChatHandle, cursor domain.HistoryCursor, limit int) (*domain.HistoryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors = append(m.cursors, cursor)

	if err, ok := m.flood[cursor.AfterID]; ok {
		delete(m.flood, cursor.AfterID)
		return nil, err
	}

	var out []domain.Message
	for _, msg := range m.history[chat.MarkedID] {
		if msg.ID <= cursor.AfterID {
			continue
		}
		out = append(out, msg)
		if len(out) == limit {
			break
		}
	}
	if len(out) == 0 {
		return &domain.HistoryPage{Next: cursor, Done: true}, nil
	}
	return &domain.HistoryPage{
		Messages: out,
		Next:     domain.HistoryCursor{Since: cursor.Since, AfterID: out[len(out)-1].ID},
	}, nil
}

func (m *mockConnection) Subscribe(ctx context.Context, markedIDs []int64, handler domain.MessageHandler) (domain.Subscription, error) {
	return nil, domain.ErrNotConnected
}

type eventKey struct {
	account, chat, user int64
	message             int
}

type mockSpeakers struct {
	mu     sync.Mutex
	events map[eventKey]domain.Observation
}

func newMockSpeakers() *mockSpeakers {
	return &mockSpeakers{events: make(map[eventKey]domain.Observation)}
}

func (m *mockSpeakers) SaveObservation(ctx context.Context, obs domain.Observation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := eventKey{obs.Event.AccountID, obs.Event.ChatID, obs.Event.TgUserID, obs.Event.MessageID}
	if _, dup := m.events[k]; dup {
		return false, nil
	}
	m.events[k] = obs
	return true, nil
}

func (m *mockSpeakers) eventsIn(chatID int64) []domain.Observation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Observation
	for k, obs := range m.events {
		if k.chat == chatID {
			out = append(out, obs)
		}
	}
	return out
}

type progressUpdate struct {
	current, total int
	label          string
	status         domain.ProgressStatus
}

type mockProgress struct {
	mu      sync.Mutex
	updates map[int64][]progressUpdate
	cleared []int64
}

func newMockProgress() *mockProgress {
	return &mockProgress{updates: make(map[int64][]progressUpdate)}
}

func (m *mockProgress) Update(ctx context.Context, accountID int64, current, total int, label string, status domain.ProgressStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates[accountID] = append(m.updates[accountID], progressUpdate{current, total, label, status})
}

func (m *mockProgress) Get(ctx context.Context, accountID int64) domain.ProgressRecord {
	return domain.DefaultProgress(accountID)
}

func (m *mockProgress) Clear(ctx context.Context, accountID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = append(m.cleared, accountID)
}

func (m *mockProgress) last(accountID int64) progressUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.updates[accountID]
	return u[len(u)-1]
}

type mockPublisher struct {
	mu        sync.Mutex
	speakers  []domain.SpeakerDiscovered
	summaries []domain.CrawlSummary
}

func (m *mockPublisher) PublishSpeakerDiscovered(ctx context.Context, event domain.SpeakerDiscovered) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speakers = append(m.speakers, event)
	return nil
}

func (m *mockPublisher) PublishCrawlCompleted(ctx context.Context, summary domain.CrawlSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries = append(m.summaries, summary)
	return nil
}

func (m *mockPublisher) IsHealthy() bool { return true }
func (m *mockPublisher) Close() error    { return nil }
