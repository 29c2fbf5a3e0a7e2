package domain

import (
	"context"
	"time"
)

// MessageHandler receives live messages for a subscription
type MessageHandler func(ctx context.Context, msg Message)

// Subscription is a live message subscription; Cancel is idempotent
type Subscription interface {
	ID() string
	Cancel()
}

// Connection is an authorized, live platform connection for one account
type Connection interface {
	AccountID() int64
	IsConnected() bool
	ResolveChat(ctx context.Context, markedID int64) (*ChatHandle, error)
	AdminIDs(ctx context.Context, chat *ChatHandle) (map[int64]struct{}, error)
	HistoryPage(ctx context.Context, chat *ChatHandle, cursor HistoryCursor, limit int) (*HistoryPage, error)
	Subscribe(ctx context.Context, markedIDs []int64, handler MessageHandler) (Subscription, error)
}

// ReconnectFunc receives the connection that replaced a dropped one
type ReconnectFunc func(ctx context.Context, conn Connection)

// ConnectionSupervisor owns the per-account connection cache.
// Watch registers fn to run after every fresh dial for the account; the
// returned func unregisters it.
type ConnectionSupervisor interface {
	Acquire(ctx context.Context, account *Account) (Connection, error)
	Release(accountID int64)
	Watch(accountID int64, fn ReconnectFunc) (unwatch func())
	ActiveCount() int
	Shutdown(ctx context.Context) int
}

// AccountRepository reads accounts and their selected groups
type AccountRepository interface {
	GetAccount(ctx context.Context, id int64) (*Account, error)
	ListSelectedGroups(ctx context.Context, accountID int64) ([]int64, error)
	ListEnabledAccountIDs(ctx context.Context) ([]int64, error)
	UpdateCredential(ctx context.Context, id int64, credential []byte) error
}

// SpeakerRepository persists speakers and their events.
// SaveObservation upserts the speaker and inserts the event atomically;
// inserted is false when the event already existed.
type SpeakerRepository interface {
	SaveObservation(ctx context.Context, obs Observation) (inserted bool, err error)
}

// ProgressTracker publishes per-account crawl progress
type ProgressTracker interface {
	Update(ctx context.Context, accountID int64, current, total int, label string, status ProgressStatus)
	Get(ctx context.Context, accountID int64) ProgressRecord
	Clear(ctx context.Context, accountID int64)
}

// SpeakerDiscovered is published for every newly stored speak event
type SpeakerDiscovered struct {
	AccountID   int64     `json:"account_id"`
	ChatID      int64     `json:"chat_id"`
	TgUserID    int64     `json:"tg_user_id"`
	Username    string    `json:"username,omitempty"`
	MessageID   int       `json:"message_id"`
	MessageDate time.Time `json:"message_date"`
	Source      string    `json:"source"`
}

// CrawlSummary is published when a multi-account crawl run ends
type CrawlSummary struct {
	RunID      string                  `json:"run_id"`
	WindowDays int                     `json:"window_days"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Accounts   map[int64]AccountReport `json:"accounts"`
}

// AccountReport is the per-account part of a CrawlSummary
type AccountReport struct {
	NewSpeakers int    `json:"new_speakers"`
	NewEvents   int    `json:"new_events"`
	Error       string `json:"error,omitempty"`
}

// EventPublisher emits discovery events downstream
type EventPublisher interface {
	PublishSpeakerDiscovered(ctx context.Context, event SpeakerDiscovered) error
	PublishCrawlCompleted(ctx context.Context, summary CrawlSummary) error
	IsHealthy() bool
	Close() error
}

// Clock abstracts time so pacing and backoff are observable in tests
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}
