package business

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Conte777/tg-userharvest/internal/domain"
	"github.com/Conte777/tg-userharvest/internal/domain/listener/entities"
)

// session is the live state of one account's listener. The seen set is owned
// by the consumer goroutine; counters are read concurrently by Status. sub,
// conn, failure and reconnects are guarded by the listener's mutex.
type session struct {
	accountID int64
	chats     []int64
	stored    map[int64]int64
	startedAt time.Time

	sub        domain.Subscription
	conn       domain.Connection
	unwatch    func()
	failure    string
	reconnects int

	queue    chan domain.Message
	stopping chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	seen map[int64]struct{}

	messages    atomic.Int64
	newSpeakers atomic.Int64
	newEvents   atomic.Int64
	dropped     atomic.Int64
}

func newSession(accountID int64, chats []int64, stored map[int64]int64, queueSize int, startedAt time.Time) *session {
	return &session{
		accountID: accountID,
		chats:     chats,
		stored:    stored,
		startedAt: startedAt,
		queue:     make(chan domain.Message, queueSize),
		stopping:  make(chan struct{}),
		done:      make(chan struct{}),
		seen:      make(map[int64]struct{}),
	}
}

// enqueue blocks while the queue is full so a lagging consumer slows the
// update dispatcher down. It gives up once the session stops.
func (s *session) enqueue(ctx context.Context, msg domain.Message) bool {
	select {
	case <-s.stopping:
		return false
	default:
	}

	select {
	case s.queue <- msg:
		return true
	case <-s.stopping:
	case <-ctx.Done():
	}
	s.dropped.Add(1)
	return false
}

// storedID maps a subscribed chat id back to the selected-group id it was
// derived from, so live and crawled events share one key
func (s *session) storedID(chatID int64) int64 {
	if id, ok := s.stored[chatID]; ok {
		return id
	}
	return chatID
}

func (s *session) stop() {
	s.stopOnce.Do(func() { close(s.stopping) })
}

func (s *session) status() entities.Status {
	startedAt := s.startedAt
	id := ""
	if s.sub != nil {
		id = s.sub.ID()
	}
	return entities.Status{
		AccountID:         s.accountID,
		Active:            true,
		Connected:         s.conn != nil && s.conn.IsConnected(),
		Reconnects:        s.reconnects,
		Error:             s.failure,
		ListeningGroups:   len(s.chats),
		Chats:             s.chats,
		SubscriptionID:    id,
		MessagesProcessed: s.messages.Load(),
		NewSpeakers:       s.newSpeakers.Load(),
		NewEvents:         s.newEvents.Load(),
		Dropped:           s.dropped.Load(),
		QueueDepth:        len(s.queue),
		StartedAt:         &startedAt,
	}
}

func (s *session) finalStats(stoppedAt time.Time) entities.FinalStats {
	return entities.FinalStats{
		AccountID:         s.accountID,
		ListeningGroups:   len(s.chats),
		MessagesProcessed: s.messages.Load(),
		NewSpeakers:       s.newSpeakers.Load(),
		NewEvents:         s.newEvents.Load(),
		Dropped:           s.dropped.Load(),
		StartedAt:         s.startedAt,
		StoppedAt:         stoppedAt,
		DurationSeconds:   stoppedAt.Sub(s.startedAt).Seconds(),
	}
}
