package business

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/tg-userharvest/config"
	"github.com/Conte777/tg-userharvest/internal/domain"
	"github.com/Conte777/tg-userharvest/internal/domain/listener/entities"
	listenererrors "github.com/Conte777/tg-userharvest/internal/domain/listener/errors"
	"github.com/Conte777/tg-userharvest/internal/domain/resolver"
	"github.com/Conte777/tg-userharvest/internal/infrastructure/metrics"
)

const listenerSource = "listener"

// Listener owns the per-account live listener registry
type Listener struct {
	accounts    domain.AccountRepository
	connections domain.ConnectionSupervisor
	speakers    domain.SpeakerRepository
	publisher   domain.EventPublisher
	clock       domain.Clock
	cfg         *config.ListenerConfig
	metrics     *metrics.Metrics
	logger      zerolog.Logger

	mu       sync.Mutex
	sessions map[int64]*session
	starting map[int64]struct{}
	finals   map[int64]entities.FinalStats
}

// Params are the fx dependencies of Listener
type Params struct {
	fx.In

	Accounts    domain.AccountRepository
	Connections domain.ConnectionSupervisor
	Speakers    domain.SpeakerRepository
	Publisher   domain.EventPublisher
	Clock       domain.Clock
	Config      *config.ListenerConfig
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
}

// NewListener creates the live listener
func NewListener(p Params) *Listener {
	return &Listener{
		accounts:    p.Accounts,
		connections: p.Connections,
		speakers:    p.Speakers,
		publisher:   p.Publisher,
		clock:       p.Clock,
		cfg:         p.Config,
		metrics:     p.Metrics,
		logger:      p.Logger.With().Str("component", "live_listener").Logger(),
		sessions:    make(map[int64]*session),
		starting:    make(map[int64]struct{}),
		finals:      make(map[int64]entities.FinalStats),
	}
}

// Start subscribes to new messages in the account's selected groups. Failures
// leave the account stopped.
func (l *Listener) Start(ctx context.Context, accountID int64) (*entities.StartResult, error) {
	if !l.reserve(accountID) {
		return nil, fmt.Errorf("account %d: %w", accountID, listenererrors.ErrListenerAlreadyActive)
	}
	defer l.unreserve(accountID)

	account, err := l.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	groups, err := l.accounts.ListSelectedGroups(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("account %d: %w", accountID, domain.ErrNoSelectedGroups)
	}

	conn, err := l.connections.Acquire(ctx, account)
	if err != nil {
		return nil, err
	}

	chats := make([]int64, 0, len(groups))
	stored := make(map[int64]int64, len(groups))
	for _, id := range groups {
		for _, marked := range resolver.Candidates(resolver.ListenerStrategies(), id) {
			chats = append(chats, marked)
			stored[marked] = id
		}
	}

	s := newSession(accountID, chats, stored, l.cfg.QueueSize, l.clock.Now())

	sub, err := conn.Subscribe(ctx, chats, l.deliverTo(s))
	if err != nil {
		l.connections.Release(accountID)
		return nil, fmt.Errorf("failed to subscribe account %d: %w", accountID, err)
	}

	go l.consume(s)

	unwatch := l.connections.Watch(accountID, func(ctx context.Context, next domain.Connection) {
		l.reattach(ctx, s, next)
	})

	l.mu.Lock()
	s.sub, s.conn, s.unwatch = sub, conn, unwatch
	l.sessions[accountID] = s
	l.mu.Unlock()
	l.metrics.ActiveListeners.Inc()

	l.logger.Info().
		Int64("account_id", accountID).
		Ints64("chats", chats).
		Str("subscription_id", sub.ID()).
		Msg("listener started")

	return &entities.StartResult{
		AccountID:       accountID,
		ListeningGroups: len(chats),
		Chats:           chats,
		SubscriptionID:  sub.ID(),
		StartedAt:       s.startedAt,
	}, nil
}

// deliverTo is the subscription handler feeding the session's queue
func (l *Listener) deliverTo(s *session) domain.MessageHandler {
	return func(ctx context.Context, msg domain.Message) {
		if !s.enqueue(ctx, msg) {
			l.metrics.RecordListenerMessage("dropped")
		}
	}
}

// reattach moves a live session onto the connection that replaced its
// dropped one. A failed resubscribe is kept on the session for Status.
func (l *Listener) reattach(ctx context.Context, s *session, conn domain.Connection) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sessions[s.accountID] != s {
		return
	}

	sub, err := conn.Subscribe(ctx, s.chats, l.deliverTo(s))
	if err != nil {
		s.failure = fmt.Sprintf("resubscribe after reconnect failed: %v", err)
		l.logger.Error().Err(err).Int64("account_id", s.accountID).Msg("failed to resubscribe listener")
		return
	}

	s.sub.Cancel()
	s.sub, s.conn, s.failure = sub, conn, ""
	s.reconnects++

	l.logger.Info().
		Int64("account_id", s.accountID).
		Str("subscription_id", sub.ID()).
		Int("reconnects", s.reconnects).
		Msg("listener reattached to new connection")
}

// reserve claims the account for a starting listener
func (l *Listener) reserve(accountID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, active := l.sessions[accountID]; active {
		return false
	}
	if _, pending := l.starting[accountID]; pending {
		return false
	}
	l.starting[accountID] = struct{}{}
	return true
}

func (l *Listener) unreserve(accountID int64) {
	l.mu.Lock()
	delete(l.starting, accountID)
	l.mu.Unlock()
}

// Stop cancels the subscription, drains the queue and keeps the final counters
func (l *Listener) Stop(ctx context.Context, accountID int64) (*entities.FinalStats, error) {
	l.mu.Lock()
	s, ok := l.sessions[accountID]
	if ok {
		delete(l.sessions, accountID)
	}
	l.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("account %d: %w", accountID, listenererrors.ErrListenerNotActive)
	}

	s.unwatch()
	s.sub.Cancel()
	s.stop()

	select {
	case <-s.done:
	case <-ctx.Done():
		l.logger.Warn().Int64("account_id", accountID).Msg("listener drain interrupted")
	}

	stats := s.finalStats(l.clock.Now())

	l.mu.Lock()
	l.finals[accountID] = stats
	l.mu.Unlock()

	l.connections.Release(accountID)
	l.metrics.ActiveListeners.Dec()

	l.logger.Info().
		Int64("account_id", accountID).
		Int64("messages", stats.MessagesProcessed).
		Int64("new_speakers", stats.NewSpeakers).
		Int64("new_events", stats.NewEvents).
		Msg("listener stopped")

	return &stats, nil
}

// Status reports the live counters, or the last run's summary when stopped
func (l *Listener) Status(accountID int64) entities.Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.sessions[accountID]; ok {
		return s.status()
	}

	st := entities.Status{AccountID: accountID}
	if final, ok := l.finals[accountID]; ok {
		final := final
		st.LastRun = &final
	}
	return st
}

// AllStatuses returns the status of every active listener, ordered by account
func (l *Listener) AllStatuses() []entities.Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]entities.Status, 0, len(l.sessions))
	for _, s := range l.sessions {
		out = append(out, s.status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

// StopAll stops every active listener and returns their final counters
func (l *Listener) StopAll(ctx context.Context) map[int64]entities.FinalStats {
	l.mu.Lock()
	ids := make([]int64, 0, len(l.sessions))
	for id := range l.sessions {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	stopped := make(map[int64]entities.FinalStats, len(ids))
	for _, id := range ids {
		stats, err := l.Stop(ctx, id)
		if err != nil {
			continue
		}
		stopped[id] = *stats
	}
	return stopped
}

// consume persists queued messages until the session stops, then drains
// whatever is already queued
func (l *Listener) consume(s *session) {
	defer close(s.done)
	ctx := context.Background()

	for {
		select {
		case msg := <-s.queue:
			l.handle(ctx, s, msg)
		case <-s.stopping:
			for {
				select {
				case msg := <-s.queue:
					l.handle(ctx, s, msg)
				default:
					return
				}
			}
		}
	}
}

// handle stores a first-seen speaker. Speaker and event are written together;
// a failed write leaves the speaker unseen so a later message can retry.
func (l *Listener) handle(ctx context.Context, s *session, msg domain.Message) {
	s.messages.Add(1)

	sender := msg.Sender
	if !sender.IsRegularUser() || sender.Username == "" {
		l.metrics.RecordListenerMessage("filtered")
		return
	}
	if _, dup := s.seen[sender.ID]; dup {
		l.metrics.RecordListenerMessage("duplicate")
		return
	}
	s.seen[sender.ID] = struct{}{}

	date := msg.Date
	if date.IsZero() {
		date = l.clock.Now()
	}
	handle := domain.NormalizeHandle(sender.Username)
	chatID := s.storedID(msg.ChatID)

	inserted, err := l.speakers.SaveObservation(ctx, domain.Observation{
		Speaker: domain.Speaker{TgUserID: sender.ID, Username: handle},
		Event: domain.SpeakEvent{
			AccountID:   s.accountID,
			ChatID:      chatID,
			TgUserID:    sender.ID,
			MessageID:   msg.ID,
			MessageDate: date,
		},
	})
	if err != nil {
		delete(s.seen, sender.ID)
		l.metrics.RecordListenerMessage("error")
		l.logger.Error().Err(err).
			Int64("account_id", s.accountID).
			Int64("tg_user_id", sender.ID).
			Msg("failed to save listener observation")
		return
	}

	s.newSpeakers.Add(1)
	l.metrics.RecordListenerMessage("stored")
	if !inserted {
		return
	}

	s.newEvents.Add(1)
	l.metrics.RecordSpeakEvent(listenerSource)

	if err := l.publisher.PublishSpeakerDiscovered(ctx, domain.SpeakerDiscovered{
		AccountID:   s.accountID,
		ChatID:      chatID,
		TgUserID:    sender.ID,
		Username:    handle,
		MessageID:   msg.ID,
		MessageDate: date,
		Source:      listenerSource,
	}); err != nil {
		l.logger.Warn().Err(err).Int64("tg_user_id", sender.ID).Msg("failed to publish speaker discovered")
	}

	l.logger.Debug().
		Int64("account_id", s.accountID).
		Int64("chat_id", chatID).
		Str("username", handle).
		Msg("new speaker")
}
