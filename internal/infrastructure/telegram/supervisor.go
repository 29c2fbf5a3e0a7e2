package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Conte777/tg-userharvest/internal/domain"
	"github.com/Conte777/tg-userharvest/internal/infrastructure/metrics"
)

// ManagedConnection is a domain.Connection the supervisor can tear down
type ManagedConnection interface {
	domain.Connection
	Disconnect(ctx context.Context) error
}

// Dialer opens and authorizes a connection for an account
type Dialer func(ctx context.Context, account *domain.Account) (ManagedConnection, error)

// Supervisor keeps at most one live connection per account. It reuses an
// open connection and transparently replaces one that dropped.
type Supervisor struct {
	dial           Dialer
	connectTimeout time.Duration
	metrics        *metrics.Metrics
	logger         zerolog.Logger

	mu       sync.Mutex
	conns    map[int64]ManagedConnection
	claims   map[int64]int
	dialing  map[int64]*sync.Mutex
	watchers map[int64]map[uint64]domain.ReconnectFunc
	nextID   uint64
}

// NewSupervisor creates a supervisor that opens connections with dial
func NewSupervisor(dial Dialer, connectTimeout time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		dial:           dial,
		connectTimeout: connectTimeout,
		metrics:        m,
		logger:         logger.With().Str("component", "connection_supervisor").Logger(),
		conns:          make(map[int64]ManagedConnection),
		claims:         make(map[int64]int),
		dialing:        make(map[int64]*sync.Mutex),
		watchers:       make(map[int64]map[uint64]domain.ReconnectFunc),
	}
}

func (s *Supervisor) accountLock(accountID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.dialing[accountID]
	if !ok {
		l = &sync.Mutex{}
		s.dialing[accountID] = l
	}
	return l
}

// Acquire returns the account's live connection, dialing one if needed, and
// records a claim. Dial failures wrap domain.ErrConnectionFailed unless the
// session is simply not authorized.
func (s *Supervisor) Acquire(ctx context.Context, account *domain.Account) (domain.Connection, error) {
	lock := s.accountLock(account.ID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	existing, ok := s.conns[account.ID]
	s.mu.Unlock()

	if ok && existing.IsConnected() {
		s.claim(account.ID)
		return existing, nil
	}
	if ok {
		s.logger.Warn().Int64("account_id", account.ID).Msg("cached connection dropped, reconnecting")
		s.drop(ctx, account.ID, existing)
	}

	dialCtx, cancel := s.dialContext(ctx)
	defer cancel()

	conn, err := s.dial(dialCtx, account)
	if err != nil {
		s.metrics.ConnectFailures.Inc()
		s.logger.Error().Err(err).Int64("account_id", account.ID).Msg("failed to connect account")
		if errors.Is(err, domain.ErrNotAuthorized) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: account %d: %v", domain.ErrConnectionFailed, account.ID, err)
	}

	s.mu.Lock()
	s.conns[account.ID] = conn
	s.mu.Unlock()
	s.claim(account.ID)
	s.metrics.ActiveConnections.Set(float64(s.ActiveCount()))

	s.logger.Info().Int64("account_id", account.ID).Msg("account connected")
	s.notify(ctx, account.ID, conn)
	return conn, nil
}

// Watch registers fn to run whenever a new connection is dialed for the
// account. Holders of a claim use it to move state off a replaced connection.
func (s *Supervisor) Watch(accountID int64, fn domain.ReconnectFunc) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	if s.watchers[accountID] == nil {
		s.watchers[accountID] = make(map[uint64]domain.ReconnectFunc)
	}
	s.watchers[accountID][id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers[accountID], id)
		if len(s.watchers[accountID]) == 0 {
			delete(s.watchers, accountID)
		}
	}
}

// notify runs the account's watchers outside mu; the caller holds the
// account's dial lock so notifications for one account never overlap
func (s *Supervisor) notify(ctx context.Context, accountID int64, conn domain.Connection) {
	s.mu.Lock()
	fns := make([]domain.ReconnectFunc, 0, len(s.watchers[accountID]))
	for _, fn := range s.watchers[accountID] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	if len(fns) == 0 {
		return
	}
	s.logger.Info().Int64("account_id", accountID).Int("watchers", len(fns)).Msg("notifying watchers of reconnect")
	for _, fn := range fns {
		fn(ctx, conn)
	}
}

func (s *Supervisor) dialContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.connectTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.connectTimeout)
}

func (s *Supervisor) claim(accountID int64) {
	s.mu.Lock()
	s.claims[accountID]++
	s.mu.Unlock()
}

func (s *Supervisor) drop(ctx context.Context, accountID int64, conn ManagedConnection) {
	s.mu.Lock()
	if s.conns[accountID] == conn {
		delete(s.conns, accountID)
	}
	s.mu.Unlock()

	if err := conn.Disconnect(ctx); err != nil {
		s.logger.Warn().Err(err).Int64("account_id", accountID).Msg("failed to disconnect dropped connection")
	}
}

// Release gives up one claim. The connection stays cached for reuse.
func (s *Supervisor) Release(accountID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claims[accountID] > 0 {
		s.claims[accountID]--
	}
}

// Claims returns the number of outstanding claims on an account's connection
func (s *Supervisor) Claims(accountID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims[accountID]
}

// ActiveCount returns the number of cached connections that are still live
func (s *Supervisor) ActiveCount() int {
	s.mu.Lock()
	conns := make([]ManagedConnection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	active := 0
	for _, c := range conns {
		if c.IsConnected() {
			active++
		}
	}
	return active
}

// Shutdown disconnects every cached connection and returns how many were closed
func (s *Supervisor) Shutdown(ctx context.Context) int {
	s.mu.Lock()
	conns := s.conns
	s.conns = make(map[int64]ManagedConnection)
	s.claims = make(map[int64]int)
	s.mu.Unlock()

	var wg sync.WaitGroup
	var closed int
	var closedMu sync.Mutex
	for id, conn := range conns {
		wg.Add(1)
		go func(id int64, conn ManagedConnection) {
			defer wg.Done()
			if err := conn.Disconnect(ctx); err != nil {
				s.logger.Warn().Err(err).Int64("account_id", id).Msg("failed to disconnect account")
				return
			}
			closedMu.Lock()
			closed++
			closedMu.Unlock()
		}(id, conn)
	}
	wg.Wait()

	s.metrics.ActiveConnections.Set(0)
	return closed
}

var _ domain.ConnectionSupervisor = (*Supervisor)(nil)
