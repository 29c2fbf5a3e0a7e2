package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Conte777/tg-userharvest/internal/domain"
)

// ConnectionConfig holds configuration for one account connection
type ConnectionConfig struct {
	APIID           int
	APIHash         string
	DeviceModel     string
	AccountID       int64
	Session         session.Storage
	StateStorage    *UpdatesStateStorage
	RateLimit       float64
	RateBurst       int
	DialogsPageSize int
	Logger          zerolog.Logger
	ClientLogger    *zap.Logger
}

// Connection is an MTProto connection for one account. It implements
// domain.Connection.
type Connection struct {
	cfg    ConnectionConfig
	logger zerolog.Logger

	client *telegram.Client
	api    *tg.Client

	connected     bool
	disconnecting bool
	mu            sync.RWMutex
	cancelFunc    context.CancelFunc
	runDone       chan struct{}

	rateLimiter *rate.Limiter

	peersMu      sync.Mutex
	peers        map[int64]*domain.ChatHandle
	peersLoaded  bool
	dialogsLimit int

	routesMu sync.RWMutex
	routes   map[string]*route
}

type route struct {
	chats   map[int64]struct{}
	handler domain.MessageHandler
}

// NewConnection creates a disconnected connection
func NewConnection(cfg ConnectionConfig) (*Connection, error) {
	if cfg.APIID == 0 {
		return nil, fmt.Errorf("APIID is required")
	}
	if cfg.APIHash == "" {
		return nil, fmt.Errorf("APIHash is required")
	}
	if cfg.Session == nil {
		return nil, fmt.Errorf("session storage is required")
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 10
	}
	if cfg.DialogsPageSize <= 0 {
		cfg.DialogsPageSize = 100
	}
	if cfg.ClientLogger == nil {
		cfg.ClientLogger = zap.NewNop()
	}

	return &Connection{
		cfg:          cfg,
		logger:       cfg.Logger.With().Str("component", "mtproto_connection").Int64("account_id", cfg.AccountID).Logger(),
		rateLimiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		peers:        make(map[int64]*domain.ChatHandle),
		dialogsLimit: cfg.DialogsPageSize,
		routes:       make(map[string]*route),
	}, nil
}

// AccountID returns the account this connection belongs to
func (c *Connection) AccountID() int64 {
	return c.cfg.AccountID
}

// Connect starts the client, verifies authorization and starts the updates
// manager. It returns once the connection is ready or failed.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	if c.disconnecting {
		c.mu.Unlock()
		return fmt.Errorf("disconnect in progress, cannot connect")
	}
	defer c.mu.Unlock()

	c.logger.Info().Msg("connecting to Telegram")

	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		c.dispatch(ctx, u.Message, e.Users)
		return nil
	})
	dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		c.dispatch(ctx, u.Message, e.Users)
		return nil
	})

	gapsCfg := updates.Config{
		Handler: dispatcher,
		Logger:  c.cfg.ClientLogger.Named("updates"),
	}
	if c.cfg.StateStorage != nil {
		gapsCfg.Storage = c.cfg.StateStorage
		gapsCfg.AccessHasher = c.cfg.StateStorage
	}
	gaps := updates.New(gapsCfg)

	c.client = telegram.NewClient(c.cfg.APIID, c.cfg.APIHash, telegram.Options{
		SessionStorage: c.cfg.Session,
		UpdateHandler:  gaps,
		Logger:         c.cfg.ClientLogger,
		Device: telegram.DeviceConfig{
			DeviceModel: c.cfg.DeviceModel,
		},
	})

	// Run outlives ctx, which only bounds the connect attempt
	clientCtx, cancel := context.WithCancel(context.Background())
	c.cancelFunc = cancel

	c.api = c.client.API()

	ready := make(chan struct{})
	errChan := make(chan error, 1)
	runDone := make(chan struct{})
	c.runDone = runDone

	go func() {
		defer close(runDone)
		err := c.client.Run(clientCtx, func(ctx context.Context) error {
			status, err := c.client.Auth().Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to check auth status: %w", err)
			}
			if !status.Authorized {
				return domain.ErrNotAuthorized
			}

			self, err := c.client.Self(ctx)
			if err != nil {
				return fmt.Errorf("failed to get self: %w", err)
			}

			return gaps.Run(ctx, c.api, self.ID, updates.AuthOptions{
				OnStart: func(ctx context.Context) {
					c.logger.Info().Int64("self_id", self.ID).Msg("successfully connected to Telegram")
					close(ready)
				},
			})
		})

		// Connect may still hold mu while waiting on errChan
		errChan <- err

		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()

		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn().Err(err).Msg("telegram client stopped")
		}
	}()

	select {
	case <-ready:
		c.connected = true
		return nil
	case err := <-errChan:
		cancel()
		c.api = nil
		if err == nil {
			err = errors.New("client stopped before ready")
		}
		return err
	case <-ctx.Done():
		cancel()
		c.api = nil
		return ctx.Err()
	}
}

// Disconnect stops the client and waits for it to finish or ctx to expire
func (c *Connection) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.disconnecting || c.cancelFunc == nil {
		c.mu.Unlock()
		return nil
	}
	c.disconnecting = true
	cancel := c.cancelFunc
	runDone := c.runDone
	c.mu.Unlock()

	c.logger.Info().Msg("disconnecting from Telegram")
	cancel()

	var err error
	select {
	case <-runDone:
	case <-ctx.Done():
		err = fmt.Errorf("disconnect timeout: %w", ctx.Err())
	}

	c.mu.Lock()
	c.client = nil
	c.api = nil
	c.connected = false
	c.cancelFunc = nil
	c.runDone = nil
	c.disconnecting = false
	c.mu.Unlock()

	return err
}

// IsConnected reports whether the client is running and authorized
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// invoke waits for the rate limiter and runs call against the live API.
// FLOOD_WAIT errors come back as *domain.FloodWaitError.
func (c *Connection) invoke(ctx context.Context, call func(api *tg.Client) error) error {
	c.mu.RLock()
	api := c.api
	connected := c.connected
	c.mu.RUnlock()
	if !connected || api == nil {
		return domain.ErrNotConnected
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	return mapError(call(api))
}

// ResolveChat returns a handle for a marked group id. Dialogs are loaded once
// per connection; ids missing from them are looked up directly.
func (c *Connection) ResolveChat(ctx context.Context, markedID int64) (*domain.ChatHandle, error) {
	kind, rawID := domain.SplitMarkedID(markedID)
	if kind == domain.ChatKindUser {
		return nil, fmt.Errorf("peer %d is not a group", markedID)
	}

	if h, ok := c.cachedPeer(markedID); ok {
		return h, nil
	}
	if err := c.loadDialogs(ctx); err != nil {
		return nil, err
	}
	if h, ok := c.cachedPeer(markedID); ok {
		return h, nil
	}

	var chats []tg.ChatClass
	err := c.invoke(ctx, func(api *tg.Client) error {
		var res tg.MessagesChatsClass
		var err error
		if kind == domain.ChatKindBasic {
			res, err = api.MessagesGetChats(ctx, []int64{rawID})
		} else {
			res, err = api.ChannelsGetChannels(ctx, []tg.InputChannelClass{&tg.InputChannel{ChannelID: rawID}})
		}
		if err != nil {
			return err
		}
		chats = unpackChats(res)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s %d: %w", kind, rawID, err)
	}

	c.rememberChats(chats)
	if h, ok := c.cachedPeer(markedID); ok {
		return h, nil
	}
	return nil, fmt.Errorf("%s %d not found", kind, rawID)
}

func (c *Connection) cachedPeer(markedID int64) (*domain.ChatHandle, bool) {
	c.peersMu.Lock()
	defer c.peersMu.Unlock()
	h, ok := c.peers[markedID]
	return h, ok
}

func (c *Connection) rememberChats(chats []tg.ChatClass) {
	c.peersMu.Lock()
	defer c.peersMu.Unlock()
	for _, chat := range chats {
		if h, ok := chatHandle(chat); ok {
			c.peers[h.MarkedID] = h
		}
	}
}

// loadDialogs pages through the account's dialogs and caches every group.
// It runs at most once successfully per connection.
func (c *Connection) loadDialogs(ctx context.Context) error {
	c.peersMu.Lock()
	loaded := c.peersLoaded
	c.peersMu.Unlock()
	if loaded {
		return nil
	}

	req := &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      c.dialogsLimit,
	}
	for pages := 0; ; pages++ {
		var (
			dialogs  []tg.DialogClass
			messages []tg.MessageClass
			chats    []tg.ChatClass
			complete bool
		)
		err := c.invoke(ctx, func(api *tg.Client) error {
			res, err := api.MessagesGetDialogs(ctx, req)
			if err != nil {
				return err
			}
			switch d := res.(type) {
			case *tg.MessagesDialogs:
				dialogs, messages, chats, complete = d.Dialogs, d.Messages, d.Chats, true
			case *tg.MessagesDialogsSlice:
				dialogs, messages, chats = d.Dialogs, d.Messages, d.Chats
				complete = len(d.Dialogs) < req.Limit
			default:
				complete = true
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to load dialogs: %w", err)
		}

		c.rememberChats(chats)

		next, ok := c.nextDialogsOffset(dialogs, messages)
		if complete || !ok {
			c.logger.Debug().Int("pages", pages+1).Msg("dialogs loaded")
			break
		}
		req.OffsetID, req.OffsetDate, req.OffsetPeer = next.id, next.date, next.peer
	}

	c.peersMu.Lock()
	c.peersLoaded = true
	c.peersMu.Unlock()
	return nil
}

type dialogsOffset struct {
	id   int
	date int
	peer tg.InputPeerClass
}

// nextDialogsOffset points the next dialogs request after the last dialog of a page
func (c *Connection) nextDialogsOffset(dialogs []tg.DialogClass, messages []tg.MessageClass) (dialogsOffset, bool) {
	if len(dialogs) == 0 {
		return dialogsOffset{}, false
	}
	last, ok := dialogs[len(dialogs)-1].(*tg.Dialog)
	if !ok {
		return dialogsOffset{}, false
	}
	markedID, ok := markedPeerID(last.Peer)
	if !ok {
		return dialogsOffset{}, false
	}

	off := dialogsOffset{id: last.TopMessage, peer: &tg.InputPeerEmpty{}}
	for _, mc := range messages {
		m, ok := mc.(*tg.Message)
		if !ok || m.ID != last.TopMessage {
			continue
		}
		if peerID, ok := markedPeerID(m.PeerID); ok && peerID == markedID {
			off.date = m.Date
			break
		}
	}
	if h, ok := c.cachedPeer(markedID); ok {
		off.peer = inputPeer(h)
	}
	return off, true
}

// AdminIDs returns the creator and administrators of a group
func (c *Connection) AdminIDs(ctx context.Context, chat *domain.ChatHandle) (map[int64]struct{}, error) {
	var admins map[int64]struct{}
	err := c.invoke(ctx, func(api *tg.Client) error {
		if chat.Kind == domain.ChatKindBasic {
			full, err := api.MessagesGetFullChat(ctx, chat.RawID)
			if err != nil {
				return err
			}
			admins = basicChatAdmins(full.FullChat)
			return nil
		}

		res, err := api.ChannelsGetParticipants(ctx, &tg.ChannelsGetParticipantsRequest{
			Channel: &tg.InputChannel{ChannelID: chat.RawID, AccessHash: chat.AccessHash},
			Filter:  &tg.ChannelParticipantsAdmins{},
			Limit:   200,
		})
		if err != nil {
			return err
		}
		admins = channelAdmins(res)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return admins, nil
}

// HistoryPage fetches up to limit messages after cursor in ascending order.
// The first page starts at cursor.Since; later pages continue after AfterID.
func (c *Connection) HistoryPage(ctx context.Context, chat *domain.ChatHandle, cursor domain.HistoryCursor, limit int) (*domain.HistoryPage, error) {
	req := &tg.MessagesGetHistoryRequest{
		Peer:      inputPeer(chat),
		Limit:     limit,
		AddOffset: -limit,
	}
	if cursor.AfterID > 0 {
		req.OffsetID = cursor.AfterID + 1
		req.MinID = cursor.AfterID
	} else {
		req.OffsetDate = int(cursor.Since.Unix())
	}

	var (
		batch []tg.MessageClass
		users []tg.UserClass
	)
	err := c.invoke(ctx, func(api *tg.Client) error {
		res, err := api.MessagesGetHistory(ctx, req)
		if err != nil {
			return err
		}
		batch, users, err = unpackMessages(res)
		return err
	})
	if err != nil {
		return nil, err
	}

	return historyPage(batch, users, cursor), nil
}

// Subscribe routes new messages from the given marked chat ids to handler
// until the subscription is cancelled
func (c *Connection) Subscribe(ctx context.Context, markedIDs []int64, handler domain.MessageHandler) (domain.Subscription, error) {
	if !c.IsConnected() {
		return nil, domain.ErrNotConnected
	}

	r := &route{chats: make(map[int64]struct{}, len(markedIDs)), handler: handler}
	for _, id := range markedIDs {
		r.chats[id] = struct{}{}
	}

	sub := &subscription{id: uuid.NewString(), conn: c}

	c.routesMu.Lock()
	c.routes[sub.id] = r
	c.routesMu.Unlock()

	c.logger.Info().Str("subscription_id", sub.id).Ints64("chats", markedIDs).Msg("subscribed to new messages")
	return sub, nil
}

func (c *Connection) unsubscribe(id string) {
	c.routesMu.Lock()
	delete(c.routes, id)
	c.routesMu.Unlock()
}

// dispatch hands a live message to every route that watches its chat
func (c *Connection) dispatch(ctx context.Context, mc tg.MessageClass, users map[int64]*tg.User) {
	msg, ok := convertMessage(mc, users)
	if !ok {
		return
	}
	if m, isMsg := mc.(*tg.Message); isMsg && m.Out {
		return
	}

	c.routesMu.RLock()
	handlers := make([]domain.MessageHandler, 0, 1)
	for _, r := range c.routes {
		if _, watched := r.chats[msg.ChatID]; watched {
			handlers = append(handlers, r.handler)
		}
	}
	c.routesMu.RUnlock()

	for _, h := range handlers {
		h(ctx, msg)
	}
}

type subscription struct {
	id   string
	conn *Connection
	once sync.Once
}

func (s *subscription) ID() string { return s.id }

func (s *subscription) Cancel() {
	s.once.Do(func() { s.conn.unsubscribe(s.id) })
}

var _ domain.Connection = (*Connection)(nil)

