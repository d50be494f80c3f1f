// Package zonechat ties the zone chat client together. The Controller owns
// the zone session and the message store, consumes socket, position and
// history events on one serialized loop, and exposes Send to the
// presentation layer.
package zonechat

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/chat"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/geo"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/history"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/messaging"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/metrics"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/protocol"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/session"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/ws"
)

// Socket is the chat transport. *ws.Socket implements it.
type Socket interface {
	Start(ctx context.Context)
	Events() <-chan ws.Event
	Emit(msgType string, payload interface{}) error
	Reconnect()
	Close() error
}

// Watcher is the filtered position feed. *geo.Watcher implements it.
type Watcher interface {
	Start(ctx context.Context) error
	Events() <-chan geo.Event
	Stop()
	LastReported() (geo.Position, bool)
}

// Limiter throttles outbound messages. *ratelimit.Limiter implements it.
type Limiter interface {
	Allow(ctx context.Context, identifier string) (bool, error)
}

// Quota is implemented by limiters that can report the sends left in the
// current window. *ratelimit.Limiter implements it.
type Quota interface {
	Remaining(ctx context.Context, identifier string) (int, error)
}

// Announcer receives zone changes. *messaging.NATSClient implements it.
type Announcer interface {
	PublishZone(userID string, a messaging.ZoneAnnouncement) error
}

// Option customizes a Controller.
type Option func(*Controller)

// WithHistory enables history fetches on zone changes.
func WithHistory(f history.Fetcher, timeout time.Duration) Option {
	return func(c *Controller) {
		c.history = f
		c.historyTimeout = timeout
	}
}

// WithLimiter throttles Send.
func WithLimiter(l Limiter) Option {
	return func(c *Controller) { c.limiter = l }
}

// WithAnnouncer publishes zone changes.
func WithAnnouncer(a Announcer) Option {
	return func(c *Controller) { c.announcer = a }
}

// WithStoreOptions configures the message store.
func WithStoreOptions(opts ...chat.Option) Option {
	return func(c *Controller) { c.storeOpts = append(c.storeOpts, opts...) }
}

type historyResult struct {
	zoneID   protocol.ID
	messages []protocol.Message
	err      error
}

// Controller is the chat view's state owner. Every mutation of the session
// and the store happens under mu.
type Controller struct {
	user    protocol.Sender
	socket  Socket
	watcher Watcher
	logger  *zap.Logger

	history        history.Fetcher
	historyTimeout time.Duration
	limiter        Limiter
	announcer      Announcer
	storeOpts      []chat.Option

	mu         sync.Mutex
	session    *session.Session
	store      *chat.Store
	dispatcher *ws.MessageDispatcher
	sentAt     map[protocol.ID]time.Time
	resync     bool
	runCtx     context.Context

	historyResults chan historyResult
	scroll         chan struct{}
	notices        chan Notice
	done           chan struct{}
	closeOnce      sync.Once
}

// New creates a Controller for user. Run starts it.
func New(user protocol.Sender, socket Socket, watcher Watcher, logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("user", user.ID.String()))

	c := &Controller{
		user:           user,
		socket:         socket,
		watcher:        watcher,
		logger:         logger.Named("zonechat"),
		historyTimeout: 10 * time.Second,
		sentAt:         make(map[protocol.ID]time.Time),
		runCtx:         context.Background(),
		historyResults: make(chan historyResult, 4),
		scroll:         make(chan struct{}, 1),
		notices:        make(chan Notice, 32),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.session = session.New(user.ID, socket, logger)
	c.store = chat.NewStore(user, c.storeOpts...)
	c.dispatcher = ws.NewMessageDispatcher(logger)
	c.registerHandlers()
	return c
}

func (c *Controller) registerHandlers() {
	c.dispatcher.Register(protocol.TypeLocationChatJoined, func(msg interface{}) {
		c.handleJoined(msg.(protocol.LocationChatJoinedMsg))
	})
	c.dispatcher.Register(protocol.TypeUsersUpdate, func(msg interface{}) {
		c.handleOccupancy(msg.(protocol.UsersUpdateMsg))
	})
	c.dispatcher.Register(protocol.TypeNewLocationMessage, func(msg interface{}) {
		c.appendLocked(msg.(protocol.NewLocationMessageMsg).Message)
	})
	c.dispatcher.Register(protocol.TypeError, func(msg interface{}) {
		e := msg.(protocol.ErrorMsg)
		c.logger.Warn("server error", zap.String("code", e.Code), zap.String("message", e.Message))
		c.notify(NoticeError, e.Message)
	})
}

// Run opens the socket, starts watching the position and processes events
// until ctx is cancelled or Close is called. A failing position source is
// reported as a notice and the chat keeps working without it.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	c.runCtx = ctx
	c.session.Start()
	c.mu.Unlock()

	c.socket.Start(ctx)

	var geoEvents <-chan geo.Event
	if err := c.watcher.Start(ctx); err != nil {
		c.logger.Warn("position watch unavailable", zap.Error(err))
		c.notify(NoticeError, "Location error: "+err.Error())
	} else {
		geoEvents = c.watcher.Events()
	}
	sockEvents := c.socket.Events()

	c.logger.Info("chat view started")
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return ctx.Err()

		case <-c.done:
			return nil

		case ev, ok := <-sockEvents:
			if !ok {
				c.Close()
				return nil
			}
			c.handleSocketEvent(ev)

		case ev, ok := <-geoEvents:
			if !ok {
				geoEvents = nil
				continue
			}
			c.handleGeoEvent(ev)

		case r := <-c.historyResults:
			c.applyHistory(r)
		}
	}
}

func (c *Controller) handleSocketEvent(ev ws.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case ws.EventConnect:
		if err := c.session.HandleConnect(); err != nil {
			c.logger.Warn("re-announcing position failed", zap.Error(err))
		}

	case ws.EventDisconnect:
		c.session.HandleDisconnect()
		c.resync = true
		c.notify(NoticeWarn, "Disconnected from chat service")

	case ws.EventConnectError:
		c.logger.Warn("connect error", zap.Int("attempt", ev.Attempt), zap.Error(ev.Err))
		c.notify(NoticeError, "Failed to connect to chat service. Retrying...")

	case ws.EventReconnectFailed:
		c.session.HandleReconnectFailed()
		c.notify(NoticeError, "Cannot connect to chat service")

	case ws.EventMessage:
		c.dispatcher.Dispatch(ev.Data)
	}
}

func (c *Controller) handleGeoEvent(ev geo.Event) {
	if ev.Err != nil {
		c.notify(NoticeError, "Location error: "+ev.Err.Message)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.session.RequestZoneFor(ev.Position)
	switch {
	case errors.Is(err, session.ErrNotConnected):
		c.logger.Debug("position queued until connected")
	case err != nil:
		c.logger.Warn("join request failed", zap.Error(err))
	}
}

// handleJoined runs under mu.
func (c *Controller) handleJoined(msg protocol.LocationChatJoinedMsg) {
	zone, changed := c.session.HandleJoined(msg)

	if changed {
		// Pending sends of the previous zone are dropped with its list.
		clear(c.sentAt)
	}
	switch {
	case changed && msg.Messages != nil:
		c.store.Seed(msg.Messages)
	case changed:
		c.store.Reset()
	case msg.Messages != nil:
		c.store.Resync(msg.Messages)
	}
	if changed || msg.Messages != nil {
		c.signalScroll()
	}

	if changed || c.resync {
		c.resync = false
		c.fetchHistory(zone.ID)
	}

	c.announce(messaging.ZoneAnnouncement{
		Kind:        messaging.ZoneJoined,
		ZoneID:      zone.ID.String(),
		Name:        zone.DisplayName,
		Latitude:    zone.Center.Latitude,
		Longitude:   zone.Center.Longitude,
		OnlineUsers: zone.Occupancy,
		Ts:          time.Now(),
	})
}

// handleOccupancy runs under mu.
func (c *Controller) handleOccupancy(msg protocol.UsersUpdateMsg) {
	if !c.session.HandleOccupancy(msg) {
		return
	}
	c.announce(messaging.ZoneAnnouncement{
		Kind:        messaging.ZoneOccupancy,
		ZoneID:      msg.ZoneID.String(),
		OnlineUsers: msg.OnlineUsers,
		Ts:          time.Now(),
	})
}

func (c *Controller) fetchHistory(zoneID protocol.ID) {
	if c.history == nil {
		return
	}
	ctx := c.runCtx
	go func() {
		ctx, cancel := context.WithTimeout(ctx, c.historyTimeout)
		defer cancel()
		msgs, err := c.history.Fetch(ctx, zoneID)
		select {
		case c.historyResults <- historyResult{zoneID: zoneID, messages: msgs, err: err}:
		case <-c.done:
		}
	}()
}

func (c *Controller) applyHistory(r historyResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	zone, ok := c.session.Zone()
	if !ok || zone.ID != r.zoneID {
		c.logger.Debug("dropping history of superseded zone", zap.String("zone", r.zoneID.String()))
		return
	}
	if r.err != nil {
		c.logger.Warn("history fetch failed", zap.String("zone", r.zoneID.String()), zap.Error(r.err))
		c.notify(NoticeError, "Failed to load messages")
		return
	}
	c.store.Resync(r.messages)
	c.signalScroll()
}

// OnIncoming merges an authoritative message into the list.
func (c *Controller) OnIncoming(msg protocol.Message) chat.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendLocked(msg)
}

func (c *Controller) appendLocked(msg protocol.Message) chat.Outcome {
	outcome := c.store.Append(msg)
	metrics.MessagesTotal.WithLabelValues(outcome.String()).Inc()

	if outcome == chat.Reconciled {
		for id, at := range c.sentAt {
			if !c.store.Has(id) {
				metrics.SendRoundTrip.Observe(time.Since(at).Seconds())
				delete(c.sentAt, id)
			}
		}
	}
	if outcome != chat.Duplicate {
		c.signalScroll()
	}
	return outcome
}

// Send posts content to the active zone. The message shows up in Messages
// immediately and is replaced by its authoritative copy once the server
// echoes it.
func (c *Controller) Send(ctx context.Context, content string) (chat.Entry, error) {
	text, err := chat.ValidateContent(content)
	if err != nil {
		return chat.Entry{}, err
	}

	select {
	case <-c.done:
		return chat.Entry{}, ErrClosed
	default:
	}

	c.mu.Lock()
	state := c.session.State()
	if state < session.StateConnected {
		exhausted := c.session.Exhausted()
		c.mu.Unlock()
		return chat.Entry{}, &ConnectionError{State: state, Exhausted: exhausted}
	}
	zone, ok := c.session.Zone()
	c.mu.Unlock()
	if !ok {
		return chat.Entry{}, ErrNoActiveZone
	}

	if c.limiter != nil {
		allowed, err := c.limiter.Allow(ctx, c.user.ID.String())
		if err != nil {
			c.logger.Warn("rate limiter unavailable", zap.Error(err))
		}
		if !allowed {
			c.notify(NoticeWarn, "You're sending messages too fast")
			return chat.Entry{}, &SendFailure{Err: ErrRateLimited}
		}
	}

	// The limiter ran unlocked; the session may have moved on since.
	c.mu.Lock()
	if state := c.session.State(); state < session.StateConnected {
		exhausted := c.session.Exhausted()
		c.mu.Unlock()
		return chat.Entry{}, &ConnectionError{State: state, Exhausted: exhausted}
	}
	current, ok := c.session.Zone()
	if !ok || current.ID != zone.ID {
		c.mu.Unlock()
		c.logger.Debug("zone changed during send", zap.String("from", zone.ID.String()))
		c.notify(NoticeError, "Failed to send message")
		return chat.Entry{}, &SendFailure{Err: ErrZoneChanged}
	}
	entry := c.store.SendOptimistic(text)
	c.sentAt[entry.ID] = time.Now()
	metrics.MessagesTotal.WithLabelValues("sent").Inc()
	c.signalScroll()
	c.mu.Unlock()

	if err := c.session.Transmit(current.ID, c.user.ID, text); err != nil {
		c.mu.Lock()
		if c.store.Rollback(entry.ID) {
			metrics.MessagesTotal.WithLabelValues("rolled_back").Inc()
		}
		delete(c.sentAt, entry.ID)
		c.mu.Unlock()

		c.logger.Warn("send failed", zap.String("temp", entry.ID.String()), zap.Error(err))
		c.notify(NoticeError, "Failed to send message")
		return entry, &SendFailure{TempID: entry.ID, Err: err}
	}
	return entry, nil
}

// Reconnect starts a fresh round of connection attempts after the socket
// gave up. It reports whether a reconnect was started.
func (c *Controller) Reconnect() bool {
	c.mu.Lock()
	ok := c.session.Reconnect()
	c.mu.Unlock()
	if ok {
		c.logger.Info("manual reconnect")
		c.socket.Reconnect()
	}
	return ok
}

// Close tears the view down: the position watch is cleared exactly once, the
// socket is closed and every event handler detached. It is safe to call
// multiple times.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.watcher.Stop()
		if err := c.socket.Close(); err != nil {
			c.logger.Debug("socket close", zap.Error(err))
		}
		c.mu.Lock()
		c.dispatcher.Reset()
		c.mu.Unlock()
		c.logger.Info("chat view closed")
	})
}

// Done is closed once the controller is closed.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Messages returns a copy of the visible message list.
func (c *Controller) Messages() []chat.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Messages()
}

// Zone returns the active zone.
func (c *Controller) Zone() (session.Zone, bool) {
	return c.session.Zone()
}

// State returns the session state.
func (c *Controller) State() session.State {
	return c.session.State()
}

// Status is a snapshot of the chat view for status lines.
type Status struct {
	State       session.State
	Zone        session.Zone
	InZone      bool
	Pending     int // optimistic messages awaiting their echo
	Position    geo.Position
	HasPosition bool
	SendsLeft   int // -1 when no quota is known
}

// Status reports the connection, zone, pending sends, last announced
// position and, when the limiter can tell, the sends left in this window.
func (c *Controller) Status(ctx context.Context) Status {
	c.mu.Lock()
	st := Status{
		State:     c.session.State(),
		Pending:   c.store.Pending(),
		SendsLeft: -1,
	}
	st.Zone, st.InZone = c.session.Zone()
	c.mu.Unlock()

	st.Position, st.HasPosition = c.watcher.LastReported()
	if q, ok := c.limiter.(Quota); ok {
		n, err := q.Remaining(ctx, c.user.ID.String())
		if err != nil {
			c.logger.Debug("quota unavailable", zap.Error(err))
		} else {
			st.SendsLeft = n
		}
	}
	return st
}

// ScrollSignals fires after every change that adds to or rebuilds the list.
// Signals coalesce while unread.
func (c *Controller) ScrollSignals() <-chan struct{} {
	return c.scroll
}

func (c *Controller) signalScroll() {
	select {
	case c.scroll <- struct{}{}:
	default:
	}
}

func (c *Controller) announce(a messaging.ZoneAnnouncement) {
	if c.announcer == nil {
		return
	}
	if err := c.announcer.PublishZone(c.user.ID.String(), a); err != nil {
		c.logger.Warn("zone announcement failed", zap.Error(err))
	}
}
