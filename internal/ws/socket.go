// Package ws is the client side of the zone chat socket. It dials the chat
// server over websocket, turns inbound frames into typed events, writes
// outbound events, and applies a fixed reconnection policy.
package ws

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"go.uber.org/zap"

	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/metrics"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/protocol"
)

// ErrNotConnected is returned by Emit while no connection is established.
var ErrNotConnected = errors.New("ws: not connected")

// SocketConfig holds tunable parameters for the client socket.
type SocketConfig struct {
	URL               string        // ws:// or wss:// endpoint
	Token             string        // optional bearer token sent on the handshake
	ReconnectAttempts int           // retries after the first dial or a drop before giving up
	ReconnectDelay    time.Duration // pause between dials
	DialTimeout       time.Duration // handshake timeout
	WriteTimeout      time.Duration // timeout for a single frame write
	Heartbeat         HeartbeatConfig
}

// DefaultSocketConfig returns the reconnection policy the chat view uses:
// 5 attempts, 1s apart, websocket transport only.
func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		URL:               "ws://localhost:5000/ws",
		ReconnectAttempts: 5,
		ReconnectDelay:    1 * time.Second,
		DialTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		Heartbeat:         DefaultHeartbeatConfig(),
	}
}

// EventKind distinguishes transport lifecycle events from server messages.
type EventKind int

const (
	EventConnect EventKind = iota + 1
	EventDisconnect
	EventConnectError
	EventReconnectFailed
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventConnectError:
		return "connect_error"
	case EventReconnectFailed:
		return "reconnect_failed"
	case EventMessage:
		return "message"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is delivered on Socket.Events. Type and Data are set for
// EventMessage; Err and Attempt for failures.
type Event struct {
	Kind    EventKind
	Type    string
	Data    []byte
	Err     error
	Attempt int
}

// DialFunc opens a websocket to url. The returned reader, if non-nil, holds
// bytes the server sent behind the handshake.
type DialFunc func(ctx context.Context, url string) (net.Conn, *bufio.Reader, error)

// Option customizes a Socket.
type Option func(*Socket)

// WithDialer replaces the gobwas dialer, e.g. to inject failures in tests.
func WithDialer(dial DialFunc) Option {
	return func(s *Socket) { s.dial = dial }
}

// Socket maintains at most one live Connection and re-dials it according to
// the configured policy. All inbound traffic and lifecycle changes are
// published on a single channel.
type Socket struct {
	config SocketConfig
	dial   DialFunc
	logger *zap.Logger

	mu   sync.RWMutex
	conn *Connection

	events    chan Event
	reconnect chan struct{}
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	startOnce sync.Once
}

// NewSocket creates a Socket. Start must be called to begin dialing.
func NewSocket(config SocketConfig, logger *zap.Logger, opts ...Option) *Socket {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Socket{
		config:    config,
		logger:    logger.Named("ws"),
		events:    make(chan Event, 64),
		reconnect: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	s.dial = gobwasDialer(config)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func gobwasDialer(config SocketConfig) DialFunc {
	d := ws.Dialer{Timeout: config.DialTimeout}
	if config.Token != "" {
		d.Header = ws.HandshakeHeaderHTTP(http.Header{
			"Authorization": []string{"Bearer " + config.Token},
		})
	}
	return func(ctx context.Context, url string) (net.Conn, *bufio.Reader, error) {
		conn, br, _, err := d.Dial(ctx, url)
		return conn, br, err
	}
}

// Events returns the event channel. It is closed after Close once the
// connection loop has exited.
func (s *Socket) Events() <-chan Event {
	return s.events
}

// Start launches the connection loop in a background goroutine. Calls after
// the first are ignored.
func (s *Socket) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		go s.run(ctx)
	})
}

// Connected reports whether a connection is currently established.
func (s *Socket) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn != nil
}

// Emit sends an event to the server. It is goroutine-safe.
func (s *Socket) Emit(msgType string, payload interface{}) error {
	data, err := protocol.NewClientMessage(msgType, payload)
	if err != nil {
		return err
	}

	s.mu.RLock()
	c := s.conn
	s.mu.RUnlock()
	if c == nil {
		return ErrNotConnected
	}

	if err := c.WriteMessage(data, s.config.WriteTimeout); err != nil {
		return fmt.Errorf("ws: emit %s: %w", msgType, err)
	}
	return nil
}

// Reconnect asks an exhausted connection loop to start a fresh round of
// attempts. It has no effect while the loop is still retrying or connected.
func (s *Socket) Reconnect() {
	select {
	case s.reconnect <- struct{}{}:
	default:
	}
}

// Close stops the connection loop and closes the live connection. It is safe
// to call multiple times.
func (s *Socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Lock()
		c := s.conn
		s.conn = nil
		s.mu.Unlock()
		if c != nil {
			err = c.Close()
		}
	})
	return err
}

func (s *Socket) run(ctx context.Context) {
	defer close(s.events)

	// A fresh round (first connect or manual Reconnect) gets its initial
	// dial on top of the retries; after a drop every dial is a retry.
	attempt := 0
	budget := s.config.ReconnectAttempts + 1
	for {
		if s.closed(ctx) {
			return
		}

		netConn, br, err := s.dial(ctx, s.config.URL)
		if err != nil {
			if s.closed(ctx) {
				return
			}
			attempt++
			metrics.ConnectAttempts.WithLabelValues("error").Inc()
			s.logger.Warn("connect failed", zap.Int("attempt", attempt), zap.Error(err))
			s.publish(ctx, Event{Kind: EventConnectError, Err: err, Attempt: attempt})

			if attempt >= budget {
				s.logger.Error("reconnect attempts exhausted", zap.Int("attempts", attempt))
				s.publish(ctx, Event{Kind: EventReconnectFailed, Err: err, Attempt: attempt})
				select {
				case <-s.reconnect:
					attempt = 0
					budget = s.config.ReconnectAttempts + 1
					continue
				case <-ctx.Done():
					return
				}
			}
			if !s.sleep(ctx, s.config.ReconnectDelay) {
				return
			}
			continue
		}

		attempt = 0
		metrics.ConnectAttempts.WithLabelValues("ok").Inc()
		c := newConnection(netConn, br)
		s.mu.Lock()
		s.conn = c
		s.mu.Unlock()
		if s.closed(ctx) {
			_ = c.Close()
			return
		}

		s.logger.Info("connected", zap.String("conn", c.ID), zap.String("url", s.config.URL))
		s.publish(ctx, Event{Kind: EventConnect})

		readErr := s.readLoop(ctx, c)

		s.mu.Lock()
		if s.conn == c {
			s.conn = nil
		}
		s.mu.Unlock()
		_ = c.Close()

		if s.closed(ctx) {
			return
		}
		s.logger.Warn("disconnected", zap.String("conn", c.ID), zap.Error(readErr))
		s.publish(ctx, Event{Kind: EventDisconnect, Err: readErr})
		budget = s.config.ReconnectAttempts

		if !s.sleep(ctx, s.config.ReconnectDelay) {
			return
		}
	}
}

// readLoop reads frames until the connection fails, publishing each one as
// an EventMessage. Frames without a type discriminator are dropped.
func (s *Socket) readLoop(ctx context.Context, c *Connection) error {
	stop := make(chan struct{})
	defer close(stop)
	startHeartbeat(c, s.config.Heartbeat, stop, s.logger)

	for {
		data, err := c.ReadMessage()
		if err != nil {
			return err
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.logger.Warn("dropping malformed frame", zap.String("conn", c.ID), zap.Error(err))
			continue
		}
		s.publish(ctx, Event{Kind: EventMessage, Type: env.Type, Data: env.Raw})
	}
}

func (s *Socket) publish(ctx context.Context, ev Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

func (s *Socket) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !s.closed(ctx)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Socket) closed(ctx context.Context) bool {
	select {
	case <-s.done:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
