// Package session tracks the client's membership in a server-assigned chat
// zone: socket connectivity, the active zone and its occupancy. It is the
// only place that emits zone join requests and outbound messages.
package session

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/geo"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/metrics"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/protocol"
)

// State is the connectivity/membership state of a Session.
type State int

// Status constants for the session state machine.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateJoined
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateJoined:
		return "joined"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// ErrNotConnected is returned when an emit is attempted without a live
// connection.
var ErrNotConnected = errors.New("session: not connected")

// Zone is a server-assigned geographic chat partition.
type Zone struct {
	ID          protocol.ID
	DisplayName string
	Center      geo.Position
	Occupancy   int
}

// Emitter is the outbound half of the socket.
type Emitter interface {
	Emit(msgType string, payload interface{}) error
}

// Session is the zone membership state machine. It is safe for concurrent
// use; transitions are expected to come from a single event loop while
// getters may be called from anywhere.
type Session struct {
	userID  protocol.ID
	emitter Emitter
	logger  *zap.Logger

	mu        sync.RWMutex
	state     State
	exhausted bool
	zone      *Zone
	lastPos   *geo.Position
}

// New creates a disconnected Session for userID.
func New(userID protocol.ID, emitter Emitter, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		userID:  userID,
		emitter: emitter,
		logger:  logger.Named("session"),
		state:   StateDisconnected,
	}
}

// Start moves a disconnected session to connecting. The caller opens the
// socket.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		s.setState(StateConnecting)
	}
	s.exhausted = false
}

// HandleConnect records a transport-level connect. If a position was
// announced before (a reconnect), it is re-announced so the server restores
// zone membership.
func (s *Session) HandleConnect() error {
	s.mu.Lock()
	s.setState(StateConnected)
	s.exhausted = false
	last := s.lastPos
	s.mu.Unlock()

	s.logger.Info("socket connected")
	if last == nil {
		return nil
	}
	return s.emitJoin(*last)
}

// HandleDisconnect records a transport-level disconnect. The zone is kept;
// the transport's own policy reconnects.
func (s *Session) HandleDisconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state >= StateConnected {
		s.setState(StateConnecting)
	}
	s.logger.Warn("socket disconnected, reconnecting")
}

// HandleReconnectFailed marks the session terminally disconnected. Sending
// stays disabled until Reconnect.
func (s *Session) HandleReconnectFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setState(StateDisconnected)
	s.exhausted = true
	s.logger.Error("cannot connect to chat service")
}

// Reconnect leaves the terminal disconnected state. It reports whether the
// session was exhausted.
func (s *Session) Reconnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exhausted {
		return false
	}
	s.exhausted = false
	s.setState(StateConnecting)
	return true
}

// RequestZoneFor announces a qualifying position to the server. The
// position is remembered even when offline and announced on the next
// connect.
func (s *Session) RequestZoneFor(p geo.Position) error {
	s.mu.Lock()
	s.lastPos = &p
	connected := s.state >= StateConnected
	s.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}
	return s.emitJoin(p)
}

func (s *Session) emitJoin(p geo.Position) error {
	err := s.emitter.Emit(protocol.TypeJoinLocationChat, protocol.JoinLocationChatMsg{
		Lat:    p.Latitude,
		Lng:    p.Longitude,
		UserID: s.userID,
	})
	if err != nil {
		return fmt.Errorf("session: join request: %w", err)
	}
	metrics.JoinRequests.Inc()
	s.logger.Debug("join requested", zap.Float64("lat", p.Latitude), zap.Float64("lng", p.Longitude))
	return nil
}

// HandleJoined commits the zone assigned by the server. It returns the new
// zone and whether it differs from the previously active one.
func (s *Session) HandleJoined(msg protocol.LocationChatJoinedMsg) (Zone, bool) {
	z := Zone{
		ID:          msg.ID,
		DisplayName: msg.Name,
		Center:      geo.Position{Latitude: msg.Latitude, Longitude: msg.Longitude},
		Occupancy:   msg.OnlineUsers,
	}
	if z.DisplayName == "" {
		z.DisplayName = "Zone " + msg.ID.String()
	}
	if z.Occupancy < 0 {
		z.Occupancy = 0
	}

	s.mu.Lock()
	changed := s.zone == nil || s.zone.ID != z.ID
	s.zone = &z
	s.setState(StateJoined)
	s.mu.Unlock()

	metrics.ZoneOccupancy.Set(float64(z.Occupancy))
	s.logger.Info("joined zone",
		zap.String("zone", z.ID.String()),
		zap.String("name", z.DisplayName),
		zap.Int("online", z.Occupancy),
		zap.Bool("changed", changed))
	return z, changed
}

// HandleOccupancy applies an occupancy update if it concerns the currently
// active zone. Updates for any other zone are ignored.
func (s *Session) HandleOccupancy(msg protocol.UsersUpdateMsg) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.zone == nil || s.zone.ID != msg.ZoneID {
		s.logger.Debug("ignoring occupancy for inactive zone", zap.String("zone", msg.ZoneID.String()))
		return false
	}
	s.zone.Occupancy = msg.OnlineUsers
	metrics.ZoneOccupancy.Set(float64(msg.OnlineUsers))
	return true
}

// Transmit sends a message to a zone.
func (s *Session) Transmit(zoneID, senderID protocol.ID, content string) error {
	err := s.emitter.Emit(protocol.TypeSendLocationMessage, protocol.SendLocationMessageMsg{
		ZoneID:   zoneID,
		SenderID: senderID,
		Content:  content,
	})
	if err != nil {
		return fmt.Errorf("session: transmit: %w", err)
	}
	return nil
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Exhausted reports whether the transport gave up reconnecting.
func (s *Session) Exhausted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exhausted
}

// Zone returns a copy of the active zone.
func (s *Session) Zone() (Zone, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.zone == nil {
		return Zone{}, false
	}
	return *s.zone, true
}

func (s *Session) setState(st State) {
	s.state = st
	metrics.ConnectionState.Set(float64(st))
}
