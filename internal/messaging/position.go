package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/geo"
)

// PositionUpdate is the payload published to zonechat.position.<user_id>.
// A non-empty Error reports a device failure instead of a fix.
type PositionUpdate struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
	Code      string    `json:"code,omitempty"` // permission_denied, position_unavailable, timeout
}

// PublishPosition publishes a position update for userID.
func (c *NATSClient) PublishPosition(userID string, u PositionUpdate) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("messaging: marshal position: %w", err)
	}
	return c.Publish(PositionSubject(userID), data)
}

// DecodePosition turns a position payload into a geo.Sample.
func DecodePosition(data []byte) (geo.Sample, error) {
	var u PositionUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		return geo.Sample{}, fmt.Errorf("messaging: decode position: %w", err)
	}
	if u.Error != "" {
		return geo.Sample{
			Timestamp: u.Timestamp,
			Err:       &geo.GeolocationError{Code: errorCode(u.Code), Message: u.Error},
		}, nil
	}
	if u.Latitude < -90 || u.Latitude > 90 || u.Longitude < -180 || u.Longitude > 180 {
		return geo.Sample{}, fmt.Errorf("messaging: position out of range: %f,%f", u.Latitude, u.Longitude)
	}
	return geo.Sample{
		Position:  geo.Position{Latitude: u.Latitude, Longitude: u.Longitude},
		Timestamp: u.Timestamp,
	}, nil
}

func errorCode(code string) geo.ErrorCode {
	switch code {
	case "permission_denied":
		return geo.PermissionDenied
	case "timeout":
		return geo.Timeout
	default:
		return geo.PositionUnavailable
	}
}

// PositionSource is a geo.Source fed by the NATS position subject of one
// user. It lets a position publisher stand in for a device sensor.
type PositionSource struct {
	client *NATSClient
	userID string
	logger *zap.Logger
}

// NewPositionSource creates a PositionSource for userID.
func NewPositionSource(client *NATSClient, userID string, logger *zap.Logger) *PositionSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PositionSource{client: client, userID: userID, logger: logger.Named("position")}
}

// Watch implements geo.Source. The subscription is removed when ctx ends.
func (s *PositionSource) Watch(ctx context.Context, _ geo.Options) (<-chan geo.Sample, error) {
	subject := PositionSubject(s.userID)
	out := make(chan geo.Sample, 8)

	var mu sync.Mutex
	closed := false

	err := s.client.Subscribe(subject, func(msg *nats.Msg) {
		sample, err := DecodePosition(msg.Data)
		if err != nil {
			s.logger.Warn("dropping position", zap.String("subject", subject), zap.Error(err))
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case out <- sample:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("watching position feed", zap.String("subject", subject))

	go func() {
		<-ctx.Done()
		if err := s.client.Unsubscribe(subject); err != nil {
			s.logger.Debug("unsubscribe", zap.Error(err))
		}
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out, nil
}
