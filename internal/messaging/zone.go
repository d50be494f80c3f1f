package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Zone announcement kinds.
const (
	ZoneJoined    = "joined"
	ZoneOccupancy = "occupancy"
)

// ZoneAnnouncement is the payload published to zonechat.zone.<user_id>
// whenever the client joins a zone or its occupancy changes.
type ZoneAnnouncement struct {
	Kind        string    `json:"kind"`
	ZoneID      string    `json:"zone_id"`
	Name        string    `json:"name,omitempty"`
	Latitude    float64   `json:"latitude,omitempty"`
	Longitude   float64   `json:"longitude,omitempty"`
	OnlineUsers int       `json:"online_users"`
	Ts          time.Time `json:"ts"`
}

// PublishZone publishes a zone announcement for userID.
func (c *NATSClient) PublishZone(userID string, a ZoneAnnouncement) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("messaging: marshal zone: %w", err)
	}
	return c.Publish(ZoneSubject(userID), data)
}

// SubscribeZone subscribes to the zone announcements of userID.
func (c *NATSClient) SubscribeZone(userID string, handler func(ZoneAnnouncement)) error {
	subject := ZoneSubject(userID)
	return c.Subscribe(subject, func(msg *nats.Msg) {
		var a ZoneAnnouncement
		if err := json.Unmarshal(msg.Data, &a); err != nil {
			c.logger.Warn("dropping zone announcement", zap.String("subject", subject), zap.Error(err))
			return
		}
		handler(a)
	})
}
