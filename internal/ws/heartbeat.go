package ws

import (
	"time"

	"github.com/gobwas/ws"
	"go.uber.org/zap"
)

// HeartbeatConfig holds keepalive tuning parameters.
type HeartbeatConfig struct {
	Interval time.Duration // how often to ping (default: 25s)
	Timeout  time.Duration // write deadline for a ping frame (default: 10s)
}

// DefaultHeartbeatConfig returns sensible defaults for keepalive pings.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: 25 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// startHeartbeat pings the server every Interval until stop is closed. A
// failed ping closes the connection, which ends the read loop and triggers
// the reconnect policy.
func startHeartbeat(c *Connection, config HeartbeatConfig, stop <-chan struct{}, logger *zap.Logger) {
	if config.Interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := c.WritePing(config.Timeout); err != nil {
					logger.Warn("heartbeat ping failed", zap.String("conn", c.ID), zap.Error(err))
					_ = c.Close()
					return
				}
			}
		}
	}()
}

// WritePing sends a masked websocket ping frame. The write mutex ensures it
// does not interleave with other outbound frames.
func (c *Connection) WritePing(timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if timeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(timeout))
		defer c.Conn.SetWriteDeadline(time.Time{})
	}
	return ws.WriteFrame(c.Conn, ws.MaskFrameInPlace(ws.NewPingFrame(nil)))
}
