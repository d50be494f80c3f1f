package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func validConfig() Config {
	cfg := Default()
	cfg.User.ID = "7"
	return cfg
}

func TestDefaultIsValidOnceUserSet(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate(), "user id has no default")

	cfg.User.ID = "7"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.Socket.ReconnectAttempts)
	assert.Equal(t, time.Second, cfg.Socket.ReconnectDelay)
	assert.Equal(t, 10*time.Second, cfg.Geo.MaximumAge)
	assert.Equal(t, 15*time.Second, cfg.Geo.Timeout)
	assert.True(t, cfg.Geo.EnableHighAccuracy)
	assert.Equal(t, 5, cfg.Redis.Limit)
	assert.Equal(t, 10*time.Second, cfg.Redis.Window)
}

func TestConversions(t *testing.T) {
	cfg := validConfig()
	cfg.Socket.Token = "tok"

	sc := cfg.Socket.Socket()
	assert.Equal(t, "ws://localhost:5000/ws", sc.URL)
	assert.Equal(t, "tok", sc.Token)
	assert.Equal(t, 5, sc.ReconnectAttempts)
	assert.Equal(t, 25*time.Second, sc.Heartbeat.Interval)

	opts := cfg.Geo.Options()
	assert.True(t, opts.EnableHighAccuracy)
	assert.Equal(t, 10*time.Second, opts.MaximumAge)

	assert.Equal(t, "http://localhost:5000/api", cfg.API.History().BaseURL)
	assert.Equal(t, "zonechat", cfg.NATS.Client().Name)

	rule := cfg.Redis.SendRule()
	assert.Equal(t, 5, rule.Limit)
	assert.Equal(t, "zonechat:rl:send:", rule.Key)

	sender := cfg.User.Sender()
	assert.Equal(t, "7", sender.ID.String())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zonechat.yaml")
	err := os.WriteFile(path, []byte(`
user:
  id: "42"
  display_name: Ada
  username: ada
socket:
  url: wss://chat.example.com/ws
  reconnect_attempts: 3
  reconnect_delay: 500ms
geo:
  source: static
  latitude: 40.7128
  longitude: -74.006
logging:
  level: debug
  format: json
`), 0o644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "42", cfg.User.ID)
	assert.Equal(t, "Ada", cfg.User.DisplayName)
	assert.Equal(t, "wss://chat.example.com/ws", cfg.Socket.URL)
	assert.Equal(t, 3, cfg.Socket.ReconnectAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Socket.ReconnectDelay)
	assert.Equal(t, SourceStatic, cfg.Geo.Source)
	assert.InDelta(t, 40.7128, cfg.Geo.Latitude, 1e-9)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Unset keys keep their defaults.
	assert.Equal(t, 15*time.Second, cfg.Geo.Timeout)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ZONECHAT_USER_ID", "9")
	t.Setenv("ZONECHAT_SOCKET_RECONNECT_ATTEMPTS", "8")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "9", cfg.User.ID)
	assert.Equal(t, 8, cfg.Socket.ReconnectAttempts)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty user", func(c *Config) { c.User.ID = " " }},
		{"http socket", func(c *Config) { c.Socket.URL = "http://localhost:5000" }},
		{"zero attempts", func(c *Config) { c.Socket.ReconnectAttempts = 0 }},
		{"negative delay", func(c *Config) { c.Socket.ReconnectDelay = -time.Second }},
		{"bad api", func(c *Config) { c.API.BaseURL = "ftp://x" }},
		{"unknown source", func(c *Config) { c.Geo.Source = "gps" }},
		{"nats source without nats", func(c *Config) { c.Geo.Source = SourceNATS }},
		{"latitude", func(c *Config) { c.Geo.Latitude = 91 }},
		{"redis without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_NATSSourceWithNATS(t *testing.T) {
	cfg := validConfig()
	cfg.Geo.Source = SourceNATS
	cfg.NATS.Enabled = true
	assert.NoError(t, cfg.Validate())
}

func TestValidate_CoordinatesProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := validConfig()
		cfg.Geo.Latitude = rapid.Float64Range(-90, 90).Draw(t, "lat")
		cfg.Geo.Longitude = rapid.Float64Range(-180, 180).Draw(t, "lng")
		assert.NoError(t, cfg.Validate())
	})
}

func TestValidate_AttemptsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := validConfig()
		cfg.Socket.ReconnectAttempts = rapid.IntRange(-100, 100).Draw(t, "attempts")
		err := cfg.Validate()
		if cfg.Socket.ReconnectAttempts >= 1 {
			assert.NoError(t, err)
		} else {
			assert.Error(t, err)
		}
	})
}
