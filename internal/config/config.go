// Package config provides Viper-based configuration loading for the zone chat
// client.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/geo"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/history"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/messaging"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/protocol"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/ratelimit"
	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/ws"
)

// Position sources.
const (
	SourceStatic = "static"
	SourceStdin  = "stdin"
	SourceNATS   = "nats"
)

// UserConfig identifies the local user.
type UserConfig struct {
	ID          string `mapstructure:"id"`
	DisplayName string `mapstructure:"display_name"`
	Username    string `mapstructure:"username"`
}

// Sender returns the user as it appears on outgoing messages.
func (u UserConfig) Sender() protocol.Sender {
	return protocol.Sender{ID: protocol.ID(u.ID), DisplayName: u.DisplayName, Username: u.Username}
}

// SocketConfig holds chat socket settings.
type SocketConfig struct {
	URL               string        `mapstructure:"url"`
	Token             string        `mapstructure:"token"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	DialTimeout       time.Duration `mapstructure:"dial_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	// HeartbeatInterval is the keepalive ping period; 0 disables pings.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// Socket converts to the transport configuration.
func (s SocketConfig) Socket() ws.SocketConfig {
	cfg := ws.DefaultSocketConfig()
	cfg.URL = s.URL
	cfg.Token = s.Token
	cfg.ReconnectAttempts = s.ReconnectAttempts
	cfg.ReconnectDelay = s.ReconnectDelay
	cfg.DialTimeout = s.DialTimeout
	cfg.WriteTimeout = s.WriteTimeout
	cfg.Heartbeat.Interval = s.HeartbeatInterval
	return cfg
}

// APIConfig holds REST API settings used for history fetches.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// History converts to the history client configuration.
func (a APIConfig) History() history.Config {
	return history.Config{BaseURL: a.BaseURL, Token: a.Token, Timeout: a.Timeout}
}

// GeoConfig holds position watching settings.
type GeoConfig struct {
	// Source is where fixes come from: "static", "stdin" or "nats".
	Source             string        `mapstructure:"source"`
	Latitude           float64       `mapstructure:"latitude"`
	Longitude          float64       `mapstructure:"longitude"`
	Interval           time.Duration `mapstructure:"interval"`
	EnableHighAccuracy bool          `mapstructure:"enable_high_accuracy"`
	MaximumAge         time.Duration `mapstructure:"maximum_age"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

// Options converts to watcher options.
func (g GeoConfig) Options() geo.Options {
	return geo.Options{EnableHighAccuracy: g.EnableHighAccuracy, MaximumAge: g.MaximumAge, Timeout: g.Timeout}
}

// NATSConfig holds NATS settings. When disabled, zone announcements are not
// published and the "nats" position source is unavailable.
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Name    string `mapstructure:"name"`
}

// Client converts to the messaging client configuration.
func (n NATSConfig) Client() messaging.NATSConfig {
	cfg := messaging.DefaultNATSConfig()
	cfg.URL = n.URL
	cfg.Name = n.Name
	return cfg
}

// RedisConfig holds Redis settings for the send rate limiter. When disabled,
// sends are not throttled.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Limit    int           `mapstructure:"send_limit"`
	Window   time.Duration `mapstructure:"send_window"`
}

// SendRule returns the send throttling rule.
func (r RedisConfig) SendRule() ratelimit.Rule {
	rule := ratelimit.RuleSend
	rule.Limit = r.Limit
	rule.Window = r.Window
	return rule
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	// Addr is the listen address of /metrics; empty disables the endpoint.
	Addr string `mapstructure:"addr"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level client configuration.
type Config struct {
	User    UserConfig    `mapstructure:"user"`
	Socket  SocketConfig  `mapstructure:"socket"`
	API     APIConfig     `mapstructure:"api"`
	Geo     GeoConfig     `mapstructure:"geo"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	for _, check := range []func() error{
		func() error { return validateUser(c.User) },
		func() error { return validateSocket(c.Socket) },
		func() error { return validateAPI(c.API) },
		func() error { return validateGeo(c.Geo, c.NATS) },
		func() error { return validateRedis(c.Redis) },
		func() error { return validateLogging(c.Logging) },
	} {
		if err := check(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateUser(u UserConfig) error {
	if strings.TrimSpace(u.ID) == "" {
		return errors.New("user.id must not be empty")
	}
	return nil
}

func validateSocket(s SocketConfig) error {
	var errs []string
	if u, err := url.Parse(s.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("socket.url must be a ws:// or wss:// URL, got %q", s.URL))
	}
	if s.ReconnectAttempts < 1 {
		errs = append(errs, fmt.Sprintf("socket.reconnect_attempts must be >= 1, got %d", s.ReconnectAttempts))
	}
	if s.ReconnectDelay < 0 {
		errs = append(errs, "socket.reconnect_delay must not be negative")
	}
	if s.HeartbeatInterval < 0 {
		errs = append(errs, "socket.heartbeat_interval must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateAPI(a APIConfig) error {
	if a.BaseURL == "" {
		return nil
	}
	if u, err := url.Parse(a.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("api.base_url must be an http(s) URL, got %q", a.BaseURL)
	}
	return nil
}

func validateGeo(g GeoConfig, n NATSConfig) error {
	var errs []string
	switch g.Source {
	case SourceStatic, SourceStdin:
	case SourceNATS:
		if !n.Enabled {
			errs = append(errs, "geo.source nats requires nats.enabled")
		}
	default:
		errs = append(errs, fmt.Sprintf("geo.source must be one of [static, stdin, nats], got %q", g.Source))
	}
	if g.Latitude < -90 || g.Latitude > 90 {
		errs = append(errs, fmt.Sprintf("geo.latitude must be -90..90, got %f", g.Latitude))
	}
	if g.Longitude < -180 || g.Longitude > 180 {
		errs = append(errs, fmt.Sprintf("geo.longitude must be -180..180, got %f", g.Longitude))
	}
	if g.MaximumAge < 0 || g.Timeout < 0 {
		errs = append(errs, "geo.maximum_age and geo.timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateRedis(r RedisConfig) error {
	if !r.Enabled {
		return nil
	}
	var errs []string
	if r.Addr == "" {
		errs = append(errs, "redis.addr must not be empty")
	}
	if r.Limit < 1 {
		errs = append(errs, fmt.Sprintf("redis.send_limit must be >= 1, got %d", r.Limit))
	}
	if r.Window <= 0 {
		errs = append(errs, "redis.send_window must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment
// variable overrides, and validates the result. An empty path uses defaults
// and the environment only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with ZONECHAT_ prefix
	v.SetEnvPrefix("ZONECHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration Load produces without a file or
// environment overrides, apart from the user id which has no default.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("user.id", "")
	v.SetDefault("user.display_name", "")
	v.SetDefault("user.username", "")

	v.SetDefault("socket.url", "ws://localhost:5000/ws")
	v.SetDefault("socket.token", "")
	v.SetDefault("socket.reconnect_attempts", 5)
	v.SetDefault("socket.reconnect_delay", "1s")
	v.SetDefault("socket.dial_timeout", "10s")
	v.SetDefault("socket.write_timeout", "10s")
	v.SetDefault("socket.heartbeat_interval", "25s")

	v.SetDefault("api.base_url", "http://localhost:5000/api")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout", "10s")

	v.SetDefault("geo.source", SourceStdin)
	v.SetDefault("geo.latitude", 0.0)
	v.SetDefault("geo.longitude", 0.0)
	v.SetDefault("geo.interval", "5s")
	v.SetDefault("geo.enable_high_accuracy", true)
	v.SetDefault("geo.maximum_age", "10s")
	v.SetDefault("geo.timeout", "15s")

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", messaging.DefaultNATSConfig().URL)
	v.SetDefault("nats.name", "zonechat")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.send_limit", ratelimit.RuleSend.Limit)
	v.SetDefault("redis.send_window", ratelimit.RuleSend.Window.String())

	v.SetDefault("metrics.addr", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}
