// Package ratelimit provides Redis-backed rate limiting using the INCR + EXPIRE
// fixed window algorithm. The zone chat client uses it to throttle outbound
// messages per user before they reach the socket.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Rule defines a rate limiting policy: the Redis key prefix, maximum number of
// requests allowed in the window, and the window duration.
type Rule struct {
	Key    string        // Redis key prefix (e.g., "zonechat:rl:send:")
	Limit  int           // max count in the window
	Window time.Duration // time window
}

// RuleSend allows 5 messages per 10 seconds per user.
var RuleSend = Rule{Key: "zonechat:rl:send:", Limit: 5, Window: 10 * time.Second}

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client *redis.Client
	rule   Rule
	logger *zap.Logger
}

// NewLimiter creates a Limiter applying rule, backed by the given Redis
// client.
func NewLimiter(client *redis.Client, rule Rule, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{client: client, rule: rule, logger: logger.Named("ratelimit")}
}

// Allow checks whether identifier is within the limit. It increments the
// counter in Redis and sets the expiry on first access.
//
// Returns true if the request is allowed, false if rate limited. On Redis
// errors the method fails open (returns true) so that a Redis outage does not
// block legitimate traffic.
func (l *Limiter) Allow(ctx context.Context, identifier string) (bool, error) {
	key := l.rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Warn("redis INCR failed, failing open", zap.String("key", key), zap.Error(err))
		return true, err
	}

	// On the first increment, set the expiry to define the window boundary.
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.rule.Window).Err(); err != nil {
			l.logger.Warn("redis EXPIRE failed, failing open", zap.String("key", key), zap.Error(err))
			// Without a TTL the key would block the identifier forever.
			l.client.Del(ctx, key)
			return true, err
		}
	}

	if int(count) > l.rule.Limit {
		l.logger.Debug("rate limited", zap.String("key", key), zap.Int64("count", count))
		return false, nil
	}
	return true, nil
}

// Remaining reports how many sends identifier has left in the current
// window, for status display. A missing key means a full window; Redis
// errors report the full limit along with the error.
func (l *Limiter) Remaining(ctx context.Context, identifier string) (int, error) {
	used, err := l.client.Get(ctx, l.rule.Key+identifier).Int()
	switch {
	case errors.Is(err, redis.Nil):
		return l.rule.Limit, nil
	case err != nil:
		return l.rule.Limit, fmt.Errorf("ratelimit: read %s: %w", identifier, err)
	}
	return max(l.rule.Limit-used, 0), nil
}
