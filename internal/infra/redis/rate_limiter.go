package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// luaHitWindow counts one hit in the window and arms the expiry on the first
// hit, or on a key that somehow lost its TTL. Returns {count, ttl_ms}.
var luaHitWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if n == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// RateLimiter caps payment requests per client IP with a fixed window shared
// by every replica. Only POST /l402/payment-request goes through it: each
// accepted request opens a provider checkout, which is the cost worth bounding.
type RateLimiter struct {
	client *Client
}

func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow records one request for key (the caller passes "payment_request:<ip>")
// and reports whether it is within limit for the current window.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	if window < time.Millisecond {
		window = time.Millisecond
	}
	res, err := luaHitWindow.Run(ctx, r.client.cli, []string{r.client.key("rate_limit", key)}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, err
	}
	return res[0] <= int64(limit), nil
}
