package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindow trims the window, counts it and admits one request when
// there is room. Returns {allowed, remaining}.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local count = redis.call('ZCARD', key)
	if count < limit then
		redis.call('ZADD', key, now, now .. '-' .. ARGV[5])
		redis.call('PEXPIRE', key, window_ms)
		return {1, limit - count - 1}
	end
	return {0, 0}
`)

// RateLimiter is a sliding-window limiter shared by every process that uses
// the same Redis and prefix.
// ⭐ SSOT: distributed rate limiting lives here only
type RateLimiter struct {
	client *Client
	prefix string
	seq    func() int64
}

// RateLimitConfig defines rate limit parameters
type RateLimitConfig struct {
	Key    string        // e.g. "api:backtest", "data:download"
	Limit  int           // requests admitted per window
	Window time.Duration // window length
}

func NewRateLimiter(client *Client, prefix string) *RateLimiter {
	return &RateLimiter{
		client: client,
		prefix: prefix,
		seq:    func() int64 { return time.Now().UnixNano() },
	}
}

// Allow admits one request if the window has room. It returns the requests
// left in the window. A disabled client admits everything.
func (r *RateLimiter) Allow(ctx context.Context, cfg RateLimitConfig) (bool, int, error) {
	if !r.client.Enabled() {
		return true, cfg.Limit, nil
	}

	now := time.Now().UnixMilli()
	key := fmt.Sprintf("%s:ratelimit:%s", r.prefix, cfg.Key)

	result, err := slidingWindow.Run(ctx, r.client.Redis(), []string{key},
		now,
		now-cfg.Window.Milliseconds(),
		cfg.Limit,
		cfg.Window.Milliseconds(),
		r.seq(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit script failed: %w", err)
	}
	return result[0] == 1, int(result[1]), nil
}

// Wait blocks until a request is admitted or ctx is done. It polls at the
// average spacing of the limit, between 10ms and 1s.
func (r *RateLimiter) Wait(ctx context.Context, cfg RateLimitConfig) error {
	interval := time.Second
	if cfg.Limit > 0 {
		interval = cfg.Window / time.Duration(cfg.Limit)
	}
	interval = min(max(interval, 10*time.Millisecond), time.Second)

	for {
		allowed, _, err := r.Allow(ctx, cfg)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Predefined limits
var (
	// Backtest submissions are CPU heavy
	BacktestRateLimit = RateLimitConfig{
		Key:    "api:backtest",
		Limit:  30,
		Window: time.Minute,
	}

	// Remote dataset downloads, shared by every process on the host
	DownloadRateLimit = RateLimitConfig{
		Key:    "data:download",
		Limit:  10,
		Window: time.Second,
	}
)
