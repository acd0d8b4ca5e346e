package redis

import (
	"context"
	"testing"

	"github.com/wonny/aegis-t0/pkg/config"
)

func TestNewClient_Disabled(t *testing.T) {
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Enabled: false,
		},
	}

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if client.Enabled() {
		t.Error("Expected client to be disabled")
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Enabled: false,
		},
	}

	client, _ := New(cfg)
	limiter := NewRateLimiter(client, "test")

	// When Redis is disabled, all requests should be allowed
	allowed, remaining, err := limiter.Allow(nil, DownloadRateLimit)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Error("Expected request to be allowed when Redis disabled")
	}
	if remaining != DownloadRateLimit.Limit {
		t.Errorf("Expected remaining = %d, got %d", DownloadRateLimit.Limit, remaining)
	}
}

func TestCache_Disabled(t *testing.T) {
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Enabled: false,
		},
	}

	client, _ := New(cfg)
	cache := NewCache(client, "test")

	// When Redis is disabled, cache operations should be no-ops
	var result string
	found, err := cache.Get(nil, "key", &result)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Error("Expected cache miss when Redis disabled")
	}
}

func TestCacheKeys(t *testing.T) {
	tests := []struct {
		name     string
		fn       func() string
		expected string
	}{
		{
			name:     "RankingKey",
			fn:       func() string { return RankingKey("ab12", "2024-03-15") },
			expected: "ranking:ab12:2024-03-15",
		},
		{
			name:     "RunKey",
			fn:       func() string { return RunKey("5f0c") },
			expected: "run:5f0c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDisabled_PingAndWait(t *testing.T) {
	client, err := New(&config.Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping() on disabled client = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// a disabled limiter admits immediately, even with a done context
	if err := NewRateLimiter(client, "test").Wait(ctx, BacktestRateLimit); err != nil {
		t.Errorf("Wait() on disabled limiter = %v", err)
	}
}
