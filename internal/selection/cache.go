package selection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/pkg/logger"
	"github.com/wonny/aegis-t0/pkg/redis"
)

// Store is the key/value backend of the ranking cache (pkg/redis.Cache).
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CacheConfig configures the ranking cache
type CacheConfig struct {
	TTL         time.Duration
	MaxFailures uint32        // consecutive store failures before the breaker opens
	OpenTimeout time.Duration // how long the breaker stays open
}

// DefaultCacheConfig returns daily TTL and a 3-strike breaker
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:         redis.TTLDaily,
		MaxFailures: 3,
		OpenTimeout: 30 * time.Second,
	}
}

// RankingCache caches rankings keyed by strategy config hash and session.
// Store failures never fail the caller: the ranking is recomputed instead and
// the breaker stops hammering a dead store.
type RankingCache struct {
	store  Store
	cb     *gobreaker.CircuitBreaker
	ttl    time.Duration
	logger *logger.Logger
}

// NewRankingCache wraps store in a circuit breaker
func NewRankingCache(store Store, cfg CacheConfig, log *logger.Logger) *RankingCache {
	st := gobreaker.Settings{Name: "ranking-cache"}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= cfg.MaxFailures }
	st.Timeout = cfg.OpenTimeout
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		log.WithFields(map[string]interface{}{
			"breaker": name,
			"from":    from.String(),
			"to":      to.String(),
		}).Warn("Cache circuit breaker state changed")
	}

	return &RankingCache{
		store:  store,
		cb:     gobreaker.NewCircuitBreaker(st),
		ttl:    cfg.TTL,
		logger: log,
	}
}

// Get returns the cached ranking, if any.
func (c *RankingCache) Get(ctx context.Context, configHash string, date time.Time) (*Ranking, bool) {
	v, err := c.cb.Execute(func() (interface{}, error) {
		var r Ranking
		found, err := c.store.Get(ctx, redis.RankingKey(configHash, contracts.SessionKey(date)), &r)
		if err != nil || !found {
			return nil, err
		}
		return &r, nil
	})
	if err != nil {
		c.logFailure("get", err)
		return nil, false
	}
	r, _ := v.(*Ranking)
	return r, r != nil
}

// Put stores a ranking.
func (c *RankingCache) Put(ctx context.Context, configHash string, r *Ranking) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.store.Set(ctx, redis.RankingKey(configHash, contracts.SessionKey(r.AsOf)), r, c.ttl)
	})
	if err != nil {
		return fmt.Errorf("cache ranking: %w", err)
	}
	return nil
}

// GetOrCompute returns the cached ranking or computes and caches it.
func (c *RankingCache) GetOrCompute(ctx context.Context, configHash string, date time.Time, fn func() (*Ranking, error)) (*Ranking, error) {
	if r, ok := c.Get(ctx, configHash, date); ok {
		return r, nil
	}
	r, err := fn()
	if err != nil {
		return nil, err
	}
	if err := c.Put(ctx, configHash, r); err != nil {
		c.logFailure("put", err)
	}
	return r, nil
}

// State exposes the breaker state for health checks.
func (c *RankingCache) State() gobreaker.State {
	return c.cb.State()
}

func (c *RankingCache) logFailure(op string, err error) {
	l := c.logger.WithFields(map[string]interface{}{
		"op":    op,
		"error": err.Error(),
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		l.Debug("Ranking cache skipped (breaker open)")
		return
	}
	l.Warn("Ranking cache unavailable")
}
