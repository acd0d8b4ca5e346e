package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wonny/aegis-t0/internal/selection"
	"github.com/wonny/aegis-t0/pkg/database"
	"github.com/wonny/aegis-t0/pkg/redis"
)

// ClientCounter reports connected stream subscribers
type ClientCounter interface {
	Clients() int
}

// HealthHandler reports the state of every backing service.
// Optional dependencies left nil are reported as disabled.
type HealthHandler struct {
	db      *database.DB
	redis   *redis.Client
	cache   *selection.RankingCache
	stream  ClientCounter
	started time.Time
}

func NewHealthHandler(db *database.DB, rc *redis.Client, cache *selection.RankingCache, stream ClientCounter) *HealthHandler {
	return &HealthHandler{
		db:      db,
		redis:   rc,
		cache:   cache,
		stream:  stream,
		started: time.Now(),
	}
}

// Check returns 200 when every enabled dependency answers, 503 otherwise
// GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	healthy := true
	body := map[string]interface{}{
		"service": "aegis-t0-api",
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	}

	if h.db == nil {
		body["database"] = "disabled"
	} else {
		status, err := h.db.HealthCheck(ctx)
		if err != nil {
			healthy = false
		}
		body["database"] = status
	}

	switch {
	case h.redis == nil || !h.redis.Enabled():
		body["redis"] = "disabled"
	case h.redis.Ping(ctx) != nil:
		healthy = false
		body["redis"] = "unreachable"
	default:
		body["redis"] = "ok"
	}

	if h.cache != nil {
		body["ranking_cache"] = h.cache.State().String()
	}
	if h.stream != nil {
		body["stream_clients"] = h.stream.Clients()
	}

	status := http.StatusOK
	body["status"] = "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}
	respondJSON(w, status, body)
}
