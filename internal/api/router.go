package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/wonny/aegis-t0/internal/api/handlers"
	"github.com/wonny/aegis-t0/pkg/config"
	"github.com/wonny/aegis-t0/pkg/logger"
	"github.com/wonny/aegis-t0/pkg/metrics"
	"github.com/wonny/aegis-t0/pkg/redis"
)

// Routes are the handlers mounted by NewRouter. Metrics and Limiter are optional.
type Routes struct {
	Health   *handlers.HealthHandler
	Backtest *handlers.BacktestHandler
	Scores   *handlers.ScoresHandler
	Hub      *Hub
	Metrics  *metrics.Registry
	Limiter  *redis.RateLimiter
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: routes are declared in this function only
func NewRouter(cfg *config.Config, routes Routes, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", routes.Health.Check).Methods("GET")
	r.HandleFunc("/ws/signals", routes.Hub.ServeWS).Methods("GET")
	if cfg.MetricsEnabled && routes.Metrics != nil {
		r.Handle("/metrics", routes.Metrics.Handler()).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()
	if cfg.RateLimitPerSecond > 0 {
		api.Use(rateLimitMiddleware(rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst)))
	}

	// Backtest endpoints
	var run http.Handler = http.HandlerFunc(routes.Backtest.Run)
	if routes.Limiter != nil {
		run = distributedLimit(routes.Limiter, redis.BacktestRateLimit, log)(run)
	}
	api.Handle("/backtest", run).Methods("POST")
	api.HandleFunc("/backtest", routes.Backtest.List).Methods("GET")
	api.HandleFunc("/backtest/{id}", routes.Backtest.Get).Methods("GET")

	// Ranking endpoints
	api.HandleFunc("/scores", routes.Scores.Get).Methods("GET")

	r.Use(loggingMiddleware(log, routes.Metrics))
	r.Use(recoveryMiddleware(log))

	return r
}
