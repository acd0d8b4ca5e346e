package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-t0/internal/api"
	"github.com/wonny/aegis-t0/internal/api/handlers"
	"github.com/wonny/aegis-t0/internal/backtest"
	"github.com/wonny/aegis-t0/internal/selection"
	"github.com/wonny/aegis-t0/pkg/metrics"
	"github.com/wonny/aegis-t0/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long: `Loads the configured market data once and serves it over HTTP.

Endpoints:
  GET  /health              - dependency health
  POST /api/backtest        - run a backtest {strategy, initial_equity, save}
  GET  /api/backtest        - recent runs
  GET  /api/backtest/{id}   - run report
  GET  /api/scores          - composite ranking (?date=&top=)
  GET  /ws/signals          - live signal stream (websocket)
  GET  /metrics             - Prometheus metrics

Example:
  go run ./cmd/quant api
  go run ./cmd/quant api --port 8080`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (default PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	strategy, _, err := a.strategy()
	if err != nil {
		return err
	}
	market, err := a.loadMarket(ctx)
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	hub := api.NewHub(a.log)
	go hub.Run(ctx)

	scorer, err := newScorer(a, strategy)
	if err != nil {
		return err
	}
	var rankingCache *selection.RankingCache
	if a.redis.Enabled() {
		rankingCache = selection.NewRankingCache(redis.NewCache(a.redis, "aegis"), selection.DefaultCacheConfig(), a.log)
		scorer.WithCache(rankingCache)
	}

	bt := handlers.NewBacktestHandler(market, a.log, hub, backtest.MetricsObserver{Metrics: reg}).
		WithMetrics(reg).
		WithCache(redis.NewCache(a.redis, "aegis"))
	if a.db != nil {
		bt.WithDatabase(a.db.Pool)
	}

	routes := api.Routes{
		Health:   handlers.NewHealthHandler(a.db, a.redis, rankingCache, hub),
		Backtest: bt,
		Scores:   handlers.NewScoresHandler(scorer, market, a.log).WithMetrics(reg),
		Hub:      hub,
		Metrics:  reg,
	}
	if a.redis.Enabled() {
		routes.Limiter = redis.NewRateLimiter(a.redis, "aegis")
	}

	server := api.New(a.cfg, a.log, api.NewRouter(a.cfg, routes, a.log))
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	PrintSuccess(fmt.Sprintf("Server running on http://localhost:%s", a.cfg.Port))
	fmt.Println("Press Ctrl+C to stop")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	a.log.Info("Server stopped")
	return nil
}
