package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-t0/internal/audit"
	"github.com/wonny/aegis-t0/internal/backtest"
	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/internal/s0_data"
	"github.com/wonny/aegis-t0/internal/strategyconfig"
	"github.com/wonny/aegis-t0/pkg/logger"
	"github.com/wonny/aegis-t0/pkg/metrics"
	"github.com/wonny/aegis-t0/pkg/redis"
)

const (
	maxRecentRuns = 50
	reportLimit   = 5
	maxBodyBytes  = 1 << 20
)

// BacktestRequest starts a run over the loaded market
type BacktestRequest struct {
	Strategy      string  `json:"strategy"`       // strategy YAML, empty = built-in defaults
	InitialEquity float64 `json:"initial_equity"` // 0 = backtest.initial_equity
	Save          bool    `json:"save"`
}

// BacktestResponse is returned by POST /api/backtest
type BacktestResponse struct {
	Report *audit.RunReport `json:"report"`
	Saved  bool             `json:"saved"`
}

// BacktestHandler runs backtests on demand and serves their reports
// ⭐ SSOT: backtest API handlers live in this struct only
type BacktestHandler struct {
	market   *s0_data.Market
	observer backtest.Observer
	metrics  *metrics.Registry
	cache    *redis.Cache
	logger   *logger.Logger

	archive *audit.Archive

	mu     sync.RWMutex
	recent map[string]*audit.RunReport
	order  []string
}

// NewBacktestHandler creates a handler over m. observers receive every event
// of every run (stream hub, metrics).
func NewBacktestHandler(m *s0_data.Market, log *logger.Logger, observers ...backtest.Observer) *BacktestHandler {
	var obs backtest.MultiObserver
	for _, o := range observers {
		if o != nil {
			obs = append(obs, o)
		}
	}
	return &BacktestHandler{
		market:   m,
		observer: obs,
		logger:   log.WithComponent("api.backtest"),
		recent:   make(map[string]*audit.RunReport),
	}
}

// WithMetrics records run counts and durations
func (h *BacktestHandler) WithMetrics(m *metrics.Registry) *BacktestHandler {
	h.metrics = m
	return h
}

// WithCache keeps run reports in Redis for other API instances
func (h *BacktestHandler) WithCache(c *redis.Cache) *BacktestHandler {
	h.cache = c
	return h
}

// WithDatabase enables persistence of runs requested with save=true
func (h *BacktestHandler) WithDatabase(pool *pgxpool.Pool) *BacktestHandler {
	h.archive = audit.NewArchive(pool)
	return h
}

// Run executes one backtest
// POST /api/backtest
func (h *BacktestHandler) Run(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BacktestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.InitialEquity < 0 {
		respondError(w, http.StatusBadRequest, "initial_equity must be >= 0")
		return
	}

	cfg, yamlData, err := parseStrategy(req.Strategy)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	engine, err := backtest.NewEngine(cfg, backtest.Deps{Observer: h.observer}, h.logger)
	if err != nil {
		respondError(w, statusOf(err), err.Error())
		return
	}

	start := time.Now()
	res, err := engine.Run(ctx, backtest.Input{
		Series:        h.market.Series,
		Aux:           h.market.Aux,
		Universe:      h.market.Universe,
		BenchmarkID:   h.market.BenchmarkID,
		InitialEquity: req.InitialEquity,
	})
	if h.metrics != nil {
		h.metrics.RecordRun(time.Since(start), err)
	}
	if err != nil {
		h.logger.WithError(err).Error("Backtest failed")
		respondError(w, statusOf(err), err.Error())
		return
	}

	report := audit.NewRunReport(res, reportLimit)
	h.remember(report)
	if h.cache != nil {
		if err := h.cache.Set(ctx, redis.RunKey(report.RunID), report, redis.TTLMedium); err != nil {
			h.logger.WithError(err).Warn("Failed to cache run report")
		}
	}

	saved := false
	if req.Save {
		if h.archive == nil {
			h.logger.Warn("Save requested but no database configured")
		} else if err := h.persist(ctx, cfg, yamlData, res); err != nil {
			h.logger.WithError(err).Error("Failed to persist backtest run")
			respondError(w, http.StatusInternalServerError, "Backtest finished but could not be saved")
			return
		} else {
			saved = true
		}
	}

	respondJSON(w, http.StatusCreated, BacktestResponse{Report: report, Saved: saved})
}

// Get returns the report of one run: memory, then cache, then database
// GET /api/backtest/{id}
func (h *BacktestHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	h.mu.RLock()
	report, ok := h.recent[id]
	h.mu.RUnlock()
	if ok {
		respondJSON(w, http.StatusOK, report)
		return
	}

	if h.cache != nil {
		var cached audit.RunReport
		found, err := h.cache.Get(ctx, redis.RunKey(id), &cached)
		if err != nil {
			h.logger.WithError(err).Warn("Run cache lookup failed")
		}
		if found {
			respondJSON(w, http.StatusOK, &cached)
			return
		}
	}

	if h.archive == nil {
		respondError(w, http.StatusNotFound, "Run not found")
		return
	}
	report, err := h.archive.LoadReport(ctx, id, reportLimit)
	if errors.Is(err, audit.ErrRunNotFound) {
		respondError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to load run")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve run")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// List returns the most recent runs, newest first
// GET /api/backtest?limit=20
func (h *BacktestHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 20)
	if !ok {
		respondError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	if h.archive != nil {
		runs, err := h.archive.Runs.ListRuns(r.Context(), limit)
		if err != nil {
			h.logger.WithError(err).Error("Failed to list runs")
			respondError(w, http.StatusInternalServerError, "Failed to list runs")
			return
		}
		respondJSON(w, http.StatusOK, runs)
		return
	}

	h.mu.RLock()
	out := make([]*audit.RunReport, 0, limit)
	for i := len(h.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.recent[h.order[i]])
	}
	h.mu.RUnlock()
	respondJSON(w, http.StatusOK, out)
}

func (h *BacktestHandler) remember(report *audit.RunReport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recent[report.RunID] = report
	h.order = append(h.order, report.RunID)
	if len(h.order) > maxRecentRuns {
		delete(h.recent, h.order[0])
		h.order = h.order[1:]
	}
}

func (h *BacktestHandler) persist(ctx context.Context, cfg *strategyconfig.Config, yamlData []byte, res *backtest.Result) error {
	snapshot, err := strategyconfig.NewRunSnapshot(cfg, yamlData)
	if err != nil {
		return err
	}
	return h.archive.Save(ctx, res, snapshot)
}

func parseStrategy(doc string) (*strategyconfig.Config, []byte, error) {
	if doc == "" {
		return strategyconfig.LoadOrDefault("")
	}
	cfg, err := strategyconfig.Parse([]byte(doc))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid strategy: %w", err)
	}
	return cfg, []byte(doc), nil
}

// statusOf maps engine error kinds to HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, contracts.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, contracts.ErrDataIntegrity), errors.Is(err, contracts.ErrLookahead):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
