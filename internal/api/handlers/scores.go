package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/internal/s0_data"
	"github.com/wonny/aegis-t0/internal/s2_signals"
	"github.com/wonny/aegis-t0/internal/selection"
	"github.com/wonny/aegis-t0/pkg/logger"
	"github.com/wonny/aegis-t0/pkg/metrics"
)

// ScoresResponse is the ranked cross-section of one session
type ScoresResponse struct {
	AsOf       string                     `json:"as_of"`
	Regime     s2_signals.Regime          `json:"regime"`
	ConfigHash string                     `json:"config_hash"`
	Total      int                        `json:"total"`
	Scores     []contracts.CompositeScore `json:"scores"`
}

// ScoresHandler serves composite rankings
type ScoresHandler struct {
	scorer  *selection.Scorer
	market  *s0_data.Market
	metrics *metrics.Registry
	logger  *logger.Logger
}

func NewScoresHandler(scorer *selection.Scorer, m *s0_data.Market, log *logger.Logger) *ScoresHandler {
	return &ScoresHandler{
		scorer: scorer,
		market: m,
		logger: log.WithComponent("api.scores"),
	}
}

// WithMetrics records scoring counts and durations
func (h *ScoresHandler) WithMetrics(m *metrics.Registry) *ScoresHandler {
	h.metrics = m
	return h
}

// Get ranks one session, the latest by default
// GET /api/scores?date=2024-03-15&top=20
func (h *ScoresHandler) Get(w http.ResponseWriter, r *http.Request) {
	top, ok := queryInt(r, "top", 20)
	if !ok {
		respondError(w, http.StatusBadRequest, "top must be a positive integer")
		return
	}

	session, found := h.session(r.URL.Query().Get("date"))
	if !found {
		respondError(w, http.StatusNotFound, "No session on requested date")
		return
	}

	start := time.Now()
	ranking, err := h.scorer.Score(r.Context(), h.market, session)
	if h.metrics != nil {
		h.metrics.RecordScoring(time.Since(start), err)
	}
	if err != nil {
		h.logger.WithError(err).Error("Scoring failed")
		status := http.StatusInternalServerError
		if errors.Is(err, contracts.ErrDataIntegrity) {
			status = http.StatusUnprocessableEntity
		}
		respondError(w, status, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, ScoresResponse{
		AsOf:       contracts.SessionKey(ranking.AsOf),
		Regime:     ranking.Regime,
		ConfigHash: h.scorer.ConfigHash(),
		Total:      len(ranking.Scores),
		Scores:     ranking.Top(top),
	})
}

// session resolves a YYYY-MM-DD key against the market calendar
func (h *ScoresHandler) session(key string) (time.Time, bool) {
	if key == "" {
		return h.market.LatestSession()
	}
	for _, s := range h.market.Series.Sessions() {
		if contracts.SessionKey(s) == key {
			return s, true
		}
	}
	return time.Time{}, false
}
