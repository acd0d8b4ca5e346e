package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-t0/internal/api/handlers"
	"github.com/wonny/aegis-t0/internal/backtest"
	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/internal/s0_data"
	"github.com/wonny/aegis-t0/internal/selection"
	"github.com/wonny/aegis-t0/internal/strategyconfig"
	"github.com/wonny/aegis-t0/pkg/config"
	"github.com/wonny/aegis-t0/pkg/logger"
	"github.com/wonny/aegis-t0/pkg/metrics"
)

func session(n int) time.Time {
	return time.Date(2024, 3, 10+n, 0, 0, 0, 0, time.UTC)
}

func flatBars(id string, s time.Time, price float64) []contracts.Bar {
	open := contracts.Bar{
		InstrumentID: id, SessionDate: s, Timestamp: s.Add(9*time.Hour + 30*time.Minute),
		Open: price, High: price, Low: price, Close: price, PreClose: price, Volume: 10_000,
	}
	close := open
	close.Timestamp = s.Add(14 * time.Hour)
	return []contracts.Bar{open, close}
}

func testMarket() *s0_data.Market {
	var bars []contracts.Bar
	for n := 1; n <= 5; n++ {
		bars = append(bars, flatBars("000300", session(n), 3500)...)
		bars = append(bars, flatBars("600001", session(n), 10)...)
		bars = append(bars, flatBars("600002", session(n), 20)...)
	}
	return s0_data.NewMarket(&s0_data.Dataset{
		Bars: bars,
		Instruments: []contracts.Instrument{
			{ID: "600001", Sector: "bank"},
			{ID: "600002", Sector: "energy"},
		},
	}, "000300")
}

type testServer struct {
	handler http.Handler
	hub     *Hub
	metrics *metrics.Registry
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	log := logger.NewNop()
	m := testMarket()
	reg := metrics.NewRegistry()
	hub := NewHub(log)

	scorer, err := selection.NewScorer(strategyconfig.Default(), log)
	require.NoError(t, err)

	routes := Routes{
		Health:   handlers.NewHealthHandler(nil, nil, nil, hub),
		Backtest: handlers.NewBacktestHandler(m, log, hub, backtest.MetricsObserver{Metrics: reg}).WithMetrics(reg),
		Scores:   handlers.NewScoresHandler(scorer, m, log).WithMetrics(reg),
		Hub:      hub,
		Metrics:  reg,
	}
	return &testServer{handler: NewRouter(cfg, routes, log), hub: hub, metrics: reg}
}

func (s *testServer) do(method, path string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func defaultConfig() *config.Config {
	return &config.Config{MetricsEnabled: true}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, defaultConfig())

	rec := srv.do("GET", "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "disabled", body["database"])
	assert.Equal(t, "disabled", body["redis"])
	assert.EqualValues(t, 0, body["stream_clients"])
}

func TestBacktest_RunAndGet(t *testing.T) {
	srv := newTestServer(t, defaultConfig())

	rec := srv.do("POST", "/api/backtest", `{"initial_equity": 1000000}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp handlers.BacktestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Report)
	assert.NotEmpty(t, resp.Report.RunID)
	assert.False(t, resp.Saved)
	assert.Equal(t, 5, resp.Report.Performance.TradingDays)

	rec = srv.do("GET", "/api/backtest/"+resp.Report.RunID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), resp.Report.RunID)

	rec = srv.do("GET", "/api/backtest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), resp.Report.RunID)

	rec = srv.do("GET", "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `aegis_backtest_runs_total{result="ok"} 1`)
	assert.Contains(t, rec.Body.String(), "aegis_backtest_sessions_total 5")
}

func TestBacktest_Errors(t *testing.T) {
	srv := newTestServer(t, defaultConfig())

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"malformed body", "POST", "/api/backtest", `{`, http.StatusBadRequest},
		{"unknown strategy field", "POST", "/api/backtest", `{"strategy": "bogus: 1\n"}`, http.StatusBadRequest},
		{"negative equity", "POST", "/api/backtest", `{"initial_equity": -1}`, http.StatusBadRequest},
		{"unknown run", "GET", "/api/backtest/nope", "", http.StatusNotFound},
		{"bad limit", "GET", "/api/backtest?limit=0", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestScores(t *testing.T) {
	srv := newTestServer(t, defaultConfig())

	rec := srv.do("GET", "/api/scores?top=1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp handlers.ScoresResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2024-03-15", resp.AsOf)
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Scores, 1)
	assert.Equal(t, 1, resp.Scores[0].Rank)

	rec = srv.do("GET", "/api/scores?date=2024-03-12", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"as_of":"2024-03-12"`)

	rec = srv.do("GET", "/api/scores?date=2024-01-01", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do("GET", "/api/scores?top=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := defaultConfig()
	cfg.RateLimitPerSecond = 0.001
	cfg.RateLimitBurst = 1
	srv := newTestServer(t, cfg)

	assert.Equal(t, http.StatusOK, srv.do("GET", "/api/scores", "").Code)

	rec := srv.do("GET", "/api/scores", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// health is outside the limited subrouter
	assert.Equal(t, http.StatusOK, srv.do("GET", "/health", "").Code)
}

func TestRecovery(t *testing.T) {
	log := logger.NewNop()
	h := recoveryMiddleware(log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHub_StreamsSignals(t *testing.T) {
	srv := newTestServer(t, defaultConfig())
	ts := httptest.NewServer(srv.handler)
	defer ts.Close()
	defer srv.hub.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/signals"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return srv.hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	srv.hub.OnSignal("run-1", contracts.Signal{
		InstrumentID: "600001",
		Action:       contracts.ActionSell,
		Quantity:     100,
		Reason:       contracts.ReasonSpikeAndFade,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, "signal", ev.Type)
	assert.Equal(t, "run-1", ev.RunID)
	assert.True(t, bytes.Contains(msg, []byte(`"600001"`)))
}

func TestServer_Shutdown(t *testing.T) {
	cfg := &config.Config{Port: "0", Env: "development"}
	s := New(cfg, logger.NewNop(), http.NewServeMux())

	done := make(chan error, 1)
	go func() { done <- s.Start() }()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, s.Shutdown(ctx))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
