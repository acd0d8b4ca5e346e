package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aegis"

// Registry holds every Prometheus metric of the process
// ⭐ SSOT: metric names are declared here only
type Registry struct {
	reg *prometheus.Registry

	// Backtest
	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	SessionsTotal   prometheus.Counter
	SignalsTotal    *prometheus.CounterVec
	RejectionsTotal *prometheus.CounterVec
	ExclusionsTotal prometheus.Counter
	Equity          prometheus.Gauge

	// Scoring
	ScoringDuration prometheus.Histogram
	ScoringTotal    *prometheus.CounterVec

	// HTTP
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewRegistry creates a registry with process and Go collectors attached.
// Each call returns an independent registry.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backtest_runs_total",
				Help:      "Backtest runs by result",
			},
			[]string{"result"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backtest_run_duration_seconds",
				Help:      "Wall time of a backtest run",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		),
		SessionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backtest_sessions_total",
				Help:      "Sessions replayed",
			},
		),
		SignalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signals_total",
				Help:      "Signals emitted by action and reason",
			},
			[]string{"action", "reason"},
		),
		RejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "risk_rejections_total",
				Help:      "Sizing proposals rejected by the risk manager",
			},
			[]string{"kind", "reason"},
		),
		ExclusionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "data_exclusions_total",
				Help:      "Instrument sessions dropped by the integrity gate",
			},
		),
		Equity: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backtest_equity",
				Help:      "Mark-to-market equity at the last replayed session",
			},
		),
		ScoringDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scoring_duration_seconds",
				Help:      "Wall time of one ranking computation",
				Buckets:   prometheus.DefBuckets,
			},
		),
		ScoringTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scoring_total",
				Help:      "Ranking computations by result",
			},
			[]string{"result"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.RunsTotal,
		r.RunDuration,
		r.SessionsTotal,
		r.SignalsTotal,
		r.RejectionsTotal,
		r.ExclusionsTotal,
		r.Equity,
		r.ScoringDuration,
		r.ScoringTotal,
		r.HTTPRequests,
		r.HTTPDuration,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// RecordRun records one finished backtest run
func (r *Registry) RecordRun(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.RunsTotal.WithLabelValues(result).Inc()
	r.RunDuration.Observe(d.Seconds())
}

// RecordScoring records one ranking computation
func (r *Registry) RecordScoring(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.ScoringTotal.WithLabelValues(result).Inc()
	r.ScoringDuration.Observe(d.Seconds())
}

// RecordHTTP records one served request
func (r *Registry) RecordHTTP(method, route string, status int, d time.Duration) {
	r.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
