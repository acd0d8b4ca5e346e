package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"github.com/wonny/aegis-t0/internal/s0_data"
	"github.com/wonny/aegis-t0/internal/strategyconfig"
	"github.com/wonny/aegis-t0/pkg/config"
	"github.com/wonny/aegis-t0/pkg/database"
	"github.com/wonny/aegis-t0/pkg/httputil"
	"github.com/wonny/aegis-t0/pkg/logger"
	"github.com/wonny/aegis-t0/pkg/redis"
)

// app holds the process-wide dependencies of one command
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	db    *database.DB  // nil without DATABASE_URL
	redis *redis.Client // disabled unless REDIS_ENABLED
}

// newApp loads config and logger. With needDB the database is mandatory,
// otherwise it is connected only when configured.
func newApp(needDB bool) (*app, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if env != "" {
		cfg.Env = env
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if strategyPath != "" {
		cfg.StrategyConfigPath = strategyPath
	}

	a := &app{cfg: cfg, log: logger.New(cfg)}

	if needDB && !cfg.HasDatabase() {
		return nil, fmt.Errorf("DATABASE_URL is required for this command")
	}
	if cfg.HasDatabase() {
		if a.db, err = database.New(cfg); err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.log.Debug("Connected to database")
	}

	if a.redis, err = redis.New(cfg); err != nil {
		a.close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// strategy loads the strategy YAML, or the built-in defaults
func (a *app) strategy() (*strategyconfig.Config, []byte, error) {
	cfg, data, err := strategyconfig.LoadOrDefault(a.cfg.StrategyConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load strategy: %w", err)
	}
	for _, w := range strategyconfig.Warn(cfg) {
		a.log.WithField("code", w.Code).Warn(w.Message)
	}
	return cfg, data, nil
}

// source picks the market data source configured by DATA_SOURCE
func (a *app) source() (s0_data.Source, error) {
	d := a.cfg.Data
	if d.Source == config.SourcePostgres {
		if a.db == nil {
			return nil, fmt.Errorf("postgres data source requires DATABASE_URL")
		}
		return s0_data.NewPostgresSource(a.db.Pool, time.Time{}, time.Time{}), nil
	}
	paths := s0_data.Paths{
		Bars:        d.BarsPath,
		Aux:         d.AuxPath,
		Instruments: d.Instruments,
	}
	if s0_data.IsRemote(d.BarsPath) {
		client := httputil.New(a.log).
			WithRateLimiter(redis.NewRateLimiter(a.redis, "aegis"), redis.DownloadRateLimit)
		return s0_data.NewRemoteSource(d.Source, paths, client)
	}
	format := d.Source
	if format == "" {
		format = s0_data.FormatFromPath(d.BarsPath)
	}
	return s0_data.NewSource(format, paths)
}

// loadMarket loads and indexes the configured dataset
func (a *app) loadMarket(ctx context.Context) (*s0_data.Market, error) {
	src, err := a.source()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	ds, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load market data: %w", err)
	}
	m := s0_data.NewMarket(ds, a.cfg.Data.BenchmarkID)
	a.log.WithFields(map[string]interface{}{
		"source":      a.cfg.Data.Source,
		"bars":        len(ds.Bars),
		"aux":         len(ds.Aux),
		"instruments": len(m.Candidates()),
		"sessions":    len(m.Series.Sessions()),
		"duration":    time.Since(start),
	}).Info("Market data loaded")
	return m, nil
}
