package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/internal/s0_data"
	"github.com/wonny/aegis-t0/internal/selection"
	"github.com/wonny/aegis-t0/pkg/logger"
	"github.com/wonny/aegis-t0/pkg/metrics"
)

// MarketLoader reloads the market data a job works on
type MarketLoader func(ctx context.Context) (*s0_data.Market, error)

// DailyScoreJob ranks the latest session after the close. The scorer's
// cache and repository decide where the ranking goes.
type DailyScoreJob struct {
	load     MarketLoader
	scorer   *selection.Scorer
	metrics  *metrics.Registry
	schedule string
	top      int
	logger   *logger.Logger
}

// NewDailyScoreJob runs at 15:30 on weekdays unless schedule is set
func NewDailyScoreJob(load MarketLoader, scorer *selection.Scorer, m *metrics.Registry, schedule string, log *logger.Logger) *DailyScoreJob {
	if schedule == "" {
		schedule = "0 30 15 * * MON-FRI"
	}
	return &DailyScoreJob{
		load:     load,
		scorer:   scorer,
		metrics:  m,
		schedule: schedule,
		top:      5,
		logger:   log.WithComponent("job.daily_score"),
	}
}

func (j *DailyScoreJob) Name() string     { return "daily_score" }
func (j *DailyScoreJob) Schedule() string { return j.schedule }

func (j *DailyScoreJob) Run(ctx context.Context) error {
	market, err := j.load(ctx)
	if err != nil {
		return fmt.Errorf("load market: %w", err)
	}
	session, ok := market.LatestSession()
	if !ok {
		return fmt.Errorf("%w: market has no sessions", contracts.ErrDataIntegrity)
	}

	start := time.Now()
	ranking, err := j.scorer.Score(ctx, market, session)
	if j.metrics != nil {
		j.metrics.RecordScoring(time.Since(start), err)
	}
	if err != nil {
		return err
	}

	top := make([]string, 0, j.top)
	for _, s := range ranking.Top(j.top) {
		top = append(top, fmt.Sprintf("%s(%.3f)", s.InstrumentID, s.Score))
	}
	j.logger.WithFields(map[string]interface{}{
		"session": contracts.SessionKey(session),
		"regime":  ranking.Regime,
		"ranked":  len(ranking.Scores),
		"top":     top,
	}).Info("Daily ranking computed")
	return nil
}
