package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/internal/selection"
	"github.com/wonny/aegis-t0/internal/strategyconfig"
	"github.com/wonny/aegis-t0/pkg/redis"
)

// scoreCmd represents the score command
var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Rank instruments for one session",
	Long: `Computes the composite factor ranking of one session, using only data
up to that session.

Rankings are cached in Redis (REDIS_ENABLED) and stored in
selection.composite_scores when DATABASE_URL is set.

Example:
  go run ./cmd/quant score
  go run ./cmd/quant score --date 2024-03-15 --top 10`,
	RunE: runScore,
}

var (
	scoreDate string
	scoreTop  int
)

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().StringVar(&scoreDate, "date", "", "session date YYYY-MM-DD (default: latest)")
	scoreCmd.Flags().IntVar(&scoreTop, "top", 20, "rows to print")
}

func runScore(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()

	strategy, _, err := a.strategy()
	if err != nil {
		return err
	}
	scorer, err := newScorer(a, strategy)
	if err != nil {
		return err
	}

	market, err := a.loadMarket(ctx)
	if err != nil {
		return err
	}

	session, ok := market.LatestSession()
	if scoreDate != "" {
		ok = false
		for _, s := range market.Series.Sessions() {
			if contracts.SessionKey(s) == scoreDate {
				session, ok = s, true
				break
			}
		}
	}
	if !ok {
		return fmt.Errorf("no session on %q", scoreDate)
	}

	start := time.Now()
	ranking, err := scorer.Score(ctx, market, session)
	if err != nil {
		return err
	}

	PrintHeader(fmt.Sprintf("Composite Ranking %s", contracts.SessionKey(ranking.AsOf)))
	PrintKeyValue("Regime", string(ranking.Regime), 10)
	PrintKeyValue("Ranked", fmt.Sprintf("%d", len(ranking.Scores)), 10)
	PrintKeyValue("Duration", time.Since(start).Round(time.Millisecond).String(), 10)
	fmt.Println()

	widths := []int{4, 10, 8, 9, 9, 9, 9}
	PrintTableHeader([]string{"#", "ID", "Score", "Momentum", "Technical", "VolPrice", "Flow"}, widths)
	for _, s := range ranking.Top(scoreTop) {
		PrintTableRow([]string{
			fmt.Sprintf("%d", s.Rank),
			s.InstrumentID,
			fmt.Sprintf("%.3f", s.Score),
			fmt.Sprintf("%.3f", s.Categories[contracts.CategoryMomentum]),
			fmt.Sprintf("%.3f", s.Categories[contracts.CategoryTechnical]),
			fmt.Sprintf("%.3f", s.Categories[contracts.CategoryVolumePrice]),
			fmt.Sprintf("%.3f", s.Categories[contracts.CategoryCapitalFlow]),
		}, widths)
	}
	return nil
}

// newScorer wires the scorer with whatever cache and database are configured
func newScorer(a *app, strategy *strategyconfig.Config) (*selection.Scorer, error) {
	scorer, err := selection.NewScorer(strategy, a.log)
	if err != nil {
		return nil, err
	}
	if a.redis.Enabled() {
		scorer.WithCache(selection.NewRankingCache(redis.NewCache(a.redis, "aegis"), selection.DefaultCacheConfig(), a.log))
	}
	if a.db != nil {
		scorer.WithRepository(selection.NewRepository(a.db.Pool))
	}
	return scorer, nil
}
