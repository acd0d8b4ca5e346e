package strategyconfig

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/wonny/aegis-t0/internal/contracts"
)

// weightsEpsilon is the tolerance on Σ weights = 1.0
const weightsEpsilon = 1e-9

// ValidationError is a configuration the engine refuses to run with.
// errors.Is(err, contracts.ErrConfiguration) holds for every ValidationError.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error { return contracts.ErrConfiguration }

// Warning flags a legal but unusual setting (not fatal)
type Warning struct {
	Code    string
	Message string
}

// Validate checks all required constraints and returns the first failure.
func Validate(cfg *Config) error {
	if cfg == nil {
		return ValidationError{"config", "required"}
	}

	// === Meta ===
	if cfg.Meta.StrategyID == "" {
		return ValidationError{"meta.strategy_id", "required"}
	}

	// === Factors ===
	if err := ValidateWeights(cfg.Factors.Weights); err != nil {
		return err
	}
	f := cfg.Factors
	if f.Normalization != NormalizeRank && f.Normalization != NormalizeZScore {
		return ValidationError{"factors.normalization", "must be rank or zscore"}
	}
	for _, c := range []struct {
		field string
		v     int
	}{
		{"factors.short_lookback", f.ShortLookback},
		{"factors.long_lookback", f.LongLookback},
		{"factors.macd.fast", f.MACD.Fast},
		{"factors.macd.slow", f.MACD.Slow},
		{"factors.macd.signal", f.MACD.Signal},
		{"factors.kdj.n", f.KDJ.N},
		{"factors.kdj.m1", f.KDJ.M1},
		{"factors.kdj.m2", f.KDJ.M2},
		{"factors.bollinger.period", f.Bollinger.Period},
		{"factors.volume_ratio_days", f.VolumeRatioDays},
		{"factors.workers", f.Workers},
	} {
		if c.v < 1 {
			return ValidationError{c.field, "must be >= 1"}
		}
	}
	if f.ShortLookback >= f.LongLookback {
		return ValidationError{"factors", "short_lookback must be < long_lookback"}
	}
	if f.MACD.Fast >= f.MACD.Slow {
		return ValidationError{"factors.macd", "fast must be < slow"}
	}
	if f.Bollinger.K <= 0 {
		return ValidationError{"factors.bollinger.k", "must be > 0"}
	}

	// === Risk ===
	r := cfg.Risk
	if r.KellyFraction < 0 || r.KellyFraction > 1 {
		return ValidationError{"risk.kelly_fraction", "must be in range [0, 1]"}
	}
	if err := validateOpenClosed(r.MaxPositionFraction, "risk.max_position_fraction"); err != nil {
		return err
	}
	if r.DefaultWinRate <= 0 || r.DefaultWinRate >= 1 {
		return ValidationError{"risk.default_win_rate", "must be in range (0, 1)"}
	}
	if r.DefaultPayoffRatio <= 0 {
		return ValidationError{"risk.default_payoff_ratio", "must be > 0"}
	}
	if r.ATR.K <= 0 {
		return ValidationError{"risk.atr.k", "must be > 0"}
	}
	if r.ATR.N < 1 {
		return ValidationError{"risk.atr.n", "must be >= 1"}
	}
	if r.ATR.TakeMultiple <= 0 {
		return ValidationError{"risk.atr.take_multiple", "must be > 0"}
	}
	if err := validateOpenClosed(r.MaxSingleNamePct, "risk.max_single_name_pct"); err != nil {
		return err
	}
	if err := validateOpenClosed(r.MaxSectorPct, "risk.max_sector_pct"); err != nil {
		return err
	}
	if r.BlackSwanMove <= 0 {
		return ValidationError{"risk.black_swan_move", "must be > 0"}
	}
	if err := validateOpenClosed(r.MaxDrawdown, "risk.max_drawdown"); err != nil {
		return err
	}
	if r.LotSize < 1 {
		return ValidationError{"risk.lot_size", "must be >= 1"}
	}
	if r.MinTradeAmount < 0 {
		return ValidationError{"risk.min_trade_amount", "must be >= 0"}
	}

	// === T0 ===
	t0 := cfg.T0
	for _, c := range []struct {
		field string
		v     float64
	}{
		{"t0.spike_ratio", t0.SpikeRatio},
		{"t0.fade_ratio", t0.FadeRatio},
		{"t0.gap_up_ratio", t0.GapUpRatio},
		{"t0.take_profit_ratio", t0.TakeProfitRatio},
		{"t0.pullback_ratio", t0.PullbackRatio},
		{"t0.undercut_ratio", t0.UndercutRatio},
		{"t0.recover_ratio", t0.RecoverRatio},
	} {
		if c.v <= 0 || math.IsNaN(c.v) {
			return ValidationError{c.field, "must be > 0"}
		}
	}
	if err := validateOpenClosed(t0.MaxT0Ratio, "t0.max_t0_ratio"); err != nil {
		return err
	}
	if t0.ForceRebuyAt != "" {
		if err := validateHHMM(t0.ForceRebuyAt); err != nil {
			return ValidationError{"t0.force_rebuy_at", err.Error()}
		}
	}
	for i, w := range t0.Windows {
		field := fmt.Sprintf("t0.windows[%d]", i)
		if w.Name == "" {
			return ValidationError{field + ".name", "required"}
		}
		if err := validateHHMM(w.Start); err != nil {
			return ValidationError{field + ".start", err.Error()}
		}
		if err := validateHHMM(w.End); err != nil {
			return ValidationError{field + ".end", err.Error()}
		}
		startTime, _ := time.Parse("15:04", w.Start)
		endTime, _ := time.Parse("15:04", w.End)
		if !startTime.Before(endTime) {
			return ValidationError{field, "start must be before end"}
		}
	}

	// === Backtest ===
	b := cfg.Backtest
	if b.InitialEquity <= 0 {
		return ValidationError{"backtest.initial_equity", "must be > 0"}
	}
	if b.TopN < 1 {
		return ValidationError{"backtest.top_n", "must be >= 1"}
	}
	if b.TradingDaysPerYear < 1 {
		return ValidationError{"backtest.trading_days_per_year", "must be >= 1"}
	}
	if b.CommissionBps < 0 {
		return ValidationError{"backtest.commission_bps", "must be >= 0"}
	}
	if b.SlippageBps < 0 {
		return ValidationError{"backtest.slippage_bps", "must be >= 0"}
	}
	if b.MonteCarlo.Paths < 0 {
		return ValidationError{"backtest.monte_carlo.paths", "must be >= 0"}
	}

	return nil
}

// ValidateWeights enforces non-negative category weights summing to 1.0.
// Constructors call it directly so a bad weight set fails before any computation.
func ValidateWeights(w Weights) error {
	for _, c := range contracts.Categories {
		if v := w.Of(c); v < 0 || math.IsNaN(v) {
			return ValidationError{"factors.weights." + string(c), "must be >= 0"}
		}
	}
	if err := validateWeightsSum([]float64{w.Momentum, w.Technical, w.VolumePrice, w.CapitalFlow, w.Sentiment}, 1.0, weightsEpsilon); err != nil {
		return ValidationError{"factors.weights", err.Error()}
	}
	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	if cfg.T0.MaxT0Ratio >= 1 {
		warnings = append(warnings, Warning{
			Code:    "FULL_ROTATION",
			Message: "max_t0_ratio = 1: the whole overnight holding is rotated intraday",
		})
	}

	if cfg.Backtest.CommissionBps == 0 && cfg.Backtest.SlippageBps == 0 {
		warnings = append(warnings, Warning{
			Code:    "ZERO_COST",
			Message: "commission and slippage are both 0: results are optimistic",
		})
	}

	// spike needs high ≥ open × spike and current < high × fade; fade ≥ 1 makes it fire on any bar
	if cfg.T0.FadeRatio >= 1 {
		warnings = append(warnings, Warning{
			Code:    "FADE_UNBOUNDED",
			Message: "fade_ratio >= 1: spike-and-fade fires without any fade",
		})
	}

	if cfg.T0.PullbackRatio >= 1 {
		warnings = append(warnings, Warning{
			Code:    "REBUY_ABOVE_SALE",
			Message: "pullback_ratio >= 1: buy-back may happen above the sale price",
		})
	}

	if cfg.T0.SpikeRatio <= 1 || cfg.T0.GapUpRatio <= 1 || cfg.T0.TakeProfitRatio <= 1 {
		warnings = append(warnings, Warning{
			Code:    "SELL_ON_FLAT",
			Message: "a sell ratio <= 1 can fire on a flat session",
		})
	}

	if cfg.Risk.KellyFraction == 0 {
		warnings = append(warnings, Warning{
			Code:    "NO_ENTRIES",
			Message: "kelly_fraction = 0: every entry is rejected as zero-edge",
		})
	}

	if cfg.Risk.MaxSectorPct < cfg.Risk.MaxSingleNamePct {
		warnings = append(warnings, Warning{
			Code:    "SECTOR_BELOW_NAME",
			Message: "max_sector_pct < max_single_name_pct: the name limit is unreachable",
		})
	}

	return warnings
}

// === Helper Functions ===

var hhmmPattern = regexp.MustCompile(`^\d{2}:\d{2}$`)

func validateHHMM(s string) error {
	if !hhmmPattern.MatchString(s) {
		return errors.New("must be HH:MM format")
	}
	_, err := time.Parse("15:04", s)
	return err
}

func validateWeightsSum(weights []float64, target float64, epsilon float64) error {
	if len(weights) == 0 {
		return errors.New("must not be empty")
	}
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-target) > epsilon {
		return fmt.Errorf("must sum to %.2f, got %.4f", target, sum)
	}
	return nil
}

// validateOpenClosed checks v ∈ (0, 1]
func validateOpenClosed(v float64, field string) error {
	if v <= 0 || v > 1 {
		return ValidationError{field, "must be in range (0, 1]"}
	}
	return nil
}
