package strategyconfig

import (
	"time"

	"github.com/wonny/aegis-t0/internal/contracts"
)

// Config is the full strategy configuration.
// ⭐ SSOT: an immutable value handed to every constructor, never read from globals
type Config struct {
	Meta     Meta     `yaml:"meta" json:"meta"`
	Factors  Factors  `yaml:"factors" json:"factors"`
	Risk     Risk     `yaml:"risk" json:"risk"`
	T0       T0       `yaml:"t0" json:"t0"`
	Backtest Backtest `yaml:"backtest" json:"backtest"`
}

// Meta identifies the strategy
type Meta struct {
	StrategyID string `yaml:"strategy_id" json:"strategy_id"`
	Version    string `yaml:"version" json:"version"`
}

// Factors configures the factor model
type Factors struct {
	Weights         Weights   `yaml:"weights" json:"weights"`
	Normalization   string    `yaml:"normalization" json:"normalization"` // rank | zscore
	ShortLookback   int       `yaml:"short_lookback" json:"short_lookback"`
	LongLookback    int       `yaml:"long_lookback" json:"long_lookback"`
	MACD            MACD      `yaml:"macd" json:"macd"`
	KDJ             KDJ       `yaml:"kdj" json:"kdj"`
	Bollinger       Bollinger `yaml:"bollinger" json:"bollinger"`
	VolumeRatioDays int       `yaml:"volume_ratio_days" json:"volume_ratio_days"`
	Workers         int       `yaml:"workers" json:"workers"` // pass-1 parallelism, 1 = serial
}

// Normalization methods
const (
	NormalizeRank   = "rank"
	NormalizeZScore = "zscore"
)

// Weights are the composite category weights. Must sum to 1.0.
type Weights struct {
	Momentum    float64 `yaml:"momentum" json:"momentum"`
	Technical   float64 `yaml:"technical" json:"technical"`
	VolumePrice float64 `yaml:"volume_price" json:"volume_price"`
	CapitalFlow float64 `yaml:"capital_flow" json:"capital_flow"`
	Sentiment   float64 `yaml:"sentiment" json:"sentiment"`
}

// Sum returns the total weight
func (w Weights) Sum() float64 {
	return w.Momentum + w.Technical + w.VolumePrice + w.CapitalFlow + w.Sentiment
}

// Of returns the weight of category c
func (w Weights) Of(c contracts.Category) float64 {
	switch c {
	case contracts.CategoryMomentum:
		return w.Momentum
	case contracts.CategoryTechnical:
		return w.Technical
	case contracts.CategoryVolumePrice:
		return w.VolumePrice
	case contracts.CategoryCapitalFlow:
		return w.CapitalFlow
	case contracts.CategorySentiment:
		return w.Sentiment
	}
	return 0
}

type MACD struct {
	Fast   int `yaml:"fast" json:"fast"`
	Slow   int `yaml:"slow" json:"slow"`
	Signal int `yaml:"signal" json:"signal"`
}

type KDJ struct {
	N  int `yaml:"n" json:"n"`
	M1 int `yaml:"m1" json:"m1"`
	M2 int `yaml:"m2" json:"m2"`
}

type Bollinger struct {
	Period int     `yaml:"period" json:"period"`
	K      float64 `yaml:"k" json:"k"`
}

// Risk configures sizing, stops and gates
type Risk struct {
	KellyFraction       float64 `yaml:"kelly_fraction" json:"kelly_fraction"`
	MaxPositionFraction float64 `yaml:"max_position_fraction" json:"max_position_fraction"`
	DefaultWinRate      float64 `yaml:"default_win_rate" json:"default_win_rate"`
	DefaultPayoffRatio  float64 `yaml:"default_payoff_ratio" json:"default_payoff_ratio"`
	ATR                 ATR     `yaml:"atr" json:"atr"`
	MaxSingleNamePct    float64 `yaml:"max_single_name_pct" json:"max_single_name_pct"`
	MaxSectorPct        float64 `yaml:"max_sector_pct" json:"max_sector_pct"`
	BlackSwanMove       float64 `yaml:"black_swan_move" json:"black_swan_move"` // |close/pre_close - 1|
	MaxDrawdown         float64 `yaml:"max_drawdown" json:"max_drawdown"`
	LotSize             int64   `yaml:"lot_size" json:"lot_size"`
	MinTradeAmount      float64 `yaml:"min_trade_amount" json:"min_trade_amount"`
}

// ATR stop parameters: stop = reference - K × ATR(N)
type ATR struct {
	K            float64 `yaml:"k" json:"k"`
	N            int     `yaml:"n" json:"n"`
	TakeMultiple float64 `yaml:"take_multiple" json:"take_multiple"`
}

// T0 holds the intraday rotation thresholds
type T0 struct {
	SpikeRatio      float64  `yaml:"spike_ratio" json:"spike_ratio"`             // high/open
	FadeRatio       float64  `yaml:"fade_ratio" json:"fade_ratio"`               // current < high × fade
	GapUpRatio      float64  `yaml:"gap_up_ratio" json:"gap_up_ratio"`           // open/pre_close
	TakeProfitRatio float64  `yaml:"take_profit_ratio" json:"take_profit_ratio"` // current/pre_close
	PullbackRatio   float64  `yaml:"pullback_ratio" json:"pullback_ratio"`       // current < sold × pullback
	UndercutRatio   float64  `yaml:"undercut_ratio" json:"undercut_ratio"`       // low/pre_close
	RecoverRatio    float64  `yaml:"recover_ratio" json:"recover_ratio"`         // current > low × recover
	MaxT0Ratio      float64  `yaml:"max_t0_ratio" json:"max_t0_ratio"`           // share of the holding rotated
	ForceRebuyAt    string   `yaml:"force_rebuy_at" json:"force_rebuy_at"`       // HH:MM, empty disables
	Windows         []Window `yaml:"windows" json:"windows"`
}

// Window is a named observation window of the session
type Window struct {
	Name  string `yaml:"name" json:"name"`
	Start string `yaml:"start" json:"start"` // HH:MM
	End   string `yaml:"end" json:"end"`     // HH:MM
}

// Backtest configures the replay
type Backtest struct {
	InitialEquity      float64    `yaml:"initial_equity" json:"initial_equity"`
	TopN               int        `yaml:"top_n" json:"top_n"`
	RiskFreeRate       float64    `yaml:"risk_free_rate" json:"risk_free_rate"` // annual
	TradingDaysPerYear int        `yaml:"trading_days_per_year" json:"trading_days_per_year"`
	CommissionBps      float64    `yaml:"commission_bps" json:"commission_bps"`
	SlippageBps        float64    `yaml:"slippage_bps" json:"slippage_bps"`
	Strict             bool       `yaml:"strict" json:"strict"` // abort on data integrity errors
	MonteCarlo         MonteCarlo `yaml:"monte_carlo" json:"monte_carlo"`
}

// MonteCarlo configures the bootstrap of daily returns
type MonteCarlo struct {
	Paths int   `yaml:"paths" json:"paths"` // 0 disables
	Seed  int64 `yaml:"seed" json:"seed"`
}

// RunSnapshot pins the configuration a run was produced with (reproducibility)
type RunSnapshot struct {
	ConfigHash string    `json:"config_hash"`
	ConfigYAML string    `json:"config_yaml"`
	StrategyID string    `json:"strategy_id"`
	Version    string    `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Meta: Meta{StrategyID: "t0_rotation", Version: "1.0.0"},
		Factors: Factors{
			Weights: Weights{
				Momentum:    0.25,
				Technical:   0.25,
				VolumePrice: 0.20,
				CapitalFlow: 0.15,
				Sentiment:   0.15,
			},
			Normalization:   NormalizeRank,
			ShortLookback:   5,
			LongLookback:    20,
			MACD:            MACD{Fast: 12, Slow: 26, Signal: 9},
			KDJ:             KDJ{N: 9, M1: 3, M2: 3},
			Bollinger:       Bollinger{Period: 20, K: 2},
			VolumeRatioDays: 5,
			Workers:         4,
		},
		Risk: Risk{
			KellyFraction:       0.5,
			MaxPositionFraction: 0.10,
			DefaultWinRate:      0.55,
			DefaultPayoffRatio:  1.5,
			ATR:                 ATR{K: 2, N: 14, TakeMultiple: 3},
			MaxSingleNamePct:    0.30,
			MaxSectorPct:        0.40,
			BlackSwanMove:       0.05,
			MaxDrawdown:         0.10,
			LotSize:             100,
			MinTradeAmount:      0,
		},
		T0: T0{
			SpikeRatio:      1.03,
			FadeRatio:       0.98,
			GapUpRatio:      1.02,
			TakeProfitRatio: 1.05,
			PullbackRatio:   0.97,
			UndercutRatio:   0.97,
			RecoverRatio:    1.01,
			MaxT0Ratio:      1.0,
			Windows: []Window{
				{Name: "open", Start: "09:30", End: "10:00"},
				{Name: "morning", Start: "10:00", End: "11:30"},
				{Name: "afternoon", Start: "13:00", End: "14:30"},
				{Name: "close", Start: "14:30", End: "15:00"},
			},
		},
		Backtest: Backtest{
			InitialEquity:      1_000_000,
			TopN:               5,
			TradingDaysPerYear: 252,
			MonteCarlo:         MonteCarlo{Paths: 1000, Seed: 42},
		},
	}
}

// WindowAt names the observation window containing ts ("" outside all windows).
// Windows document intent only; nothing is gated on them.
func (t T0) WindowAt(ts time.Time) string {
	m := ts.Hour()*60 + ts.Minute()
	for _, w := range t.Windows {
		start, err1 := minuteOfDay(w.Start)
		end, err2 := minuteOfDay(w.End)
		if err1 != nil || err2 != nil {
			continue
		}
		if m >= start && m < end {
			return w.Name
		}
	}
	return ""
}

// ForceRebuyMinute returns the minute of day of the forced buy-back, if enabled.
func (t T0) ForceRebuyMinute() (int, bool) {
	if t.ForceRebuyAt == "" {
		return 0, false
	}
	m, err := minuteOfDay(t.ForceRebuyAt)
	if err != nil {
		return 0, false
	}
	return m, true
}

func minuteOfDay(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
