package contracts

import "time"

// RoundTripKind tells which lifecycle closed a trade.
type RoundTripKind string

const (
	RoundTripT0Rotation RoundTripKind = "t0-rotation" // sold high, bought back lower (or not)
	RoundTripT0Flat     RoundTripKind = "t0-flat"     // sold intraday, session ended without buy-back
	RoundTripExit       RoundTripKind = "exit"        // position (partly) closed at the close
)

// RoundTrip is one closed trade with realized P&L.
type RoundTrip struct {
	InstrumentID string        `json:"instrument_id"`
	Kind         RoundTripKind `json:"kind"`
	OpenedAt     time.Time     `json:"opened_at"`
	ClosedAt     time.Time     `json:"closed_at"`
	Quantity     int64         `json:"quantity"`
	OpenPrice    float64       `json:"open_price"`
	ClosePrice   float64       `json:"close_price"`
	PnL          float64       `json:"pnl"`
}

// IsWin reports whether the trade made money.
func (r RoundTrip) IsWin() bool { return r.PnL > 0 }

// EquityPoint is one daily mark-to-market valuation.
type EquityPoint struct {
	Date   time.Time `json:"date"`
	Equity float64   `json:"equity"`
	Cash   float64   `json:"cash"`
	Return float64   `json:"return"` // vs previous point
}

// PerformanceReport is derived purely from the fill log and daily valuations.
// ⭐ SSOT: backtest output
type PerformanceReport struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"` // positive fraction of peak
	TradeCount       int     `json:"trade_count"`
	WinRate          float64 `json:"win_rate"`

	// Supplements
	ProfitFactor  float64 `json:"profit_factor"`
	AvgWin        float64 `json:"avg_win"`
	AvgLoss       float64 `json:"avg_loss"`
	VaR95         float64 `json:"var_95"`
	CVaR95        float64 `json:"cvar_95"`
	TradingDays   int     `json:"trading_days"`
	InitialEquity float64 `json:"initial_equity"`
	FinalEquity   float64 `json:"final_equity"`
}

// IsHealthy checks if the run has healthy risk metrics
func (pr *PerformanceReport) IsHealthy() bool {
	return pr.SharpeRatio > 1.0 && pr.MaxDrawdown < 0.30 && pr.WinRate > 0.50
}
