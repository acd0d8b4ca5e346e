package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/internal/risk"
	"github.com/wonny/aegis-t0/internal/strategyconfig"
)

// Returns converts an equity series into simple period returns (len n-1)
func Returns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, equity[i]/equity[i-1]-1)
	}
	return out
}

// SharpeRatio is mean(r - rf/days)/stdev(r) × √days with the sample stdev.
// Zero when fewer than two returns or no variance.
func SharpeRatio(returns []float64, riskFree float64, daysPerYear int) float64 {
	if len(returns) < 2 || daysPerYear < 1 {
		return 0
	}
	sd := stat.StdDev(returns, nil)
	if sd == 0 || math.IsNaN(sd) {
		return 0
	}
	excess := stat.Mean(returns, nil) - riskFree/float64(daysPerYear)
	return excess / sd * math.Sqrt(float64(daysPerYear))
}

// MaxDrawdown is the largest peak-to-trough decline as a fraction of the peak
func MaxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	maxDrawdown := 0.0
	peak := equity[0]
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - v) / peak; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	return maxDrawdown
}

// AnnualizedReturn compounds total over days: (1+total)^(daysPerYear/days) - 1
func AnnualizedReturn(total float64, days, daysPerYear int) float64 {
	if days < 1 || total <= -1 {
		return total
	}
	return math.Pow(1+total, float64(daysPerYear)/float64(days)) - 1
}

// BuildReport derives the performance report from the equity curve and the
// closed round trips only.
func BuildReport(initial float64, curve []contracts.EquityPoint, trips []contracts.RoundTrip, cfg strategyconfig.Backtest) contracts.PerformanceReport {
	daysPerYear := cfg.TradingDaysPerYear
	if daysPerYear < 1 {
		daysPerYear = 252
	}

	equity := make([]float64, 0, len(curve)+1)
	equity = append(equity, initial)
	for _, p := range curve {
		equity = append(equity, p.Equity)
	}
	final := equity[len(equity)-1]

	report := contracts.PerformanceReport{
		InitialEquity: initial,
		FinalEquity:   final,
		TradingDays:   len(curve),
		TradeCount:    len(trips),
	}
	if initial > 0 {
		report.TotalReturn = final/initial - 1
	}
	report.AnnualizedReturn = AnnualizedReturn(report.TotalReturn, len(curve), daysPerYear)

	returns := Returns(equity)
	report.SharpeRatio = SharpeRatio(returns, cfg.RiskFreeRate, daysPerYear)
	report.MaxDrawdown = MaxDrawdown(equity)

	tail := risk.CalculateVaR(returns, 0.95)
	report.VaR95 = tail.VaR
	report.CVaR95 = tail.CVaR

	var wins, losses int
	var grossWin, grossLoss float64
	for _, t := range trips {
		switch {
		case t.PnL > 0:
			wins++
			grossWin += t.PnL
		case t.PnL < 0:
			losses++
			grossLoss -= t.PnL
		}
	}
	if len(trips) > 0 {
		report.WinRate = float64(wins) / float64(len(trips))
	}
	if wins > 0 {
		report.AvgWin = grossWin / float64(wins)
	}
	if losses > 0 {
		report.AvgLoss = grossLoss / float64(losses)
	}
	// 0 when undefined (no losing trades)
	if grossLoss > 0 {
		report.ProfitFactor = grossWin / grossLoss
	}

	return report
}
