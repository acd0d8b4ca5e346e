package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wonny/aegis-t0/internal/backtest"
	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/internal/risk"
)

// =============================================================================
// Run Report
// =============================================================================

// RunReport is the human-facing summary of one backtest run
type RunReport struct {
	ReportDate  time.Time                   `json:"report_date"`
	RunID       string                      `json:"run_id"`
	ConfigHash  string                      `json:"config_hash"`
	From        time.Time                   `json:"from"`
	To          time.Time                   `json:"to"`
	Performance contracts.PerformanceReport `json:"performance"`
	Commission  float64                     `json:"commission"`
	Signals     int                         `json:"signals"`
	Exclusions  int                         `json:"exclusions"`
	Regimes     map[string]int              `json:"regimes,omitempty"` // sessions per market regime
	ByKind      []Attribution               `json:"by_kind"`
	Top         []Attribution               `json:"top_instruments"`
	Bottom      []Attribution               `json:"bottom_instruments"`
	MonteCarlo  *risk.MonteCarloResult      `json:"monte_carlo,omitempty"`
}

// NewRunReport builds the report of res. limit bounds the top/bottom lists.
func NewRunReport(res *backtest.Result, limit int) *RunReport {
	byInstrument := AttributeByInstrument(res.RoundTrips)

	report := &RunReport{
		ReportDate:  time.Now(),
		RunID:       res.RunID,
		ConfigHash:  res.ConfigHash,
		From:        res.StartDate,
		To:          res.EndDate,
		Performance: res.Report,
		Commission:  res.Commission,
		Signals:     len(res.Signals),
		Exclusions:  len(res.Exclusions),
		ByKind:      AttributeByKind(res.RoundTrips),
		Top:         TopContributors(byInstrument, limit),
		Bottom:      BottomContributors(byInstrument, limit),
		MonteCarlo:  res.MonteCarlo,
	}

	for _, q := range res.Quality {
		if q.Regime == "" {
			continue
		}
		if report.Regimes == nil {
			report.Regimes = make(map[string]int)
		}
		report.Regimes[q.Regime]++
	}
	return report
}

// ToJSON renders the report as indented JSON
func (report *RunReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

// ToSummary renders the report for a terminal
func (report *RunReport) ToSummary() string {
	var b strings.Builder
	p := report.Performance

	fmt.Fprintf(&b, "=== Backtest Report (%s ~ %s) ===\n",
		contracts.SessionKey(report.From), contracts.SessionKey(report.To))
	fmt.Fprintf(&b, "Run ID: %s\n", report.RunID)
	fmt.Fprintf(&b, "Config: %s\n\n", report.ConfigHash)

	b.WriteString("📈 Performance\n")
	fmt.Fprintf(&b, "  Equity: %.2f → %.2f\n", p.InitialEquity, p.FinalEquity)
	fmt.Fprintf(&b, "  Total Return: %.2f%%\n", p.TotalReturn*100)
	fmt.Fprintf(&b, "  Annualized Return: %.2f%%\n", p.AnnualizedReturn*100)
	fmt.Fprintf(&b, "  Sharpe Ratio: %.2f\n", p.SharpeRatio)
	fmt.Fprintf(&b, "  Max Drawdown: %.2f%%\n", p.MaxDrawdown*100)
	fmt.Fprintf(&b, "  Trading Days: %d\n\n", p.TradingDays)

	b.WriteString("💼 Trades\n")
	fmt.Fprintf(&b, "  Round Trips: %d\n", p.TradeCount)
	fmt.Fprintf(&b, "  Win Rate: %.2f%%\n", p.WinRate*100)
	fmt.Fprintf(&b, "  Avg Win / Loss: %.2f / %.2f\n", p.AvgWin, p.AvgLoss)
	fmt.Fprintf(&b, "  Profit Factor: %.2f\n", p.ProfitFactor)
	fmt.Fprintf(&b, "  Signals: %d\n", report.Signals)
	fmt.Fprintf(&b, "  Commission: %.2f\n", report.Commission)
	for _, a := range report.ByKind {
		fmt.Fprintf(&b, "  %-12s %4d trades  P&L %.2f\n", a.Key, a.Trades, a.Contribution)
	}
	b.WriteString("\n")

	if len(report.Top) > 0 {
		b.WriteString("🏆 Top Instruments\n")
		for _, a := range report.Top {
			fmt.Fprintf(&b, "  %s: %.2f (%d trades)\n", a.Key, a.Contribution, a.Trades)
		}
		b.WriteString("\n")
	}

	b.WriteString("📊 Risk\n")
	fmt.Fprintf(&b, "  VaR 95%%: %.4f\n", p.VaR95)
	fmt.Fprintf(&b, "  CVaR 95%%: %.4f\n", p.CVaR95)
	if mc := report.MonteCarlo; mc != nil {
		fmt.Fprintf(&b, "  MC Simulations: %d (seed %d)\n", mc.Config.NumSimulations, mc.Config.Seed)
		fmt.Fprintf(&b, "  MC VaR 95%%: %.4f\n", mc.VaR95)
		fmt.Fprintf(&b, "  MC P(loss): %.2f%%\n", mc.ProbLoss*100)
	}
	b.WriteString("\n")

	if len(report.Regimes) > 0 || report.Exclusions > 0 {
		b.WriteString("🧭 Sessions\n")
		regimes := make([]string, 0, len(report.Regimes))
		for r := range report.Regimes {
			regimes = append(regimes, r)
		}
		sort.Strings(regimes)
		for _, r := range regimes {
			fmt.Fprintf(&b, "  %s: %d\n", r, report.Regimes[r])
		}
		fmt.Fprintf(&b, "  Exclusions: %d\n", report.Exclusions)
	}

	if p.IsHealthy() {
		b.WriteString("\n✅ Healthy risk profile\n")
	} else {
		b.WriteString("\n⚠️ Below health thresholds (Sharpe > 1, MDD < 30%, win rate > 50%)\n")
	}
	return b.String()
}
