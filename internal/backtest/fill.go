package backtest

import "github.com/wonny/aegis-t0/internal/contracts"

// Fill is the simulated execution of one signal
type Fill struct {
	Price      float64 `json:"price"`
	Commission float64 `json:"commission"`
}

// FillFunc turns an approved signal into a fill against the bar it fired on.
// Substitute it to model slippage, partial queues or fees.
type FillFunc func(sig contracts.Signal, bar contracts.Bar) Fill

// CloseFill fills at the bar close with no costs
func CloseFill(sig contracts.Signal, bar contracts.Bar) Fill {
	return Fill{Price: bar.Close}
}

// SlippageFill moves the close against the trade by slippageBps and charges
// commissionBps of the notional.
func SlippageFill(slippageBps, commissionBps float64) FillFunc {
	return func(sig contracts.Signal, bar contracts.Bar) Fill {
		price := bar.Close
		switch sig.Action {
		case contracts.ActionBuy:
			price *= 1 + slippageBps/10_000
		case contracts.ActionSell:
			price *= 1 - slippageBps/10_000
		}
		return Fill{
			Price:      price,
			Commission: price * float64(sig.Quantity) * commissionBps / 10_000,
		}
	}
}
