// Package risk encodes the liquidation policy applied to open positions.
package risk

// Reason explains why a position was liquidated.
type Reason string

const (
	// StopLoss fired because the potential ratio fell below the floor.
	StopLoss Reason = "STOP_LOSS"
	// TakeProfit fired because the potential ratio met the target.
	TakeProfit Reason = "STOP_PROFIT"
	// Forced is a close executed irrespective of PnL during teardown.
	Forced Reason = "FORCED"
)

// Policy holds the ratio thresholds gating liquidation.
type Policy struct {
	StopLoss   float64
	TakeProfit float64
}

// Decide applies the policy to a potential PnL ratio. Precedence is fixed:
// stop-loss, then take-profit, then forced.
func (p Policy) Decide(ratio float64, force bool) (Reason, bool) {
	if ratio < p.StopLoss {
		return StopLoss, true
	}
	if ratio >= p.TakeProfit {
		return TakeProfit, true
	}
	if force {
		return Forced, true
	}
	return "", false
}
