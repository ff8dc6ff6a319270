package signal

import "github.com/swayfi/dca-engine/internal/constants"

// TradeDecision is the output of the decision engine: what to do and what
// share of the relevant balance to trade, in basis points.
type TradeDecision struct {
	Action     string
	PercentBps int64
}

// Decide maps a sentiment value in [0,100] to an action and percentage.
// Bands are fixed, non-overlapping and inclusive:
//
//	<=25 buy 5%, <=45 buy 2.5%, <=54 hold, <=75 sell 2.5%, >75 sell 5%
//
// Pure function, no side effects.
func Decide(value float64) TradeDecision {
	switch {
	case value <= 25:
		return TradeDecision{Action: constants.BuyAction, PercentBps: 500}
	case value <= 45:
		return TradeDecision{Action: constants.BuyAction, PercentBps: 250}
	case value <= 54:
		return TradeDecision{Action: constants.HoldAction, PercentBps: 0}
	case value <= 75:
		return TradeDecision{Action: constants.SellAction, PercentBps: 250}
	default:
		return TradeDecision{Action: constants.SellAction, PercentBps: 500}
	}
}
