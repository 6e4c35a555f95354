package risk

import (
	"math"

	"traderiser/internal/domain"
)

// Assessment is the result of evaluating an open position at a price.
type Assessment struct {
	FloatingPL     float64
	MarginRequired float64
	// Trigger is non-nil when a close condition fired. First match wins in
	// the order stop-loss, take-profit, margin call.
	Trigger *domain.CloseReason
}

// Evaluator computes floating P&L, margin requirements, and close triggers
// for open positions. Stateless and safe for concurrent use.
type Evaluator struct{}

// NewEvaluator creates a new evaluator instance.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// FloatingPL computes the unrealized P&L of a position at currentPrice,
// net of spread cost.
func (e *Evaluator) FloatingPL(pair *domain.TradablePair, direction domain.Direction, volume, entryPrice, currentPrice float64) float64 {
	var pipDelta float64
	if direction == domain.Buy {
		pipDelta = (currentPrice - entryPrice) / pair.PipSize
	} else {
		pipDelta = (entryPrice - currentPrice) / pair.PipSize
	}
	gross := pipDelta * volume * float64(pair.ContractSize) * pair.PipSize
	spreadCost := pair.Spread * volume * float64(pair.ContractSize) * pair.PipSize
	return gross - spreadCost
}

// Margin computes the margin required to hold the position.
func (e *Evaluator) Margin(pair *domain.TradablePair, volume, entryPrice float64, leverage int) float64 {
	return volume * float64(pair.ContractSize) * entryPrice / float64(leverage)
}

// Evaluate computes the position's floating P&L and margin requirement at
// currentPrice and checks close triggers in order: stop-loss, take-profit,
// margin call. Privileged accounts are never margin-called.
func (e *Evaluator) Evaluate(pos *domain.Position, pair *domain.TradablePair, currentPrice, walletBalance float64, privileged bool) Assessment {
	a := Assessment{
		FloatingPL:     e.FloatingPL(pair, pos.Direction, pos.Volume, pos.EntryPrice, currentPrice),
		MarginRequired: e.Margin(pair, pos.Volume, pos.EntryPrice, pos.Leverage),
	}

	if pos.StopLoss > 0 && slBreached(pos.Direction, currentPrice, pos.StopLoss) {
		reason := domain.CloseReasonStopLoss
		a.Trigger = &reason
		return a
	}
	if pos.TakeProfit > 0 && tpBreached(pos.Direction, currentPrice, pos.TakeProfit) {
		reason := domain.CloseReasonTakeProfit
		a.Trigger = &reason
		return a
	}
	if !privileged && a.FloatingPL <= 0 && math.Abs(a.FloatingPL) >= walletBalance {
		reason := domain.CloseReasonMarginCall
		a.Trigger = &reason
	}
	return a
}

func slBreached(direction domain.Direction, price, sl float64) bool {
	if direction == domain.Buy {
		return price <= sl
	}
	return price >= sl
}

func tpBreached(direction domain.Direction, price, tp float64) bool {
	if direction == domain.Buy {
		return price >= tp
	}
	return price <= tp
}
