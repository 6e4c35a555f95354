package domain

import "time"

// Position represents a simulated leveraged position owned by an account.
// A zero StopLoss or TakeProfit means the level is not set.
type Position struct {
	ID         int64          // Unique identifier for the position (assigned by the store)
	AccountID  int64          // Owning trading account
	PairSymbol string         // Symbol of the tradable pair (e.g., "EURUSD")
	Direction  Direction      // buy or sell
	Volume     float64        // Size in lots
	EntryPrice float64        // Price at which the position was entered
	EntryTime  time.Time      // Timestamp when the position was entered
	StopLoss   float64        // Price level for stop-loss (0 if not set)
	TakeProfit float64        // Price level for take-profit (0 if not set)
	Leverage   int            // Leverage used for the position
	Timeframe  Timeframe      // Chart timeframe, scales simulation thresholds
	FloatingPL float64        // Unrealized P&L, updated on every evaluation
	Status     PositionStatus // Current status (open, closed)
	IsCopied   bool           // True when created by copy propagation; never re-propagated
}

// IsOpen checks if the position status is open.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}
