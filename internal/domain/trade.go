package domain

import "time"

// ClosedTrade is the immutable record created when a position transitions to
// closed. Exactly one exists per closed position.
type ClosedTrade struct {
	ID         int64       // Unique identifier for the trade (assigned by the store)
	PositionID int64       // Position this trade closed
	AccountID  int64       // Owning trading account
	PairSymbol string      // Symbol of the tradable pair
	Direction  Direction   // Side of the closed position
	Volume     float64     // Size in lots
	Leverage   int         // Leverage used for the position
	Amount     float64     // Capital committed (initial margin); the stake copy scaling works from
	EntryPrice float64     // Price at which the position was entered
	ClosePrice float64     // Price at which the position was closed
	RealizedPL float64     // Profit or loss locked in at close
	EntryTime  time.Time   // Timestamp when the position was entered
	CloseTime  time.Time   // Timestamp when the position was closed
	CloseReason CloseReason // Why the position was closed
	IsCopied   bool        // True when this trade settled a propagated copy
}

// IsWin reports whether the trade realized a profit.
func (t *ClosedTrade) IsWin() bool {
	return t.RealizedPL > 0
}

// LedgerEntry is an append-only record of a wallet mutation or adjustment.
type LedgerEntry struct {
	ID          int64
	AccountID   int64
	Amount      float64
	Type        LedgerEntryType
	Description string
	CreatedAt   time.Time
}

// Account is a trading account; wallets hang off accounts and are mutated
// only through the settlement stores. A user may own several accounts of
// different tiers.
type Account struct {
	ID         int64
	UserID     int64
	Type       AccountType
	Privileged bool // flagged accounts receive deterministically favorable simulated outcomes
	CreatedAt  time.Time
}
