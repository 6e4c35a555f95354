package domain

import "time"

// RiskLevel is the advertised risk tier of a lead trader.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// LeadTrader wraps a trading account that is eligible to be copied.
type LeadTrader struct {
	ID                    int64
	AccountID             int64 // the account whose closed trades propagate
	RiskLevel             RiskLevel
	MinAllocation         float64 // minimum capital a subscription must allocate
	PerformanceFeePercent float64 // share of copied profit paid to the trader
	IsActive              bool
	CreatedAt             time.Time
}

// CopySubscription binds a subscriber account to a lead trader.
// Deactivation is a business state: breached drawdown or a manual pause
// flips IsActive, the record is never deleted.
type CopySubscription struct {
	ID                 int64
	AccountID          int64 // subscriber account
	LeadTraderID       int64
	AllocatedAmount    float64
	MaxDrawdownPercent float64
	PeakValue          float64 // running high-water mark of allocated + copied profit
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SignalDirection is the normalized direction carried on a trade signal.
type SignalDirection string

const (
	SignalCall SignalDirection = "call"
	SignalPut  SignalDirection = "put"
)

// ToDirection maps a signal direction back to the position side used on the
// copied settlement trade.
func (d SignalDirection) ToDirection() Direction {
	if d == SignalPut {
		return Sell
	}
	return Buy
}

// SignalDirectionFrom maps a position side to its signal direction.
func SignalDirectionFrom(d Direction) SignalDirection {
	if d == Sell {
		return SignalPut
	}
	return SignalCall
}

// TradeSignal is an immutable record derived from a lead trader's closed
// trade. Created once per propagating trade, never mutated.
type TradeSignal struct {
	ID           string // UUID, assigned at creation
	LeadTraderID int64
	PairSymbol   string
	Direction    SignalDirection
	Amount       float64 // the lead trade's committed capital
	EntryPrice   float64
	Profit       float64 // the lead trade's realized P&L
	CreatedAt    time.Time
}

// CopiedTrade links a subscription, the originating signal, and the
// settlement trade created for the subscriber. Profit and FeePaid are set
// exactly once by the fee engine immediately after creation, then frozen.
type CopiedTrade struct {
	ID             int64
	SubscriptionID int64
	SignalID       string
	PositionID     int64 // settlement position created for the subscriber
	ScaledAmount   float64
	Profit         float64 // realized profit, net of fee once applied
	FeePaid        float64
	CreatedAt      time.Time
}
