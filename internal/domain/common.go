package domain

// Direction represents the side of a position (buy or sell).
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// IsValid reports whether the direction is one of the known sides.
func (d Direction) IsValid() bool {
	return d == Buy || d == Sell
}

// PositionStatus represents the status of a trading position.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "open"
	StatusClosed PositionStatus = "closed"
)

// CloseReason indicates why a position was closed.
type CloseReason string

const (
	CloseReasonManual     CloseReason = "manual"
	CloseReasonStopLoss   CloseReason = "sl"
	CloseReasonTakeProfit CloseReason = "tp"
	CloseReasonMarginCall CloseReason = "margin"
	CloseReasonCopy       CloseReason = "copy" // settlement record of a propagated copy
)

// LedgerEntryType classifies ledger entries written by the engines.
type LedgerEntryType string

const (
	EntryMarginLock    LedgerEntryType = "margin_lock"
	EntryMarginRelease LedgerEntryType = "margin_release"
	EntryProfit        LedgerEntryType = "profit"
	EntryLoss          LedgerEntryType = "loss"
	EntryCredit        LedgerEntryType = "credit"
	EntryDebit         LedgerEntryType = "debit"
	EntryTrade         LedgerEntryType = "trade"
)

// AccountType identifies the product tier of a trading account.
type AccountType string

const (
	AccountStandard AccountType = "standard"
	AccountProFX    AccountType = "pro-fx"
	AccountDemo     AccountType = "demo"
)

// CurrencyUSD is the settlement currency for all simulated wallets.
const CurrencyUSD = "USD"

// Timeframe is a chart timeframe used to scale simulation thresholds.
type Timeframe string

const (
	TimeframeM1  Timeframe = "M1"
	TimeframeM5  Timeframe = "M5"
	TimeframeM15 Timeframe = "M15"
	TimeframeM30 Timeframe = "M30"
	TimeframeH1  Timeframe = "H1"
)

// Minutes returns the timeframe length in minutes. Unknown timeframes
// behave as M1 so threshold scaling stays well-defined.
func (t Timeframe) Minutes() int {
	switch t {
	case TimeframeM5:
		return 5
	case TimeframeM15:
		return 15
	case TimeframeM30:
		return 30
	case TimeframeH1:
		return 60
	default:
		return 1
	}
}
