package ports

import (
	"context"

	"traderiser/internal/domain"
)

// PairStore provides read access to tradable-pair reference data and a
// seeding hook for startup.
type PairStore interface {
	// FindPair retrieves a pair by symbol. Returns ErrPairNotFound when unknown.
	FindPair(ctx context.Context, symbol string) (*domain.TradablePair, error)
	// ListPairs retrieves all pairs ordered by symbol.
	ListPairs(ctx context.Context) ([]*domain.TradablePair, error)
	// UpsertPair inserts or replaces a pair definition. Used only at seed time.
	UpsertPair(ctx context.Context, pair *domain.TradablePair) error
}

// AccountStore provides read access to account flags and tiers.
type AccountStore interface {
	// FindAccount retrieves an account by ID. Returns ErrAccountNotFound when unknown.
	FindAccount(ctx context.Context, accountID int64) (*domain.Account, error)
	// IsPrivileged reports whether the account is flagged for favorable simulation.
	IsPrivileged(ctx context.Context, accountID int64) (bool, error)
	// CreateAccount saves a new account and returns its assigned ID.
	CreateAccount(ctx context.Context, acct *domain.Account) (int64, error)
}

// WalletStore reads and mutates wallet balances. Adjust must be atomic at
// the store level; callers additionally serialize per-wallet through a
// KeyedMutex for check-then-mutate sequences.
type WalletStore interface {
	// GetBalance returns the balance of the account's wallet in the given
	// currency. Returns ErrWalletNotFound when the wallet does not exist.
	GetBalance(ctx context.Context, accountID int64, currency string) (float64, error)
	// Adjust applies delta to the wallet balance and returns the new balance.
	Adjust(ctx context.Context, accountID int64, currency string, delta float64) (float64, error)
}

// LedgerStore appends audit entries for wallet mutations and adjustments.
type LedgerStore interface {
	Append(ctx context.Context, entry *domain.LedgerEntry) error
}

// SettlementStore combines wallet and ledger access with an atomic
// adjust-plus-append operation. Every settlement (margin debit, close
// credit, copy credit, fee transfer) goes through AdjustWithEntry so the
// balance change and its audit entry land together or not at all.
type SettlementStore interface {
	WalletStore
	LedgerStore
	AccountStore

	// AdjustWithEntry applies delta to the wallet and appends a ledger entry
	// of the given type and description as one atomic unit. Returns the new
	// balance.
	AdjustWithEntry(ctx context.Context, accountID int64, currency string, delta float64, entryType domain.LedgerEntryType, description string) (float64, error)
}

// PositionStore stores and retrieves positions.
type PositionStore interface {
	// Create saves a new position and returns its assigned ID.
	Create(ctx context.Context, pos *domain.Position) (int64, error)
	// Update rewrites an existing position record wholesale. Callers must
	// hold the position's close lock; periodic evaluation goes through
	// UpdateFloatingPL instead so it cannot overwrite a concurrent close.
	Update(ctx context.Context, pos *domain.Position) error
	// UpdateFloatingPL sets the floating P&L only while the position is
	// still open. Returns false when the position has already reached a
	// terminal state, leaving the record untouched.
	UpdateFloatingPL(ctx context.Context, id int64, floatingPL float64) (bool, error)
	// FindByID retrieves a position by its unique ID.
	// Returns nil, nil if not found.
	FindByID(ctx context.Context, id int64) (*domain.Position, error)
	// FindOpenByAccount retrieves all open positions for an account,
	// ordered by entry time descending.
	FindOpenByAccount(ctx context.Context, accountID int64) ([]*domain.Position, error)
	// FindOpenAll retrieves all open positions across accounts.
	FindOpenAll(ctx context.Context) ([]*domain.Position, error)
	// CloseCAS flips the position from open to closed and zeroes its
	// floating P&L in one statement. Returns false when the position was
	// already closed, guaranteeing at-most-once close settlement.
	CloseCAS(ctx context.Context, id int64) (bool, error)
}

// TradeStore stores and retrieves closed-trade records.
type TradeStore interface {
	// CreateClosedTrade saves a new closed-trade record and returns its ID.
	CreateClosedTrade(ctx context.Context, trade *domain.ClosedTrade) (int64, error)
	// FindByAccount retrieves the most recent closed trades for an account,
	// up to limit (0 = no limit).
	FindByAccount(ctx context.Context, accountID int64, limit int) ([]*domain.ClosedTrade, error)
}

// CopyTradingStore stores lead traders, subscriptions, signals, and copied
// trades.
type CopyTradingStore interface {
	// CreateLeadTrader saves a new lead trader profile and returns its ID.
	CreateLeadTrader(ctx context.Context, lt *domain.LeadTrader) (int64, error)
	// FindLeadTraderByID retrieves a lead trader. Returns nil, nil if not found.
	FindLeadTraderByID(ctx context.Context, id int64) (*domain.LeadTrader, error)
	// FindLeadTraderByAccount retrieves the lead trader profile wrapping the
	// given trading account. Returns nil, nil if the account is not a
	// registered lead trader.
	FindLeadTraderByAccount(ctx context.Context, accountID int64) (*domain.LeadTrader, error)

	// CreateSubscription saves a new subscription and returns its ID.
	// Returns ErrSubscriptionExists when the (account, trader) pair already
	// has one.
	CreateSubscription(ctx context.Context, sub *domain.CopySubscription) (int64, error)
	// UpdateSubscription persists the active flag and peak value.
	UpdateSubscription(ctx context.Context, sub *domain.CopySubscription) error
	// FindSubscriptionByID retrieves a subscription. Returns nil, nil if not found.
	FindSubscriptionByID(ctx context.Context, id int64) (*domain.CopySubscription, error)
	// ActiveSubscriptions retrieves all active subscriptions for a lead trader.
	ActiveSubscriptions(ctx context.Context, leadTraderID int64) ([]*domain.CopySubscription, error)
	// CountActiveSubscriptions counts active subscriptions for a lead trader.
	CountActiveSubscriptions(ctx context.Context, leadTraderID int64) (int, error)

	// CreateSignal saves an immutable trade signal.
	CreateSignal(ctx context.Context, sig *domain.TradeSignal) error

	// CreateCopiedTrade saves a new copied-trade record and returns its ID.
	CreateCopiedTrade(ctx context.Context, ct *domain.CopiedTrade) (int64, error)
	// CopiedProfitBySubscription sums recorded profit over a subscription's
	// copied trades.
	CopiedProfitBySubscription(ctx context.Context, subscriptionID int64) (float64, error)
	// FinalizeFee persists the reduced profit and fee exactly once.
	// Returns ErrFeeAlreadyApplied when the copied trade already carries a fee.
	FinalizeFee(ctx context.Context, copiedTradeID int64, profit, feePaid float64) error
	// FindFeeAccount returns the lead trader's first standard or pro-fx
	// account eligible for fee credits. Returns ErrNotFound when none exists.
	FindFeeAccount(ctx context.Context, leadTraderID int64) (int64, error)
}
