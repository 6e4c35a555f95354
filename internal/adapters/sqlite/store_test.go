package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"traderiser/internal/domain"
	"traderiser/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Store, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "traderiser-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	store, err := NewStore(Config{
		DBPath: dbPath,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, cleanup
}

func newAccount(t *testing.T, store *Store, userID int64, accountType domain.AccountType, privileged bool) int64 {
	t.Helper()
	id, err := store.CreateAccount(context.Background(), &domain.Account{
		UserID:     userID,
		Type:       accountType,
		Privileged: privileged,
	})
	require.NoError(t, err)
	return id
}

func TestStore_PairRoundTrip(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.FindPair(ctx, "EURUSD")
	assert.ErrorIs(t, err, ports.ErrPairNotFound)

	pair := &domain.TradablePair{
		Symbol:           "EURUSD",
		BaseCurrency:     "EUR",
		QuoteCurrency:    "USD",
		PipSize:          0.0001,
		ContractSize:     100000,
		Spread:           0.0001,
		BasePrice:        1.1000,
		DefaultTimeframe: domain.TimeframeM1,
	}
	require.NoError(t, store.UpsertPair(ctx, pair))

	found, err := store.FindPair(ctx, "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, pair, found)

	// Upsert replaces in place.
	pair.BasePrice = 1.2000
	require.NoError(t, store.UpsertPair(ctx, pair))
	found, err = store.FindPair(ctx, "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 1.2000, found.BasePrice)

	require.NoError(t, store.UpsertPair(ctx, &domain.TradablePair{
		Symbol: "AUDUSD", BaseCurrency: "AUD", QuoteCurrency: "USD",
		PipSize: 0.0001, ContractSize: 100000, Spread: 0.0002, BasePrice: 0.6500,
		DefaultTimeframe: domain.TimeframeM5,
	}))
	pairs, err := store.ListPairs(ctx)
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, "AUDUSD", pairs[0].Symbol)
	assert.Equal(t, "EURUSD", pairs[1].Symbol)
}

func TestStore_Accounts(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	id := newAccount(t, store, 7, domain.AccountProFX, true)

	acct, err := store.FindAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(7), acct.UserID)
	assert.Equal(t, domain.AccountProFX, acct.Type)
	assert.True(t, acct.Privileged)

	privileged, err := store.IsPrivileged(ctx, id)
	require.NoError(t, err)
	assert.True(t, privileged)

	_, err = store.FindAccount(ctx, 9999)
	assert.ErrorIs(t, err, ports.ErrAccountNotFound)
	_, err = store.IsPrivileged(ctx, 9999)
	assert.ErrorIs(t, err, ports.ErrAccountNotFound)
}

func TestStore_WalletSettlement(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	id := newAccount(t, store, 1, domain.AccountStandard, false)

	_, err := store.GetBalance(ctx, id, domain.CurrencyUSD)
	assert.ErrorIs(t, err, ports.ErrWalletNotFound)
	_, err = store.AdjustWithEntry(ctx, id, domain.CurrencyUSD, 10, domain.EntryCredit, "no wallet")
	assert.ErrorIs(t, err, ports.ErrWalletNotFound)

	require.NoError(t, store.CreateWallet(ctx, id, domain.CurrencyUSD, 100))
	// A second create leaves the balance alone.
	require.NoError(t, store.CreateWallet(ctx, id, domain.CurrencyUSD, 999))

	balance, err := store.GetBalance(ctx, id, domain.CurrencyUSD)
	require.NoError(t, err)
	assert.Equal(t, 100.0, balance)

	balance, err = store.Adjust(ctx, id, domain.CurrencyUSD, -30)
	require.NoError(t, err)
	assert.Equal(t, 70.0, balance)

	balance, err = store.AdjustWithEntry(ctx, id, domain.CurrencyUSD, 5.5, domain.EntryProfit, "Forex close: EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 75.5, balance)

	entry := &domain.LedgerEntry{AccountID: id, Amount: 1, Type: domain.EntryTrade, Description: "manual adjustment"}
	require.NoError(t, store.Append(ctx, entry))
	assert.NotZero(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestStore_PositionLifecycle(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	accountID := newAccount(t, store, 1, domain.AccountStandard, false)

	pos := &domain.Position{
		AccountID:  accountID,
		PairSymbol: "EURUSD",
		Direction:  domain.Buy,
		Volume:     0.01,
		EntryPrice: 1.1000,
		EntryTime:  time.Now().UTC().Truncate(time.Second),
		StopLoss:   1.0950,
		TakeProfit: 1.1100,
		Leverage:   500,
		Timeframe:  domain.TimeframeM1,
		Status:     domain.StatusOpen,
	}
	id, err := store.Create(ctx, pos)
	require.NoError(t, err)
	assert.Equal(t, id, pos.ID)

	found, err := store.FindByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, domain.Buy, found.Direction)
	assert.Equal(t, domain.TimeframeM1, found.Timeframe)
	assert.Equal(t, domain.StatusOpen, found.Status)

	missing, err := store.FindByID(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	pos.FloatingPL = 1.5
	require.NoError(t, store.Update(ctx, pos))
	found, err = store.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1.5, found.FloatingPL)

	updated, err := store.UpdateFloatingPL(ctx, id, 2.5)
	require.NoError(t, err)
	assert.True(t, updated)
	found, err = store.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2.5, found.FloatingPL)

	open, err := store.FindOpenByAccount(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	all, err := store.FindOpenAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	closed, err := store.CloseCAS(ctx, id)
	require.NoError(t, err)
	assert.True(t, closed)

	// Second close is a no-op.
	closed, err = store.CloseCAS(ctx, id)
	require.NoError(t, err)
	assert.False(t, closed)

	found, err = store.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, found.Status)
	assert.Zero(t, found.FloatingPL)

	// The floating P&L guard refuses writes to a closed position.
	updated, err = store.UpdateFloatingPL(ctx, id, 9.9)
	require.NoError(t, err)
	assert.False(t, updated)
	found, err = store.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, found.FloatingPL)

	open, err = store.FindOpenByAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestStore_ClosedTrades(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	accountID := newAccount(t, store, 1, domain.AccountStandard, false)

	now := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		trade := &domain.ClosedTrade{
			PositionID:  int64(i + 1),
			AccountID:   accountID,
			PairSymbol:  "EURUSD",
			Direction:   domain.Buy,
			Volume:      0.01,
			Leverage:    500,
			Amount:      2.2,
			EntryPrice:  1.1000,
			ClosePrice:  1.1020,
			RealizedPL:  float64(i),
			EntryTime:   now.Add(-time.Hour),
			CloseTime:   now.Add(time.Duration(i) * time.Minute),
			CloseReason: domain.CloseReasonManual,
		}
		_, err := store.CreateClosedTrade(ctx, trade)
		require.NoError(t, err)
	}

	trades, err := store.FindByAccount(ctx, accountID, 0)
	require.NoError(t, err)
	require.Len(t, trades, 3)
	// Newest close first.
	assert.Equal(t, 2.0, trades[0].RealizedPL)

	trades, err = store.FindByAccount(ctx, accountID, 2)
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}

func TestStore_LeadTradersAndSubscriptions(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	leadAccount := newAccount(t, store, 10, domain.AccountProFX, false)
	subscriber := newAccount(t, store, 20, domain.AccountStandard, false)

	lt := &domain.LeadTrader{
		AccountID:             leadAccount,
		RiskLevel:             domain.RiskHigh,
		MinAllocation:         50,
		PerformanceFeePercent: 20,
		IsActive:              true,
	}
	ltID, err := store.CreateLeadTrader(ctx, lt)
	require.NoError(t, err)

	found, err := store.FindLeadTraderByID(ctx, ltID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, domain.RiskHigh, found.RiskLevel)

	byAccount, err := store.FindLeadTraderByAccount(ctx, leadAccount)
	require.NoError(t, err)
	require.NotNil(t, byAccount)
	assert.Equal(t, ltID, byAccount.ID)

	none, err := store.FindLeadTraderByAccount(ctx, subscriber)
	require.NoError(t, err)
	assert.Nil(t, none)

	now := time.Now().UTC().Truncate(time.Second)
	sub := &domain.CopySubscription{
		AccountID:          subscriber,
		LeadTraderID:       ltID,
		AllocatedAmount:    100,
		MaxDrawdownPercent: 20,
		PeakValue:          100,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	subID, err := store.CreateSubscription(ctx, sub)
	require.NoError(t, err)

	_, err = store.CreateSubscription(ctx, &domain.CopySubscription{
		AccountID: subscriber, LeadTraderID: ltID, AllocatedAmount: 200,
		MaxDrawdownPercent: 20, PeakValue: 200, IsActive: true, CreatedAt: now, UpdatedAt: now,
	})
	assert.ErrorIs(t, err, ports.ErrSubscriptionExists)

	active, err := store.ActiveSubscriptions(ctx, ltID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	count, err := store.CountActiveSubscriptions(ctx, ltID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	sub.IsActive = false
	sub.PeakValue = 130
	require.NoError(t, store.UpdateSubscription(ctx, sub))

	stored, err := store.FindSubscriptionByID(ctx, subID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Equal(t, 130.0, stored.PeakValue)

	active, err = store.ActiveSubscriptions(ctx, ltID)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestStore_SignalsAndCopiedTrades(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	sig := &domain.TradeSignal{
		ID:           "sig-1",
		LeadTraderID: 1,
		PairSymbol:   "EURUSD",
		Direction:    domain.SignalCall,
		Amount:       200,
		EntryPrice:   1.1000,
		Profit:       20,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.CreateSignal(ctx, sig))

	ct := &domain.CopiedTrade{
		SubscriptionID: 1,
		SignalID:       "sig-1",
		PositionID:     5,
		ScaledAmount:   100,
		Profit:         10,
	}
	_, err := store.CreateCopiedTrade(ctx, ct)
	require.NoError(t, err)

	total, err := store.CopiedProfitBySubscription(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 10.0, total)

	require.NoError(t, store.FinalizeFee(ctx, ct.ID, 8, 2))
	err = store.FinalizeFee(ctx, ct.ID, 8, 2)
	assert.ErrorIs(t, err, ports.ErrFeeAlreadyApplied)
	err = store.FinalizeFee(ctx, 9999, 8, 2)
	assert.ErrorIs(t, err, ports.ErrNotFound)

	total, err = store.CopiedProfitBySubscription(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 8.0, total)
}

func TestStore_FindFeeAccount(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	// The lead trader trades from a demo account but owns a standard one
	// under the same user; fees go to the standard account.
	demoAccount := newAccount(t, store, 10, domain.AccountDemo, false)
	standardAccount := newAccount(t, store, 10, domain.AccountStandard, false)

	ltID, err := store.CreateLeadTrader(ctx, &domain.LeadTrader{
		AccountID: demoAccount, RiskLevel: domain.RiskLow,
		MinAllocation: 50, PerformanceFeePercent: 20, IsActive: true,
	})
	require.NoError(t, err)

	feeAccount, err := store.FindFeeAccount(ctx, ltID)
	require.NoError(t, err)
	assert.Equal(t, standardAccount, feeAccount)

	// A user with only demo accounts has nowhere to receive fees.
	demoOnly := newAccount(t, store, 30, domain.AccountDemo, false)
	orphanID, err := store.CreateLeadTrader(ctx, &domain.LeadTrader{
		AccountID: demoOnly, RiskLevel: domain.RiskLow,
		MinAllocation: 50, PerformanceFeePercent: 20, IsActive: true,
	})
	require.NoError(t, err)

	_, err = store.FindFeeAccount(ctx, orphanID)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}
