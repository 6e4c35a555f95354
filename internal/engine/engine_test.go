package engine

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traderiser/internal/adapters/memory"
	"traderiser/internal/domain"
	"traderiser/internal/ports"
	"traderiser/internal/pricing"
	"traderiser/internal/risk"
)

// Mock implementations

type mockLogger struct {
	mu        sync.Mutex
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

var testPair = &domain.TradablePair{
	Symbol:           "EURUSD",
	BaseCurrency:     "EUR",
	QuoteCurrency:    "USD",
	PipSize:          0.0001,
	ContractSize:     100000,
	Spread:           0.0001,
	BasePrice:        1.1000,
	DefaultTimeframe: domain.TimeframeM1,
}

type testEnv struct {
	engine *Engine
	store  *memory.Store
	logger *mockLogger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	store := memory.NewStore()
	require.NoError(t, store.UpsertPair(ctx, testPair))

	logger := &mockLogger{}
	sim := pricing.New(pricing.Config{Rand: rand.New(rand.NewSource(1))})
	eng, err := New(Config{DefaultLeverage: 500}, logger, sim, risk.NewEvaluator(),
		store, store, store, store, ports.NewKeyedMutex())
	require.NoError(t, err)

	return &testEnv{engine: eng, store: store, logger: logger}
}

// addAccount creates an account with a funded USD wallet and returns its ID.
func (env *testEnv) addAccount(t *testing.T, balance float64, privileged bool) int64 {
	t.Helper()
	id, err := env.store.CreateAccount(context.Background(), &domain.Account{
		UserID:     1,
		Type:       domain.AccountProFX,
		Privileged: privileged,
	})
	require.NoError(t, err)
	env.store.SetBalance(id, domain.CurrencyUSD, balance)
	return id
}

// seedPosition inserts an open position directly so tests control the entry
// price instead of going through the simulated entry quote.
func (env *testEnv) seedPosition(t *testing.T, accountID int64, direction domain.Direction, entryPrice, sl, tp float64) *domain.Position {
	t.Helper()
	pos := &domain.Position{
		AccountID:  accountID,
		PairSymbol: testPair.Symbol,
		Direction:  direction,
		Volume:     0.01,
		EntryPrice: entryPrice,
		EntryTime:  time.Now(),
		StopLoss:   sl,
		TakeProfit: tp,
		Leverage:   500,
		Timeframe:  domain.TimeframeM1,
		Status:     domain.StatusOpen,
	}
	_, err := env.store.Create(context.Background(), pos)
	require.NoError(t, err)
	return pos
}

func TestOpenPositionDebitsMargin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	accountID := env.addAccount(t, 1000, false)

	pos, err := env.engine.OpenPosition(ctx, OrderRequest{
		AccountID:  accountID,
		PairSymbol: "EURUSD",
		Direction:  domain.Buy,
		Volume:     0.01,
	})
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, domain.StatusOpen, pos.Status)
	assert.Equal(t, 500, pos.Leverage)
	assert.Equal(t, domain.TimeframeM1, pos.Timeframe)
	assert.Greater(t, pos.EntryPrice, 0.0)

	margin := 0.01 * 100000 * pos.EntryPrice / 500
	balance, err := env.store.GetBalance(ctx, accountID, domain.CurrencyUSD)
	require.NoError(t, err)
	assert.InDelta(t, 1000-margin, balance, 1e-9)

	entries := env.store.LedgerEntries(accountID)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EntryMarginLock, entries[0].Type)
	assert.InDelta(t, -margin, entries[0].Amount, 1e-9)
}

func TestOpenPositionInsufficientMargin(t *testing.T) {
	env := newTestEnv(t)
	accountID := env.addAccount(t, 0.50, false)

	_, err := env.engine.OpenPosition(context.Background(), OrderRequest{
		AccountID:  accountID,
		PairSymbol: "EURUSD",
		Direction:  domain.Buy,
		Volume:     0.01,
	})
	assert.ErrorIs(t, err, ports.ErrInsufficientMargin)
}

func TestOpenPositionUnknownPair(t *testing.T) {
	env := newTestEnv(t)
	accountID := env.addAccount(t, 1000, false)

	_, err := env.engine.OpenPosition(context.Background(), OrderRequest{
		AccountID:  accountID,
		PairSymbol: "XXXYYY",
		Direction:  domain.Buy,
		Volume:     0.01,
	})
	assert.ErrorIs(t, err, ports.ErrPairNotFound)
}

func TestOpenPositionInvalidOrder(t *testing.T) {
	env := newTestEnv(t)
	accountID := env.addAccount(t, 1000, false)

	_, err := env.engine.OpenPosition(context.Background(), OrderRequest{
		AccountID:  accountID,
		PairSymbol: "EURUSD",
		Direction:  "sideways",
		Volume:     0.01,
	})
	assert.ErrorIs(t, err, ports.ErrInvalidOrder)

	_, err = env.engine.OpenPosition(context.Background(), OrderRequest{
		AccountID:  accountID,
		PairSymbol: "EURUSD",
		Direction:  domain.Buy,
		Volume:     0,
	})
	assert.ErrorIs(t, err, ports.ErrInvalidOrder)
}

func TestEvaluateUpdatesFloatingPLAndStaysOpen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	accountID := env.addAccount(t, 1000, true)
	pos := env.seedPosition(t, accountID, domain.Buy, 1.1000, 0, 0)

	// 20 pips in favor: the favorable quote a privileged position sees past
	// its threshold.
	require.NoError(t, env.engine.Evaluate(ctx, pos, 1.1020))

	assert.Equal(t, domain.StatusOpen, pos.Status)
	assert.InDelta(t, 2.0-0.00001, pos.FloatingPL, 1e-9)

	stored, err := env.store.FindByID(ctx, pos.ID)
	require.NoError(t, err)
	assert.InDelta(t, pos.FloatingPL, stored.FloatingPL, 1e-9)
}

func TestEvaluateMarginCallCapsLoss(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	accountID := env.addAccount(t, 50, false)
	pos := env.seedPosition(t, accountID, domain.Buy, 1.1000, 0, 0)

	// 550 pips against: floating P&L is about -55, past the $50 balance.
	require.NoError(t, env.engine.Evaluate(ctx, pos, 1.0450))

	stored, err := env.store.FindByID(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, stored.Status)
	assert.Zero(t, stored.FloatingPL)

	trades, err := env.store.FindByAccount(ctx, accountID, 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, domain.CloseReasonMarginCall, trades[0].CloseReason)
	assert.InDelta(t, -50, trades[0].RealizedPL, 1e-9)

	// Loss capped at the pre-close balance; only the released margin remains.
	margin := 0.01 * 100000 * 1.1000 / 500
	balance, err := env.store.GetBalance(ctx, accountID, domain.CurrencyUSD)
	require.NoError(t, err)
	assert.InDelta(t, margin, balance, 1e-9)
	assert.GreaterOrEqual(t, balance, 0.0)
}

func TestEvaluateStopLossCloses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	accountID := env.addAccount(t, 1000, false)
	pos := env.seedPosition(t, accountID, domain.Buy, 1.1000, 1.0990, 0)

	require.NoError(t, env.engine.Evaluate(ctx, pos, 1.0985))

	trades, err := env.store.FindByAccount(ctx, accountID, 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, domain.CloseReasonStopLoss, trades[0].CloseReason)
}

func TestEvaluateTakeProfitCloses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	accountID := env.addAccount(t, 1000, false)
	pos := env.seedPosition(t, accountID, domain.Sell, 1.1000, 0, 1.0985)

	require.NoError(t, env.engine.Evaluate(ctx, pos, 1.0980))

	trades, err := env.store.FindByAccount(ctx, accountID, 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, domain.CloseReasonTakeProfit, trades[0].CloseReason)
}

func TestEvaluateNeverMarginCallsPrivileged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	accountID := env.addAccount(t, 50, true)
	pos := env.seedPosition(t, accountID, domain.Buy, 1.1000, 0, 0)

	require.NoError(t, env.engine.Evaluate(ctx, pos, 1.0450))

	stored, err := env.store.FindByID(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, stored.Status)
}

func TestClosePositionSettlesWallet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	accountID := env.addAccount(t, 100, false)
	pos := env.seedPosition(t, accountID, domain.Buy, 1.1000, 0, 0)

	trade, err := env.engine.ClosePosition(ctx, pos.ID, 1.1020, domain.CloseReasonManual)
	require.NoError(t, err)
	require.NotNil(t, trade)

	wantPL := 2.0 - 0.00001
	assert.InDelta(t, wantPL, trade.RealizedPL, 1e-9)
	assert.Equal(t, domain.CloseReasonManual, trade.CloseReason)
	assert.Equal(t, pos.ID, trade.PositionID)

	margin := 0.01 * 100000 * 1.1000 / 500
	balance, err := env.store.GetBalance(ctx, accountID, domain.CurrencyUSD)
	require.NoError(t, err)
	assert.InDelta(t, 100+margin+wantPL, balance, 1e-9)

	entries := env.store.LedgerEntries(accountID)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.EntryMarginRelease, entries[0].Type)
	assert.Equal(t, domain.EntryProfit, entries[1].Type)
}

func TestClosePositionIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	accountID := env.addAccount(t, 100, false)
	pos := env.seedPosition(t, accountID, domain.Buy, 1.1000, 0, 0)

	first, err := env.engine.ClosePosition(ctx, pos.ID, 1.1020, domain.CloseReasonManual)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := env.engine.ClosePosition(ctx, pos.ID, 1.1020, domain.CloseReasonManual)
	require.NoError(t, err)
	assert.Nil(t, second)

	trades, err := env.store.FindByAccount(ctx, accountID, 0)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestEvaluateDoesNotResurrectClosedPosition(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	accountID := env.addAccount(t, 100, false)
	pos := env.seedPosition(t, accountID, domain.Buy, 1.1000, 0, 0)

	// Snapshot the position the way the evaluation loop holds it, then let
	// a manual close win the race before the evaluation writes back.
	stale := *pos
	trade, err := env.engine.ClosePosition(ctx, pos.ID, 1.1020, domain.CloseReasonManual)
	require.NoError(t, err)
	require.NotNil(t, trade)

	require.NoError(t, env.engine.Evaluate(ctx, &stale, 1.1030))
	assert.Equal(t, domain.StatusClosed, stale.Status)

	current, err := env.store.FindByID(ctx, pos.ID)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, domain.StatusClosed, current.Status)
	assert.Zero(t, current.FloatingPL)

	// A repeated close after the stale evaluation stays a no-op.
	again, err := env.engine.ClosePosition(ctx, pos.ID, 1.1030, domain.CloseReasonManual)
	require.NoError(t, err)
	assert.Nil(t, again)

	trades, err := env.store.FindByAccount(ctx, accountID, 0)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestClosePositionReopensOnSettlementFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	// Account without a wallet; settlement has nothing to credit.
	accountID, err := env.store.CreateAccount(ctx, &domain.Account{
		UserID: 1,
		Type:   domain.AccountProFX,
	})
	require.NoError(t, err)
	pos := env.seedPosition(t, accountID, domain.Buy, 1.1000, 0, 0)

	_, err = env.engine.ClosePosition(ctx, pos.ID, 1.1020, domain.CloseReasonManual)
	require.ErrorIs(t, err, ports.ErrWalletNotFound)

	current, err := env.store.FindByID(ctx, pos.ID)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, domain.StatusOpen, current.Status)

	trades, err := env.store.FindByAccount(ctx, accountID, 0)
	require.NoError(t, err)
	assert.Empty(t, trades)

	// Once the wallet exists the retry settles and records the trade.
	env.store.SetBalance(accountID, domain.CurrencyUSD, 100)
	trade, err := env.engine.ClosePosition(ctx, pos.ID, 1.1020, domain.CloseReasonManual)
	require.NoError(t, err)
	require.NotNil(t, trade)

	wantPL := 2.0 - 0.00001
	margin := 0.01 * 100000 * 1.1000 / 500
	balance, err := env.store.GetBalance(ctx, accountID, domain.CurrencyUSD)
	require.NoError(t, err)
	assert.InDelta(t, 100+margin+wantPL, balance, 1e-9)

	trades, err = env.store.FindByAccount(ctx, accountID, 0)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestClosePositionConcurrentProducesOneTrade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	accountID := env.addAccount(t, 100, false)
	pos := env.seedPosition(t, accountID, domain.Buy, 1.1000, 0, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.ClosePosition(ctx, pos.ID, 1.1020, domain.CloseReasonManual)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	trades, err := env.store.FindByAccount(ctx, accountID, 0)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestClosePositionNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.ClosePosition(context.Background(), 9999, 1.1, domain.CloseReasonManual)
	assert.ErrorIs(t, err, ports.ErrPositionNotFound)
}

func TestClosePositionPrivilegedLossReversal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	accountID := env.addAccount(t, 100, true)
	pos := env.seedPosition(t, accountID, domain.Buy, 1.1000, 0, 0)

	// 100 pips against: a -10.00001 loss, inverted into a reduced gain.
	trade, err := env.engine.ClosePosition(ctx, pos.ID, 1.0900, domain.CloseReasonManual)
	require.NoError(t, err)
	require.NotNil(t, trade)
	wantPL := 10.00001 * 0.9
	assert.InDelta(t, wantPL, trade.RealizedPL, 1e-9)

	var sawAdjustment bool
	for _, e := range env.store.LedgerEntries(accountID) {
		if e.Type == domain.EntryTrade {
			sawAdjustment = true
			assert.InDelta(t, wantPL, e.Amount, 1e-9)
		}
	}
	assert.True(t, sawAdjustment, "expected a ledger adjustment entry for the reversed loss")
}

func TestCloseAllPositions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	accountID := env.addAccount(t, 1000, false)
	env.seedPosition(t, accountID, domain.Buy, 1.1000, 0, 0)
	env.seedPosition(t, accountID, domain.Sell, 1.1000, 0, 0)

	trades, err := env.engine.CloseAllPositions(ctx, accountID)
	require.NoError(t, err)
	assert.Len(t, trades, 2)
	for _, trade := range trades {
		assert.Equal(t, domain.CloseReasonManual, trade.CloseReason)
	}

	open, err := env.store.FindOpenByAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestEvaluateOpenPositionsReturnsUpdatedState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	accountID := env.addAccount(t, 1000, false)
	env.seedPosition(t, accountID, domain.Buy, 1.1000, 0, 0)

	positions, err := env.engine.EvaluateOpenPositions(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, positions, 1)
}

func TestTradeClosedHandlerInvoked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	accountID := env.addAccount(t, 100, false)
	pos := env.seedPosition(t, accountID, domain.Buy, 1.1000, 0, 0)

	var handled []*domain.ClosedTrade
	env.engine.SetTradeClosedHandler(func(ctx context.Context, trade *domain.ClosedTrade) {
		handled = append(handled, trade)
	})

	_, err := env.engine.ClosePosition(ctx, pos.ID, 1.1020, domain.CloseReasonManual)
	require.NoError(t, err)
	require.Len(t, handled, 1)
	assert.Equal(t, pos.ID, handled[0].PositionID)
}

func TestTradeClosedHandlerSkippedForCopiedPositions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	accountID := env.addAccount(t, 100, false)
	pos := env.seedPosition(t, accountID, domain.Buy, 1.1000, 0, 0)
	pos.IsCopied = true
	require.NoError(t, env.store.Update(ctx, pos))

	var handled int
	env.engine.SetTradeClosedHandler(func(ctx context.Context, trade *domain.ClosedTrade) {
		handled++
	})

	_, err := env.engine.ClosePosition(ctx, pos.ID, 1.1020, domain.CloseReasonManual)
	require.NoError(t, err)
	assert.Zero(t, handled)
}

func TestRunEvaluationLoopStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	accountID := env.addAccount(t, 1000, false)
	env.seedPosition(t, accountID, domain.Buy, 1.1000, 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- env.engine.RunEvaluationLoop(ctx, 5*time.Millisecond)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("evaluation loop did not stop after cancellation")
	}
}
