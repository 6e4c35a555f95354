package engine

import (
	"context"
	"fmt"
	"time"

	"traderiser/internal/domain"
	"traderiser/internal/ports"
	"traderiser/internal/pricing"
	"traderiser/internal/risk"
)

// TradeClosedHandler is invoked synchronously after a close settles. The
// copy-trade propagator is wired in through this hook so package
// dependencies stay one-directional.
type TradeClosedHandler func(ctx context.Context, trade *domain.ClosedTrade)

// Config holds engine parameters.
type Config struct {
	// DefaultLeverage is applied to orders that do not specify leverage.
	DefaultLeverage int
	// Currency is the settlement currency for all wallets.
	Currency string
}

// Engine owns the position lifecycle: opening with margin debit, periodic
// risk evaluation, and idempotent close settlement.
type Engine struct {
	cfg        Config
	logger     ports.Logger
	sim        *pricing.Simulator
	eval       *risk.Evaluator
	pairs      ports.PairStore
	positions  ports.PositionStore
	trades     ports.TradeStore
	settlement ports.SettlementStore

	// wallets serializes settlements per account; shared with the copy-trade
	// engines so all wallet mutations in the process go through one lock set.
	wallets *ports.KeyedMutex
	// closing serializes close attempts per position.
	closing *ports.KeyedMutex

	onTradeClosed TradeClosedHandler
}

// New creates a position engine. All dependencies are required.
func New(
	cfg Config,
	logger ports.Logger,
	sim *pricing.Simulator,
	eval *risk.Evaluator,
	pairs ports.PairStore,
	positions ports.PositionStore,
	trades ports.TradeStore,
	settlement ports.SettlementStore,
	wallets *ports.KeyedMutex,
) (*Engine, error) {
	if logger == nil || sim == nil || eval == nil || pairs == nil || positions == nil || trades == nil || settlement == nil || wallets == nil {
		return nil, fmt.Errorf("missing required dependencies for Engine")
	}
	if cfg.DefaultLeverage <= 0 {
		cfg.DefaultLeverage = 500
	}
	if cfg.Currency == "" {
		cfg.Currency = domain.CurrencyUSD
	}
	return &Engine{
		cfg:        cfg,
		logger:     logger,
		sim:        sim,
		eval:       eval,
		pairs:      pairs,
		positions:  positions,
		trades:     trades,
		settlement: settlement,
		wallets:    wallets,
		closing:    ports.NewKeyedMutex(),
	}, nil
}

// SetTradeClosedHandler wires the post-close hook. Must be called before the
// engine starts processing; not safe to call concurrently with closes.
func (e *Engine) SetTradeClosedHandler(h TradeClosedHandler) {
	e.onTradeClosed = h
}

// OrderRequest describes a position to open.
type OrderRequest struct {
	AccountID  int64
	PairSymbol string
	Direction  domain.Direction
	Volume     float64          // lots
	StopLoss   float64          // 0 = not set
	TakeProfit float64          // 0 = not set
	Leverage   int              // 0 = engine default
	Timeframe  domain.Timeframe // "" = pair default
}

// OpenPosition creates a position at a simulated entry price, debiting the
// margin from the account wallet atomically. Fails with
// ErrInsufficientMargin when the wallet cannot cover the margin.
func (e *Engine) OpenPosition(ctx context.Context, req OrderRequest) (*domain.Position, error) {
	if !req.Direction.IsValid() {
		return nil, fmt.Errorf("direction %q: %w", req.Direction, ports.ErrInvalidOrder)
	}
	if req.Volume <= 0 {
		return nil, fmt.Errorf("volume %v: %w", req.Volume, ports.ErrInvalidOrder)
	}

	pair, err := e.pairs.FindPair(ctx, req.PairSymbol)
	if err != nil {
		return nil, err
	}

	leverage := req.Leverage
	if leverage <= 0 {
		leverage = e.cfg.DefaultLeverage
	}
	timeframe := req.Timeframe
	if timeframe == "" {
		timeframe = pair.DefaultTimeframe
	}

	entryPrice := e.sim.EntryQuote(pair)
	margin := e.eval.Margin(pair, req.Volume, entryPrice, leverage)

	e.wallets.Lock(req.AccountID)
	defer e.wallets.Unlock(req.AccountID)

	balance, err := e.settlement.GetBalance(ctx, req.AccountID, e.cfg.Currency)
	if err != nil {
		return nil, err
	}
	if balance < margin {
		return nil, fmt.Errorf("balance %.2f, margin %.2f: %w", balance, margin, ports.ErrInsufficientMargin)
	}

	if _, err := e.settlement.AdjustWithEntry(ctx, req.AccountID, e.cfg.Currency, -margin,
		domain.EntryMarginLock, fmt.Sprintf("Forex open: %s", pair.Symbol)); err != nil {
		return nil, fmt.Errorf("failed to debit margin: %w", err)
	}

	pos := &domain.Position{
		AccountID:  req.AccountID,
		PairSymbol: pair.Symbol,
		Direction:  req.Direction,
		Volume:     req.Volume,
		EntryPrice: entryPrice,
		EntryTime:  time.Now(),
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Leverage:   leverage,
		Timeframe:  timeframe,
		Status:     domain.StatusOpen,
	}
	if _, err := e.positions.Create(ctx, pos); err != nil {
		// Margin is already debited; put it back so the failed open leaves
		// the wallet untouched.
		if _, rbErr := e.settlement.AdjustWithEntry(ctx, req.AccountID, e.cfg.Currency, margin,
			domain.EntryMarginRelease, fmt.Sprintf("Forex open failed: %s", pair.Symbol)); rbErr != nil {
			e.logger.Error(ctx, rbErr, "Failed to refund margin after position create failure",
				map[string]interface{}{"accountID": req.AccountID, "margin": margin})
		}
		return nil, fmt.Errorf("failed to create position: %w", err)
	}

	e.logger.Info(ctx, "Position opened", map[string]interface{}{
		"positionID": pos.ID,
		"accountID":  pos.AccountID,
		"pair":       pos.PairSymbol,
		"direction":  pos.Direction,
		"volume":     pos.Volume,
		"entryPrice": pos.EntryPrice,
		"margin":     margin,
	})
	return pos, nil
}

// EvaluateOpenPositions re-evaluates every open position for the account and
// returns them with updated state. Side-effecting: positions whose stop-loss,
// take-profit, or margin-call condition fired are closed during the call.
func (e *Engine) EvaluateOpenPositions(ctx context.Context, accountID int64) ([]*domain.Position, error) {
	open, err := e.positions.FindOpenByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list open positions for account %d: %w", accountID, err)
	}
	for _, pos := range open {
		if err := e.Evaluate(ctx, pos, 0); err != nil {
			e.logger.Error(ctx, err, "Position evaluation failed",
				map[string]interface{}{"positionID": pos.ID, "accountID": accountID})
		}
	}
	return open, nil
}

// Evaluate updates the position's floating P&L at currentPrice and closes it
// when a trigger fires. A zero currentPrice asks the simulator for a quote
// using the account's privilege flag.
func (e *Engine) Evaluate(ctx context.Context, pos *domain.Position, currentPrice float64) error {
	if !pos.IsOpen() {
		return nil
	}

	pair, err := e.pairs.FindPair(ctx, pos.PairSymbol)
	if err != nil {
		return err
	}
	privileged, err := e.settlement.IsPrivileged(ctx, pos.AccountID)
	if err != nil {
		return err
	}
	if currentPrice == 0 {
		currentPrice = e.sim.Quote(pair, pos.EntryTime, pos.Timeframe, pos.Direction, privileged)
	}
	balance, err := e.settlement.GetBalance(ctx, pos.AccountID, e.cfg.Currency)
	if err != nil {
		return err
	}

	assessment := e.eval.Evaluate(pos, pair, currentPrice, balance, privileged)
	pos.FloatingPL = assessment.FloatingPL
	updated, err := e.positions.UpdateFloatingPL(ctx, pos.ID, pos.FloatingPL)
	if err != nil {
		return fmt.Errorf("failed to update floating P&L for position %d: %w", pos.ID, err)
	}
	if !updated {
		// Closed between our read and the update; the close path settled it.
		pos.Status = domain.StatusClosed
		pos.FloatingPL = 0
		return nil
	}
	e.logger.Debug(ctx, "Position evaluated", map[string]interface{}{
		"positionID":   pos.ID,
		"currentPrice": currentPrice,
		"floatingPL":   pos.FloatingPL,
	})

	if assessment.Trigger != nil {
		if _, err := e.ClosePosition(ctx, pos.ID, currentPrice, *assessment.Trigger); err != nil {
			return err
		}
		pos.Status = domain.StatusClosed
		pos.FloatingPL = 0
	}
	return nil
}

// ClosePosition settles an open position at the given price (0 = ask the
// simulator) and creates its ClosedTrade record. Idempotent: closing an
// already-closed position returns nil, nil. Close attempts on the same
// position serialize, so exactly one ClosedTrade is ever produced.
func (e *Engine) ClosePosition(ctx context.Context, positionID int64, price float64, reason domain.CloseReason) (*domain.ClosedTrade, error) {
	e.closing.Lock(positionID)
	defer e.closing.Unlock(positionID)

	pos, err := e.positions.FindByID(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load position %d: %w", positionID, err)
	}
	if pos == nil {
		return nil, fmt.Errorf("position %d: %w", positionID, ports.ErrPositionNotFound)
	}
	if !pos.IsOpen() {
		return nil, nil
	}

	pair, err := e.pairs.FindPair(ctx, pos.PairSymbol)
	if err != nil {
		return nil, err
	}
	privileged, err := e.settlement.IsPrivileged(ctx, pos.AccountID)
	if err != nil {
		return nil, err
	}
	if price == 0 {
		price = e.sim.Quote(pair, pos.EntryTime, pos.Timeframe, pos.Direction, privileged)
	}

	closed, err := e.positions.CloseCAS(ctx, pos.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark position %d closed: %w", pos.ID, err)
	}
	if !closed {
		return nil, nil
	}

	pl := e.eval.FloatingPL(pair, pos.Direction, pos.Volume, pos.EntryPrice, price)
	margin := e.eval.Margin(pair, pos.Volume, pos.EntryPrice, pos.Leverage)

	if privileged && pl < 0 {
		// Flagged accounts never realize a loss: the loss is inverted into a
		// reduced gain and recorded as its own ledger adjustment.
		pl = -pl * 0.9
		adj := &domain.LedgerEntry{
			AccountID:   pos.AccountID,
			Amount:      pl,
			Type:        domain.EntryTrade,
			Description: fmt.Sprintf("Simulated win adjustment: %s", pair.Symbol),
		}
		if err := e.settlement.Append(ctx, adj); err != nil {
			e.logger.Error(ctx, err, "Failed to record win adjustment entry",
				map[string]interface{}{"positionID": pos.ID})
		}
		e.logger.Info(ctx, "Applied win adjustment for privileged account", map[string]interface{}{
			"positionID": pos.ID,
			"accountID":  pos.AccountID,
			"adjustedPL": pl,
		})
	}

	// pos still carries its pre-close state, so writing it back reverts the
	// CAS when settlement fails and leaves the position closable again.
	reopen := func() {
		if err := e.positions.Update(ctx, pos); err != nil {
			e.logger.Error(ctx, err, "Failed to reopen position after settlement failure",
				map[string]interface{}{"positionID": pos.ID, "accountID": pos.AccountID})
		}
	}

	e.wallets.Lock(pos.AccountID)
	balance, err := e.settlement.GetBalance(ctx, pos.AccountID, e.cfg.Currency)
	if err != nil {
		e.wallets.Unlock(pos.AccountID)
		reopen()
		return nil, err
	}
	// Cap the loss so the wallet never goes negative.
	if pl < 0 && -pl > balance {
		e.logger.Info(ctx, "Loss capped to wallet balance", map[string]interface{}{
			"positionID": pos.ID,
			"loss":       pl,
			"balance":    balance,
		})
		pl = -balance
	}
	if _, err := e.settlement.AdjustWithEntry(ctx, pos.AccountID, e.cfg.Currency, margin,
		domain.EntryMarginRelease, fmt.Sprintf("Forex margin release: %s", pair.Symbol)); err != nil {
		e.wallets.Unlock(pos.AccountID)
		reopen()
		return nil, fmt.Errorf("failed to release margin for position %d: %w", pos.ID, err)
	}
	entryType := domain.EntryLoss
	if pl > 0 {
		entryType = domain.EntryProfit
	}
	if _, err := e.settlement.AdjustWithEntry(ctx, pos.AccountID, e.cfg.Currency, pl,
		entryType, fmt.Sprintf("Forex close: %s", pair.Symbol)); err != nil {
		// Margin is already back in the wallet; re-lock it so the reopened
		// position can settle cleanly on retry.
		if _, rbErr := e.settlement.AdjustWithEntry(ctx, pos.AccountID, e.cfg.Currency, -margin,
			domain.EntryMarginLock, fmt.Sprintf("Forex close failed: %s", pair.Symbol)); rbErr != nil {
			e.logger.Error(ctx, rbErr, "Failed to re-lock margin after settlement failure",
				map[string]interface{}{"positionID": pos.ID, "accountID": pos.AccountID, "margin": margin})
			e.wallets.Unlock(pos.AccountID)
			return nil, fmt.Errorf("failed to settle P&L for position %d: %w", pos.ID, err)
		}
		e.wallets.Unlock(pos.AccountID)
		reopen()
		return nil, fmt.Errorf("failed to settle P&L for position %d: %w", pos.ID, err)
	}
	e.wallets.Unlock(pos.AccountID)

	pos.Status = domain.StatusClosed
	pos.FloatingPL = 0

	trade := &domain.ClosedTrade{
		PositionID:  pos.ID,
		AccountID:   pos.AccountID,
		PairSymbol:  pos.PairSymbol,
		Direction:   pos.Direction,
		Volume:      pos.Volume,
		Leverage:    pos.Leverage,
		Amount:      margin,
		EntryPrice:  pos.EntryPrice,
		ClosePrice:  price,
		RealizedPL:  pl,
		EntryTime:   pos.EntryTime,
		CloseTime:   time.Now(),
		CloseReason: reason,
		IsCopied:    pos.IsCopied,
	}
	if _, err := e.trades.CreateClosedTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("failed to record closed trade for position %d: %w", pos.ID, err)
	}

	e.logger.Info(ctx, "Position closed", map[string]interface{}{
		"positionID": pos.ID,
		"accountID":  pos.AccountID,
		"pair":       pos.PairSymbol,
		"closePrice": price,
		"realizedPL": pl,
		"reason":     reason,
	})

	if e.onTradeClosed != nil && !pos.IsCopied {
		e.onTradeClosed(ctx, trade)
	}
	return trade, nil
}

// CloseAllPositions closes every open position for the account at simulated
// prices with the manual close reason.
func (e *Engine) CloseAllPositions(ctx context.Context, accountID int64) ([]*domain.ClosedTrade, error) {
	open, err := e.positions.FindOpenByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list open positions for account %d: %w", accountID, err)
	}
	trades := make([]*domain.ClosedTrade, 0, len(open))
	for _, pos := range open {
		trade, err := e.ClosePosition(ctx, pos.ID, 0, domain.CloseReasonManual)
		if err != nil {
			return trades, err
		}
		if trade != nil {
			trades = append(trades, trade)
		}
	}
	return trades, nil
}
