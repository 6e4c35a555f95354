package copytrade

import (
	"context"
	"fmt"
	"time"

	"traderiser/internal/domain"
	"traderiser/internal/ports"
)

// Config holds propagation parameters.
type Config struct {
	// ClampFactor is the share of the subscriber's balance a copied trade is
	// clamped to when the scaled amount exceeds it.
	ClampFactor float64
	// Currency is the settlement currency for all wallets.
	Currency string
}

// Propagator fans a lead trader's closed trade out to active subscriptions:
// it creates the signal, scales per-subscription, enforces drawdown limits,
// settles the copied trades, and triggers the fee engine. Propagation is
// best-effort: a failure for one subscription is logged and does not abort
// the rest.
type Propagator struct {
	cfg        Config
	logger     ports.Logger
	store      ports.CopyTradingStore
	positions  ports.PositionStore
	trades     ports.TradeStore
	settlement ports.SettlementStore
	wallets    *ports.KeyedMutex
	fees       *FeeEngine
}

// NewPropagator creates a propagator. All dependencies are required.
func NewPropagator(
	cfg Config,
	logger ports.Logger,
	store ports.CopyTradingStore,
	positions ports.PositionStore,
	trades ports.TradeStore,
	settlement ports.SettlementStore,
	wallets *ports.KeyedMutex,
	fees *FeeEngine,
) (*Propagator, error) {
	if logger == nil || store == nil || positions == nil || trades == nil || settlement == nil || wallets == nil || fees == nil {
		return nil, fmt.Errorf("missing required dependencies for Propagator")
	}
	if cfg.ClampFactor <= 0 || cfg.ClampFactor > 1 {
		cfg.ClampFactor = 0.95
	}
	if cfg.Currency == "" {
		cfg.Currency = domain.CurrencyUSD
	}
	return &Propagator{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		positions:  positions,
		trades:     trades,
		settlement: settlement,
		wallets:    wallets,
		fees:       fees,
	}, nil
}

// OnTradeClosed is the hook the position engine invokes after a close
// settles. It short-circuits for copied trades and for accounts that are not
// registered, active lead traders; otherwise it creates a signal and
// propagates it.
func (p *Propagator) OnTradeClosed(ctx context.Context, trade *domain.ClosedTrade) {
	if trade.IsCopied {
		return
	}

	lt, err := p.store.FindLeadTraderByAccount(ctx, trade.AccountID)
	if err != nil {
		p.logger.Error(ctx, err, "Lead trader lookup failed; trade not propagated",
			map[string]interface{}{"accountID": trade.AccountID, "tradeID": trade.ID})
		return
	}
	if lt == nil || !lt.IsActive {
		return
	}

	signal := NewSignal(lt, trade)
	if err := p.store.CreateSignal(ctx, signal); err != nil {
		p.logger.Error(ctx, err, "Failed to persist trade signal",
			map[string]interface{}{"leadTraderID": lt.ID, "tradeID": trade.ID})
		return
	}
	p.logger.Info(ctx, "Trade signal created", map[string]interface{}{
		"signalID":     signal.ID,
		"leadTraderID": lt.ID,
		"pair":         signal.PairSymbol,
		"amount":       signal.Amount,
		"profit":       signal.Profit,
	})

	if err := p.Propagate(ctx, signal, trade); err != nil {
		p.logger.Error(ctx, err, "Propagation failed", map[string]interface{}{"signalID": signal.ID})
	}
}

// Propagate fans the signal out to every active subscription of its lead
// trader. Per-subscription failures are logged and skipped.
func (p *Propagator) Propagate(ctx context.Context, signal *domain.TradeSignal, original *domain.ClosedTrade) error {
	lt, err := p.store.FindLeadTraderByID(ctx, signal.LeadTraderID)
	if err != nil {
		return fmt.Errorf("failed to load lead trader %d: %w", signal.LeadTraderID, err)
	}
	if lt == nil {
		return fmt.Errorf("lead trader %d: %w", signal.LeadTraderID, ports.ErrLeadTraderNotFound)
	}

	subs, err := p.store.ActiveSubscriptions(ctx, signal.LeadTraderID)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions for lead trader %d: %w", signal.LeadTraderID, err)
	}

	for _, sub := range subs {
		if err := p.copyToSubscription(ctx, signal, original, sub, lt); err != nil {
			p.logger.Error(ctx, err, "Failed to copy trade to subscriber", map[string]interface{}{
				"subscriptionID": sub.ID,
				"accountID":      sub.AccountID,
				"signalID":       signal.ID,
			})
		}
	}
	return nil
}

func (p *Propagator) copyToSubscription(ctx context.Context, signal *domain.TradeSignal, original *domain.ClosedTrade, sub *domain.CopySubscription, lt *domain.LeadTrader) error {
	drawdown, err := p.refreshDrawdown(ctx, sub)
	if err != nil {
		return err
	}
	if drawdown > sub.MaxDrawdownPercent {
		sub.IsActive = false
		if err := p.store.UpdateSubscription(ctx, sub); err != nil {
			return fmt.Errorf("failed to deactivate subscription %d: %w", sub.ID, err)
		}
		p.logger.Warn(ctx, "Subscription deactivated: max drawdown exceeded", map[string]interface{}{
			"subscriptionID": sub.ID,
			"drawdown":       drawdown,
			"maxDrawdown":    sub.MaxDrawdownPercent,
		})
		return nil
	}

	if signal.Amount <= 0 {
		p.logger.Warn(ctx, "Signal amount not positive; subscription skipped", map[string]interface{}{
			"signalID":       signal.ID,
			"subscriptionID": sub.ID,
		})
		return nil
	}

	scaleFactor := sub.AllocatedAmount / signal.Amount
	scaledAmount := original.Amount * scaleFactor
	scaledProfit := original.RealizedPL * scaleFactor

	// The wallet stays locked from the balance read through the settlement
	// credit, then is released so the fee engine can take it again.
	p.wallets.Lock(sub.AccountID)
	locked := true
	unlock := func() {
		if locked {
			locked = false
			p.wallets.Unlock(sub.AccountID)
		}
	}
	defer unlock()

	balance, err := p.settlement.GetBalance(ctx, sub.AccountID, p.cfg.Currency)
	if err != nil {
		return err
	}
	if scaledAmount > balance {
		scaledAmount = balance * p.cfg.ClampFactor
		scaledProfit = original.RealizedPL * (scaledAmount / original.Amount)
		p.logger.Info(ctx, "Scaled amount clamped to subscriber balance", map[string]interface{}{
			"subscriptionID": sub.ID,
			"balance":        balance,
			"scaledAmount":   scaledAmount,
		})
	}

	now := time.Now()
	pos := &domain.Position{
		AccountID:  sub.AccountID,
		PairSymbol: original.PairSymbol,
		Direction:  signal.Direction.ToDirection(),
		Volume:     original.Volume * (scaledAmount / original.Amount),
		EntryPrice: original.EntryPrice,
		EntryTime:  now,
		Leverage:   original.Leverage,
		Timeframe:  domain.TimeframeM1,
		Status:     domain.StatusClosed,
		IsCopied:   true,
	}
	if _, err := p.positions.Create(ctx, pos); err != nil {
		return fmt.Errorf("failed to create settlement position: %w", err)
	}

	settled := &domain.ClosedTrade{
		PositionID:  pos.ID,
		AccountID:   sub.AccountID,
		PairSymbol:  original.PairSymbol,
		Direction:   pos.Direction,
		Volume:      pos.Volume,
		Leverage:    original.Leverage,
		Amount:      scaledAmount,
		EntryPrice:  original.EntryPrice,
		ClosePrice:  original.ClosePrice,
		RealizedPL:  scaledProfit,
		EntryTime:   now,
		CloseTime:   now,
		CloseReason: domain.CloseReasonCopy,
		IsCopied:    true,
	}
	if _, err := p.trades.CreateClosedTrade(ctx, settled); err != nil {
		return fmt.Errorf("failed to record copied settlement trade: %w", err)
	}

	entryType := domain.EntryDebit
	outcome := "Loss"
	if scaledProfit > 0 {
		entryType = domain.EntryCredit
		outcome = "Win"
	}
	if _, err := p.settlement.AdjustWithEntry(ctx, sub.AccountID, p.cfg.Currency, scaledProfit,
		entryType, fmt.Sprintf("Copied trade from lead trader %d (%s)", lt.ID, outcome)); err != nil {
		return fmt.Errorf("failed to settle copied trade: %w", err)
	}
	unlock()

	copied := &domain.CopiedTrade{
		SubscriptionID: sub.ID,
		SignalID:       signal.ID,
		PositionID:     pos.ID,
		ScaledAmount:   scaledAmount,
		Profit:         scaledProfit,
		CreatedAt:      now,
	}
	if _, err := p.store.CreateCopiedTrade(ctx, copied); err != nil {
		return fmt.Errorf("failed to record copied trade: %w", err)
	}

	p.logger.Info(ctx, "Trade copied", map[string]interface{}{
		"subscriptionID": sub.ID,
		"copiedTradeID":  copied.ID,
		"scaledAmount":   scaledAmount,
		"scaledProfit":   scaledProfit,
	})

	if scaledProfit > 0 {
		if err := p.fees.Apply(ctx, copied, sub, lt); err != nil {
			return fmt.Errorf("failed to apply performance fee: %w", err)
		}
	}
	return nil
}

// refreshDrawdown updates the subscription's high-water mark and returns the
// current drawdown percentage.
func (p *Propagator) refreshDrawdown(ctx context.Context, sub *domain.CopySubscription) (float64, error) {
	pnl, err := p.store.CopiedProfitBySubscription(ctx, sub.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to sum copied profit for subscription %d: %w", sub.ID, err)
	}
	currentValue := sub.AllocatedAmount + pnl

	peak := sub.PeakValue
	if peak < sub.AllocatedAmount {
		peak = sub.AllocatedAmount
	}
	if currentValue > peak {
		peak = currentValue
	}
	if peak != sub.PeakValue {
		sub.PeakValue = peak
		if err := p.store.UpdateSubscription(ctx, sub); err != nil {
			return 0, fmt.Errorf("failed to persist peak value for subscription %d: %w", sub.ID, err)
		}
	}

	if peak <= 0 {
		return 0, nil
	}
	drawdown := (peak - currentValue) / peak * 100
	if drawdown < 0 {
		drawdown = 0
	}
	return drawdown, nil
}
