package copytrade

import (
	"context"
	"fmt"
	"time"

	"traderiser/internal/domain"
	"traderiser/internal/ports"
)

const defaultMaxDrawdownPercent = 20.0

// Subscribe creates an active subscription binding the account to the lead
// trader. The allocation must meet the trader's minimum and fit within the
// subscriber's balance; an account may hold at most one subscription per
// trader.
func (p *Propagator) Subscribe(ctx context.Context, accountID, leadTraderID int64, allocatedAmount, maxDrawdownPercent float64) (*domain.CopySubscription, error) {
	lt, err := p.store.FindLeadTraderByID(ctx, leadTraderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lead trader %d: %w", leadTraderID, err)
	}
	if lt == nil {
		return nil, fmt.Errorf("lead trader %d: %w", leadTraderID, ports.ErrLeadTraderNotFound)
	}
	if !lt.IsActive {
		return nil, fmt.Errorf("lead trader %d is not accepting subscribers", leadTraderID)
	}
	if allocatedAmount < lt.MinAllocation {
		return nil, fmt.Errorf("allocation %.2f, minimum %.2f: %w", allocatedAmount, lt.MinAllocation, ports.ErrBelowMinAllocation)
	}

	balance, err := p.settlement.GetBalance(ctx, accountID, p.cfg.Currency)
	if err != nil {
		return nil, err
	}
	if allocatedAmount > balance {
		return nil, fmt.Errorf("allocation %.2f, balance %.2f: %w", allocatedAmount, balance, ports.ErrInsufficientBalance)
	}

	if maxDrawdownPercent <= 0 {
		maxDrawdownPercent = defaultMaxDrawdownPercent
	}

	now := time.Now()
	sub := &domain.CopySubscription{
		AccountID:          accountID,
		LeadTraderID:       leadTraderID,
		AllocatedAmount:    allocatedAmount,
		MaxDrawdownPercent: maxDrawdownPercent,
		PeakValue:          allocatedAmount,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if _, err := p.store.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	p.logger.Info(ctx, "Subscription created", map[string]interface{}{
		"subscriptionID": sub.ID,
		"accountID":      accountID,
		"leadTraderID":   leadTraderID,
		"allocated":      allocatedAmount,
	})
	return sub, nil
}

// Pause deactivates a subscription without deleting it.
func (p *Propagator) Pause(ctx context.Context, subscriptionID int64) error {
	return p.setActive(ctx, subscriptionID, false)
}

// Resume reactivates a paused subscription.
func (p *Propagator) Resume(ctx context.Context, subscriptionID int64) error {
	return p.setActive(ctx, subscriptionID, true)
}

func (p *Propagator) setActive(ctx context.Context, subscriptionID int64, active bool) error {
	sub, err := p.store.FindSubscriptionByID(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to load subscription %d: %w", subscriptionID, err)
	}
	if sub == nil {
		return fmt.Errorf("subscription %d: %w", subscriptionID, ports.ErrNotFound)
	}
	if sub.IsActive == active {
		return nil
	}
	sub.IsActive = active
	sub.UpdatedAt = time.Now()
	if err := p.store.UpdateSubscription(ctx, sub); err != nil {
		return fmt.Errorf("failed to update subscription %d: %w", subscriptionID, err)
	}
	p.logger.Info(ctx, "Subscription state changed", map[string]interface{}{
		"subscriptionID": subscriptionID,
		"active":         active,
	})
	return nil
}

// TraderStats summarizes a lead trader's published performance.
type TraderStats struct {
	WinRate           float64 // percentage of own closed trades that realized a profit
	AverageReturn     float64 // mean realized P&L per own closed trade
	ActiveSubscribers int
}

// Stats computes the lead trader's win rate, average return, and active
// subscriber count from its own (non-copied) closed trades.
func (p *Propagator) Stats(ctx context.Context, leadTraderID int64) (*TraderStats, error) {
	lt, err := p.store.FindLeadTraderByID(ctx, leadTraderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lead trader %d: %w", leadTraderID, err)
	}
	if lt == nil {
		return nil, fmt.Errorf("lead trader %d: %w", leadTraderID, ports.ErrLeadTraderNotFound)
	}

	trades, err := p.trades.FindByAccount(ctx, lt.AccountID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load trades for lead trader %d: %w", leadTraderID, err)
	}

	stats := &TraderStats{}
	var wins, total int
	var totalPL float64
	for _, t := range trades {
		if t.IsCopied {
			continue
		}
		total++
		totalPL += t.RealizedPL
		if t.IsWin() {
			wins++
		}
	}
	if total > 0 {
		stats.WinRate = float64(wins) / float64(total) * 100
		stats.AverageReturn = totalPL / float64(total)
	}

	stats.ActiveSubscribers, err = p.store.CountActiveSubscriptions(ctx, leadTraderID)
	if err != nil {
		return nil, fmt.Errorf("failed to count subscribers for lead trader %d: %w", leadTraderID, err)
	}
	return stats, nil
}
