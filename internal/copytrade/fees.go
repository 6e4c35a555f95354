package copytrade

import (
	"context"
	"errors"
	"fmt"

	"traderiser/internal/domain"
	"traderiser/internal/ports"
)

// FeeEngine computes and splits performance fees between a subscriber and
// the lead trader. Apply is not re-entrant for a copied trade: the fee is
// persisted exactly once.
type FeeEngine struct {
	logger     ports.Logger
	store      ports.CopyTradingStore
	settlement ports.SettlementStore
	wallets    *ports.KeyedMutex
	currency   string
}

// NewFeeEngine creates a fee engine. All dependencies are required.
func NewFeeEngine(logger ports.Logger, store ports.CopyTradingStore, settlement ports.SettlementStore, wallets *ports.KeyedMutex, currency string) (*FeeEngine, error) {
	if logger == nil || store == nil || settlement == nil || wallets == nil {
		return nil, fmt.Errorf("missing required dependencies for FeeEngine")
	}
	if currency == "" {
		currency = domain.CurrencyUSD
	}
	return &FeeEngine{
		logger:     logger,
		store:      store,
		settlement: settlement,
		wallets:    wallets,
		currency:   currency,
	}, nil
}

// Apply charges the lead trader's performance fee on a profitable copied
// trade: the recorded profit is reduced by the fee, the subscriber's wallet
// is debited, and the fee is credited to the lead trader's eligible account
// when one exists. A missing fee account is logged, not fatal.
func (f *FeeEngine) Apply(ctx context.Context, ct *domain.CopiedTrade, sub *domain.CopySubscription, lt *domain.LeadTrader) error {
	if ct.FeePaid != 0 {
		return fmt.Errorf("copied trade %d: %w", ct.ID, ports.ErrFeeAlreadyApplied)
	}
	if ct.Profit <= 0 {
		return nil
	}

	feeAmount := ct.Profit * lt.PerformanceFeePercent / 100
	netProfit := ct.Profit - feeAmount

	// Debit before finalizing so the record never claims a fee that was
	// not collected. A finalize failure refunds the debit.
	f.wallets.Lock(sub.AccountID)
	_, err := f.settlement.AdjustWithEntry(ctx, sub.AccountID, f.currency, -feeAmount,
		domain.EntryDebit, fmt.Sprintf("Performance fee for copied trade from lead trader %d", lt.ID))
	f.wallets.Unlock(sub.AccountID)
	if err != nil {
		return fmt.Errorf("failed to debit performance fee from account %d: %w", sub.AccountID, err)
	}

	if err := f.store.FinalizeFee(ctx, ct.ID, netProfit, feeAmount); err != nil {
		f.wallets.Lock(sub.AccountID)
		if _, rbErr := f.settlement.AdjustWithEntry(ctx, sub.AccountID, f.currency, feeAmount,
			domain.EntryCredit, fmt.Sprintf("Performance fee refund for copied trade %d", ct.ID)); rbErr != nil {
			f.logger.Error(ctx, rbErr, "Failed to refund performance fee after finalize failure",
				map[string]interface{}{"copiedTradeID": ct.ID, "accountID": sub.AccountID, "feeAmount": feeAmount})
		}
		f.wallets.Unlock(sub.AccountID)
		return fmt.Errorf("failed to finalize fee for copied trade %d: %w", ct.ID, err)
	}
	ct.Profit = netProfit
	ct.FeePaid = feeAmount

	feeAccountID, err := f.store.FindFeeAccount(ctx, lt.ID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			f.logger.Warn(ctx, "Lead trader has no eligible fee account; fee not credited", map[string]interface{}{
				"leadTraderID": lt.ID,
				"feeAmount":    feeAmount,
			})
			return nil
		}
		return fmt.Errorf("failed to find fee account for lead trader %d: %w", lt.ID, err)
	}

	f.wallets.Lock(feeAccountID)
	_, err = f.settlement.AdjustWithEntry(ctx, feeAccountID, f.currency, feeAmount,
		domain.EntryCredit, fmt.Sprintf("Performance fee from copied trade (subscription %d)", sub.ID))
	f.wallets.Unlock(feeAccountID)
	if err != nil {
		return fmt.Errorf("failed to credit performance fee to account %d: %w", feeAccountID, err)
	}

	f.logger.Info(ctx, "Performance fee applied", map[string]interface{}{
		"copiedTradeID": ct.ID,
		"feeAmount":     feeAmount,
		"netProfit":     netProfit,
		"feeAccountID":  feeAccountID,
	})
	return nil
}
