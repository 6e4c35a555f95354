package copytrade

import (
	"time"

	"github.com/google/uuid"

	"traderiser/internal/domain"
)

// NewSignal derives an immutable trade signal from a lead trader's closed
// trade. Callers guarantee the trade belongs to the lead trader's account
// and did not itself originate from copying.
func NewSignal(lt *domain.LeadTrader, trade *domain.ClosedTrade) *domain.TradeSignal {
	return &domain.TradeSignal{
		ID:           uuid.NewString(),
		LeadTraderID: lt.ID,
		PairSymbol:   trade.PairSymbol,
		Direction:    domain.SignalDirectionFrom(trade.Direction),
		Amount:       trade.Amount,
		EntryPrice:   trade.EntryPrice,
		Profit:       trade.RealizedPL,
		CreatedAt:    time.Now(),
	}
}
