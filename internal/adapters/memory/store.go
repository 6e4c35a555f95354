// Package memory provides an in-memory implementation of the store ports.
// It backs the engine and copy-trade tests and mirrors the semantics of the
// SQLite adapter, including wallet-not-found errors and the close CAS.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"traderiser/internal/domain"
	"traderiser/internal/ports"
)

// Store holds all records in maps guarded by one mutex.
type Store struct {
	mu sync.Mutex

	pairs       map[string]*domain.TradablePair
	accounts    map[int64]*domain.Account
	wallets     map[string]float64 // accountID:currency -> balance
	ledger      []*domain.LedgerEntry
	positions   map[int64]*domain.Position
	trades      map[int64]*domain.ClosedTrade
	leadTraders map[int64]*domain.LeadTrader
	subs        map[int64]*domain.CopySubscription
	signals     map[string]*domain.TradeSignal
	copied      map[int64]*domain.CopiedTrade

	nextID int64
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		pairs:       make(map[string]*domain.TradablePair),
		accounts:    make(map[int64]*domain.Account),
		wallets:     make(map[string]float64),
		positions:   make(map[int64]*domain.Position),
		trades:      make(map[int64]*domain.ClosedTrade),
		leadTraders: make(map[int64]*domain.LeadTrader),
		subs:        make(map[int64]*domain.CopySubscription),
		signals:     make(map[string]*domain.TradeSignal),
		copied:      make(map[int64]*domain.CopiedTrade),
	}
}

func (s *Store) nextSeq() int64 {
	s.nextID++
	return s.nextID
}

func walletKey(accountID int64, currency string) string {
	return fmt.Sprintf("%d:%s", accountID, currency)
}

// --- PairStore ---

func (s *Store) FindPair(ctx context.Context, symbol string) (*domain.TradablePair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pairs[symbol]
	if !ok {
		return nil, fmt.Errorf("pair %q: %w", symbol, ports.ErrPairNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListPairs(ctx context.Context) ([]*domain.TradablePair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.TradablePair, 0, len(s.pairs))
	for _, p := range s.pairs {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *Store) UpsertPair(ctx context.Context, pair *domain.TradablePair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *pair
	s.pairs[pair.Symbol] = &cp
	return nil
}

// --- AccountStore ---

func (s *Store) FindAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account %d: %w", accountID, ports.ErrAccountNotFound)
	}
	cp := *a
	return &cp, nil
}

func (s *Store) IsPrivileged(ctx context.Context, accountID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return false, fmt.Errorf("account %d: %w", accountID, ports.ErrAccountNotFound)
	}
	return a.Privileged, nil
}

func (s *Store) CreateAccount(ctx context.Context, acct *domain.Account) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct.ID == 0 {
		acct.ID = s.nextSeq()
	}
	cp := *acct
	s.accounts[acct.ID] = &cp
	return acct.ID, nil
}

// SetBalance seeds a wallet. Test helper; creates the wallet if missing.
func (s *Store) SetBalance(accountID int64, currency string, balance float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[walletKey(accountID, currency)] = balance
}

// --- WalletStore / LedgerStore / SettlementStore ---

func (s *Store) GetBalance(ctx context.Context, accountID int64, currency string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balance, ok := s.wallets[walletKey(accountID, currency)]
	if !ok {
		return 0, fmt.Errorf("account %d currency %s: %w", accountID, currency, ports.ErrWalletNotFound)
	}
	return balance, nil
}

func (s *Store) Adjust(ctx context.Context, accountID int64, currency string, delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adjustLocked(accountID, currency, delta)
}

func (s *Store) adjustLocked(accountID int64, currency string, delta float64) (float64, error) {
	key := walletKey(accountID, currency)
	balance, ok := s.wallets[key]
	if !ok {
		return 0, fmt.Errorf("account %d currency %s: %w", accountID, currency, ports.ErrWalletNotFound)
	}
	balance += delta
	s.wallets[key] = balance
	return balance, nil
}

func (s *Store) Append(ctx context.Context, entry *domain.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(entry)
	return nil
}

func (s *Store) appendLocked(entry *domain.LedgerEntry) {
	cp := *entry
	cp.ID = s.nextSeq()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.ledger = append(s.ledger, &cp)
}

func (s *Store) AdjustWithEntry(ctx context.Context, accountID int64, currency string, delta float64, entryType domain.LedgerEntryType, description string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balance, err := s.adjustLocked(accountID, currency, delta)
	if err != nil {
		return 0, err
	}
	s.appendLocked(&domain.LedgerEntry{
		AccountID:   accountID,
		Amount:      delta,
		Type:        entryType,
		Description: description,
	})
	return balance, nil
}

// LedgerEntries returns a snapshot of all entries for an account in append
// order. Test helper.
func (s *Store) LedgerEntries(accountID int64) []*domain.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.LedgerEntry, 0)
	for _, e := range s.ledger {
		if e.AccountID == accountID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}

// --- PositionStore ---

func (s *Store) Create(ctx context.Context, pos *domain.Position) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos.ID = s.nextSeq()
	cp := *pos
	s.positions[pos.ID] = &cp
	return pos.ID, nil
}

func (s *Store) Update(ctx context.Context, pos *domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[pos.ID]; !ok {
		return fmt.Errorf("position %d: %w", pos.ID, ports.ErrNotFound)
	}
	cp := *pos
	s.positions[pos.ID] = &cp
	return nil
}

func (s *Store) UpdateFloatingPL(ctx context.Context, id int64, floatingPL float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return false, fmt.Errorf("position %d: %w", id, ports.ErrNotFound)
	}
	if p.Status != domain.StatusOpen {
		return false, nil
	}
	p.FloatingPL = floatingPL
	return true, nil
}

func (s *Store) FindByID(ctx context.Context, id int64) (*domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *Store) FindOpenByAccount(ctx context.Context, accountID int64) ([]*domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Position, 0)
	for _, p := range s.positions {
		if p.AccountID == accountID && p.Status == domain.StatusOpen {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.After(out[j].EntryTime) })
	return out, nil
}

func (s *Store) FindOpenAll(ctx context.Context) ([]*domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Position, 0)
	for _, p := range s.positions {
		if p.Status == domain.StatusOpen {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CloseCAS(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return false, fmt.Errorf("position %d: %w", id, ports.ErrNotFound)
	}
	if p.Status != domain.StatusOpen {
		return false, nil
	}
	p.Status = domain.StatusClosed
	p.FloatingPL = 0
	return true, nil
}

// --- TradeStore ---

func (s *Store) CreateClosedTrade(ctx context.Context, trade *domain.ClosedTrade) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trade.ID = s.nextSeq()
	cp := *trade
	s.trades[trade.ID] = &cp
	return trade.ID, nil
}

func (s *Store) FindByAccount(ctx context.Context, accountID int64, limit int) ([]*domain.ClosedTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.ClosedTrade, 0)
	for _, t := range s.trades {
		if t.AccountID == accountID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- CopyTradingStore ---

func (s *Store) CreateLeadTrader(ctx context.Context, lt *domain.LeadTrader) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lt.ID = s.nextSeq()
	cp := *lt
	s.leadTraders[lt.ID] = &cp
	return lt.ID, nil
}

func (s *Store) FindLeadTraderByID(ctx context.Context, id int64) (*domain.LeadTrader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lt, ok := s.leadTraders[id]
	if !ok {
		return nil, nil
	}
	cp := *lt
	return &cp, nil
}

func (s *Store) FindLeadTraderByAccount(ctx context.Context, accountID int64) (*domain.LeadTrader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lt := range s.leadTraders {
		if lt.AccountID == accountID {
			cp := *lt
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateSubscription(ctx context.Context, sub *domain.CopySubscription) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.subs {
		if existing.AccountID == sub.AccountID && existing.LeadTraderID == sub.LeadTraderID {
			return 0, fmt.Errorf("account %d, trader %d: %w", sub.AccountID, sub.LeadTraderID, ports.ErrSubscriptionExists)
		}
	}
	sub.ID = s.nextSeq()
	cp := *sub
	s.subs[sub.ID] = &cp
	return sub.ID, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *domain.CopySubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub.ID]; !ok {
		return fmt.Errorf("subscription %d: %w", sub.ID, ports.ErrNotFound)
	}
	cp := *sub
	s.subs[sub.ID] = &cp
	return nil
}

func (s *Store) FindSubscriptionByID(ctx context.Context, id int64) (*domain.CopySubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (s *Store) ActiveSubscriptions(ctx context.Context, leadTraderID int64) ([]*domain.CopySubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.CopySubscription, 0)
	for _, sub := range s.subs {
		if sub.LeadTraderID == leadTraderID && sub.IsActive {
			cp := *sub
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CountActiveSubscriptions(ctx context.Context, leadTraderID int64) (int, error) {
	subs, err := s.ActiveSubscriptions(ctx, leadTraderID)
	if err != nil {
		return 0, err
	}
	return len(subs), nil
}

func (s *Store) CreateSignal(ctx context.Context, sig *domain.TradeSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sig
	s.signals[sig.ID] = &cp
	return nil
}

// Signals returns all stored signals. Test helper.
func (s *Store) Signals() []*domain.TradeSignal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.TradeSignal, 0, len(s.signals))
	for _, sig := range s.signals {
		cp := *sig
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) CreateCopiedTrade(ctx context.Context, ct *domain.CopiedTrade) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ct.ID = s.nextSeq()
	cp := *ct
	s.copied[ct.ID] = &cp
	return ct.ID, nil
}

// CopiedTrades returns all copied trades ordered by ID. Test helper.
func (s *Store) CopiedTrades() []*domain.CopiedTrade {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.CopiedTrade, 0, len(s.copied))
	for _, ct := range s.copied {
		cp := *ct
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) CopiedProfitBySubscription(ctx context.Context, subscriptionID int64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, ct := range s.copied {
		if ct.SubscriptionID == subscriptionID {
			total += ct.Profit
		}
	}
	return total, nil
}

func (s *Store) FinalizeFee(ctx context.Context, copiedTradeID int64, profit, feePaid float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ct, ok := s.copied[copiedTradeID]
	if !ok {
		return fmt.Errorf("copied trade %d: %w", copiedTradeID, ports.ErrNotFound)
	}
	if ct.FeePaid != 0 {
		return fmt.Errorf("copied trade %d: %w", copiedTradeID, ports.ErrFeeAlreadyApplied)
	}
	ct.Profit = profit
	ct.FeePaid = feePaid
	return nil
}

func (s *Store) FindFeeAccount(ctx context.Context, leadTraderID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lt, ok := s.leadTraders[leadTraderID]
	if !ok {
		return 0, fmt.Errorf("lead trader %d: %w", leadTraderID, ports.ErrNotFound)
	}
	trading, ok := s.accounts[lt.AccountID]
	if !ok {
		return 0, fmt.Errorf("lead trader %d account: %w", leadTraderID, ports.ErrNotFound)
	}
	ids := make([]int64, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		a := s.accounts[id]
		if a.UserID == trading.UserID && (a.Type == domain.AccountStandard || a.Type == domain.AccountProFX) {
			return a.ID, nil
		}
	}
	return 0, fmt.Errorf("no fee-eligible account for lead trader %d: %w", leadTraderID, ports.ErrNotFound)
}
