package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"traderiser/internal/domain"
	"traderiser/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Store implements all store ports using SQLite.
type Store struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite store.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewStore creates a new SQLite store instance.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite store")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/traderiser.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally, but the Go driver benefits from
	// limiting connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	store := &Store{db: db, logger: cfg.Logger}

	if err := store.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return store, nil
}

// initializeSchema creates tables if they don't exist.
// NOTE: This is a basic approach. A proper migration tool is recommended for production.
func (s *Store) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS pairs (
		symbol TEXT PRIMARY KEY,
		base_currency TEXT NOT NULL,
		quote_currency TEXT NOT NULL,
		pip_size REAL NOT NULL,
		contract_size INTEGER NOT NULL,
		spread REAL NOT NULL,
		base_price REAL NOT NULL,
		default_timeframe TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		privileged INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS wallets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL,
		currency TEXT NOT NULL,
		balance REAL NOT NULL DEFAULT 0,
		UNIQUE (account_id, currency)
	);

	CREATE TABLE IF NOT EXISTS ledger (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL,
		amount REAL NOT NULL,
		type TEXT NOT NULL,
		description TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL,
		pair_symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		volume REAL NOT NULL,
		entry_price REAL NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		stop_loss REAL NOT NULL DEFAULT 0,
		take_profit REAL NOT NULL DEFAULT 0,
		leverage INTEGER NOT NULL,
		timeframe TEXT NOT NULL,
		floating_pl REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		is_copied INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS closed_trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		position_id INTEGER NULL,
		account_id INTEGER NOT NULL,
		pair_symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		volume REAL NOT NULL,
		leverage INTEGER NOT NULL,
		amount REAL NOT NULL,
		entry_price REAL NOT NULL,
		close_price REAL NOT NULL,
		realized_pl REAL NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		close_time TIMESTAMP NOT NULL,
		close_reason TEXT NULL,
		is_copied INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS lead_traders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL UNIQUE,
		risk_level TEXT NOT NULL,
		min_allocation REAL NOT NULL,
		performance_fee_percent REAL NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS copy_subscriptions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL,
		lead_trader_id INTEGER NOT NULL,
		allocated_amount REAL NOT NULL,
		max_drawdown_percent REAL NOT NULL,
		peak_value REAL NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (account_id, lead_trader_id)
	);

	CREATE TABLE IF NOT EXISTS trade_signals (
		id TEXT PRIMARY KEY,
		lead_trader_id INTEGER NOT NULL,
		pair_symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		amount REAL NOT NULL,
		entry_price REAL NOT NULL,
		profit REAL NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS copied_trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subscription_id INTEGER NOT NULL,
		signal_id TEXT NOT NULL,
		position_id INTEGER NULL,
		scaled_amount REAL NOT NULL,
		profit REAL NOT NULL,
		fee_paid REAL NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);
	-- Add indexes for common lookups
	CREATE INDEX IF NOT EXISTS idx_positions_account_status ON positions (account_id, status);
	CREATE INDEX IF NOT EXISTS idx_positions_status ON positions (status);
	CREATE INDEX IF NOT EXISTS idx_closed_trades_account ON closed_trades (account_id, close_time);
	CREATE INDEX IF NOT EXISTS idx_ledger_account ON ledger (account_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_subscriptions_trader_active ON copy_subscriptions (lead_trader_id, is_active);
	CREATE INDEX IF NOT EXISTS idx_copied_trades_subscription ON copied_trades (subscription_id);
	`
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		s.logger.Info(context.Background(), "Closing SQLite database connection")
		return s.db.Close()
	}
	return nil
}

// --- PairStore Implementation ---

func (s *Store) FindPair(ctx context.Context, symbol string) (*domain.TradablePair, error) {
	const query = `
	SELECT symbol, base_currency, quote_currency, pip_size, contract_size, spread, base_price, default_timeframe
	FROM pairs
	WHERE symbol = ?`

	pair, err := scanPair(s.db.QueryRowContext(ctx, query, symbol))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pair %q: %w", symbol, ports.ErrPairNotFound)
		}
		return nil, fmt.Errorf("failed to query pair %q: %w", symbol, err)
	}
	return pair, nil
}

func (s *Store) ListPairs(ctx context.Context) ([]*domain.TradablePair, error) {
	const query = `
	SELECT symbol, base_currency, quote_currency, pip_size, contract_size, spread, base_price, default_timeframe
	FROM pairs
	ORDER BY symbol`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pairs: %w", err)
	}
	defer rows.Close()

	pairs := make([]*domain.TradablePair, 0)
	for rows.Next() {
		pair, err := scanPair(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pair during ListPairs: %w", err)
		}
		pairs = append(pairs, pair)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pair rows: %w", err)
	}
	return pairs, nil
}

func (s *Store) UpsertPair(ctx context.Context, pair *domain.TradablePair) error {
	const query = `
	INSERT INTO pairs (symbol, base_currency, quote_currency, pip_size, contract_size, spread, base_price, default_timeframe)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (symbol) DO UPDATE SET
		base_currency = excluded.base_currency,
		quote_currency = excluded.quote_currency,
		pip_size = excluded.pip_size,
		contract_size = excluded.contract_size,
		spread = excluded.spread,
		base_price = excluded.base_price,
		default_timeframe = excluded.default_timeframe`

	_, err := s.db.ExecContext(ctx, query,
		pair.Symbol, pair.BaseCurrency, pair.QuoteCurrency, pair.PipSize, pair.ContractSize,
		pair.Spread, pair.BasePrice, pair.DefaultTimeframe)
	if err != nil {
		return fmt.Errorf("failed to upsert pair %q: %w", pair.Symbol, err)
	}
	return nil
}

// --- AccountStore Implementation ---

func (s *Store) FindAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	const query = `SELECT id, user_id, type, privileged, created_at FROM accounts WHERE id = ?`

	a := &domain.Account{}
	var accountType string
	err := s.db.QueryRowContext(ctx, query, accountID).Scan(&a.ID, &a.UserID, &accountType, &a.Privileged, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %d: %w", accountID, ports.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("failed to query account %d: %w", accountID, err)
	}
	a.Type = domain.AccountType(accountType)
	return a, nil
}

func (s *Store) IsPrivileged(ctx context.Context, accountID int64) (bool, error) {
	const query = `SELECT privileged FROM accounts WHERE id = ?`

	var privileged bool
	err := s.db.QueryRowContext(ctx, query, accountID).Scan(&privileged)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("account %d: %w", accountID, ports.ErrAccountNotFound)
		}
		return false, fmt.Errorf("failed to query privilege flag for account %d: %w", accountID, err)
	}
	return privileged, nil
}

func (s *Store) CreateAccount(ctx context.Context, acct *domain.Account) (int64, error) {
	const query = `INSERT INTO accounts (user_id, type, privileged, created_at) VALUES (?, ?, ?, ?)`

	createdAt := acct.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	result, err := s.db.ExecContext(ctx, query, acct.UserID, acct.Type, acct.Privileged, createdAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert account for user %d: %w", acct.UserID, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for account: %w", err)
	}
	acct.ID = id
	acct.CreatedAt = createdAt
	s.logger.Debug(ctx, "Account created", map[string]interface{}{"accountID": id, "userID": acct.UserID})
	return id, nil
}

// CreateWallet initializes the account's wallet in the given currency.
// Existing wallets are left untouched.
func (s *Store) CreateWallet(ctx context.Context, accountID int64, currency string, balance float64) error {
	const query = `INSERT OR IGNORE INTO wallets (account_id, currency, balance) VALUES (?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query, accountID, currency, balance)
	if err != nil {
		return fmt.Errorf("failed to create wallet for account %d: %w", accountID, err)
	}
	return nil
}

// --- WalletStore / LedgerStore / SettlementStore Implementation ---

func (s *Store) GetBalance(ctx context.Context, accountID int64, currency string) (float64, error) {
	const query = `SELECT balance FROM wallets WHERE account_id = ? AND currency = ?`

	var balance float64
	err := s.db.QueryRowContext(ctx, query, accountID, currency).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("account %d currency %s: %w", accountID, currency, ports.ErrWalletNotFound)
		}
		return 0, fmt.Errorf("failed to query balance for account %d: %w", accountID, err)
	}
	return balance, nil
}

func (s *Store) Adjust(ctx context.Context, accountID int64, currency string, delta float64) (float64, error) {
	const query = `
	UPDATE wallets SET balance = balance + ?
	WHERE account_id = ? AND currency = ?
	RETURNING balance`

	var balance float64
	err := s.db.QueryRowContext(ctx, query, delta, accountID, currency).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("account %d currency %s: %w", accountID, currency, ports.ErrWalletNotFound)
		}
		return 0, fmt.Errorf("failed to adjust balance for account %d: %w", accountID, err)
	}
	return balance, nil
}

func (s *Store) Append(ctx context.Context, entry *domain.LedgerEntry) error {
	const query = `INSERT INTO ledger (account_id, amount, type, description, created_at) VALUES (?, ?, ?, ?, ?)`

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	result, err := s.db.ExecContext(ctx, query, entry.AccountID, entry.Amount, entry.Type, entry.Description, createdAt)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry for account %d: %w", entry.AccountID, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID for ledger entry: %w", err)
	}
	entry.ID = id
	entry.CreatedAt = createdAt
	return nil
}

// AdjustWithEntry applies the balance change and its ledger entry in one
// transaction.
func (s *Store) AdjustWithEntry(ctx context.Context, accountID int64, currency string, delta float64, entryType domain.LedgerEntryType, description string) (float64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin settlement transaction: %w", err)
	}
	defer tx.Rollback()

	const adjustQuery = `
	UPDATE wallets SET balance = balance + ?
	WHERE account_id = ? AND currency = ?
	RETURNING balance`

	var balance float64
	err = tx.QueryRowContext(ctx, adjustQuery, delta, accountID, currency).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("account %d currency %s: %w", accountID, currency, ports.ErrWalletNotFound)
		}
		return 0, fmt.Errorf("failed to adjust balance for account %d: %w", accountID, err)
	}

	const entryQuery = `INSERT INTO ledger (account_id, amount, type, description, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, entryQuery, accountID, delta, entryType, description, time.Now()); err != nil {
		return 0, fmt.Errorf("failed to insert ledger entry for account %d: %w", accountID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit settlement for account %d: %w", accountID, err)
	}
	return balance, nil
}

// --- PositionStore Implementation ---

// Create saves a new position and returns its assigned ID.
func (s *Store) Create(ctx context.Context, pos *domain.Position) (int64, error) {
	const query = `
	INSERT INTO positions (account_id, pair_symbol, direction, volume, entry_price, entry_time,
	                       stop_loss, take_profit, leverage, timeframe, floating_pl, status, is_copied)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		pos.AccountID, pos.PairSymbol, pos.Direction, pos.Volume, pos.EntryPrice, pos.EntryTime,
		pos.StopLoss, pos.TakeProfit, pos.Leverage, pos.Timeframe, pos.FloatingPL, pos.Status, pos.IsCopied)
	if err != nil {
		return 0, fmt.Errorf("failed to insert position for account %d: %w", pos.AccountID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for position: %w", err)
	}
	pos.ID = id
	s.logger.Debug(ctx, "Position created", map[string]interface{}{"positionID": id, "pair": pos.PairSymbol})
	return id, nil
}

// Update modifies an existing position based on its ID.
func (s *Store) Update(ctx context.Context, pos *domain.Position) error {
	const query = `
	UPDATE positions
	SET volume = ?, entry_price = ?, stop_loss = ?, take_profit = ?,
	    leverage = ?, timeframe = ?, floating_pl = ?, status = ?, is_copied = ?
	WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query,
		pos.Volume, pos.EntryPrice, pos.StopLoss, pos.TakeProfit,
		pos.Leverage, pos.Timeframe, pos.FloatingPL, pos.Status, pos.IsCopied,
		pos.ID)
	if err != nil {
		return fmt.Errorf("failed to update position ID %d: %w", pos.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for update position ID %d: %w", pos.ID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("position ID %d not found for update: %w", pos.ID, ports.ErrNotFound)
	}
	return nil
}

// UpdateFloatingPL sets the floating P&L for a position that is still open.
// The status guard keeps a scheduled evaluation from writing over a position
// that was closed between the read and this update.
func (s *Store) UpdateFloatingPL(ctx context.Context, id int64, floatingPL float64) (bool, error) {
	const query = `UPDATE positions SET floating_pl = ? WHERE id = ? AND status = ?`

	result, err := s.db.ExecContext(ctx, query, floatingPL, id, domain.StatusOpen)
	if err != nil {
		return false, fmt.Errorf("failed to update floating P&L for position ID %d: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for position ID %d: %w", id, err)
	}
	return rowsAffected == 1, nil
}

// FindByID retrieves a position by its unique ID.
func (s *Store) FindByID(ctx context.Context, id int64) (*domain.Position, error) {
	const query = `
	SELECT id, account_id, pair_symbol, direction, volume, entry_price, entry_time,
	       stop_loss, take_profit, leverage, timeframe, floating_pl, status, is_copied
	FROM positions
	WHERE id = ?`

	pos, err := scanPosition(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query position by ID %d: %w", id, err)
	}
	return pos, nil
}

// FindOpenByAccount retrieves all open positions for the account, newest first.
func (s *Store) FindOpenByAccount(ctx context.Context, accountID int64) ([]*domain.Position, error) {
	const query = `
	SELECT id, account_id, pair_symbol, direction, volume, entry_price, entry_time,
	       stop_loss, take_profit, leverage, timeframe, floating_pl, status, is_copied
	FROM positions
	WHERE account_id = ? AND status = ?
	ORDER BY entry_time DESC`

	return s.queryPositions(ctx, query, accountID, domain.StatusOpen)
}

// FindOpenAll retrieves all open positions across accounts.
func (s *Store) FindOpenAll(ctx context.Context) ([]*domain.Position, error) {
	const query = `
	SELECT id, account_id, pair_symbol, direction, volume, entry_price, entry_time,
	       stop_loss, take_profit, leverage, timeframe, floating_pl, status, is_copied
	FROM positions
	WHERE status = ?
	ORDER BY id`

	return s.queryPositions(ctx, query, domain.StatusOpen)
}

func (s *Store) queryPositions(ctx context.Context, query string, args ...interface{}) ([]*domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, pos)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

// CloseCAS flips the position from open to closed in one statement. Returns
// false when some other caller already closed it.
func (s *Store) CloseCAS(ctx context.Context, id int64) (bool, error) {
	const query = `UPDATE positions SET status = ?, floating_pl = 0 WHERE id = ? AND status = ?`

	result, err := s.db.ExecContext(ctx, query, domain.StatusClosed, id, domain.StatusOpen)
	if err != nil {
		return false, fmt.Errorf("failed to close position ID %d: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for close position ID %d: %w", id, err)
	}
	return rowsAffected == 1, nil
}

// --- TradeStore Implementation ---

// CreateClosedTrade saves a new closed-trade record and returns its assigned ID.
func (s *Store) CreateClosedTrade(ctx context.Context, trade *domain.ClosedTrade) (int64, error) {
	const query = `
	INSERT INTO closed_trades (position_id, account_id, pair_symbol, direction, volume, leverage, amount,
	                           entry_price, close_price, realized_pl, entry_time, close_time, close_reason, is_copied)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var positionID sql.NullInt64
	if trade.PositionID != 0 {
		positionID = sql.NullInt64{Int64: trade.PositionID, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, query,
		positionID, trade.AccountID, trade.PairSymbol, trade.Direction, trade.Volume, trade.Leverage, trade.Amount,
		trade.EntryPrice, trade.ClosePrice, trade.RealizedPL, trade.EntryTime, trade.CloseTime, trade.CloseReason, trade.IsCopied)
	if err != nil {
		return 0, fmt.Errorf("failed to insert closed trade for account %d: %w", trade.AccountID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for closed trade: %w", err)
	}
	trade.ID = id
	s.logger.Debug(ctx, "Closed trade recorded", map[string]interface{}{"tradeID": id, "pair": trade.PairSymbol, "realizedPL": trade.RealizedPL})
	return id, nil
}

// FindByAccount retrieves the most recent closed trades for an account, up to
// limit (0 = no limit).
func (s *Store) FindByAccount(ctx context.Context, accountID int64, limit int) ([]*domain.ClosedTrade, error) {
	const query = `
	SELECT id, COALESCE(position_id, 0), account_id, pair_symbol, direction, volume, leverage, amount,
	       entry_price, close_price, realized_pl, entry_time, close_time, close_reason, is_copied
	FROM closed_trades
	WHERE account_id = ? ORDER BY close_time DESC, id DESC LIMIT ?`

	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unbounded
	}
	rows, err := s.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query closed trades for account %d: %w", accountID, err)
	}
	defer rows.Close()

	trades := make([]*domain.ClosedTrade, 0)
	for rows.Next() {
		trade, err := scanClosedTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan closed trade during FindByAccount: %w", err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating closed trade rows: %w", err)
	}
	return trades, nil
}

// --- CopyTradingStore Implementation ---

func (s *Store) CreateLeadTrader(ctx context.Context, lt *domain.LeadTrader) (int64, error) {
	const query = `
	INSERT INTO lead_traders (account_id, risk_level, min_allocation, performance_fee_percent, is_active, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	createdAt := lt.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	result, err := s.db.ExecContext(ctx, query,
		lt.AccountID, lt.RiskLevel, lt.MinAllocation, lt.PerformanceFeePercent, lt.IsActive, createdAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert lead trader for account %d: %w", lt.AccountID, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for lead trader: %w", err)
	}
	lt.ID = id
	lt.CreatedAt = createdAt
	return id, nil
}

func (s *Store) FindLeadTraderByID(ctx context.Context, id int64) (*domain.LeadTrader, error) {
	const query = `
	SELECT id, account_id, risk_level, min_allocation, performance_fee_percent, is_active, created_at
	FROM lead_traders
	WHERE id = ?`

	lt, err := scanLeadTrader(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query lead trader by ID %d: %w", id, err)
	}
	return lt, nil
}

func (s *Store) FindLeadTraderByAccount(ctx context.Context, accountID int64) (*domain.LeadTrader, error) {
	const query = `
	SELECT id, account_id, risk_level, min_allocation, performance_fee_percent, is_active, created_at
	FROM lead_traders
	WHERE account_id = ?`

	lt, err := scanLeadTrader(s.db.QueryRowContext(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query lead trader by account %d: %w", accountID, err)
	}
	return lt, nil
}

func (s *Store) CreateSubscription(ctx context.Context, sub *domain.CopySubscription) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin subscription transaction: %w", err)
	}
	defer tx.Rollback()

	const existsQuery = `SELECT COUNT(*) FROM copy_subscriptions WHERE account_id = ? AND lead_trader_id = ?`
	var count int
	if err := tx.QueryRowContext(ctx, existsQuery, sub.AccountID, sub.LeadTraderID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to check existing subscription: %w", err)
	}
	if count > 0 {
		return 0, fmt.Errorf("account %d, trader %d: %w", sub.AccountID, sub.LeadTraderID, ports.ErrSubscriptionExists)
	}

	const query = `
	INSERT INTO copy_subscriptions (account_id, lead_trader_id, allocated_amount, max_drawdown_percent,
	                                peak_value, is_active, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := tx.ExecContext(ctx, query,
		sub.AccountID, sub.LeadTraderID, sub.AllocatedAmount, sub.MaxDrawdownPercent,
		sub.PeakValue, sub.IsActive, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert subscription for account %d: %w", sub.AccountID, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for subscription: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit subscription for account %d: %w", sub.AccountID, err)
	}
	sub.ID = id
	return id, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *domain.CopySubscription) error {
	const query = `
	UPDATE copy_subscriptions
	SET allocated_amount = ?, max_drawdown_percent = ?, peak_value = ?, is_active = ?, updated_at = ?
	WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query,
		sub.AllocatedAmount, sub.MaxDrawdownPercent, sub.PeakValue, sub.IsActive, time.Now(), sub.ID)
	if err != nil {
		return fmt.Errorf("failed to update subscription ID %d: %w", sub.ID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for update subscription ID %d: %w", sub.ID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("subscription ID %d not found for update: %w", sub.ID, ports.ErrNotFound)
	}
	return nil
}

func (s *Store) FindSubscriptionByID(ctx context.Context, id int64) (*domain.CopySubscription, error) {
	const query = `
	SELECT id, account_id, lead_trader_id, allocated_amount, max_drawdown_percent, peak_value, is_active, created_at, updated_at
	FROM copy_subscriptions
	WHERE id = ?`

	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query subscription by ID %d: %w", id, err)
	}
	return sub, nil
}

func (s *Store) ActiveSubscriptions(ctx context.Context, leadTraderID int64) ([]*domain.CopySubscription, error) {
	const query = `
	SELECT id, account_id, lead_trader_id, allocated_amount, max_drawdown_percent, peak_value, is_active, created_at, updated_at
	FROM copy_subscriptions
	WHERE lead_trader_id = ? AND is_active = 1
	ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, leadTraderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions for lead trader %d: %w", leadTraderID, err)
	}
	defer rows.Close()

	subs := make([]*domain.CopySubscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscription rows: %w", err)
	}
	return subs, nil
}

func (s *Store) CountActiveSubscriptions(ctx context.Context, leadTraderID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM copy_subscriptions WHERE lead_trader_id = ? AND is_active = 1`

	var count int
	if err := s.db.QueryRowContext(ctx, query, leadTraderID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count subscriptions for lead trader %d: %w", leadTraderID, err)
	}
	return count, nil
}

func (s *Store) CreateSignal(ctx context.Context, sig *domain.TradeSignal) error {
	const query = `
	INSERT INTO trade_signals (id, lead_trader_id, pair_symbol, direction, amount, entry_price, profit, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		sig.ID, sig.LeadTraderID, sig.PairSymbol, sig.Direction, sig.Amount, sig.EntryPrice, sig.Profit, sig.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert trade signal %s: %w", sig.ID, err)
	}
	return nil
}

func (s *Store) CreateCopiedTrade(ctx context.Context, ct *domain.CopiedTrade) (int64, error) {
	const query = `
	INSERT INTO copied_trades (subscription_id, signal_id, position_id, scaled_amount, profit, fee_paid, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	var positionID sql.NullInt64
	if ct.PositionID != 0 {
		positionID = sql.NullInt64{Int64: ct.PositionID, Valid: true}
	}
	createdAt := ct.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	result, err := s.db.ExecContext(ctx, query,
		ct.SubscriptionID, ct.SignalID, positionID, ct.ScaledAmount, ct.Profit, ct.FeePaid, createdAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert copied trade for subscription %d: %w", ct.SubscriptionID, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for copied trade: %w", err)
	}
	ct.ID = id
	ct.CreatedAt = createdAt
	return id, nil
}

func (s *Store) CopiedProfitBySubscription(ctx context.Context, subscriptionID int64) (float64, error) {
	const query = `SELECT COALESCE(SUM(profit), 0) FROM copied_trades WHERE subscription_id = ?`

	var total float64
	if err := s.db.QueryRowContext(ctx, query, subscriptionID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum copied profit for subscription %d: %w", subscriptionID, err)
	}
	return total, nil
}

// FinalizeFee persists the fee split exactly once; a second call for the same
// copied trade fails with ErrFeeAlreadyApplied.
func (s *Store) FinalizeFee(ctx context.Context, copiedTradeID int64, profit, feePaid float64) error {
	const query = `UPDATE copied_trades SET profit = ?, fee_paid = ? WHERE id = ? AND fee_paid = 0`

	result, err := s.db.ExecContext(ctx, query, profit, feePaid, copiedTradeID)
	if err != nil {
		return fmt.Errorf("failed to finalize fee for copied trade %d: %w", copiedTradeID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for finalize fee %d: %w", copiedTradeID, err)
	}
	if rowsAffected == 1 {
		return nil
	}

	const existsQuery = `SELECT COUNT(*) FROM copied_trades WHERE id = ?`
	var count int
	if err := s.db.QueryRowContext(ctx, existsQuery, copiedTradeID).Scan(&count); err != nil {
		return fmt.Errorf("failed to check copied trade %d: %w", copiedTradeID, err)
	}
	if count == 0 {
		return fmt.Errorf("copied trade %d: %w", copiedTradeID, ports.ErrNotFound)
	}
	return fmt.Errorf("copied trade %d: %w", copiedTradeID, ports.ErrFeeAlreadyApplied)
}

// FindFeeAccount returns the first standard or pro-fx account owned by the
// same user as the lead trader's trading account.
func (s *Store) FindFeeAccount(ctx context.Context, leadTraderID int64) (int64, error) {
	const query = `
	SELECT a.id
	FROM lead_traders lt
	JOIN accounts trading ON trading.id = lt.account_id
	JOIN accounts a ON a.user_id = trading.user_id
	WHERE lt.id = ? AND a.type IN (?, ?)
	ORDER BY a.id
	LIMIT 1`

	var accountID int64
	err := s.db.QueryRowContext(ctx, query, leadTraderID, domain.AccountStandard, domain.AccountProFX).Scan(&accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("no fee-eligible account for lead trader %d: %w", leadTraderID, ports.ErrNotFound)
		}
		return 0, fmt.Errorf("failed to find fee account for lead trader %d: %w", leadTraderID, err)
	}
	return accountID, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPair(s scanner) (*domain.TradablePair, error) {
	p := &domain.TradablePair{}
	var timeframe string
	err := s.Scan(&p.Symbol, &p.BaseCurrency, &p.QuoteCurrency, &p.PipSize, &p.ContractSize,
		&p.Spread, &p.BasePrice, &timeframe)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	p.DefaultTimeframe = domain.Timeframe(timeframe)
	return p, nil
}

func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var direction, timeframe, status string
	err := s.Scan(
		&p.ID, &p.AccountID, &p.PairSymbol, &direction, &p.Volume, &p.EntryPrice, &p.EntryTime,
		&p.StopLoss, &p.TakeProfit, &p.Leverage, &timeframe, &p.FloatingPL, &status, &p.IsCopied)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	p.Direction = domain.Direction(direction)
	p.Timeframe = domain.Timeframe(timeframe)
	p.Status = domain.PositionStatus(status)
	return p, nil
}

func scanClosedTrade(s scanner) (*domain.ClosedTrade, error) {
	t := &domain.ClosedTrade{}
	var direction string
	var closeReason sql.NullString
	err := s.Scan(
		&t.ID, &t.PositionID, &t.AccountID, &t.PairSymbol, &direction, &t.Volume, &t.Leverage, &t.Amount,
		&t.EntryPrice, &t.ClosePrice, &t.RealizedPL, &t.EntryTime, &t.CloseTime, &closeReason, &t.IsCopied)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	t.Direction = domain.Direction(direction)
	if closeReason.Valid {
		t.CloseReason = domain.CloseReason(closeReason.String)
	}
	return t, nil
}

func scanLeadTrader(s scanner) (*domain.LeadTrader, error) {
	lt := &domain.LeadTrader{}
	var riskLevel string
	err := s.Scan(&lt.ID, &lt.AccountID, &riskLevel, &lt.MinAllocation, &lt.PerformanceFeePercent,
		&lt.IsActive, &lt.CreatedAt)
	if err != nil {
		return nil, err
	}
	lt.RiskLevel = domain.RiskLevel(riskLevel)
	return lt, nil
}

func scanSubscription(s scanner) (*domain.CopySubscription, error) {
	sub := &domain.CopySubscription{}
	err := s.Scan(&sub.ID, &sub.AccountID, &sub.LeadTraderID, &sub.AllocatedAmount, &sub.MaxDrawdownPercent,
		&sub.PeakValue, &sub.IsActive, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
