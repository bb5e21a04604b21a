/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Production single-node backend. The same row layout applies to PostgreSQL
  (store/postgres) with only dialect differences.

CONCURRENCY:
  The database is opened with WAL and immediate transaction locking
  (_txlock=immediate), so every atomic unit takes the writer lock up front.
  Readers don't block; a second concurrent writer waits up to the busy
  timeout and then surfaces as ledger.ErrConflict for the bounded retry in
  store.InTx. No unit ever hangs silently.

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statements exist for the entries table.

TIMESTAMPS:
  Stored as fixed-width UTC text so SQL range comparisons (maturity, salary
  cutoff) order lexicographically.

MIGRATION:
  Schema is auto-migrated on New(). Card catalog seeding is the catalog's
  job (insert-if-absent), not the migration's.

SEE ALSO:
  - store/store.go: interface definitions and the atomic unit contract
  - store/postgres: the FOR UPDATE variant of the same layout
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store"
)

// timeFormat is fixed-width so stored timestamps compare lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Store implements store.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New opens (and migrates) a SQLite store at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer connection sidesteps table-lock churn between pooled
	// connections; WAL keeps readers unblocked regardless.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	-- Accounts: the only mutable money holders
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		balance TEXT NOT NULL,
		card_tier TEXT NOT NULL
	);

	-- Entries (append-only ledger). No UPDATE, no DELETE.
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		account_id TEXT,
		entry_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		description TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_entries_account
		ON entries(account_id, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_entries_type
		ON entries(entry_type);

	-- Card catalog (seeded insert-if-absent, read-mostly)
	CREATE TABLE IF NOT EXISTS cards (
		tier TEXT PRIMARY KEY,
		price TEXT NOT NULL,
		benefits TEXT
	);

	-- Ministries: independent balance domain
	CREATE TABLE IF NOT EXISTS ministries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		balance TEXT NOT NULL
	);

	-- Investments: escrowed principal with maturity state machine
	CREATE TABLE IF NOT EXISTS investments (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		start TEXT NOT NULL,
		"end" TEXT NOT NULL,
		rate TEXT NOT NULL,
		status TEXT NOT NULL
	);

	-- Hot path for the maturity sweep
	CREATE INDEX IF NOT EXISTS idx_investments_due
		ON investments(status, "end");
	CREATE INDEX IF NOT EXISTS idx_investments_account
		ON investments(account_id);

	-- Salary accrual bookkeeping, one row per account
	CREATE TABLE IF NOT EXISTS salary (
		account_id TEXT PRIMARY KEY,
		last_paid TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithTx runs fn inside one immediate transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr("begin", err)
	}
	if err := fn(&sqlTx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapErr("commit", err)
	}
	return nil
}

// mapErr translates driver faults into the engine's taxonomy.
func mapErr(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return ledger.ErrConflict
		case sqlite3.ErrConstraint:
			return ledger.ErrAlreadyExists
		}
	}
	return &ledger.StorageError{Op: op, Err: err}
}

// =============================================================================
// TX
// =============================================================================

type sqlTx struct {
	tx *sql.Tx
}

// --- accounts ---

func (t *sqlTx) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	var balance, tier string
	err := t.tx.QueryRowContext(ctx,
		`SELECT balance, card_tier FROM accounts WHERE id = ?`, string(id),
	).Scan(&balance, &tier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ledger.NotFoundError{Kind: "account", Key: string(id)}
	}
	if err != nil {
		return nil, mapErr("get account", err)
	}
	bal, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, &ledger.StorageError{Op: "get account", Err: err}
	}
	return &ledger.Account{ID: id, Balance: bal, CardTier: ledger.CardTier(tier)}, nil
}

func (t *sqlTx) InsertAccount(ctx context.Context, acct ledger.Account) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO accounts (id, balance, card_tier) VALUES (?, ?, ?)`,
		string(acct.ID), acct.Balance.String(), string(acct.CardTier))
	if err != nil {
		return mapErr("insert account", err)
	}
	return nil
}

func (t *sqlTx) SetBalance(ctx context.Context, id ledger.AccountID, balance decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET balance = ? WHERE id = ?`, balance.String(), string(id))
	if err != nil {
		return mapErr("set balance", err)
	}
	return requireRow(res, &ledger.NotFoundError{Kind: "account", Key: string(id)})
}

func (t *sqlTx) SetCardTier(ctx context.Context, id ledger.AccountID, tier ledger.CardTier) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET card_tier = ? WHERE id = ?`, string(tier), string(id))
	if err != nil {
		return mapErr("set card tier", err)
	}
	return requireRow(res, &ledger.NotFoundError{Kind: "account", Key: string(id)})
}

func (t *sqlTx) TopBalances(ctx context.Context, limit int) ([]ledger.Account, error) {
	// Balances are stored as text; CAST restores numeric ordering.
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, balance, card_tier FROM accounts
		 ORDER BY CAST(balance AS REAL) DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, mapErr("top balances", err)
	}
	defer rows.Close()

	var out []ledger.Account
	for rows.Next() {
		var acct ledger.Account
		var balance string
		if err := rows.Scan(&acct.ID, &balance, &acct.CardTier); err != nil {
			return nil, mapErr("scan account", err)
		}
		if acct.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, &ledger.StorageError{Op: "scan account", Err: err}
		}
		out = append(out, acct)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return &ledger.StorageError{Op: "rows affected", Err: err}
	}
	if n == 0 {
		return missing
	}
	return nil
}

// --- entries ---

func (t *sqlTx) AppendEntry(ctx context.Context, e ledger.Entry) error {
	var acct any
	if e.AccountID != "" {
		acct = string(e.AccountID)
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO entries (id, account_id, entry_type, amount, timestamp, description)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(e.ID), acct, string(e.Type), e.Amount.String(),
		e.Timestamp.UTC().Format(timeFormat), e.Description)
	if err != nil {
		return mapErr("append entry", err)
	}
	return nil
}

func (t *sqlTx) EntriesByAccount(ctx context.Context, id ledger.AccountID, limit int) ([]ledger.Entry, error) {
	q := `SELECT id, account_id, entry_type, amount, timestamp, description
	      FROM entries WHERE account_id = ? ORDER BY timestamp DESC`
	args := []any{string(id)}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return t.queryEntries(ctx, q, args...)
}

func (t *sqlTx) EntriesByType(ctx context.Context, typ ledger.EntryType) ([]ledger.Entry, error) {
	return t.queryEntries(ctx,
		`SELECT id, account_id, entry_type, amount, timestamp, description
		 FROM entries WHERE entry_type = ? ORDER BY timestamp`, string(typ))
}

func (t *sqlTx) AllEntries(ctx context.Context) ([]ledger.Entry, error) {
	return t.queryEntries(ctx,
		`SELECT id, account_id, entry_type, amount, timestamp, description
		 FROM entries ORDER BY timestamp`)
}

func (t *sqlTx) queryEntries(ctx context.Context, q string, args ...any) ([]ledger.Entry, error) {
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapErr("query entries", err)
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		var (
			e         ledger.Entry
			acct      sql.NullString
			amount    string
			timestamp string
		)
		if err := rows.Scan(&e.ID, &acct, &e.Type, &amount, &timestamp, &e.Description); err != nil {
			return nil, mapErr("scan entry", err)
		}
		if acct.Valid {
			e.AccountID = ledger.AccountID(acct.String)
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, &ledger.StorageError{Op: "scan entry", Err: err}
		}
		if e.Timestamp, err = time.Parse(timeFormat, timestamp); err != nil {
			return nil, &ledger.StorageError{Op: "scan entry", Err: err}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- cards ---

func (t *sqlTx) GetCard(ctx context.Context, tier ledger.CardTier) (*ledger.CardDefinition, error) {
	var price, benefits string
	err := t.tx.QueryRowContext(ctx,
		`SELECT price, benefits FROM cards WHERE tier = ?`, string(tier),
	).Scan(&price, &benefits)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ledger.NotFoundError{Kind: "card", Key: string(tier)}
	}
	if err != nil {
		return nil, mapErr("get card", err)
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, &ledger.StorageError{Op: "get card", Err: err}
	}
	return &ledger.CardDefinition{Tier: tier, Price: p, Benefits: benefits}, nil
}

func (t *sqlTx) InsertCardIfAbsent(ctx context.Context, def ledger.CardDefinition) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO cards (tier, price, benefits) VALUES (?, ?, ?)
		 ON CONFLICT (tier) DO NOTHING`,
		string(def.Tier), def.Price.String(), def.Benefits)
	if err != nil {
		return mapErr("seed card", err)
	}
	return nil
}

func (t *sqlTx) ListCards(ctx context.Context) ([]ledger.CardDefinition, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT tier, price, benefits FROM cards ORDER BY CAST(price AS REAL) ASC`)
	if err != nil {
		return nil, mapErr("list cards", err)
	}
	defer rows.Close()

	var out []ledger.CardDefinition
	for rows.Next() {
		var def ledger.CardDefinition
		var price string
		if err := rows.Scan(&def.Tier, &price, &def.Benefits); err != nil {
			return nil, mapErr("scan card", err)
		}
		if def.Price, err = decimal.NewFromString(price); err != nil {
			return nil, &ledger.StorageError{Op: "scan card", Err: err}
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

// --- ministries ---

func (t *sqlTx) GetMinistry(ctx context.Context, name string) (*ledger.Ministry, error) {
	var min ledger.Ministry
	var balance string
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, name, balance FROM ministries WHERE name = ?`, name,
	).Scan(&min.ID, &min.Name, &balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ledger.NotFoundError{Kind: "ministry", Key: name}
	}
	if err != nil {
		return nil, mapErr("get ministry", err)
	}
	var perr error
	if min.Balance, perr = decimal.NewFromString(balance); perr != nil {
		return nil, &ledger.StorageError{Op: "get ministry", Err: perr}
	}
	return &min, nil
}

func (t *sqlTx) InsertMinistry(ctx context.Context, name string) (*ledger.Ministry, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO ministries (name, balance) VALUES (?, '0')`, name)
	if err != nil {
		return nil, mapErr("insert ministry", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, &ledger.StorageError{Op: "insert ministry", Err: err}
	}
	return &ledger.Ministry{ID: id, Name: name, Balance: decimal.Zero}, nil
}

func (t *sqlTx) SetMinistryBalance(ctx context.Context, name string, balance decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE ministries SET balance = ? WHERE name = ?`, balance.String(), name)
	if err != nil {
		return mapErr("set ministry balance", err)
	}
	return requireRow(res, &ledger.NotFoundError{Kind: "ministry", Key: name})
}

func (t *sqlTx) ListMinistries(ctx context.Context) ([]ledger.Ministry, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, name, balance FROM ministries ORDER BY name`)
	if err != nil {
		return nil, mapErr("list ministries", err)
	}
	defer rows.Close()

	var out []ledger.Ministry
	for rows.Next() {
		var min ledger.Ministry
		var balance string
		if err := rows.Scan(&min.ID, &min.Name, &balance); err != nil {
			return nil, mapErr("scan ministry", err)
		}
		var perr error
		if min.Balance, perr = decimal.NewFromString(balance); perr != nil {
			return nil, &ledger.StorageError{Op: "scan ministry", Err: perr}
		}
		out = append(out, min)
	}
	return out, rows.Err()
}

// --- investments ---

func (t *sqlTx) InsertInvestment(ctx context.Context, inv ledger.Investment) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO investments (id, account_id, amount, start, "end", rate, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(inv.ID), string(inv.AccountID), inv.Principal.String(),
		inv.StartTime.UTC().Format(timeFormat), inv.MaturityTime.UTC().Format(timeFormat),
		inv.ReturnRate.String(), string(inv.Status))
	if err != nil {
		return mapErr("insert investment", err)
	}
	return nil
}

func (t *sqlTx) DueInvestments(ctx context.Context, now time.Time) ([]ledger.Investment, error) {
	return t.queryInvestments(ctx,
		`SELECT id, account_id, amount, start, "end", rate, status
		 FROM investments WHERE status = ? AND "end" <= ? ORDER BY "end"`,
		string(ledger.InvestmentActive), now.UTC().Format(timeFormat))
}

func (t *sqlTx) ClaimInvestment(ctx context.Context, id ledger.InvestmentID) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE investments SET status = ? WHERE id = ? AND status = ?`,
		string(ledger.InvestmentCompleted), string(id), string(ledger.InvestmentActive))
	if err != nil {
		return false, mapErr("claim investment", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &ledger.StorageError{Op: "claim investment", Err: err}
	}
	return n == 1, nil
}

func (t *sqlTx) InvestmentsByAccount(ctx context.Context, id ledger.AccountID) ([]ledger.Investment, error) {
	return t.queryInvestments(ctx,
		`SELECT id, account_id, amount, start, "end", rate, status
		 FROM investments WHERE account_id = ?
		 ORDER BY CASE status WHEN 'active' THEN 0 ELSE 1 END, "end"`,
		string(id))
}

func (t *sqlTx) queryInvestments(ctx context.Context, q string, args ...any) ([]ledger.Investment, error) {
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapErr("query investments", err)
	}
	defer rows.Close()

	var out []ledger.Investment
	for rows.Next() {
		var (
			inv                 ledger.Investment
			amount, rate        string
			startAt, maturityAt string
		)
		if err := rows.Scan(&inv.ID, &inv.AccountID, &amount, &startAt, &maturityAt, &rate, &inv.Status); err != nil {
			return nil, mapErr("scan investment", err)
		}
		var perr error
		if inv.Principal, perr = decimal.NewFromString(amount); perr != nil {
			return nil, &ledger.StorageError{Op: "scan investment", Err: perr}
		}
		if inv.ReturnRate, perr = decimal.NewFromString(rate); perr != nil {
			return nil, &ledger.StorageError{Op: "scan investment", Err: perr}
		}
		if inv.StartTime, perr = time.Parse(timeFormat, startAt); perr != nil {
			return nil, &ledger.StorageError{Op: "scan investment", Err: perr}
		}
		if inv.MaturityTime, perr = time.Parse(timeFormat, maturityAt); perr != nil {
			return nil, &ledger.StorageError{Op: "scan investment", Err: perr}
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// --- salary accrual ---

func (t *sqlTx) InsertAccrual(ctx context.Context, a ledger.SalaryAccrual) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO salary (account_id, last_paid) VALUES (?, ?)`,
		string(a.AccountID), a.LastPaid.UTC().Format(timeFormat))
	if err != nil {
		return mapErr("insert accrual", err)
	}
	return nil
}

func (t *sqlTx) DueAccruals(ctx context.Context, cutoff time.Time) ([]ledger.SalaryAccrual, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT account_id, last_paid FROM salary WHERE last_paid <= ? ORDER BY account_id`,
		cutoff.UTC().Format(timeFormat))
	if err != nil {
		return nil, mapErr("query accruals", err)
	}
	defer rows.Close()

	var out []ledger.SalaryAccrual
	for rows.Next() {
		var a ledger.SalaryAccrual
		var lastPaid string
		if err := rows.Scan(&a.AccountID, &lastPaid); err != nil {
			return nil, mapErr("scan accrual", err)
		}
		var perr error
		if a.LastPaid, perr = time.Parse(timeFormat, lastPaid); perr != nil {
			return nil, &ledger.StorageError{Op: "scan accrual", Err: perr}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *sqlTx) AdvanceLastPaid(ctx context.Context, id ledger.AccountID, paidAt, cutoff time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE salary SET last_paid = ? WHERE account_id = ? AND last_paid <= ?`,
		paidAt.UTC().Format(timeFormat), string(id), cutoff.UTC().Format(timeFormat))
	if err != nil {
		return false, mapErr("advance last paid", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &ledger.StorageError{Op: "advance last paid", Err: err}
	}
	return n == 1, nil
}

var _ store.Store = (*Store)(nil)
var _ store.Tx = (*sqlTx)(nil)
