/*
Package postgres provides a PostgreSQL-backed implementation of the storage
interfaces, mirroring the SQLite layout with dialect differences only.

CONCURRENCY:
  Per-account serialization uses SELECT ... FOR UPDATE: reading an account or
  ministry inside an atomic unit locks its row until commit. Services read
  two-account pairs in ascending id order, so opposite-direction transfers
  cannot deadlock. Deadlock and serialization faults from the server are
  translated to ledger.ErrConflict and re-run by store.InTx.

NUMERICS:
  Balances travel as text (balance::text) and parse into decimal.Decimal, so
  no float ever touches money.

SEE ALSO:
  - store/store.go: the atomic unit contract
  - store/sqlite:   the single-writer variant of the same layout
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store"
)

// Store implements store.Store using a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and migrates the schema.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		balance NUMERIC(15,2) NOT NULL,
		card_tier TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		account_id TEXT,
		entry_type TEXT NOT NULL,
		amount NUMERIC(15,2) NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		description TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_entries_account
		ON entries(account_id, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_entries_type
		ON entries(entry_type);

	CREATE TABLE IF NOT EXISTS cards (
		tier TEXT PRIMARY KEY,
		price NUMERIC(15,2) NOT NULL,
		benefits TEXT
	);

	CREATE TABLE IF NOT EXISTS ministries (
		id BIGSERIAL PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		balance NUMERIC(15,2) NOT NULL
	);

	CREATE TABLE IF NOT EXISTS investments (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		amount NUMERIC(15,2) NOT NULL,
		start TIMESTAMPTZ NOT NULL,
		"end" TIMESTAMPTZ NOT NULL,
		rate NUMERIC(5,2) NOT NULL,
		status TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_investments_due
		ON investments(status, "end");
	CREATE INDEX IF NOT EXISTS idx_investments_account
		ON investments(account_id);

	CREATE TABLE IF NOT EXISTS salary (
		account_id TEXT PRIMARY KEY,
		last_paid TIMESTAMPTZ NOT NULL
	);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// WithTx runs fn inside one database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapErr("begin", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapErr("commit", err)
	}
	return nil
}

// mapErr translates server faults into the engine's taxonomy.
func mapErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return ledger.ErrAlreadyExists
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return ledger.ErrConflict
		}
	}
	return &ledger.StorageError{Op: op, Err: err}
}

// =============================================================================
// TX
// =============================================================================

type pgTx struct {
	tx pgx.Tx
}

// --- accounts ---

func (t *pgTx) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	var balance, tier string
	// FOR UPDATE locks the row, serializing concurrent mutation.
	err := t.tx.QueryRow(ctx,
		`SELECT balance::text, card_tier FROM accounts WHERE id = $1 FOR UPDATE`,
		string(id)).Scan(&balance, &tier)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ledger.NotFoundError{Kind: "account", Key: string(id)}
	}
	if err != nil {
		return nil, mapErr("get account", err)
	}
	bal, perr := decimal.NewFromString(balance)
	if perr != nil {
		return nil, &ledger.StorageError{Op: "get account", Err: perr}
	}
	return &ledger.Account{ID: id, Balance: bal, CardTier: ledger.CardTier(tier)}, nil
}

func (t *pgTx) InsertAccount(ctx context.Context, acct ledger.Account) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO accounts (id, balance, card_tier) VALUES ($1, $2, $3)`,
		string(acct.ID), acct.Balance.String(), string(acct.CardTier))
	if err != nil {
		return mapErr("insert account", err)
	}
	return nil
}

func (t *pgTx) SetBalance(ctx context.Context, id ledger.AccountID, balance decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE accounts SET balance = $1 WHERE id = $2`, balance.String(), string(id))
	if err != nil {
		return mapErr("set balance", err)
	}
	if tag.RowsAffected() == 0 {
		return &ledger.NotFoundError{Kind: "account", Key: string(id)}
	}
	return nil
}

func (t *pgTx) SetCardTier(ctx context.Context, id ledger.AccountID, tier ledger.CardTier) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE accounts SET card_tier = $1 WHERE id = $2`, string(tier), string(id))
	if err != nil {
		return mapErr("set card tier", err)
	}
	if tag.RowsAffected() == 0 {
		return &ledger.NotFoundError{Kind: "account", Key: string(id)}
	}
	return nil
}

func (t *pgTx) TopBalances(ctx context.Context, limit int) ([]ledger.Account, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, balance::text, card_tier FROM accounts
		 ORDER BY balance DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, mapErr("top balances", err)
	}
	defer rows.Close()

	var out []ledger.Account
	for rows.Next() {
		var id, balance, tier string
		if err := rows.Scan(&id, &balance, &tier); err != nil {
			return nil, mapErr("scan account", err)
		}
		bal, perr := decimal.NewFromString(balance)
		if perr != nil {
			return nil, &ledger.StorageError{Op: "scan account", Err: perr}
		}
		out = append(out, ledger.Account{ID: ledger.AccountID(id), Balance: bal, CardTier: ledger.CardTier(tier)})
	}
	return out, rows.Err()
}

// --- entries ---

func (t *pgTx) AppendEntry(ctx context.Context, e ledger.Entry) error {
	var acct any
	if e.AccountID != "" {
		acct = string(e.AccountID)
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO entries (id, account_id, entry_type, amount, timestamp, description)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.ID), acct, string(e.Type), e.Amount.String(), e.Timestamp.UTC(), e.Description)
	if err != nil {
		return mapErr("append entry", err)
	}
	return nil
}

func (t *pgTx) EntriesByAccount(ctx context.Context, id ledger.AccountID, limit int) ([]ledger.Entry, error) {
	q := `SELECT id, account_id, entry_type, amount::text, timestamp, description
	      FROM entries WHERE account_id = $1 ORDER BY timestamp DESC`
	args := []any{string(id)}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	return t.queryEntries(ctx, q, args...)
}

func (t *pgTx) EntriesByType(ctx context.Context, typ ledger.EntryType) ([]ledger.Entry, error) {
	return t.queryEntries(ctx,
		`SELECT id, account_id, entry_type, amount::text, timestamp, description
		 FROM entries WHERE entry_type = $1 ORDER BY timestamp`, string(typ))
}

func (t *pgTx) AllEntries(ctx context.Context) ([]ledger.Entry, error) {
	return t.queryEntries(ctx,
		`SELECT id, account_id, entry_type, amount::text, timestamp, description
		 FROM entries ORDER BY timestamp`)
}

func (t *pgTx) queryEntries(ctx context.Context, q string, args ...any) ([]ledger.Entry, error) {
	rows, err := t.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, mapErr("query entries", err)
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		var (
			e        ledger.Entry
			entryID  string
			acct     *string
			entryTyp string
			amount   string
			ts       time.Time
			desc     *string
		)
		if err := rows.Scan(&entryID, &acct, &entryTyp, &amount, &ts, &desc); err != nil {
			return nil, mapErr("scan entry", err)
		}
		e.ID = ledger.EntryID(entryID)
		e.Type = ledger.EntryType(entryTyp)
		e.Timestamp = ts
		if acct != nil {
			e.AccountID = ledger.AccountID(*acct)
		}
		if desc != nil {
			e.Description = *desc
		}
		var perr error
		if e.Amount, perr = decimal.NewFromString(amount); perr != nil {
			return nil, &ledger.StorageError{Op: "scan entry", Err: perr}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- cards ---

func (t *pgTx) GetCard(ctx context.Context, tier ledger.CardTier) (*ledger.CardDefinition, error) {
	var price, benefits string
	err := t.tx.QueryRow(ctx,
		`SELECT price::text, benefits FROM cards WHERE tier = $1`, string(tier),
	).Scan(&price, &benefits)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ledger.NotFoundError{Kind: "card", Key: string(tier)}
	}
	if err != nil {
		return nil, mapErr("get card", err)
	}
	p, perr := decimal.NewFromString(price)
	if perr != nil {
		return nil, &ledger.StorageError{Op: "get card", Err: perr}
	}
	return &ledger.CardDefinition{Tier: tier, Price: p, Benefits: benefits}, nil
}

func (t *pgTx) InsertCardIfAbsent(ctx context.Context, def ledger.CardDefinition) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO cards (tier, price, benefits) VALUES ($1, $2, $3)
		 ON CONFLICT (tier) DO NOTHING`,
		string(def.Tier), def.Price.String(), def.Benefits)
	if err != nil {
		return mapErr("seed card", err)
	}
	return nil
}

func (t *pgTx) ListCards(ctx context.Context) ([]ledger.CardDefinition, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT tier, price::text, benefits FROM cards ORDER BY price ASC`)
	if err != nil {
		return nil, mapErr("list cards", err)
	}
	defer rows.Close()

	var out []ledger.CardDefinition
	for rows.Next() {
		var tier, price, benefits string
		if err := rows.Scan(&tier, &price, &benefits); err != nil {
			return nil, mapErr("scan card", err)
		}
		p, perr := decimal.NewFromString(price)
		if perr != nil {
			return nil, &ledger.StorageError{Op: "scan card", Err: perr}
		}
		out = append(out, ledger.CardDefinition{Tier: ledger.CardTier(tier), Price: p, Benefits: benefits})
	}
	return out, rows.Err()
}

// --- ministries ---

func (t *pgTx) GetMinistry(ctx context.Context, name string) (*ledger.Ministry, error) {
	var min ledger.Ministry
	var balance string
	err := t.tx.QueryRow(ctx,
		`SELECT id, name, balance::text FROM ministries WHERE name = $1 FOR UPDATE`,
		name).Scan(&min.ID, &min.Name, &balance)
	if errors.Is(err, pgx.ErrNoRows) {
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

func (t *pgTx) InsertMinistry(ctx context.Context, name string) (*ledger.Ministry, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO ministries (name, balance) VALUES ($1, 0) RETURNING id`, name,
	).Scan(&id)
	if err != nil {
		return nil, mapErr("insert ministry", err)
	}
	return &ledger.Ministry{ID: id, Name: name, Balance: decimal.Zero}, nil
}

func (t *pgTx) SetMinistryBalance(ctx context.Context, name string, balance decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE ministries SET balance = $1 WHERE name = $2`, balance.String(), name)
	if err != nil {
		return mapErr("set ministry balance", err)
	}
	if tag.RowsAffected() == 0 {
		return &ledger.NotFoundError{Kind: "ministry", Key: name}
	}
	return nil
}

func (t *pgTx) ListMinistries(ctx context.Context) ([]ledger.Ministry, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, name, balance::text FROM ministries ORDER BY name`)
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

func (t *pgTx) InsertInvestment(ctx context.Context, inv ledger.Investment) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO investments (id, account_id, amount, start, "end", rate, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(inv.ID), string(inv.AccountID), inv.Principal.String(),
		inv.StartTime.UTC(), inv.MaturityTime.UTC(), inv.ReturnRate.String(), string(inv.Status))
	if err != nil {
		return mapErr("insert investment", err)
	}
	return nil
}

func (t *pgTx) DueInvestments(ctx context.Context, now time.Time) ([]ledger.Investment, error) {
	return t.queryInvestments(ctx,
		`SELECT id, account_id, amount::text, start, "end", rate::text, status
		 FROM investments WHERE status = $1 AND "end" <= $2 ORDER BY "end"`,
		string(ledger.InvestmentActive), now.UTC())
}

func (t *pgTx) ClaimInvestment(ctx context.Context, id ledger.InvestmentID) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE investments SET status = $1 WHERE id = $2 AND status = $3`,
		string(ledger.InvestmentCompleted), string(id), string(ledger.InvestmentActive))
	if err != nil {
		return false, mapErr("claim investment", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) InvestmentsByAccount(ctx context.Context, id ledger.AccountID) ([]ledger.Investment, error) {
	return t.queryInvestments(ctx,
		`SELECT id, account_id, amount::text, start, "end", rate::text, status
		 FROM investments WHERE account_id = $1
		 ORDER BY CASE status WHEN 'active' THEN 0 ELSE 1 END, "end"`,
		string(id))
}

func (t *pgTx) queryInvestments(ctx context.Context, q string, args ...any) ([]ledger.Investment, error) {
	rows, err := t.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, mapErr("query investments", err)
	}
	defer rows.Close()

	var out []ledger.Investment
	for rows.Next() {
		var (
			invID, acct, amount, rate, status string
			start, end                        time.Time
		)
		if err := rows.Scan(&invID, &acct, &amount, &start, &end, &rate, &status); err != nil {
			return nil, mapErr("scan investment", err)
		}
		inv := ledger.Investment{
			ID:           ledger.InvestmentID(invID),
			AccountID:    ledger.AccountID(acct),
			StartTime:    start,
			MaturityTime: end,
			Status:       ledger.InvestmentStatus(status),
		}
		var perr error
		if inv.Principal, perr = decimal.NewFromString(amount); perr != nil {
			return nil, &ledger.StorageError{Op: "scan investment", Err: perr}
		}
		if inv.ReturnRate, perr = decimal.NewFromString(rate); perr != nil {
			return nil, &ledger.StorageError{Op: "scan investment", Err: perr}
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// --- salary accrual ---

func (t *pgTx) InsertAccrual(ctx context.Context, a ledger.SalaryAccrual) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO salary (account_id, last_paid) VALUES ($1, $2)`,
		string(a.AccountID), a.LastPaid.UTC())
	if err != nil {
		return mapErr("insert accrual", err)
	}
	return nil
}

func (t *pgTx) DueAccruals(ctx context.Context, cutoff time.Time) ([]ledger.SalaryAccrual, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT account_id, last_paid FROM salary WHERE last_paid <= $1 ORDER BY account_id`,
		cutoff.UTC())
	if err != nil {
		return nil, mapErr("query accruals", err)
	}
	defer rows.Close()

	var out []ledger.SalaryAccrual
	for rows.Next() {
		var acct string
		var lastPaid time.Time
		if err := rows.Scan(&acct, &lastPaid); err != nil {
			return nil, mapErr("scan accrual", err)
		}
		out = append(out, ledger.SalaryAccrual{AccountID: ledger.AccountID(acct), LastPaid: lastPaid})
	}
	return out, rows.Err()
}

func (t *pgTx) AdvanceLastPaid(ctx context.Context, id ledger.AccountID, paidAt, cutoff time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE salary SET last_paid = $1 WHERE account_id = $2 AND last_paid <= $3`,
		paidAt.UTC(), string(id), cutoff.UTC())
	if err != nil {
		return false, mapErr("advance last paid", err)
	}
	return tag.RowsAffected() == 1, nil
}

var _ store.Store = (*Store)(nil)
var _ store.Tx = (*pgTx)(nil)
