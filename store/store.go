/*
Package store defines the persistence interfaces for the ledger engine.

PURPOSE:
  One storage-backend interface behind which the memory, SQLite, and
  PostgreSQL implementations are interchangeable. Every multi-step mutation
  (transfer, purchase, investment open, one payout, one accrual) executes
  inside a single atomic unit via WithTx: either all of its balance
  mutations, ledger appends, and status changes commit, or none do.

ATOMIC UNIT CONTRACT:
  - WithTx runs fn inside one transaction. fn returning nil commits;
    returning an error rolls everything back.
  - A Tx serializes access to the rows it touches. Reading an account inside
    a Tx locks it against concurrent mutation until commit (row lock in
    PostgreSQL, single-writer transaction in SQLite, global mutex in the
    memory store).
  - Acquisition is bounded: contention surfaces as ledger.ErrConflict, never
    a silent hang. InTx retries the whole unit a bounded number of times.

LOCK ORDERING:
  Operations touching two accounts must read them in ascending id order so
  two opposite-direction transfers cannot deadlock. That discipline lives in
  the services; backends only promise that reads-within-tx lock.

APPEND-ONLY LEDGER:
  Tx exposes AppendEntry and read queries for entries. There is no update or
  delete of an entry anywhere in this interface. Ever.

SEE ALSO:
  - store/memory:   in-memory backend for tests and development
  - store/sqlite:   SQLite backend (WAL, immediate transactions)
  - store/postgres: PostgreSQL backend (FOR UPDATE row locks)
*/
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// STORE - backend handle
// =============================================================================

// Store is a storage backend. All reads and writes happen through WithTx.
type Store interface {
	// WithTx executes fn within one atomic unit. If fn returns an error the
	// unit is rolled back and the error returned unchanged.
	WithTx(ctx context.Context, fn func(Tx) error) error

	// Close releases the backend.
	Close() error
}

// =============================================================================
// TX - typed operations available inside an atomic unit
// =============================================================================

// Tx is the set of typed record operations available inside one atomic unit.
type Tx interface {
	// --- accounts ---

	// GetAccount returns the account, locked against concurrent mutation for
	// the remainder of the unit. ledger.ErrNotFound if absent.
	GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error)

	// InsertAccount creates an account. ledger.ErrAlreadyExists on duplicate.
	// The check-then-insert is atomic within the unit.
	InsertAccount(ctx context.Context, acct ledger.Account) error

	// SetBalance writes an account's balance. The caller has already read the
	// row in this unit and validated the new value.
	SetBalance(ctx context.Context, id ledger.AccountID, balance decimal.Decimal) error

	// SetCardTier writes an account's card tier.
	SetCardTier(ctx context.Context, id ledger.AccountID, tier ledger.CardTier) error

	// TopBalances returns the limit wealthiest accounts, richest first.
	// Rows are snapshots, not locked.
	TopBalances(ctx context.Context, limit int) ([]ledger.Account, error)

	// --- ledger entries (append-only) ---

	AppendEntry(ctx context.Context, e ledger.Entry) error
	EntriesByAccount(ctx context.Context, id ledger.AccountID, limit int) ([]ledger.Entry, error)
	EntriesByType(ctx context.Context, t ledger.EntryType) ([]ledger.Entry, error)
	AllEntries(ctx context.Context) ([]ledger.Entry, error)

	// --- card catalog ---

	// GetCard returns a card definition. ledger.ErrNotFound if the tier is
	// not in the catalog.
	GetCard(ctx context.Context, tier ledger.CardTier) (*ledger.CardDefinition, error)

	// InsertCardIfAbsent seeds one catalog row idempotently.
	InsertCardIfAbsent(ctx context.Context, def ledger.CardDefinition) error

	// ListCards returns the catalog ordered by price ascending.
	ListCards(ctx context.Context) ([]ledger.CardDefinition, error)

	// --- ministries ---

	// GetMinistry returns the ministry by name, locked for the unit.
	GetMinistry(ctx context.Context, name string) (*ledger.Ministry, error)

	// InsertMinistry creates a ministry with zero balance.
	// ledger.ErrAlreadyExists on a duplicate name.
	InsertMinistry(ctx context.Context, name string) (*ledger.Ministry, error)

	// SetMinistryBalance writes a ministry's balance.
	SetMinistryBalance(ctx context.Context, name string, balance decimal.Decimal) error

	// ListMinistries returns all ministries ordered by name.
	ListMinistries(ctx context.Context) ([]ledger.Ministry, error)

	// --- investments ---

	InsertInvestment(ctx context.Context, inv ledger.Investment) error

	// DueInvestments returns active investments with maturity <= now.
	DueInvestments(ctx context.Context, now time.Time) ([]ledger.Investment, error)

	// ClaimInvestment flips one investment active -> completed and reports
	// whether this unit won the claim. A false return means another run has
	// already settled (or is settling) it; the caller must not pay.
	ClaimInvestment(ctx context.Context, id ledger.InvestmentID) (bool, error)

	// InvestmentsByAccount returns an account's investments, active first,
	// then by maturity ascending.
	InvestmentsByAccount(ctx context.Context, id ledger.AccountID) ([]ledger.Investment, error)

	// --- salary accrual ---

	InsertAccrual(ctx context.Context, a ledger.SalaryAccrual) error

	// DueAccruals returns accrual rows with last_paid <= cutoff.
	DueAccruals(ctx context.Context, cutoff time.Time) ([]ledger.SalaryAccrual, error)

	// AdvanceLastPaid sets last_paid to paidAt, but only if the row is still
	// at or before cutoff. Reports whether the row was advanced; false means
	// the account was already paid for this period and must not be paid
	// again.
	AdvanceLastPaid(ctx context.Context, id ledger.AccountID, paidAt, cutoff time.Time) (bool, error)
}

// =============================================================================
// BOUNDED RETRY
// =============================================================================

// txMaxAttempts bounds how many times an atomic unit is re-run on conflict
// before the conflict surfaces to the caller.
const txMaxAttempts = 3

// txRetryBackoff spaces the re-runs out slightly so the competing unit can
// commit.
const txRetryBackoff = 10 * time.Millisecond

// InTx runs fn through s.WithTx, retrying the whole unit on
// ledger.ErrConflict up to txMaxAttempts times. All other errors return
// immediately.
func InTx(ctx context.Context, s Store, fn func(Tx) error) error {
	var err error
	for attempt := 0; attempt < txMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(txRetryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = s.WithTx(ctx, fn)
		if !ledger.IsRetryable(err) {
			return err
		}
	}
	return err
}
