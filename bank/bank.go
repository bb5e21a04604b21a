/*
Package bank implements the ledger & settlement services.

PURPOSE:
  The orchestration layer between validated primitive requests and the
  storage backend: account lifecycle, peer transfers, card purchases,
  ministry sub-ledgers, escrowed investments, and periodic salary accrual.

ATOMIC-MUTATION CONTRACT:
  Every operation validates first, then runs its balance mutations, ledger
  appends, and status changes inside ONE store.InTx unit. A failure anywhere
  rolls the whole unit back; no step is ever left half-applied. Contention is
  retried a bounded number of times and then surfaced as a retryable
  conflict.

LOCK ORDERING:
  Operations touching two accounts read them in ascending id order so two
  opposite-direction transfers cannot deadlock (see TransferService).

BOUNDARY:
  Services return typed results and errors from the ledger taxonomy. They
  never format user-facing text and never inspect roles; the caller passes in
  an already-resolved actor identity.

SEE ALSO:
  - ledger/: the typed records and error taxonomy
  - store/:  the atomic unit contract the services lean on
  - sweep/:  the coordinator driving the two periodic settlements
*/
package bank

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store"
)

// newEntry builds one ledger entry with a fresh id. amount is signed: debits
// negative, credits positive.
func newEntry(acct ledger.AccountID, typ ledger.EntryType, amount decimal.Decimal, at time.Time, desc string) ledger.Entry {
	return ledger.Entry{
		ID:          ledger.EntryID(uuid.NewString()),
		AccountID:   acct,
		Type:        typ,
		Amount:      amount,
		Timestamp:   at,
		Description: desc,
	}
}

// debit subtracts amount from the account, enforcing non-negativity. The
// account row is locked by GetAccount for the remainder of the unit.
func debit(ctx context.Context, tx store.Tx, id ledger.AccountID, amount decimal.Decimal) (*ledger.Account, error) {
	acct, err := tx.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if acct.Balance.LessThan(amount) {
		return nil, &ledger.InsufficientFundsError{
			AccountID: id,
			Available: acct.Balance,
			Requested: amount,
		}
	}
	acct.Balance = acct.Balance.Sub(amount)
	if err := tx.SetBalance(ctx, id, acct.Balance); err != nil {
		return nil, err
	}
	return acct, nil
}

// credit adds amount to the account.
func credit(ctx context.Context, tx store.Tx, id ledger.AccountID, amount decimal.Decimal) (*ledger.Account, error) {
	acct, err := tx.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	acct.Balance = acct.Balance.Add(amount)
	if err := tx.SetBalance(ctx, id, acct.Balance); err != nil {
		return nil, err
	}
	return acct, nil
}

// requirePositive rejects zero and negative amounts before any mutation.
func requirePositive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &ledger.ValidationError{Reason: "amount must be positive"}
	}
	return nil
}

// requireAccountID rejects empty identifiers.
func requireAccountID(id ledger.AccountID) error {
	if id == "" {
		return &ledger.ValidationError{Reason: "account id must not be empty"}
	}
	return nil
}
