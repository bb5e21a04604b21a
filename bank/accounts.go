/*
accounts.go - Account lifecycle and direct balance operations

PURPOSE:
  Opening accounts and the simple single-account movements: manual deposit
  and withdrawal, and the administrative grant/seize pair. Transfers, cards,
  and investments live in their own files.

INVARIANTS:
  - Open is the only way an account comes into existence; accounts are never
    deleted. The accrual row is created in the same atomic unit so salary
    bookkeeping can never be missing for a live account.
  - Every movement appends exactly one ledger entry.
  - A debit that would push the balance negative fails before any write.
*/
package bank

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store"
)

// AccountService owns account records and balances.
type AccountService struct {
	store store.Store
	clock ledger.Clock
	log   *zap.Logger
}

func NewAccountService(st store.Store, clock ledger.Clock, log *zap.Logger) *AccountService {
	return &AccountService{store: st, clock: clock, log: log}
}

// Open creates an account with the fixed starting balance and a basic card,
// plus its salary accrual row. ledger.ErrAlreadyExists if the id is taken;
// the check-then-insert is atomic, so a duplicate-open race loses cleanly.
func (s *AccountService) Open(ctx context.Context, id ledger.AccountID) (acct *ledger.Account, err error) {
	defer func() { observe("open", err) }()
	if err = requireAccountID(id); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	err = store.InTx(ctx, s.store, func(tx store.Tx) error {
		a := ledger.Account{ID: id, Balance: ledger.StartingBalance, CardTier: ledger.TierBasic}
		if err := tx.InsertAccount(ctx, a); err != nil {
			return err
		}
		if err := tx.InsertAccrual(ctx, ledger.SalaryAccrual{AccountID: id, LastPaid: now}); err != nil {
			return err
		}
		if err := tx.AppendEntry(ctx, newEntry(id, ledger.EntryDeposit, ledger.StartingBalance, now, "opening balance")); err != nil {
			return err
		}
		acct = &a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("account opened", zap.String("account", string(id)))
	return acct, nil
}

// Deposit credits amount and appends a deposit entry.
func (s *AccountService) Deposit(ctx context.Context, id ledger.AccountID, amount decimal.Decimal) (err error) {
	defer func() { observe("deposit", err) }()
	if err = requirePositive(amount); err != nil {
		return err
	}
	now := s.clock.Now()
	return store.InTx(ctx, s.store, func(tx store.Tx) error {
		if _, err := credit(ctx, tx, id, amount); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, newEntry(id, ledger.EntryDeposit, amount, now, "manual deposit"))
	})
}

// Withdraw debits amount and appends a withdraw entry.
// ledger.ErrInsufficientFunds if the balance would go negative.
func (s *AccountService) Withdraw(ctx context.Context, id ledger.AccountID, amount decimal.Decimal) (err error) {
	defer func() { observe("withdraw", err) }()
	if err = requirePositive(amount); err != nil {
		return err
	}
	now := s.clock.Now()
	return store.InTx(ctx, s.store, func(tx store.Tx) error {
		if _, err := debit(ctx, tx, id, amount); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, newEntry(id, ledger.EntryWithdraw, amount.Neg(), now, "manual withdrawal"))
	})
}

// AdminGive credits amount on behalf of an administrator.
func (s *AccountService) AdminGive(ctx context.Context, actor string, id ledger.AccountID, amount decimal.Decimal) (err error) {
	defer func() { observe("admin_give", err) }()
	if err = requirePositive(amount); err != nil {
		return err
	}
	now := s.clock.Now()
	return store.InTx(ctx, s.store, func(tx store.Tx) error {
		if _, err := credit(ctx, tx, id, amount); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, newEntry(id, ledger.EntryAdminGive, amount, now, "granted by "+actor))
	})
}

// AdminTake debits amount on behalf of an administrator.
func (s *AccountService) AdminTake(ctx context.Context, actor string, id ledger.AccountID, amount decimal.Decimal) (err error) {
	defer func() { observe("admin_take", err) }()
	if err = requirePositive(amount); err != nil {
		return err
	}
	now := s.clock.Now()
	return store.InTx(ctx, s.store, func(tx store.Tx) error {
		if _, err := debit(ctx, tx, id, amount); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, newEntry(id, ledger.EntryAdminTake, amount.Neg(), now, "seized by "+actor))
	})
}

// Get returns a snapshot of the account. The snapshot reflects the most
// recently committed mutation; no stronger staleness guarantee.
func (s *AccountService) Get(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	var acct *ledger.Account
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		acct, err = tx.GetAccount(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// History returns the account's most recent ledger entries, newest first.
// limit <= 0 means no limit.
func (s *AccountService) History(ctx context.Context, id ledger.AccountID, limit int) ([]ledger.Entry, error) {
	var entries []ledger.Entry
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetAccount(ctx, id); err != nil {
			return err
		}
		var err error
		entries, err = tx.EntriesByAccount(ctx, id, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// TopBalances returns the wealthiest accounts, richest first.
// limit <= 0 falls back to the classic top ten.
func (s *AccountService) TopBalances(ctx context.Context, limit int) ([]ledger.Account, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []ledger.Account
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.TopBalances(ctx, limit)
		return err
	})
	return out, err
}

// EntriesByType returns all entries of one type, for admin reporting.
func (s *AccountService) EntriesByType(ctx context.Context, typ ledger.EntryType) ([]ledger.Entry, error) {
	var entries []ledger.Entry
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		entries, err = tx.EntriesByType(ctx, typ)
		return err
	})
	return entries, err
}

// AllEntries returns the full ledger, for admin reporting.
func (s *AccountService) AllEntries(ctx context.Context) ([]ledger.Entry, error) {
	var entries []ledger.Entry
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		entries, err = tx.AllEntries(ctx)
		return err
	})
	return entries, err
}
