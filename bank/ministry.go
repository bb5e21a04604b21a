/*
ministry.go - Government sub-ledgers

PURPOSE:
  Named government funds with their own balance domain, independent of user
  accounts. Distribute credits a ministry; withdraw debits it. Both append
  audit entries attributed to the acting administrator.

NOTE ON CONSERVATION:
  A distribution has no offsetting debit anywhere; ministries are a
  closed-loop credit source by design of the source economy. Total-system
  conservation is an account-domain invariant only.
*/
package bank

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store"
)

// MinistryTreasury manages the ministry sub-ledgers.
type MinistryTreasury struct {
	store store.Store
	clock ledger.Clock
	log   *zap.Logger
}

func NewMinistryTreasury(st store.Store, clock ledger.Clock, log *zap.Logger) *MinistryTreasury {
	return &MinistryTreasury{store: st, clock: clock, log: log}
}

// Create adds a ministry with zero balance.
// ledger.ErrAlreadyExists on a duplicate name.
func (s *MinistryTreasury) Create(ctx context.Context, name string) (min *ledger.Ministry, err error) {
	defer func() { observe("ministry_create", err) }()
	if name == "" {
		return nil, &ledger.ValidationError{Reason: "ministry name must not be empty"}
	}
	err = store.InTx(ctx, s.store, func(tx store.Tx) error {
		var err error
		min, err = tx.InsertMinistry(ctx, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("ministry created", zap.String("ministry", name))
	return min, nil
}

// Distribute credits amount to the ministry and records the distribution,
// attributed to actor. No originating account is debited.
func (s *MinistryTreasury) Distribute(ctx context.Context, name string, amount decimal.Decimal, actor ledger.AccountID) (err error) {
	defer func() { observe("ministry_distribute", err) }()
	if err = requirePositive(amount); err != nil {
		return err
	}
	now := s.clock.Now()
	return store.InTx(ctx, s.store, func(tx store.Tx) error {
		min, err := tx.GetMinistry(ctx, name)
		if err != nil {
			return err
		}
		if err := tx.SetMinistryBalance(ctx, name, min.Balance.Add(amount)); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, newEntry(actor, ledger.EntryMinistryDistribution, amount, now,
			fmt.Sprintf("budget distribution to ministry %s", name)))
	})
}

// Withdraw debits amount from the ministry.
// ledger.ErrInsufficientFunds if the ministry balance would go negative.
func (s *MinistryTreasury) Withdraw(ctx context.Context, name string, amount decimal.Decimal, actor ledger.AccountID) (err error) {
	defer func() { observe("ministry_withdraw", err) }()
	if err = requirePositive(amount); err != nil {
		return err
	}
	now := s.clock.Now()
	return store.InTx(ctx, s.store, func(tx store.Tx) error {
		min, err := tx.GetMinistry(ctx, name)
		if err != nil {
			return err
		}
		if min.Balance.LessThan(amount) {
			return &ledger.InsufficientFundsError{
				AccountID: ledger.AccountID(name),
				Available: min.Balance,
				Requested: amount,
			}
		}
		if err := tx.SetMinistryBalance(ctx, name, min.Balance.Sub(amount)); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, newEntry(actor, ledger.EntryMinistryWithdraw, amount.Neg(), now,
			fmt.Sprintf("withdrawal from ministry %s", name)))
	})
}

// Get returns one ministry by name.
func (s *MinistryTreasury) Get(ctx context.Context, name string) (*ledger.Ministry, error) {
	var min *ledger.Ministry
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		min, err = tx.GetMinistry(ctx, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return min, nil
}

// List returns all ministries ordered by name.
func (s *MinistryTreasury) List(ctx context.Context) ([]ledger.Ministry, error) {
	var out []ledger.Ministry
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListMinistries(ctx)
		return err
	})
	return out, err
}
