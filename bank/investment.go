/*
investment.go - Escrowed, time-boxed investments

PURPOSE:
  Open debits the principal immediately (escrow) and records an active
  investment maturing after the requested duration. The sweep settles every
  matured investment: credit principal + flat-rate profit, append an
  investment_return entry, flip the status to completed.

EXACTLY-ONCE SETTLEMENT:
  Each matured row is settled in its own atomic unit that FIRST claims the
  row with a conditional active -> completed update. Losing the claim means
  another run (concurrent, duplicate, or resumed after a crash) owns the
  payout, and this unit pays nothing. The claim, credit, and ledger append
  commit together, so a crash mid-unit rolls all three back and the row
  stays claimable.

STATE MACHINE:
  active -> completed  (sweep)
  active -> cancelled  (reserved; nothing produces it, the sweep ignores it)

SEE ALSO:
  - sweep/: the coordinator invoking Sweep on a fixed interval
*/
package bank

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store"
)

// InvestmentEngine manages escrowed deposits and their maturity settlement.
type InvestmentEngine struct {
	store store.Store
	clock ledger.Clock
	log   *zap.Logger
}

func NewInvestmentEngine(st store.Store, clock ledger.Clock, log *zap.Logger) *InvestmentEngine {
	return &InvestmentEngine{store: st, clock: clock, log: log}
}

// Open escrows principal from the account for durationDays at the fixed
// return rate.
func (s *InvestmentEngine) Open(ctx context.Context, id ledger.AccountID, principal decimal.Decimal, durationDays int) (inv *ledger.Investment, err error) {
	defer func() { observe("investment_open", err) }()
	if err = requirePositive(principal); err != nil {
		return nil, err
	}
	if durationDays <= 0 {
		return nil, &ledger.ValidationError{Reason: "duration must be positive"}
	}

	now := s.clock.Now()
	err = store.InTx(ctx, s.store, func(tx store.Tx) error {
		if _, err := debit(ctx, tx, id, principal); err != nil {
			return err
		}
		created := ledger.Investment{
			ID:           ledger.InvestmentID(uuid.NewString()),
			AccountID:    id,
			Principal:    principal,
			StartTime:    now,
			MaturityTime: now.AddDate(0, 0, durationDays),
			ReturnRate:   ledger.InvestmentReturnRate,
			Status:       ledger.InvestmentActive,
		}
		if err := tx.InsertInvestment(ctx, created); err != nil {
			return err
		}
		if err := tx.AppendEntry(ctx, newEntry(id, ledger.EntryInvestmentStart, principal.Neg(), now,
			fmt.Sprintf("investment %s opened for %d days", created.ID, durationDays))); err != nil {
			return err
		}
		inv = &created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("investment opened",
		zap.String("account", string(id)),
		zap.String("investment", string(inv.ID)),
		zap.String("principal", principal.String()))
	return inv, nil
}

// Sweep settles every active investment with maturity <= now. Each row is
// settled independently and atomically; a failed row is logged and skipped
// so one malformed investment cannot stall the rest. Returns the number of
// investments settled by THIS run.
func (s *InvestmentEngine) Sweep(ctx context.Context, now time.Time) (settled int, err error) {
	var due []ledger.Investment
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		due, err = tx.DueInvestments(ctx, now)
		return err
	})
	if err != nil {
		return 0, err
	}

	for _, inv := range due {
		inv := inv
		paid := false
		err := store.InTx(ctx, s.store, func(tx store.Tx) error {
			paid = false
			claimed, err := tx.ClaimInvestment(ctx, inv.ID)
			if err != nil {
				return err
			}
			if !claimed {
				// Another run settled it between our listing and now.
				return nil
			}
			payout := inv.Payout()
			if _, err := credit(ctx, tx, inv.AccountID, payout); err != nil {
				return err
			}
			if err := tx.AppendEntry(ctx, newEntry(inv.AccountID, ledger.EntryInvestmentReturn, payout, now,
				fmt.Sprintf("investment return %s (principal + profit)", inv.ID))); err != nil {
				return err
			}
			paid = true
			return nil
		})
		switch {
		case err != nil:
			sweepRowFailures.WithLabelValues("investment").Inc()
			s.log.Error("investment payout failed, skipping row",
				zap.String("investment", string(inv.ID)), zap.Error(err))
		case paid:
			settled++
			investmentsSettled.Inc()
		}
	}

	if settled > 0 {
		s.log.Info("investment sweep settled", zap.Int("count", settled))
	}
	return settled, nil
}

// ListByAccount returns an account's investments, active first, then by
// maturity.
func (s *InvestmentEngine) ListByAccount(ctx context.Context, id ledger.AccountID) ([]ledger.Investment, error) {
	var out []ledger.Investment
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetAccount(ctx, id); err != nil {
			return err
		}
		var err error
		out, err = tx.InvestmentsByAccount(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
