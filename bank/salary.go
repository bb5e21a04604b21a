/*
salary.go - Periodic salary accrual

PURPOSE:
  Every account earns a fixed salary once per accrual period. Tick walks the
  accrual rows and pays each account whose last_paid is at least one full
  period old.

IDEMPOTENT REPLAY:
  The check-then-pay per account is atomic: each payment's unit advances
  last_paid with a conditional update guarded on the cutoff. A retried or
  resumed tick (or an overlapping run) loses that guard and pays nothing.
  Due-ness is computed from the persisted last_paid, never from an in-memory
  counter, so a restart after downtime catches up instead of skipping or
  double-firing.
*/
package bank

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store"
)

// SalaryScheduler performs per-account periodic accrual.
type SalaryScheduler struct {
	store store.Store
	clock ledger.Clock
	log   *zap.Logger
}

func NewSalaryScheduler(st store.Store, clock ledger.Clock, log *zap.Logger) *SalaryScheduler {
	return &SalaryScheduler{store: st, clock: clock, log: log}
}

// Tick pays salary to every account whose accrual period has elapsed.
// Each account is settled independently and atomically; a failed row is
// logged and skipped. Returns the number of accounts paid by THIS run.
func (s *SalaryScheduler) Tick(ctx context.Context, now time.Time) (paid int, err error) {
	cutoff := now.Add(-ledger.SalaryPeriod)

	var due []ledger.SalaryAccrual
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		due, err = tx.DueAccruals(ctx, cutoff)
		return err
	})
	if err != nil {
		return 0, err
	}

	for _, row := range due {
		row := row
		advanced := false
		err := store.InTx(ctx, s.store, func(tx store.Tx) error {
			advanced = false
			ok, err := tx.AdvanceLastPaid(ctx, row.AccountID, now, cutoff)
			if err != nil {
				return err
			}
			if !ok {
				// Already paid for this period by another run.
				return nil
			}
			if _, err := credit(ctx, tx, row.AccountID, ledger.SalaryAmount); err != nil {
				return err
			}
			if err := tx.AppendEntry(ctx, newEntry(row.AccountID, ledger.EntrySalary, ledger.SalaryAmount, now,
				"periodic salary")); err != nil {
				return err
			}
			advanced = true
			return nil
		})
		switch {
		case err != nil:
			sweepRowFailures.WithLabelValues("salary").Inc()
			s.log.Error("salary payment failed, skipping row",
				zap.String("account", string(row.AccountID)), zap.Error(err))
		case advanced:
			paid++
			salariesPaid.Inc()
		}
	}

	if paid > 0 {
		s.log.Info("salary tick paid", zap.Int("count", paid))
	}
	return paid, nil
}
