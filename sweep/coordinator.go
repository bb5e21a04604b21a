/*
Package sweep drives the two periodic settlement jobs.

PURPOSE:
  Runs the investment maturity sweep and the salary accrual tick on fixed
  wall-clock intervals against a live, concurrently-mutated ledger.

SINGLE-FLIGHT:
  Each job is wrapped in cron.SkipIfStillRunning: a new invocation of a job
  never starts while the previous invocation of the SAME job is still
  running. A panicking job is recovered and logged, never crashing the
  process.

CATCH-UP:
  Due-ness is always computed from persisted state (investment maturity,
  salary last_paid) against the injected clock, never from ticks-since-start,
  so a restart after an outage settles everything that matured during the
  downtime on the first run. Both jobs fire once immediately on Start for
  exactly that reason.

SEE ALSO:
  - bank/investment.go: exactly-once settlement per row
  - bank/salary.go:     idempotent accrual per row
*/
package sweep

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/warp/ledger-engine/bank"
	"github.com/warp/ledger-engine/ledger"
)

// Default schedules match the source economy: investments every 10 minutes,
// salaries every 3 hours.
const (
	DefaultInvestmentSchedule = "@every 10m"
	DefaultSalarySchedule     = "@every 3h"
)

// Coordinator owns the cron runner and the job wiring.
type Coordinator struct {
	investments *bank.InvestmentEngine
	salaries    *bank.SalaryScheduler
	clock       ledger.Clock
	log         *zap.Logger

	investmentSchedule string
	salarySchedule     string

	cron *cron.Cron
}

// New builds a coordinator. Empty schedules fall back to the defaults.
func New(inv *bank.InvestmentEngine, sal *bank.SalaryScheduler, clock ledger.Clock, log *zap.Logger, investmentSchedule, salarySchedule string) *Coordinator {
	if investmentSchedule == "" {
		investmentSchedule = DefaultInvestmentSchedule
	}
	if salarySchedule == "" {
		salarySchedule = DefaultSalarySchedule
	}

	cronLog := cron.PrintfLogger(zap.NewStdLog(log))
	return &Coordinator{
		investments:        inv,
		salaries:           sal,
		clock:              clock,
		log:                log,
		investmentSchedule: investmentSchedule,
		salarySchedule:     salarySchedule,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLog),
			cron.Recover(cronLog),
		)),
	}
}

// Start registers both jobs, fires each once for catch-up, and starts the
// cron runner.
func (c *Coordinator) Start() error {
	invID, err := c.cron.AddFunc(c.investmentSchedule, c.RunInvestmentSweep)
	if err != nil {
		return err
	}
	salID, err := c.cron.AddFunc(c.salarySchedule, c.RunSalaryTick)
	if err != nil {
		return err
	}

	// Settle anything that came due while the process was down. Going
	// through the wrapped jobs keeps the single-flight guarantee even if a
	// scheduled fire lands during catch-up.
	go c.cron.Entry(invID).WrappedJob.Run()
	go c.cron.Entry(salID).WrappedJob.Run()

	c.cron.Start()
	c.log.Info("sweep coordinator started",
		zap.String("investment_schedule", c.investmentSchedule),
		zap.String("salary_schedule", c.salarySchedule))
	return nil
}

// Stop halts scheduling and returns a context that closes once any running
// job has drained.
func (c *Coordinator) Stop() context.Context {
	return c.cron.Stop()
}

// RunInvestmentSweep settles all matured investments as of the current
// clock reading.
func (c *Coordinator) RunInvestmentSweep() {
	ctx := context.Background()
	if _, err := c.investments.Sweep(ctx, c.clock.Now()); err != nil {
		c.log.Error("investment sweep failed", zap.Error(err))
	}
}

// RunSalaryTick pays all due salaries as of the current clock reading.
func (c *Coordinator) RunSalaryTick() {
	ctx := context.Background()
	if _, err := c.salaries.Tick(ctx, c.clock.Now()); err != nil {
		c.log.Error("salary tick failed", zap.Error(err))
	}
}
