package bank_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// SALARY ACCRUAL
// =============================================================================

func TestSalary_Tick_PaysOncePerPeriod(t *testing.T) {
	// GIVEN: An account opened at t0
	// WHEN: Ticking at t0, t0+3h, and t0+3h+1m
	// THEN: Only the t0+3h tick pays; the balance gains exactly one salary

	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice")

	paid, err := f.salaries.Tick(ctx, t0)
	require.NoError(t, err)
	assert.Zero(t, paid, "no full period has elapsed at open time")

	paid, err = f.salaries.Tick(ctx, t0.Add(ledger.SalaryPeriod))
	require.NoError(t, err)
	assert.Equal(t, 1, paid)
	requireAmount(t, amt(2000), f.balance(t, "alice"))

	paid, err = f.salaries.Tick(ctx, t0.Add(ledger.SalaryPeriod+time.Minute))
	require.NoError(t, err)
	assert.Zero(t, paid, "one minute into the next period nothing is due")
	requireAmount(t, amt(2000), f.balance(t, "alice"))
}

func TestSalary_Tick_NextPeriodPaysAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice")

	paid, err := f.salaries.Tick(ctx, t0.Add(ledger.SalaryPeriod))
	require.NoError(t, err)
	require.Equal(t, 1, paid)

	// The next full period is measured from the previous payment.
	paid, err = f.salaries.Tick(ctx, t0.Add(2*ledger.SalaryPeriod))
	require.NoError(t, err)
	assert.Equal(t, 1, paid)
	requireAmount(t, amt(2500), f.balance(t, "alice"))
}

func TestSalary_Tick_LongOutage_SinglePayment(t *testing.T) {
	// GIVEN: No tick ran for three full periods
	// WHEN: A single catch-up tick runs
	// THEN: Exactly one salary is paid; missed periods do not stack

	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice")

	paid, err := f.salaries.Tick(ctx, t0.Add(3*ledger.SalaryPeriod))
	require.NoError(t, err)
	assert.Equal(t, 1, paid)
	requireAmount(t, amt(2000), f.balance(t, "alice"))

	entries, err := f.accounts.EntriesByType(ctx, ledger.EntrySalary)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSalary_Tick_MultipleAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice")
	f.open(t, "bob")

	paid, err := f.salaries.Tick(ctx, t0.Add(ledger.SalaryPeriod))
	require.NoError(t, err)
	assert.Equal(t, 2, paid)
	requireAmount(t, amt(2000), f.balance(t, "alice"))
	requireAmount(t, amt(2000), f.balance(t, "bob"))
}

func TestSalary_Tick_Concurrent_PaysExactlyOnce(t *testing.T) {
	// GIVEN: One account due for salary
	// WHEN: Several ticks race at the same instant
	// THEN: The conditional last_paid advance lets exactly one of them pay

	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice")

	now := t0.Add(ledger.SalaryPeriod)
	const runners = 8

	var wg sync.WaitGroup
	results := make([]int, runners)
	errs := make([]error, runners)
	wg.Add(runners)
	for i := 0; i < runners; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.salaries.Tick(ctx, now)
		}(i)
	}
	wg.Wait()

	total := 0
	for i := range results {
		require.NoError(t, errs[i])
		total += results[i]
	}
	assert.Equal(t, 1, total, "exactly one tick may pay the period")
	requireAmount(t, amt(2000), f.balance(t, "alice"))

	entries, err := f.accounts.EntriesByType(ctx, ledger.EntrySalary)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSalary_NewAccount_NotImmediatelyDue(t *testing.T) {
	// An account opened mid-period waits its own full period, independent of
	// everyone else's accrual.
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice")

	f.clock.Advance(2 * time.Hour)
	f.open(t, "bob")

	paid, err := f.salaries.Tick(ctx, t0.Add(ledger.SalaryPeriod))
	require.NoError(t, err)
	assert.Equal(t, 1, paid, "only alice has a full period elapsed")
	requireAmount(t, ledger.StartingBalance, f.balance(t, "bob"))
}
