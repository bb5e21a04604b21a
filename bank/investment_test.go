package bank_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// OPEN (ESCROW)
// =============================================================================

func TestInvestment_Open_EscrowsPrincipal(t *testing.T) {
	// GIVEN: An account with 1500
	// WHEN: Opening a 1000 investment for 7 days
	// THEN: The principal leaves the balance immediately and the investment
	//       is recorded active with the fixed return rate

	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice")

	inv, err := f.investments.Open(ctx, "alice", amt(1000), 7)
	require.NoError(t, err)

	requireAmount(t, amt(500), f.balance(t, "alice"))
	assert.Equal(t, ledger.InvestmentActive, inv.Status)
	requireAmount(t, amt(1000), inv.Principal)
	requireAmount(t, ledger.InvestmentReturnRate, inv.ReturnRate)
	assert.Equal(t, t0.AddDate(0, 0, 7), inv.MaturityTime)

	listed, err := f.investments.ListByAccount(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, inv.ID, listed[0].ID)
}

func TestInvestment_Open_InvalidInput_Rejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice")

	_, err := f.investments.Open(ctx, "alice", amt(0), 7)
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = f.investments.Open(ctx, "alice", amt(100), 0)
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = f.investments.Open(ctx, "alice", amt(2000), 7)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	requireAmount(t, ledger.StartingBalance, f.balance(t, "alice"))
}

// =============================================================================
// SWEEP SETTLEMENT
// =============================================================================

func TestInvestment_Sweep_PaysPrincipalPlusProfitAtMaturity(t *testing.T) {
	// GIVEN: A 1000 investment opened for 7 days
	// WHEN: Sweeping 8 days later
	// THEN: Exactly one settlement credits 1050, the status flips to
	//       completed, and an investment_return entry is appended

	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice")
	_, err := f.investments.Open(ctx, "alice", amt(1000), 7)
	require.NoError(t, err)

	settled, err := f.investments.Sweep(ctx, t0.AddDate(0, 0, 8))
	require.NoError(t, err)
	assert.Equal(t, 1, settled)

	requireAmount(t, amt(1550), f.balance(t, "alice"))

	listed, err := f.investments.ListByAccount(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, ledger.InvestmentCompleted, listed[0].Status)

	returns, err := f.accounts.EntriesByType(ctx, ledger.EntryInvestmentReturn)
	require.NoError(t, err)
	require.Len(t, returns, 1)
	requireAmount(t, amt(1050), returns[0].Amount)
}

func TestInvestment_Sweep_BeforeMaturity_NoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice")
	_, err := f.investments.Open(ctx, "alice", amt(1000), 7)
	require.NoError(t, err)

	settled, err := f.investments.Sweep(ctx, t0.AddDate(0, 0, 6))
	require.NoError(t, err)
	assert.Zero(t, settled)
	requireAmount(t, amt(500), f.balance(t, "alice"))
}

func TestInvestment_Sweep_AtExactMaturity_Settles(t *testing.T) {
	// Maturity is inclusive: due means maturity <= now.
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice")
	_, err := f.investments.Open(ctx, "alice", amt(200), 3)
	require.NoError(t, err)

	settled, err := f.investments.Sweep(ctx, t0.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
}

func TestInvestment_Sweep_Duplicate_SettlesExactlyOnce(t *testing.T) {
	// GIVEN: A matured, already-swept investment
	// WHEN: Sweeping again at the same instant
	// THEN: Nothing is paid a second time

	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice")
	_, err := f.investments.Open(ctx, "alice", amt(1000), 7)
	require.NoError(t, err)

	mature := t0.AddDate(0, 0, 8)
	settled, err := f.investments.Sweep(ctx, mature)
	require.NoError(t, err)
	require.Equal(t, 1, settled)

	settled, err = f.investments.Sweep(ctx, mature)
	require.NoError(t, err)
	assert.Zero(t, settled)
	requireAmount(t, amt(1550), f.balance(t, "alice"))
}

func TestInvestment_Sweep_Concurrent_SettlesExactlyOnce(t *testing.T) {
	// GIVEN: One matured investment
	// WHEN: Several sweeps race over it
	// THEN: The claim lets exactly one of them pay

	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice")
	_, err := f.investments.Open(ctx, "alice", amt(1000), 7)
	require.NoError(t, err)

	mature := t0.AddDate(0, 0, 8)
	const runners = 8

	var wg sync.WaitGroup
	results := make([]int, runners)
	errs := make([]error, runners)
	wg.Add(runners)
	for i := 0; i < runners; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.investments.Sweep(ctx, mature)
		}(i)
	}
	wg.Wait()

	total := 0
	for i := range results {
		require.NoError(t, errs[i])
		total += results[i]
	}
	assert.Equal(t, 1, total, "exactly one sweep may settle the row")
	requireAmount(t, amt(1550), f.balance(t, "alice"))
}

func TestInvestment_Sweep_MultipleRows_AllSettled(t *testing.T) {
	// Two accounts, three investments with different maturities; a single
	// late sweep settles everything due and nothing else.
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice")
	f.open(t, "bob")

	_, err := f.investments.Open(ctx, "alice", amt(100), 1)
	require.NoError(t, err)
	_, err = f.investments.Open(ctx, "alice", amt(200), 5)
	require.NoError(t, err)
	_, err = f.investments.Open(ctx, "bob", amt(300), 30)
	require.NoError(t, err)

	settled, err := f.investments.Sweep(ctx, t0.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Equal(t, 2, settled)

	// 1500 - 100 - 200 + 105 + 210
	requireAmount(t, amt(1515), f.balance(t, "alice"))
	// bob's 30-day row is untouched
	requireAmount(t, amt(1200), f.balance(t, "bob"))
}

func TestInvestment_ListByAccount_UnknownAccount_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.investments.ListByAccount(context.Background(), "ghost")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
