package bank_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// MINISTRY SUB-LEDGERS
// =============================================================================

func TestMinistry_DistributeAndWithdraw(t *testing.T) {
	// GIVEN: A ministry with 1000 distributed to it
	// WHEN: Withdrawing more than its balance, then a valid amount
	// THEN: The overdraw fails leaving the balance intact; the valid
	//       withdrawal lands

	f := newFixture(t)
	ctx := context.Background()

	min, err := f.ministries.Create(ctx, "health")
	require.NoError(t, err)
	requireAmount(t, amt(0), min.Balance)

	require.NoError(t, f.ministries.Distribute(ctx, "health", amt(1000), "gov"))

	err = f.ministries.Withdraw(ctx, "health", amt(1500), "gov")
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	got, err := f.ministries.Get(ctx, "health")
	require.NoError(t, err)
	requireAmount(t, amt(1000), got.Balance)

	require.NoError(t, f.ministries.Withdraw(ctx, "health", amt(400), "gov"))
	got, err = f.ministries.Get(ctx, "health")
	require.NoError(t, err)
	requireAmount(t, amt(600), got.Balance)
}

func TestMinistry_DuplicateName_Rejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ministries.Create(ctx, "health")
	require.NoError(t, err)

	_, err = f.ministries.Create(ctx, "health")
	assert.ErrorIs(t, err, ledger.ErrAlreadyExists)
}

func TestMinistry_EmptyName_Rejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.ministries.Create(context.Background(), "")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestMinistry_UnknownName_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.ministries.Distribute(ctx, "ghost", amt(10), "gov"), ledger.ErrNotFound)
	assert.ErrorIs(t, f.ministries.Withdraw(ctx, "ghost", amt(10), "gov"), ledger.ErrNotFound)
	_, err := f.ministries.Get(ctx, "ghost")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestMinistry_EntriesAttributedToActor(t *testing.T) {
	// GIVEN: A distribution and a withdrawal performed by an administrator
	// WHEN: Reading the ledger by type
	// THEN: Both entries carry the actor's id, not a ministry id

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ministries.Create(ctx, "defense")
	require.NoError(t, err)
	require.NoError(t, f.ministries.Distribute(ctx, "defense", amt(2000), "gov"))
	require.NoError(t, f.ministries.Withdraw(ctx, "defense", amt(500), "gov"))

	dist, err := f.accounts.EntriesByType(ctx, ledger.EntryMinistryDistribution)
	require.NoError(t, err)
	require.Len(t, dist, 1)
	assert.Equal(t, ledger.AccountID("gov"), dist[0].AccountID)
	requireAmount(t, amt(2000), dist[0].Amount)

	withdrawals, err := f.accounts.EntriesByType(ctx, ledger.EntryMinistryWithdraw)
	require.NoError(t, err)
	require.Len(t, withdrawals, 1)
	requireAmount(t, amt(-500), withdrawals[0].Amount)
}

func TestMinistry_List_SortedByName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"treasury", "health", "defense"} {
		_, err := f.ministries.Create(ctx, name)
		require.NoError(t, err)
	}

	list, err := f.ministries.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "defense", list[0].Name)
	assert.Equal(t, "health", list[1].Name)
	assert.Equal(t, "treasury", list[2].Name)
}
