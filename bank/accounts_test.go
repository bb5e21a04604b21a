package bank_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// ACCOUNT LIFECYCLE
// =============================================================================

func TestOpen_StartingState(t *testing.T) {
	// GIVEN: A fresh bank
	// WHEN: An account is opened
	// THEN: Balance is the fixed starting amount, tier is basic, and exactly
	//       one opening-balance entry exists

	f := newFixture(t)
	ctx := context.Background()

	acct, err := f.accounts.Open(ctx, "alice")
	require.NoError(t, err)

	requireAmount(t, ledger.StartingBalance, acct.Balance)
	assert.Equal(t, ledger.TierBasic, acct.CardTier)

	entries, err := f.accounts.History(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EntryDeposit, entries[0].Type)
	requireAmount(t, ledger.StartingBalance, entries[0].Amount)
	assert.Equal(t, "opening balance", entries[0].Description)
}

func TestOpen_Duplicate_Rejected(t *testing.T) {
	// GIVEN: An existing account
	// WHEN: Opening the same id again
	// THEN: AlreadyExists, and the balance is untouched

	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice")

	_, err := f.accounts.Open(ctx, "alice")
	assert.ErrorIs(t, err, ledger.ErrAlreadyExists)
	requireAmount(t, ledger.StartingBalance, f.balance(t, "alice"))

	// The failed open must not leave a second opening entry behind.
	entries, err := f.accounts.History(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestOpen_EmptyID_Rejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.accounts.Open(context.Background(), "")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

// =============================================================================
// DEPOSIT / WITHDRAW
// =============================================================================

func TestDepositWithdraw_RoundTrip(t *testing.T) {
	// GIVEN: An account with the starting balance
	// WHEN: Depositing 250 then withdrawing the full balance
	// THEN: The balance lands exactly on zero, never below

	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice")

	require.NoError(t, f.accounts.Deposit(ctx, "alice", amt(250)))
	requireAmount(t, amt(1750), f.balance(t, "alice"))

	require.NoError(t, f.accounts.Withdraw(ctx, "alice", amt(1750)))
	requireAmount(t, amt(0), f.balance(t, "alice"))
}

func TestWithdraw_Overdraft_Rejected(t *testing.T) {
	// GIVEN: An account holding exactly zero
	// WHEN: Withdrawing any positive amount
	// THEN: InsufficientFunds carrying the available/requested amounts, and
	//       no entry is appended

	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice")
	require.NoError(t, f.accounts.Withdraw(ctx, "alice", ledger.StartingBalance))

	before, err := f.accounts.History(ctx, "alice", 0)
	require.NoError(t, err)

	err = f.accounts.Withdraw(ctx, "alice", amt(1))
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	var ife *ledger.InsufficientFundsError
	require.ErrorAs(t, err, &ife)
	assert.Equal(t, ledger.AccountID("alice"), ife.AccountID)
	requireAmount(t, amt(0), ife.Available)
	requireAmount(t, amt(1), ife.Requested)

	after, err := f.accounts.History(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestMoney_NonPositiveAmounts_Rejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice")

	assert.ErrorIs(t, f.accounts.Deposit(ctx, "alice", amt(0)), ledger.ErrValidation)
	assert.ErrorIs(t, f.accounts.Deposit(ctx, "alice", amt(-5)), ledger.ErrValidation)
	assert.ErrorIs(t, f.accounts.Withdraw(ctx, "alice", amt(0)), ledger.ErrValidation)
	assert.ErrorIs(t, f.accounts.Withdraw(ctx, "alice", amt(-5)), ledger.ErrValidation)
}

// =============================================================================
// ADMIN GRANT / SEIZE
// =============================================================================

func TestAdminGiveTake(t *testing.T) {
	// GIVEN: An account
	// WHEN: An administrator grants 100 then seizes 50
	// THEN: The balance reflects both moves and the entries name the actor

	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice")

	require.NoError(t, f.accounts.AdminGive(ctx, "gov", "alice", amt(100)))
	require.NoError(t, f.accounts.AdminTake(ctx, "gov", "alice", amt(50)))
	requireAmount(t, amt(1550), f.balance(t, "alice"))

	gives, err := f.accounts.EntriesByType(ctx, ledger.EntryAdminGive)
	require.NoError(t, err)
	require.Len(t, gives, 1)
	assert.Equal(t, "granted by gov", gives[0].Description)

	takes, err := f.accounts.EntriesByType(ctx, ledger.EntryAdminTake)
	require.NoError(t, err)
	require.Len(t, takes, 1)
	requireAmount(t, amt(-50), takes[0].Amount)
}

func TestAdminTake_Overdraft_Rejected(t *testing.T) {
	f := newFixture(t)

	err := f.accounts.AdminTake(context.Background(), "gov", "alice", amt(2000))
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	f.open(t, "alice")
	err = f.accounts.AdminTake(context.Background(), "gov", "alice", amt(2000))
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
}

// =============================================================================
// TOP BALANCES
// =============================================================================

func TestTopBalances_RichestFirst(t *testing.T) {
	// GIVEN: Three accounts with distinct balances
	// WHEN: Asking for the top two
	// THEN: Richest first, limit honored

	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice")
	f.open(t, "bob")
	f.open(t, "carol")
	require.NoError(t, f.accounts.AdminGive(ctx, "gov", "bob", amt(5000)))
	require.NoError(t, f.accounts.AdminGive(ctx, "gov", "carol", amt(200)))

	top, err := f.accounts.TopBalances(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, ledger.AccountID("bob"), top[0].ID)
	requireAmount(t, amt(6500), top[0].Balance)
	assert.Equal(t, ledger.AccountID("carol"), top[1].ID)
	requireAmount(t, amt(1700), top[1].Balance)
}

func TestTopBalances_DefaultLimit(t *testing.T) {
	// limit <= 0 means the classic top ten.
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice")
	f.open(t, "bob")

	top, err := f.accounts.TopBalances(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, top, 2)
}

// =============================================================================
// HISTORY
// =============================================================================

func TestHistory_UnknownAccount_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.accounts.History(context.Background(), "ghost", 0)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestHistory_NewestFirstAndLimited(t *testing.T) {
	// GIVEN: Several movements over time
	// WHEN: Reading history with a limit
	// THEN: The newest entries come first and the limit is honored

	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "alice")

	f.clock.Advance(1 * time.Minute)
	require.NoError(t, f.accounts.Deposit(ctx, "alice", amt(10)))
	f.clock.Advance(1 * time.Minute)
	require.NoError(t, f.accounts.Deposit(ctx, "alice", amt(20)))

	entries, err := f.accounts.History(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	requireAmount(t, amt(20), entries[0].Amount)
	requireAmount(t, amt(10), entries[1].Amount)
}
