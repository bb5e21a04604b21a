package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store"
	"github.com/warp/ledger-engine/store/memory"
)

// =============================================================================
// ATOMIC UNIT SEMANTICS
// =============================================================================

func TestWithTx_ErrorRollsBackEverything(t *testing.T) {
	// GIVEN: A unit that inserts an account, appends an entry, THEN fails
	// WHEN: The unit returns an error
	// THEN: Neither the account nor the entry is visible afterwards

	m := memory.New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := m.WithTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.InsertAccount(ctx, ledger.Account{
			ID: "alice", Balance: decimal.NewFromInt(1500), CardTier: ledger.TierBasic,
		}))
		require.NoError(t, tx.AppendEntry(ctx, ledger.Entry{
			ID: "e1", AccountID: "alice", Type: ledger.EntryDeposit,
			Amount: decimal.NewFromInt(1500), Timestamp: time.Now(),
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = m.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.GetAccount(ctx, "alice")
		assert.ErrorIs(t, err, ledger.ErrNotFound)

		entries, err := tx.AllEntries(ctx)
		require.NoError(t, err)
		assert.Empty(t, entries)
		return nil
	})
	require.NoError(t, err)
}

func TestWithTx_SuccessCommitsAtomically(t *testing.T) {
	m := memory.New()
	ctx := context.Background()

	require.NoError(t, m.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertAccount(ctx, ledger.Account{
			ID: "alice", Balance: decimal.NewFromInt(1500), CardTier: ledger.TierBasic,
		}); err != nil {
			return err
		}
		return tx.SetBalance(ctx, "alice", decimal.NewFromInt(900))
	}))

	require.NoError(t, m.WithTx(ctx, func(tx store.Tx) error {
		acct, err := tx.GetAccount(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(900).Equal(acct.Balance))
		return nil
	}))
}

// =============================================================================
// CONDITIONAL UPDATES
// =============================================================================

func TestClaimInvestment_SecondClaimLoses(t *testing.T) {
	m := memory.New()
	ctx := context.Background()

	inv := ledger.Investment{
		ID: "inv-1", AccountID: "alice",
		Principal:    decimal.NewFromInt(100),
		StartTime:    time.Now(),
		MaturityTime: time.Now(),
		ReturnRate:   ledger.InvestmentReturnRate,
		Status:       ledger.InvestmentActive,
	}
	require.NoError(t, m.WithTx(ctx, func(tx store.Tx) error {
		return tx.InsertInvestment(ctx, inv)
	}))

	require.NoError(t, m.WithTx(ctx, func(tx store.Tx) error {
		claimed, err := tx.ClaimInvestment(ctx, "inv-1")
		require.NoError(t, err)
		assert.True(t, claimed, "first claim wins")
		return nil
	}))

	require.NoError(t, m.WithTx(ctx, func(tx store.Tx) error {
		claimed, err := tx.ClaimInvestment(ctx, "inv-1")
		require.NoError(t, err)
		assert.False(t, claimed, "second claim must lose")
		return nil
	}))
}

func TestAdvanceLastPaid_GuardedByCutoff(t *testing.T) {
	m := memory.New()
	ctx := context.Background()
	paid := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, m.WithTx(ctx, func(tx store.Tx) error {
		return tx.InsertAccrual(ctx, ledger.SalaryAccrual{AccountID: "alice", LastPaid: paid})
	}))

	now := paid.Add(ledger.SalaryPeriod)
	require.NoError(t, m.WithTx(ctx, func(tx store.Tx) error {
		ok, err := tx.AdvanceLastPaid(ctx, "alice", now, now.Add(-ledger.SalaryPeriod))
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	}))

	// Same cutoff again: the row has moved past it, so the advance is refused.
	require.NoError(t, m.WithTx(ctx, func(tx store.Tx) error {
		ok, err := tx.AdvanceLastPaid(ctx, "alice", now, now.Add(-ledger.SalaryPeriod))
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}
