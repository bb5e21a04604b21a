package bank_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/ledger-engine/bank"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// t0 is an arbitrary fixed instant all clock math starts from.
var t0 = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store       *memory.Memory
	clock       *ledger.ManualClock
	accounts    *bank.AccountService
	transfers   *bank.TransferService
	cards       *bank.CardCatalog
	ministries  *bank.MinistryTreasury
	investments *bank.InvestmentEngine
	salaries    *bank.SalaryScheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := memory.New()
	t.Cleanup(func() { st.Close() })

	clock := ledger.NewManualClock(t0)
	log := zap.NewNop()

	f := &fixture{
		store:       st,
		clock:       clock,
		accounts:    bank.NewAccountService(st, clock, log),
		transfers:   bank.NewTransferService(st, clock, log),
		cards:       bank.NewCardCatalog(st, clock, log),
		ministries:  bank.NewMinistryTreasury(st, clock, log),
		investments: bank.NewInvestmentEngine(st, clock, log),
		salaries:    bank.NewSalaryScheduler(st, clock, log),
	}
	require.NoError(t, f.cards.Seed(context.Background()))
	return f
}

// open creates an account and fails the test on error.
func (f *fixture) open(t *testing.T, id ledger.AccountID) {
	t.Helper()
	_, err := f.accounts.Open(context.Background(), id)
	require.NoError(t, err)
}

// balance reads the current balance and fails the test on error.
func (f *fixture) balance(t *testing.T, id ledger.AccountID) decimal.Decimal {
	t.Helper()
	acct, err := f.accounts.Get(context.Background(), id)
	require.NoError(t, err)
	return acct.Balance
}

func amt(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// requireAmount asserts decimal equality with a readable diff.
func requireAmount(t *testing.T, want, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.True(t, want.Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}
