package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store"
)

// =============================================================================
// BOUNDED CONFLICT RETRY
// =============================================================================

// flakyStore fails the first conflicts attempts with ledger.ErrConflict, then
// runs the unit normally. It records how many times the unit was attempted.
type flakyStore struct {
	conflicts int
	attempts  int
}

func (s *flakyStore) WithTx(_ context.Context, fn func(store.Tx) error) error {
	s.attempts++
	if s.attempts <= s.conflicts {
		return ledger.ErrConflict
	}
	return fn(nil)
}

func (s *flakyStore) Close() error { return nil }

func TestInTx_RetriesTransientConflict(t *testing.T) {
	// GIVEN: A store that conflicts twice before letting the unit through
	// WHEN: Running one atomic unit via InTx
	// THEN: The unit is re-run and succeeds on the third attempt

	st := &flakyStore{conflicts: 2}
	ran := 0

	err := store.InTx(context.Background(), st, func(store.Tx) error {
		ran++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, st.attempts)
	assert.Equal(t, 1, ran, "the unit body only runs on the winning attempt")
}

func TestInTx_SurfacesPersistentConflict(t *testing.T) {
	// GIVEN: A store that conflicts on every attempt
	// WHEN: Running a unit via InTx
	// THEN: The attempt budget is spent and ErrConflict surfaces retryable

	st := &flakyStore{conflicts: 1 << 10}

	err := store.InTx(context.Background(), st, func(store.Tx) error { return nil })
	require.ErrorIs(t, err, ledger.ErrConflict)
	assert.True(t, ledger.IsRetryable(err))
	assert.Equal(t, 3, st.attempts, "exactly the attempt budget, no more")
}

func TestInTx_NonRetryableError_ReturnsImmediately(t *testing.T) {
	// Validation failures and other non-conflict errors must not burn retries.
	st := &flakyStore{}
	boom := &ledger.ValidationError{Reason: "bad input"}

	err := store.InTx(context.Background(), st, func(store.Tx) error { return boom })
	require.ErrorIs(t, err, ledger.ErrValidation)
	assert.Equal(t, 1, st.attempts)
}

func TestInTx_CancelledContext_StopsRetrying(t *testing.T) {
	// GIVEN: A persistently conflicting store and an already-cancelled context
	// WHEN: InTx goes to back off before the second attempt
	// THEN: It returns the context error instead of sleeping

	st := &flakyStore{conflicts: 1 << 10}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.InTx(ctx, st, func(store.Tx) error { return nil })
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, st.attempts)
}
