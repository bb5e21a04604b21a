/*
errors.go - Centralized error taxonomy for the engine

PURPOSE:
  All error kinds the core can return, in one place. Callers branch with
  errors.Is against the sentinels; structured variants carry context and
  unwrap to the matching sentinel.

TAXONOMY:
  ErrValidation        non-positive amount, malformed identifier, bad tier
  ErrNotFound          account / ministry / card / investment absent
  ErrAlreadyExists     duplicate account / ministry
  ErrInsufficientFunds debit would push a balance negative
  ErrConflict          lost a race on a serialized resource (retryable)
  ErrStorageFailure    unexpected persistence-layer fault

PROPAGATION POLICY:
  The first four are expected, recoverable-by-caller outcomes; validation
  precedes any mutation so they never leave partial state. ErrConflict is
  retried internally (bounded) before surfacing. ErrStorageFailure aborts the
  atomic unit entirely and surfaces as a generic failure.

SEE ALSO:
  - store/store.go: InTx, the bounded conflict retry
  - api/response.go: the only place errors become user-facing text
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input: non-positive amounts,
	// empty identifiers, unknown tiers, self-transfers.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced account, ministry, card, or
	// investment does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned on duplicate account open or duplicate
	// ministry creation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInsufficientFunds is returned when a debit would push a balance
	// below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrConflict is returned after losing a race on a serialized resource.
	// Retryable: the whole atomic unit can be re-run.
	ErrConflict = errors.New("conflict on serialized resource")

	// ErrStorageFailure wraps unexpected persistence faults. The atomic unit
	// is guaranteed to have been aborted.
	ErrStorageFailure = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - carry additional context
// =============================================================================

// InsufficientFundsError reports a balance shortage on a debit.
type InsufficientFundsError struct {
	AccountID AccountID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: account %s has %s, needs %s",
		e.AccountID, e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// NotFoundError reports a missing record by kind and key.
type NotFoundError struct {
	Kind string // "account", "ministry", "card", "investment"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError reports malformed input with a stable reason code.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StorageError wraps a backend fault so callers still match ErrStorageFailure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure in %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return ErrStorageFailure }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable reports whether re-running the atomic unit might succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError reports whether the error is a recoverable caller outcome
// rather than an engine fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrInsufficientFunds)
}

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
