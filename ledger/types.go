/*
Package ledger provides the core types of the ledger & settlement engine.

PURPOSE:
  This package contains the typed records every other package operates on:
  accounts, immutable ledger entries, card definitions, ministry sub-ledgers,
  escrowed investments, and salary accrual rows. It has no persistence and no
  business logic of its own.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: balance + card tier, the only mutable money holder
  - Entry: an immutable, append-only record of one balance-affecting event
  - Investment: an escrowed deposit with a maturity state machine
  - Ministry: an independent balance domain (government sub-ledger)
  - SalaryAccrual: per-account bookkeeping for periodic salary

DESIGN PRINCIPLES:
  1. Immutability: entries are never updated, only appended
  2. Precision: decimal.Decimal everywhere, never float64 money
  3. Type safety: AccountID / EntryType / CardTier are distinct types
  4. Auditability: every balance change produces exactly one entry
     (a transfer produces a matched send/receive pair)

SEE ALSO:
  - errors.go: the error taxonomy services return
  - clock.go: time injection for deterministic sweeps
  - store/: persistence interfaces over these records
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// AccountID is an externally supplied, stable account identifier.
type AccountID string

// EntryID uniquely identifies one ledger entry.
type EntryID string

// InvestmentID uniquely identifies one investment.
type InvestmentID string

// =============================================================================
// ECONOMIC CONSTANTS
// =============================================================================

var (
	// StartingBalance is credited when an account is opened.
	StartingBalance = decimal.NewFromInt(1500)

	// SalaryAmount is credited once per accrual period.
	SalaryAmount = decimal.NewFromInt(500)

	// InvestmentReturnRate is the flat profit rate paid at maturity.
	InvestmentReturnRate = decimal.NewFromFloat(0.05)
)

// SalaryPeriod is the fixed accrual period after which salary is payable again.
const SalaryPeriod = 3 * time.Hour

// =============================================================================
// ACCOUNT
// =============================================================================

// Account is a user's ledger record. Accounts are created once via open and
// never deleted. Balance never goes negative as a result of a validated
// operation.
type Account struct {
	ID       AccountID
	Balance  decimal.Decimal
	CardTier CardTier
}

// =============================================================================
// CARD TIERS
// =============================================================================

// CardTier is a purchasable card level. Every account starts at TierBasic.
type CardTier string

const (
	TierBasic    CardTier = "basic"
	TierSilver   CardTier = "silver"
	TierGold     CardTier = "gold"
	TierPlatinum CardTier = "platinum"
)

// Valid reports whether t is a known tier.
func (t CardTier) Valid() bool {
	switch t {
	case TierBasic, TierSilver, TierGold, TierPlatinum:
		return true
	}
	return false
}

// CardDefinition is static catalog data: tier, price, and a benefits blurb.
// Immutable once seeded; seeding is insert-if-absent.
type CardDefinition struct {
	Tier     CardTier
	Price    decimal.Decimal
	Benefits string
}

// =============================================================================
// LEDGER ENTRY - append-only audit record
// =============================================================================

// EntryType classifies a ledger entry. The taxonomy is fixed.
type EntryType string

const (
	EntryDeposit              EntryType = "deposit"
	EntryWithdraw             EntryType = "withdraw"
	EntryTransferSend         EntryType = "transfer_send"
	EntryTransferReceive      EntryType = "transfer_receive"
	EntrySalary               EntryType = "salary"
	EntryInvestmentStart      EntryType = "investment_start"
	EntryInvestmentReturn     EntryType = "investment_return"
	EntryCardPurchase         EntryType = "card_purchase"
	EntryAdminGive            EntryType = "admin_give"
	EntryAdminTake            EntryType = "admin_take"
	EntryMinistryDistribution EntryType = "ministry_budget_distribution"
	EntryMinistryWithdraw     EntryType = "ministry_withdraw"
)

// Entry is one immutable balance-affecting event.
//
// INVARIANTS:
//   - Append-only: no update, no delete. Ever.
//   - Amount is signed: debits are negative, credits are positive.
//   - AccountID is empty for ministry entries attributed to an acting
//     administrator rather than a bank account.
type Entry struct {
	ID          EntryID
	AccountID   AccountID // empty for some treasury-attributed entries
	Type        EntryType
	Amount      decimal.Decimal
	Timestamp   time.Time
	Description string
}

// =============================================================================
// MINISTRY - independent balance domain
// =============================================================================

// Ministry is a named government sub-ledger. Its balance is mutated only by
// distribute/withdraw and is intentionally a closed-loop credit source: a
// distribution has no offsetting debit anywhere.
type Ministry struct {
	ID      int64
	Name    string
	Balance decimal.Decimal
}

// =============================================================================
// INVESTMENT - escrowed, time-boxed deposit
// =============================================================================

// InvestmentStatus is the maturity state machine.
//
// Transitions:
//   active -> completed   (sweep, exactly once)
//   active -> cancelled   (reserved; no producing transition exists)
type InvestmentStatus string

const (
	InvestmentActive    InvestmentStatus = "active"
	InvestmentCompleted InvestmentStatus = "completed"
	InvestmentCancelled InvestmentStatus = "cancelled"
)

// Investment holds principal escrowed from an account until maturity.
type Investment struct {
	ID           InvestmentID
	AccountID    AccountID
	Principal    decimal.Decimal
	StartTime    time.Time
	MaturityTime time.Time
	ReturnRate   decimal.Decimal
	Status       InvestmentStatus
}

// Payout is the amount credited back at maturity: principal plus flat-rate
// profit.
func (i Investment) Payout() decimal.Decimal {
	return i.Principal.Add(i.Principal.Mul(i.ReturnRate))
}

// =============================================================================
// SALARY ACCRUAL
// =============================================================================

// SalaryAccrual tracks when an account was last paid. One row per account,
// created alongside the account, mutated only by the salary tick.
type SalaryAccrual struct {
	AccountID AccountID
	LastPaid  time.Time
}

// Due reports whether a full accrual period has elapsed since the last
// payment.
func (s SalaryAccrual) Due(now time.Time) bool {
	return now.Sub(s.LastPaid) >= SalaryPeriod
}
