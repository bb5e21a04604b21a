// Package memory provides an in-memory Store implementation (for testing/dev).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store"
)

// =============================================================================
// MEMORY STORE - copy-on-write state behind one mutex
// =============================================================================

// Memory holds the whole ledger in maps. WithTx clones the state, runs the
// unit against the clone, and swaps it in on success, so a failed unit leaves
// no partial writes. The single mutex serializes units, which trivially
// satisfies the per-account ordering discipline.
type Memory struct {
	mu sync.Mutex
	st *state
}

type state struct {
	accounts    map[ledger.AccountID]ledger.Account
	entries     []ledger.Entry
	cards       map[ledger.CardTier]ledger.CardDefinition
	ministries  map[string]ledger.Ministry
	ministrySeq int64
	investments map[ledger.InvestmentID]ledger.Investment
	accruals    map[ledger.AccountID]ledger.SalaryAccrual
}

func New() *Memory {
	return &Memory{st: &state{
		accounts:    make(map[ledger.AccountID]ledger.Account),
		cards:       make(map[ledger.CardTier]ledger.CardDefinition),
		ministries:  make(map[string]ledger.Ministry),
		investments: make(map[ledger.InvestmentID]ledger.Investment),
		accruals:    make(map[ledger.AccountID]ledger.SalaryAccrual),
	}}
}

func (m *Memory) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.st.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	m.st = work
	return nil
}

func (m *Memory) Close() error { return nil }

func (s *state) clone() *state {
	c := &state{
		accounts:    make(map[ledger.AccountID]ledger.Account, len(s.accounts)),
		entries:     append([]ledger.Entry(nil), s.entries...),
		cards:       make(map[ledger.CardTier]ledger.CardDefinition, len(s.cards)),
		ministries:  make(map[string]ledger.Ministry, len(s.ministries)),
		ministrySeq: s.ministrySeq,
		investments: make(map[ledger.InvestmentID]ledger.Investment, len(s.investments)),
		accruals:    make(map[ledger.AccountID]ledger.SalaryAccrual, len(s.accruals)),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.cards {
		c.cards[k] = v
	}
	for k, v := range s.ministries {
		c.ministries[k] = v
	}
	for k, v := range s.investments {
		c.investments[k] = v
	}
	for k, v := range s.accruals {
		c.accruals[k] = v
	}
	return c
}

// =============================================================================
// TX
// =============================================================================

type memTx struct {
	st *state
}

// --- accounts ---

func (t *memTx) GetAccount(_ context.Context, id ledger.AccountID) (*ledger.Account, error) {
	acct, ok := t.st.accounts[id]
	if !ok {
		return nil, &ledger.NotFoundError{Kind: "account", Key: string(id)}
	}
	return &acct, nil
}

func (t *memTx) InsertAccount(_ context.Context, acct ledger.Account) error {
	if _, ok := t.st.accounts[acct.ID]; ok {
		return ledger.ErrAlreadyExists
	}
	t.st.accounts[acct.ID] = acct
	return nil
}

func (t *memTx) SetBalance(_ context.Context, id ledger.AccountID, balance decimal.Decimal) error {
	acct, ok := t.st.accounts[id]
	if !ok {
		return &ledger.NotFoundError{Kind: "account", Key: string(id)}
	}
	acct.Balance = balance
	t.st.accounts[id] = acct
	return nil
}

func (t *memTx) SetCardTier(_ context.Context, id ledger.AccountID, tier ledger.CardTier) error {
	acct, ok := t.st.accounts[id]
	if !ok {
		return &ledger.NotFoundError{Kind: "account", Key: string(id)}
	}
	acct.CardTier = tier
	t.st.accounts[id] = acct
	return nil
}

func (t *memTx) TopBalances(_ context.Context, limit int) ([]ledger.Account, error) {
	out := make([]ledger.Account, 0, len(t.st.accounts))
	for _, acct := range t.st.accounts {
		out = append(out, acct)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Balance.Equal(out[j].Balance) {
			return out[i].Balance.GreaterThan(out[j].Balance)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- entries ---

func (t *memTx) AppendEntry(_ context.Context, e ledger.Entry) error {
	t.st.entries = append(t.st.entries, e)
	return nil
}

func (t *memTx) EntriesByAccount(_ context.Context, id ledger.AccountID, limit int) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for i := len(t.st.entries) - 1; i >= 0; i-- {
		if t.st.entries[i].AccountID == id {
			out = append(out, t.st.entries[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (t *memTx) EntriesByType(_ context.Context, typ ledger.EntryType) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, e := range t.st.entries {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *memTx) AllEntries(_ context.Context) ([]ledger.Entry, error) {
	return append([]ledger.Entry(nil), t.st.entries...), nil
}

// --- cards ---

func (t *memTx) GetCard(_ context.Context, tier ledger.CardTier) (*ledger.CardDefinition, error) {
	def, ok := t.st.cards[tier]
	if !ok {
		return nil, &ledger.NotFoundError{Kind: "card", Key: string(tier)}
	}
	return &def, nil
}

func (t *memTx) InsertCardIfAbsent(_ context.Context, def ledger.CardDefinition) error {
	if _, ok := t.st.cards[def.Tier]; !ok {
		t.st.cards[def.Tier] = def
	}
	return nil
}

func (t *memTx) ListCards(_ context.Context) ([]ledger.CardDefinition, error) {
	out := make([]ledger.CardDefinition, 0, len(t.st.cards))
	for _, def := range t.st.cards {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	return out, nil
}

// --- ministries ---

func (t *memTx) GetMinistry(_ context.Context, name string) (*ledger.Ministry, error) {
	min, ok := t.st.ministries[name]
	if !ok {
		return nil, &ledger.NotFoundError{Kind: "ministry", Key: name}
	}
	return &min, nil
}

func (t *memTx) InsertMinistry(_ context.Context, name string) (*ledger.Ministry, error) {
	if _, ok := t.st.ministries[name]; ok {
		return nil, ledger.ErrAlreadyExists
	}
	t.st.ministrySeq++
	min := ledger.Ministry{ID: t.st.ministrySeq, Name: name, Balance: decimal.Zero}
	t.st.ministries[name] = min
	return &min, nil
}

func (t *memTx) SetMinistryBalance(_ context.Context, name string, balance decimal.Decimal) error {
	min, ok := t.st.ministries[name]
	if !ok {
		return &ledger.NotFoundError{Kind: "ministry", Key: name}
	}
	min.Balance = balance
	t.st.ministries[name] = min
	return nil
}

func (t *memTx) ListMinistries(_ context.Context) ([]ledger.Ministry, error) {
	out := make([]ledger.Ministry, 0, len(t.st.ministries))
	for _, min := range t.st.ministries {
		out = append(out, min)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- investments ---

func (t *memTx) InsertInvestment(_ context.Context, inv ledger.Investment) error {
	t.st.investments[inv.ID] = inv
	return nil
}

func (t *memTx) DueInvestments(_ context.Context, now time.Time) ([]ledger.Investment, error) {
	var out []ledger.Investment
	for _, inv := range t.st.investments {
		if inv.Status == ledger.InvestmentActive && !inv.MaturityTime.After(now) {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MaturityTime.Before(out[j].MaturityTime) })
	return out, nil
}

func (t *memTx) ClaimInvestment(_ context.Context, id ledger.InvestmentID) (bool, error) {
	inv, ok := t.st.investments[id]
	if !ok {
		return false, &ledger.NotFoundError{Kind: "investment", Key: string(id)}
	}
	if inv.Status != ledger.InvestmentActive {
		return false, nil
	}
	inv.Status = ledger.InvestmentCompleted
	t.st.investments[id] = inv
	return true, nil
}

func (t *memTx) InvestmentsByAccount(_ context.Context, id ledger.AccountID) ([]ledger.Investment, error) {
	var out []ledger.Investment
	for _, inv := range t.st.investments {
		if inv.AccountID == id {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].Status == ledger.InvestmentActive) != (out[j].Status == ledger.InvestmentActive) {
			return out[i].Status == ledger.InvestmentActive
		}
		return out[i].MaturityTime.Before(out[j].MaturityTime)
	})
	return out, nil
}

// --- salary accrual ---

func (t *memTx) InsertAccrual(_ context.Context, a ledger.SalaryAccrual) error {
	t.st.accruals[a.AccountID] = a
	return nil
}

func (t *memTx) DueAccruals(_ context.Context, cutoff time.Time) ([]ledger.SalaryAccrual, error) {
	var out []ledger.SalaryAccrual
	for _, a := range t.st.accruals {
		if !a.LastPaid.After(cutoff) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (t *memTx) AdvanceLastPaid(_ context.Context, id ledger.AccountID, paidAt, cutoff time.Time) (bool, error) {
	a, ok := t.st.accruals[id]
	if !ok {
		return false, &ledger.NotFoundError{Kind: "account", Key: string(id)}
	}
	if a.LastPaid.After(cutoff) {
		return false, nil
	}
	a.LastPaid = paidAt
	t.st.accruals[id] = a
	return true, nil
}

var _ store.Store = (*Memory)(nil)
var _ store.Tx = (*memTx)(nil)
