/*
handlers.go - HTTP handlers for the ledger engine

PURPOSE:
  Decodes primitive requests (account identifier, signed amount, target
  identifier, duration), calls the core services, and encodes typed results.
  Each request is assumed already authenticated/authorized upstream; the
  actor id arrives as a plain field.

ERROR HANDLING:
  Errors are returned as JSON with the status mapping in response.go.
  Handlers never branch on error text, only on the taxonomy.
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/bank"
	"github.com/warp/ledger-engine/ledger"
)

// Handler bundles the core services behind the HTTP adapter.
type Handler struct {
	Accounts    *bank.AccountService
	Transfers   *bank.TransferService
	Cards       *bank.CardCatalog
	Ministries  *bank.MinistryTreasury
	Investments *bank.InvestmentEngine
	Salaries    *bank.SalaryScheduler
	Clock       ledger.Clock
}

// =============================================================================
// DTOs
// =============================================================================

type accountDTO struct {
	ID       string `json:"id"`
	Balance  string `json:"balance"`
	CardTier string `json:"card_tier"`
}

type entryDTO struct {
	ID          string `json:"id"`
	AccountID   string `json:"account_id,omitempty"`
	Type        string `json:"type"`
	Amount      string `json:"amount"`
	Timestamp   string `json:"timestamp"`
	Description string `json:"description,omitempty"`
}

type cardDTO struct {
	Tier     string `json:"tier"`
	Price    string `json:"price"`
	Benefits string `json:"benefits"`
}

type ministryDTO struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Balance string `json:"balance"`
}

type investmentDTO struct {
	ID           string `json:"id"`
	AccountID    string `json:"account_id"`
	Principal    string `json:"principal"`
	StartTime    string `json:"start_time"`
	MaturityTime string `json:"maturity_time"`
	ReturnRate   string `json:"return_rate"`
	Status       string `json:"status"`
}

func toAccountDTO(a *ledger.Account) accountDTO {
	return accountDTO{ID: string(a.ID), Balance: a.Balance.String(), CardTier: string(a.CardTier)}
}

func toEntryDTOs(entries []ledger.Entry) []entryDTO {
	out := make([]entryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryDTO{
			ID:          string(e.ID),
			AccountID:   string(e.AccountID),
			Type:        string(e.Type),
			Amount:      e.Amount.String(),
			Timestamp:   e.Timestamp.Format(time.RFC3339),
			Description: e.Description,
		})
	}
	return out
}

func toInvestmentDTO(inv ledger.Investment) investmentDTO {
	return investmentDTO{
		ID:           string(inv.ID),
		AccountID:    string(inv.AccountID),
		Principal:    inv.Principal.String(),
		StartTime:    inv.StartTime.Format(time.RFC3339),
		MaturityTime: inv.MaturityTime.Format(time.RFC3339),
		ReturnRate:   inv.ReturnRate.String(),
		Status:       string(inv.Status),
	}
}

func toInvestmentDTOs(invs []ledger.Investment) []investmentDTO {
	out := make([]investmentDTO, 0, len(invs))
	for _, inv := range invs {
		out = append(out, toInvestmentDTO(inv))
	}
	return out
}

func parseAmount(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (h *Handler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	acct, err := h.Accounts.Open(r.Context(), ledger.AccountID(req.ID))
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(acct))
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.Accounts.Get(r.Context(), ledger.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(acct))
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Accounts.History(r.Context(), ledger.AccountID(chi.URLParam(r, "id")), 50)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

type amountRequest struct {
	Amount string `json:"amount"`
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.singleAccountMove(w, r, h.Accounts.Deposit)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.singleAccountMove(w, r, h.Accounts.Withdraw)
}

func (h *Handler) singleAccountMove(w http.ResponseWriter, r *http.Request,
	move func(ctx context.Context, id ledger.AccountID, amount decimal.Decimal) error) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeBadRequest(w, "invalid amount")
		return
	}
	if err := move(r.Context(), ledger.AccountID(chi.URLParam(r, "id")), amount); err != nil {
		writeCoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TRANSFERS
// =============================================================================

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sender   string `json:"sender"`
		Receiver string `json:"receiver"`
		Amount   string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeBadRequest(w, "invalid amount")
		return
	}
	if err := h.Transfers.Transfer(r.Context(), ledger.AccountID(req.Sender), ledger.AccountID(req.Receiver), amount); err != nil {
		writeCoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CARDS
// =============================================================================

func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	defs, err := h.Cards.List(r.Context())
	if err != nil {
		writeCoreError(w, err)
		return
	}
	out := make([]cardDTO, 0, len(defs))
	for _, def := range defs {
		out = append(out, cardDTO{Tier: string(def.Tier), Price: def.Price.String(), Benefits: def.Benefits})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) PurchaseCard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string `json:"account_id"`
		Tier      string `json:"tier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := h.Cards.Purchase(r.Context(), ledger.AccountID(req.AccountID), ledger.CardTier(req.Tier)); err != nil {
		writeCoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// MINISTRIES
// =============================================================================

func (h *Handler) ListMinistries(w http.ResponseWriter, r *http.Request) {
	ministries, err := h.Ministries.List(r.Context())
	if err != nil {
		writeCoreError(w, err)
		return
	}
	out := make([]ministryDTO, 0, len(ministries))
	for _, m := range ministries {
		out = append(out, ministryDTO{ID: m.ID, Name: m.Name, Balance: m.Balance.String()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateMinistry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	min, err := h.Ministries.Create(r.Context(), req.Name)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ministryDTO{ID: min.ID, Name: min.Name, Balance: min.Balance.String()})
}

type ministryMoveRequest struct {
	Amount string `json:"amount"`
	Actor  string `json:"actor"`
}

func (h *Handler) DistributeBudget(w http.ResponseWriter, r *http.Request) {
	var req ministryMoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeBadRequest(w, "invalid amount")
		return
	}
	if err := h.Ministries.Distribute(r.Context(), chi.URLParam(r, "name"), amount, ledger.AccountID(req.Actor)); err != nil {
		writeCoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) WithdrawBudget(w http.ResponseWriter, r *http.Request) {
	var req ministryMoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeBadRequest(w, "invalid amount")
		return
	}
	if err := h.Ministries.Withdraw(r.Context(), chi.URLParam(r, "name"), amount, ledger.AccountID(req.Actor)); err != nil {
		writeCoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// INVESTMENTS
// =============================================================================

func (h *Handler) OpenInvestment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID    string `json:"account_id"`
		Amount       string `json:"amount"`
		DurationDays int    `json:"duration_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeBadRequest(w, "invalid amount")
		return
	}
	inv, err := h.Investments.Open(r.Context(), ledger.AccountID(req.AccountID), amount, req.DurationDays)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvestmentDTO(*inv))
}

func (h *Handler) ListInvestments(w http.ResponseWriter, r *http.Request) {
	invs, err := h.Investments.ListByAccount(r.Context(), ledger.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvestmentDTOs(invs))
}

// =============================================================================
// ADMIN
// =============================================================================

type adminMoveRequest struct {
	Actor     string `json:"actor"`
	AccountID string `json:"account_id"`
	Amount    string `json:"amount"`
}

func (h *Handler) AdminGive(w http.ResponseWriter, r *http.Request) {
	var req adminMoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeBadRequest(w, "invalid amount")
		return
	}
	if err := h.Accounts.AdminGive(r.Context(), req.Actor, ledger.AccountID(req.AccountID), amount); err != nil {
		writeCoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AdminTake(w http.ResponseWriter, r *http.Request) {
	var req adminMoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeBadRequest(w, "invalid amount")
		return
	}
	if err := h.Accounts.AdminTake(r.Context(), req.Actor, ledger.AccountID(req.AccountID), amount); err != nil {
		writeCoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RichestAccounts(w http.ResponseWriter, r *http.Request) {
	limit := 0 // service default
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeBadRequest(w, "invalid limit")
			return
		}
		limit = n
	}
	accts, err := h.Accounts.TopBalances(r.Context(), limit)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	out := make([]accountDTO, 0, len(accts))
	for i := range accts {
		out = append(out, toAccountDTO(&accts[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	if typ := r.URL.Query().Get("type"); typ != "" {
		entries, err := h.Accounts.EntriesByType(r.Context(), ledger.EntryType(typ))
		if err != nil {
			writeCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toEntryDTOs(entries))
		return
	}
	entries, err := h.Accounts.AllEntries(r.Context())
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

func (h *Handler) TriggerInvestmentSweep(w http.ResponseWriter, r *http.Request) {
	settled, err := h.Investments.Sweep(r.Context(), h.Clock.Now())
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"settled": settled})
}

func (h *Handler) TriggerSalaryTick(w http.ResponseWriter, r *http.Request) {
	paid, err := h.Salaries.Tick(r.Context(), h.Clock.Now())
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"paid": paid})
}
