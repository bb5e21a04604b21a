package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// RESPONSE HELPERS - the only place core errors become user-facing text
// =============================================================================

type errorDTO struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeCoreError maps the ledger error taxonomy to HTTP statuses. Unknown
// errors (storage failures included) collapse to a generic 500 so internals
// never leak.
func writeCoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorDTO{Error: "not_found", Detail: err.Error()})
	case errors.Is(err, ledger.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorDTO{Error: "already_exists", Detail: err.Error()})
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeJSON(w, http.StatusUnprocessableEntity, errorDTO{Error: "insufficient_funds", Detail: err.Error()})
	case errors.Is(err, ledger.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorDTO{Error: "validation", Detail: err.Error()})
	case ledger.IsRetryable(err):
		writeJSON(w, http.StatusServiceUnavailable, errorDTO{Error: "conflict", Detail: "please retry"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorDTO{Error: "internal"})
	}
}

func writeBadRequest(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusBadRequest, errorDTO{Error: "validation", Detail: detail})
}
