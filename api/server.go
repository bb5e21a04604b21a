/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions. This
  is a thin boundary adapter: it decodes primitive requests, calls the core
  services, and maps typed errors to HTTP statuses. The core never sees a
  request or formats a response.

MIDDLEWARE STACK:
  1. Recoverer:  Panic recovery (500 instead of crash)
  2. RequestID:  Unique ID per request for tracing
  3. CORS:       Cross-origin requests

ROUTE GROUPS:
  /api/accounts/*      Account open, balance, history, deposit, withdraw
  /api/transfers       Peer-to-peer transfer
  /api/cards/*         Catalog and purchase
  /api/ministries/*    Sub-ledger create, distribute, withdraw
  /api/investments     Investment open
  /api/admin/*         Grant/seize, richest list, ledger reporting, manual sweeps
  /metrics             Prometheus metrics

SECURITY NOTE:
  Authentication and role checks belong to the surrounding collaborator;
  handlers only forward the already-resolved actor id they are given.

SEE ALSO:
  - handlers.go: Handler implementations
  - response.go: JSON helpers and the error -> status mapping
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", h.OpenAccount)
			r.Get("/{id}", h.GetAccount)
			r.Get("/{id}/history", h.GetHistory)
			r.Get("/{id}/investments", h.ListInvestments)
			r.Post("/{id}/deposit", h.Deposit)
			r.Post("/{id}/withdraw", h.Withdraw)
		})

		r.Post("/transfers", h.Transfer)

		r.Route("/cards", func(r chi.Router) {
			r.Get("/", h.ListCards)
			r.Post("/purchase", h.PurchaseCard)
		})

		r.Route("/ministries", func(r chi.Router) {
			r.Get("/", h.ListMinistries)
			r.Post("/", h.CreateMinistry)
			r.Post("/{name}/distribute", h.DistributeBudget)
			r.Post("/{name}/withdraw", h.WithdrawBudget)
		})

		r.Post("/investments", h.OpenInvestment)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/give", h.AdminGive)
			r.Post("/take", h.AdminTake)
			r.Get("/richest", h.RichestAccounts)
			r.Get("/ledger", h.GetLedger)
			r.Post("/sweep/investments", h.TriggerInvestmentSweep)
			r.Post("/sweep/salaries", h.TriggerSalaryTick)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
