package bank

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// METRICS - operation and settlement counters
// =============================================================================

var opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bank_operations_total",
	Help: "Ledger operations by kind and outcome.",
}, []string{"op", "outcome"})

var investmentsSettled = promauto.NewCounter(prometheus.CounterOpts{
	Name: "bank_investments_settled_total",
	Help: "Investments paid out by the maturity sweep.",
})

var salariesPaid = promauto.NewCounter(prometheus.CounterOpts{
	Name: "bank_salaries_paid_total",
	Help: "Salary payments made by the accrual tick.",
})

var sweepRowFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bank_sweep_row_failures_total",
	Help: "Individual sweep rows that errored and were skipped.",
}, []string{"job"})

// observe records one operation outcome.
func observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	opsTotal.WithLabelValues(op, outcome).Inc()
}
