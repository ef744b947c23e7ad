package ghstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	opRead   = "read"
	opWrite  = "write"
	opDelete = "delete"

	outcomeOK       = "ok"
	outcomeNotFound = "not_found"
	outcomeConflict = "conflict"
	outcomeError    = "error"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ulas_store_requests_total",
	Help: "Document store operations by type and outcome.",
}, []string{"op", "outcome"})

func observe(op, outcome string) {
	requestsTotal.WithLabelValues(op, outcome).Inc()
}
