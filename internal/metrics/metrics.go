package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "for_monday",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	transfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "for_monday",
			Name:      "transfers_total",
			Help:      "File transfers by scenario and outcome.",
		},
		[]string{"scenario", "outcome"},
	)

	circuitOpens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "for_monday",
			Name:      "circuit_opens_total",
			Help:      "Circuit breaker open transitions by key.",
		},
		[]string{"key"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, transfers, circuitOpens)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncTransfer increments the transfer counter for a scenario and outcome.
func IncTransfer(scenario, outcome string) {
	transfers.WithLabelValues(scenario, outcome).Inc()
}

// IncCircuitOpen increments the open-transition counter for a circuit key.
func IncCircuitOpen(key string) {
	circuitOpens.WithLabelValues(key).Inc()
}
