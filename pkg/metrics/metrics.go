package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RelayWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anipink_relay_writes_total",
			Help: "Relay write requests by document kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	SubscribedClients = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "anipink_subscribed_clients",
			Help: "Clients currently receiving change notifications",
		},
		[]string{"transport"},
	)

	ChangesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anipink_changes_published_total",
			Help: "Committed document changes fanned out to subscribers",
		},
		[]string{"topic"},
	)

	Enrichments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anipink_enrichments_total",
			Help: "Arc enrichment attempts by outcome (resolved, pending, superseded)",
		},
		[]string{"outcome"},
	)

	AIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anipink_ai_requests_total",
			Help: "Generative AI calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "anipink_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)
