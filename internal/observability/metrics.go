// Package observability wires metrics (Prometheus) and error reporting
// (Sentry) for the credport server.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every credport collector. A private registry keeps tests
// and embedded use free of global default-registry collisions.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// TokensIssued counts minted token pairs by issuing app.
	TokensIssued = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "credport",
		Subsystem: "auth",
		Name:      "token_pairs_issued_total",
		Help:      "Token pairs minted by the authority.",
	}, []string{"app"})

	// AuthRejections counts rejected tokens by operation.
	AuthRejections = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "credport",
		Subsystem: "auth",
		Name:      "rejections_total",
		Help:      "Tokens rejected as invalid, expired, revoked or of the wrong kind.",
	}, []string{"operation"})

	// Revocations counts tokens stored in a revocation ledger.
	Revocations = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "credport",
		Subsystem: "auth",
		Name:      "revocations_total",
		Help:      "Tokens revoked before natural expiry.",
	}, []string{"kind"})

	// RateLimited counts requests refused by the fixed-window limiter.
	RateLimited = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "credport",
		Subsystem: "ratelimit",
		Name:      "refused_total",
		Help:      "Requests refused because the window was exhausted.",
	}, []string{"scope"})

	// StateWrites counts state store save outcomes: written, skipped,
	// coalesced, failed.
	StateWrites = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "credport",
		Subsystem: "state",
		Name:      "saves_total",
		Help:      "State store save requests by outcome.",
	}, []string{"key", "outcome"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// MetricsHandler serves Registry in the Prometheus text format.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
