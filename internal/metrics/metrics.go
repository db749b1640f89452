package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Submissions counts answer submissions by outcome (accepted, already_answered, late, ...).
	Submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "battle_submissions_total",
		Help: "Answer submissions by outcome.",
	}, []string{"outcome"})

	// VersionConflicts counts lost conditional writes that were retried.
	VersionConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_version_conflicts_total",
		Help: "Conditional writes rejected because the stored version moved.",
	}, []string{"record"})

	// SessionsEnded counts sessions reaching a terminal state.
	SessionsEnded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "battle_sessions_ended_total",
		Help: "Battle sessions by terminal status and reason.",
	}, []string{"status", "reason"})

	// Invitations counts invitation lifecycle transitions.
	Invitations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "battle_invitations_total",
		Help: "Invitations by resulting status.",
	}, []string{"status"})

	// LedgerAppends counts activity ingestion by result (appended or duplicate).
	LedgerAppends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "activity_ledger_appends_total",
		Help: "Activity ledger appends by activity type and result.",
	}, []string{"type", "result"})
)

// NewRegistry returns a registry with runtime collectors and the service metrics.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		Submissions,
		VersionConflicts,
		SessionsEnded,
		Invitations,
		LedgerAppends,
	)
	return registry
}

// Handler exposes the registry in the Prometheus text format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
