package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "founding"

type Metrics struct {
	registry *prometheus.Registry

	MembershipsIssued    *prometheus.CounterVec
	IssueConflicts       prometheus.Counter
	SignatureRejects     prometheus.Counter
	ReconciliationChecks *prometheus.CounterVec
	GatewayErrors        *prometheus.CounterVec
	CollaboratorFailures *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		MembershipsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memberships_issued_total",
			Help:      "Founding memberships created, by confirmation channel.",
		}, []string{"channel"}),
		IssueConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "membership_issue_conflicts_total",
			Help:      "Inserts that lost a race and returned the existing membership.",
		}),
		SignatureRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signature_rejects_total",
			Help:      "Payment callbacks rejected for a bad signature.",
		}),
		ReconciliationChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_checks_total",
			Help:      "Payment status checks, by reported status.",
		}, []string{"status"}),
		GatewayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_errors_total",
			Help:      "Failed calls to the payment gateway, by operation.",
		}, []string{"operation"}),
		CollaboratorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_failures_total",
			Help:      "Best-effort side effects that failed, by collaborator.",
		}, []string{"collaborator"}),
	}
	m.registry.MustRegister(
		m.MembershipsIssued,
		m.IssueConflicts,
		m.SignatureRejects,
		m.ReconciliationChecks,
		m.GatewayErrors,
		m.CollaboratorFailures,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
