package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "credit_ledger"

// Metrics methods are safe on a nil receiver so components can run without them.
type Metrics struct {
	registry *prometheus.Registry

	LedgerOps          *prometheus.CounterVec
	Webhooks           *prometheus.CounterVec
	RefreshReuse       prometheus.Counter
	APIKeyAuthFailures prometheus.Counter
	CacheInvalidations prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		LedgerOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Ledger credit and debit attempts by entry type and result.",
		}, []string{"op", "type", "result"}),
		Webhooks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhooks_total",
			Help:      "Verified payment webhooks by outcome.",
		}, []string{"outcome"}),
		RefreshReuse: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_token_reuse_total",
			Help:      "Rotated refresh tokens presented again.",
		}),
		APIKeyAuthFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apikey_auth_failures_total",
			Help:      "Rejected API key authentications.",
		}),
		CacheInvalidations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apikey_cache_invalidation_failures_total",
			Help:      "Revoked keys whose cache entry could not be dropped.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) LedgerOp(op, entryType, result string) {
	if m == nil {
		return
	}
	m.LedgerOps.WithLabelValues(op, entryType, result).Inc()
}

func (m *Metrics) Webhook(outcome string) {
	if m == nil {
		return
	}
	m.Webhooks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RefreshReused() {
	if m == nil {
		return
	}
	m.RefreshReuse.Inc()
}

func (m *Metrics) APIKeyRejected() {
	if m == nil {
		return
	}
	m.APIKeyAuthFailures.Inc()
}

func (m *Metrics) CacheInvalidateFailed() {
	if m == nil {
		return
	}
	m.CacheInvalidations.Inc()
}
