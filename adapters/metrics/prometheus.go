package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	NoncesIssued      prometheus.Counter
	LoginAttempts     *prometheus.CounterVec
	IdentitiesCreated prometheus.Counter
	LedgerCalls       *prometheus.CounterVec
	LedgerLatency     *prometheus.HistogramVec
	ActiveConnections prometheus.Gauge
	HandshakeRejects  *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the metrics and registers them on a dedicated registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		NoncesIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "nft_ticketing_nonces_issued_total",
			Help: "Total number of login challenges issued",
		}),
		LoginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nft_ticketing_login_attempts_total",
			Help: "Wallet login attempts by outcome kind",
		}, []string{"outcome"}),
		IdentitiesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "nft_ticketing_identities_created_total",
			Help: "Total number of identities created on first login",
		}),
		LedgerCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nft_ticketing_ledger_calls_total",
			Help: "Ledger contract calls by method and outcome",
		}, []string{"method", "outcome"}),
		LedgerLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nft_ticketing_ledger_call_duration_seconds",
			Help:    "Latency of ledger contract calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nft_ticketing_ws_connections",
			Help: "Currently admitted long-lived connections",
		}),
		HandshakeRejects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nft_ticketing_ws_handshake_rejections_total",
			Help: "Rejected connection handshakes by kind",
		}, []string{"kind"}),
		gatherer: reg,
	}
}

func (m *Metrics) NonceIssued() {
	if m == nil {
		return
	}
	m.NoncesIssued.Inc()
}

func (m *Metrics) LoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IdentityCreated() {
	if m == nil {
		return
	}
	m.IdentitiesCreated.Inc()
}

// LedgerCall records one contract call started at start
func (m *Metrics) LedgerCall(method string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.LedgerCalls.WithLabelValues(method, outcome).Inc()
	m.LedgerLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ActiveConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

func (m *Metrics) HandshakeRejected(kind string) {
	if m == nil {
		return
	}
	m.HandshakeRejects.WithLabelValues(kind).Inc()
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
