package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for claim issuance, verification
// sessions, and the outbound collaborators they depend on.
type Metrics struct {
	ClaimsCreated      *prometheus.CounterVec
	ClaimsIssued       prometheus.Counter
	ClaimsRevoked      prometheus.Counter
	IssuanceFallbacks  *prometheus.CounterVec
	BackendLatency     *prometheus.HistogramVec
	SessionsOpened     *prometheus.CounterVec
	SessionsResolved   *prometheus.CounterVec
	SessionsExpired    prometheus.Counter
	RegistryChecks     *prometheus.CounterVec
	RegistryLatency    prometheus.Histogram
	WalletDecodeBranch *prometheus.CounterVec
}

// New registers all collectors on reg. Pass prometheus.DefaultRegisterer in
// the server and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ClaimsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zkcred_claims_created_total",
			Help: "Claims created, labeled by credential source (backend or mock)",
		}, []string{"source"}),
		ClaimsIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "zkcred_claims_issued_total",
			Help: "Claims transitioned to issued by a wallet fetch",
		}),
		ClaimsRevoked: f.NewCounter(prometheus.CounterOpts{
			Name: "zkcred_claims_revoked_total",
			Help: "Claims revoked by an authority",
		}),
		IssuanceFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zkcred_issuance_fallbacks_total",
			Help: "Mock-credential fallbacks, labeled by reason",
		}, []string{"reason"}),
		BackendLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zkcred_issuance_backend_latency_seconds",
			Help:    "Latency of issuance backend calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		SessionsOpened: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zkcred_verification_sessions_opened_total",
			Help: "Verification sessions opened, labeled by kind",
		}, []string{"kind"}),
		SessionsResolved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zkcred_verification_sessions_resolved_total",
			Help: "Verification sessions resolved, labeled by terminal status",
		}, []string{"status"}),
		SessionsExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "zkcred_verification_sessions_expired_total",
			Help: "Verification sessions flipped to expired",
		}),
		RegistryChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zkcred_registry_checks_total",
			Help: "Issuer registry checks, labeled by outcome (authorized, unauthorized, unknown)",
		}, []string{"outcome"}),
		RegistryLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "zkcred_registry_latency_seconds",
			Help:    "Latency of issuer registry checks",
			Buckets: prometheus.DefBuckets,
		}),
		WalletDecodeBranch: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zkcred_wallet_decode_total",
			Help: "Inbound wallet messages by decode branch",
		}, []string{"kind"}),
	}
}

func (m *Metrics) IncrementClaimsCreated(source string) {
	m.ClaimsCreated.WithLabelValues(source).Inc()
}

func (m *Metrics) IncrementClaimsIssued() {
	m.ClaimsIssued.Inc()
}

func (m *Metrics) IncrementClaimsRevoked() {
	m.ClaimsRevoked.Inc()
}

func (m *Metrics) IncrementIssuanceFallback(reason string) {
	m.IssuanceFallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveBackendLatency(operation string, seconds float64) {
	m.BackendLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *Metrics) IncrementSessionsOpened(kind string) {
	m.SessionsOpened.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementSessionsResolved(status string) {
	m.SessionsResolved.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementSessionsExpired() {
	m.SessionsExpired.Inc()
}

func (m *Metrics) IncrementRegistryCheck(outcome string) {
	m.RegistryChecks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRegistryLatency(seconds float64) {
	m.RegistryLatency.Observe(seconds)
}

func (m *Metrics) IncrementWalletDecode(kind string) {
	m.WalletDecodeBranch.WithLabelValues(kind).Inc()
}
