package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the trust engine.
type Metrics struct {
	CredentialsIssued  prometheus.Counter
	CredentialsRevoked prometheus.Counter
	Verifications      *prometheus.CounterVec
	ChallengesIssued   prometheus.Counter
	ChallengesConsumed prometheus.Counter
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		CredentialsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "passport_credentials_issued_total",
			Help: "Total number of credentials issued",
		}),
		CredentialsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "passport_credentials_revoked_total",
			Help: "Total number of credentials revoked",
		}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "passport_verifications_total",
			Help: "Total number of verification requests by outcome",
		}, []string{"result"}),
		ChallengesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "passport_challenges_issued_total",
			Help: "Total number of verifier challenges issued",
		}),
		ChallengesConsumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "passport_challenges_consumed_total",
			Help: "Total number of verifier challenges consumed",
		}),
	}
}

// ObserveVerification records one verification outcome. The result label is
// "valid" or the machine-readable failure reason.
func (m *Metrics) ObserveVerification(result string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(result).Inc()
}

// All increment helpers are nil-safe so services can run without metrics in
// tests.

func (m *Metrics) IncCredentialsIssued() {
	if m != nil {
		m.CredentialsIssued.Inc()
	}
}

func (m *Metrics) IncCredentialsRevoked() {
	if m != nil {
		m.CredentialsRevoked.Inc()
	}
}

func (m *Metrics) IncChallengesIssued() {
	if m != nil {
		m.ChallengesIssued.Inc()
	}
}

func (m *Metrics) IncChallengesConsumed() {
	if m != nil {
		m.ChallengesConsumed.Inc()
	}
}
