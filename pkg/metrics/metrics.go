package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecoveryTokensIssued counts recovery tokens created per tenant.
	RecoveryTokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyloom_recovery_tokens_issued_total",
			Help: "Total number of account recovery tokens issued",
		},
		[]string{"tenant"},
	)

	// RecoveryTokenConsumptions counts consumption attempts by result (ok|invalid).
	RecoveryTokenConsumptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyloom_recovery_token_consumptions_total",
			Help: "Total number of recovery token consumption attempts",
		},
		[]string{"tenant", "result"},
	)

	// CredentialRegistrations counts WebAuthn credential registrations by result (ok|duplicate|error).
	CredentialRegistrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyloom_webauthn_credential_registrations_total",
			Help: "Total number of WebAuthn credential registration attempts",
		},
		[]string{"tenant", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keyloom_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
