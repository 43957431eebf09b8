// Package metrics defines the Prometheus metrics exported by the storefront
// server on /metrics.
//
// Metric naming follows Prometheus conventions:
//   - storefront_ prefix for all custom metrics
//   - _total suffix for counters
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// AuthDecisionsTotal counts guarded mutations by resource and outcome
	// (allowed, unauthenticated, forbidden, fetch_failed).
	AuthDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_auth_decisions_total",
			Help: "Authorization decisions for guarded mutations by resource and outcome.",
		},
		[]string{"resource", "outcome"},
	)

	// SessionVerifyFailuresTotal counts session cookies discarded by reason.
	SessionVerifyFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_session_verify_failures_total",
			Help: "Session cookies that failed verification, by reason.",
		},
		[]string{"reason"},
	)

	// SessionsIssuedTotal counts session cookies written, by reason
	// (login, register, profile).
	SessionsIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_sessions_issued_total",
			Help: "Session cookies issued, by reason.",
		},
		[]string{"reason"},
	)

	// MediaCleanupFailuresTotal counts orphaned media that could not be deleted.
	MediaCleanupFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_media_cleanup_failures_total",
			Help: "Orphaned media blobs that failed to delete, by resource.",
		},
		[]string{"resource"},
	)
)

func init() {
	prometheus.MustRegister(
		AuthDecisionsTotal,
		SessionVerifyFailuresTotal,
		SessionsIssuedTotal,
		MediaCleanupFailuresTotal,
	)
}
