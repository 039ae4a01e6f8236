// Package metrics exposes Prometheus counters for the auth core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "marketbay_auth"

var (
	// LoginSuccesses counts successful logins by method (password, google).
	LoginSuccesses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_success_total",
			Help:      "Successful logins by method",
		},
		[]string{"method"},
	)

	// LoginFailures counts rejected logins by method.
	LoginFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_failure_total",
			Help:      "Rejected logins by method",
		},
		[]string{"method"},
	)

	// IdentityMerges counts Google identities linked to existing
	// password accounts.
	IdentityMerges = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_merge_total",
			Help:      "Google identities linked to existing accounts",
		},
	)

	// OtpIssued counts password-reset codes issued.
	OtpIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_issued_total",
			Help:      "Password reset codes issued",
		},
	)

	// OtpVerified counts password-reset codes successfully verified.
	OtpVerified = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_verified_total",
			Help:      "Password reset codes verified",
		},
	)

	// MailDeliveryFailures counts failed transactional email sends.
	// These never surface to clients; the counter is the visibility.
	MailDeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mail_delivery_failure_total",
			Help:      "Failed transactional email deliveries",
		},
	)
)
