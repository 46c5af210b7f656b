package authflow

import internalmetrics "github.com/balancebuddy/authflow/internal/metrics"

// MetricID identifies a counter or histogram in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	// MetricRegistrationOTPIssued counts registration codes issued.
	MetricRegistrationOTPIssued = internalmetrics.MetricRegistrationOTPIssued
	// MetricRegistrationOTPResent counts registration codes re-issued by resend.
	MetricRegistrationOTPResent = internalmetrics.MetricRegistrationOTPResent
	// MetricRegistrationOTPValid counts registration codes verified.
	MetricRegistrationOTPValid = internalmetrics.MetricRegistrationOTPValid
	// MetricRegistrationOTPMismatch counts registration verifications with a wrong code.
	MetricRegistrationOTPMismatch = internalmetrics.MetricRegistrationOTPMismatch
	// MetricRegistrationOTPExpired counts registration verifications past the window.
	MetricRegistrationOTPExpired = internalmetrics.MetricRegistrationOTPExpired
	// MetricRegistrationOTPNotFound counts registration verifications without an outstanding code.
	MetricRegistrationOTPNotFound = internalmetrics.MetricRegistrationOTPNotFound
	// MetricRegistrationCompleted counts completed registrations.
	MetricRegistrationCompleted = internalmetrics.MetricRegistrationCompleted
	// MetricRegistrationDuplicate counts registrations refused because the identity is taken.
	MetricRegistrationDuplicate = internalmetrics.MetricRegistrationDuplicate
	// MetricRegistrationUnverified counts completion attempts without a verified entry.
	MetricRegistrationUnverified = internalmetrics.MetricRegistrationUnverified
	// MetricEmailOTPIssued counts email codes issued.
	MetricEmailOTPIssued = internalmetrics.MetricEmailOTPIssued
	// MetricEmailOTPResent counts email codes re-issued by resend.
	MetricEmailOTPResent = internalmetrics.MetricEmailOTPResent
	// MetricEmailOTPValid counts email codes verified.
	MetricEmailOTPValid = internalmetrics.MetricEmailOTPValid
	// MetricEmailOTPMismatch counts email verifications with a wrong code.
	MetricEmailOTPMismatch = internalmetrics.MetricEmailOTPMismatch
	// MetricEmailOTPExpired counts email verifications past the window.
	MetricEmailOTPExpired = internalmetrics.MetricEmailOTPExpired
	// MetricEmailOTPNotFound counts email verifications without an outstanding code.
	MetricEmailOTPNotFound = internalmetrics.MetricEmailOTPNotFound
	// MetricEmailOTPCleared counts email codes consumed.
	MetricEmailOTPCleared = internalmetrics.MetricEmailOTPCleared
	// MetricOTPRateLimited counts rate-limited code issuance or verification.
	MetricOTPRateLimited = internalmetrics.MetricOTPRateLimited
	// MetricPasswordResetRequest counts reset links issued.
	MetricPasswordResetRequest = internalmetrics.MetricPasswordResetRequest
	// MetricPasswordResetUnknownIdentity counts reset requests for unknown identities.
	MetricPasswordResetUnknownIdentity = internalmetrics.MetricPasswordResetUnknownIdentity
	// MetricPasswordResetConsumed counts reset tokens consumed.
	MetricPasswordResetConsumed = internalmetrics.MetricPasswordResetConsumed
	// MetricPasswordResetInvalid counts reset submissions with an invalid or expired token.
	MetricPasswordResetInvalid = internalmetrics.MetricPasswordResetInvalid
	// MetricPasswordResetRateLimited counts rate-limited reset requests.
	MetricPasswordResetRateLimited = internalmetrics.MetricPasswordResetRateLimited
	// MetricResetTokensPurged counts expired reset tokens cleared by the sweep.
	MetricResetTokensPurged = internalmetrics.MetricResetTokensPurged
	// MetricLoginSuccess counts successful logins.
	MetricLoginSuccess = internalmetrics.MetricLoginSuccess
	// MetricLoginFailure counts failed logins.
	MetricLoginFailure = internalmetrics.MetricLoginFailure
	// MetricLoginRateLimited counts rate-limited logins.
	MetricLoginRateLimited = internalmetrics.MetricLoginRateLimited
	// MetricPasswordRehash counts legacy password hashes upgraded at login.
	MetricPasswordRehash = internalmetrics.MetricPasswordRehash
	// MetricSessionValidated counts session credentials accepted.
	MetricSessionValidated = internalmetrics.MetricSessionValidated
	// MetricSessionRejected counts session credentials rejected.
	MetricSessionRejected = internalmetrics.MetricSessionRejected
	// MetricDeliverySuccess counts notifications delivered.
	MetricDeliverySuccess = internalmetrics.MetricDeliverySuccess
	// MetricDeliveryFailure counts notifications that failed to deliver.
	MetricDeliveryFailure = internalmetrics.MetricDeliveryFailure
	// MetricRateLimitHit counts rate-limit checks that denied requests.
	MetricRateLimitHit = internalmetrics.MetricRateLimitHit
	// MetricDeliveryLatency is the notification delivery latency histogram.
	MetricDeliveryLatency = internalmetrics.MetricDeliveryLatency

	metricIDCount = internalmetrics.MetricIDCount
)

// Metrics holds atomic counters and the optional delivery latency histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance. When cfg.Enabled is false all
// operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
