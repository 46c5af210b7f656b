package internaldefs

import (
	"github.com/balancebuddy/authflow"
)

// CounterDef names one counter for exporters.
type CounterDef struct {
	ID   authflow.MetricID
	Name string
	Help string
}

// HistogramDef names one histogram for exporters.
type HistogramDef struct {
	ID   authflow.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: authflow.MetricRegistrationOTPIssued, Name: "authflow_registration_otp_issued_total", Help: "Registration codes issued."},
	{ID: authflow.MetricRegistrationOTPResent, Name: "authflow_registration_otp_resent_total", Help: "Registration codes re-issued by resend."},
	{ID: authflow.MetricRegistrationOTPValid, Name: "authflow_registration_otp_valid_total", Help: "Registration codes verified."},
	{ID: authflow.MetricRegistrationOTPMismatch, Name: "authflow_registration_otp_mismatch_total", Help: "Registration verifications with a wrong code."},
	{ID: authflow.MetricRegistrationOTPExpired, Name: "authflow_registration_otp_expired_total", Help: "Registration verifications past the window."},
	{ID: authflow.MetricRegistrationOTPNotFound, Name: "authflow_registration_otp_not_found_total", Help: "Registration verifications without an outstanding code."},
	{ID: authflow.MetricRegistrationCompleted, Name: "authflow_registration_completed_total", Help: "Completed registrations."},
	{ID: authflow.MetricRegistrationDuplicate, Name: "authflow_registration_duplicate_total", Help: "Registrations refused because the identity is taken."},
	{ID: authflow.MetricRegistrationUnverified, Name: "authflow_registration_unverified_total", Help: "Completion attempts without a verified entry."},
	{ID: authflow.MetricEmailOTPIssued, Name: "authflow_email_otp_issued_total", Help: "Email codes issued."},
	{ID: authflow.MetricEmailOTPResent, Name: "authflow_email_otp_resent_total", Help: "Email codes re-issued by resend."},
	{ID: authflow.MetricEmailOTPValid, Name: "authflow_email_otp_valid_total", Help: "Email codes verified."},
	{ID: authflow.MetricEmailOTPMismatch, Name: "authflow_email_otp_mismatch_total", Help: "Email verifications with a wrong code."},
	{ID: authflow.MetricEmailOTPExpired, Name: "authflow_email_otp_expired_total", Help: "Email verifications past the window."},
	{ID: authflow.MetricEmailOTPNotFound, Name: "authflow_email_otp_not_found_total", Help: "Email verifications without an outstanding code."},
	{ID: authflow.MetricEmailOTPCleared, Name: "authflow_email_otp_cleared_total", Help: "Email codes consumed."},
	{ID: authflow.MetricOTPRateLimited, Name: "authflow_otp_rate_limited_total", Help: "Rate-limited code issuance or verification."},
	{ID: authflow.MetricPasswordResetRequest, Name: "authflow_password_reset_request_total", Help: "Reset links issued."},
	{ID: authflow.MetricPasswordResetUnknownIdentity, Name: "authflow_password_reset_unknown_identity_total", Help: "Reset requests for unknown identities."},
	{ID: authflow.MetricPasswordResetConsumed, Name: "authflow_password_reset_consumed_total", Help: "Reset tokens consumed."},
	{ID: authflow.MetricPasswordResetInvalid, Name: "authflow_password_reset_invalid_total", Help: "Reset submissions with an invalid or expired token."},
	{ID: authflow.MetricPasswordResetRateLimited, Name: "authflow_password_reset_rate_limited_total", Help: "Rate-limited reset requests."},
	{ID: authflow.MetricResetTokensPurged, Name: "authflow_reset_tokens_purged_total", Help: "Expired reset tokens cleared by the sweep."},
	{ID: authflow.MetricLoginSuccess, Name: "authflow_login_success_total", Help: "Successful logins."},
	{ID: authflow.MetricLoginFailure, Name: "authflow_login_failure_total", Help: "Failed logins."},
	{ID: authflow.MetricLoginRateLimited, Name: "authflow_login_rate_limited_total", Help: "Rate-limited logins."},
	{ID: authflow.MetricPasswordRehash, Name: "authflow_password_rehash_total", Help: "Legacy password hashes upgraded at login."},
	{ID: authflow.MetricSessionValidated, Name: "authflow_session_validated_total", Help: "Session credentials accepted."},
	{ID: authflow.MetricSessionRejected, Name: "authflow_session_rejected_total", Help: "Session credentials rejected."},
	{ID: authflow.MetricDeliverySuccess, Name: "authflow_delivery_success_total", Help: "Notifications delivered."},
	{ID: authflow.MetricDeliveryFailure, Name: "authflow_delivery_failure_total", Help: "Notifications that failed to deliver."},
	{ID: authflow.MetricRateLimitHit, Name: "authflow_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authflow.MetricDeliveryLatency, Name: "authflow_delivery_latency_seconds", Help: "Notification delivery latency."},
}

// HistogramBounds are the upper bounds of the delivery latency buckets, in
// seconds. The last bucket collects everything slower than five seconds.
var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"5",
	"+Inf",
}

// HistogramBoundSuffix mirrors HistogramBounds for instrument names that
// cannot carry labels.
var HistogramBoundSuffix = []string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-width bucket array, zero filling
// missing buckets. Extra buckets are ignored.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
