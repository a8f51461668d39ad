package internaldefs

import (
	"strconv"

	merco "github.com/SametHaymana/merco-api"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   merco.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   merco.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: merco.MetricSignUpSuccess, Name: "merco_signup_success_total", Help: "Successful sign-ups."},
	{ID: merco.MetricSignUpDuplicate, Name: "merco_signup_duplicate_total", Help: "Sign-ups rejected because the email exists in the tenant."},
	{ID: merco.MetricSignInSuccess, Name: "merco_signin_success_total", Help: "Successful password sign-ins."},
	{ID: merco.MetricSignInFailure, Name: "merco_signin_failure_total", Help: "Password sign-ins rejected for bad credentials."},
	{ID: merco.MetricSignInRateLimited, Name: "merco_signin_rate_limited_total", Help: "Password sign-ins rejected by the attempt window."},
	{ID: merco.MetricSignInBanned, Name: "merco_signin_banned_total", Help: "Sign-ins rejected because the user is banned."},
	{ID: merco.MetricMFARequired, Name: "merco_mfa_required_total", Help: "Sign-ins that stopped for a missing MFA code."},
	{ID: merco.MetricMFAFailure, Name: "merco_mfa_failure_total", Help: "Rejected TOTP or backup codes."},
	{ID: merco.MetricBackupCodeUsed, Name: "merco_backup_code_used_total", Help: "Backup codes consumed."},
	{ID: merco.MetricRefreshSuccess, Name: "merco_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: merco.MetricRefreshFailure, Name: "merco_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: merco.MetricSessionCreated, Name: "merco_session_created_total", Help: "Sessions opened."},
	{ID: merco.MetricSignOut, Name: "merco_signout_total", Help: "Single-session sign-outs."},
	{ID: merco.MetricSignOutAll, Name: "merco_signout_all_total", Help: "Sign-out-everywhere operations."},
	{ID: merco.MetricOTPSent, Name: "merco_otp_sent_total", Help: "One-time codes issued."},
	{ID: merco.MetricOTPVerified, Name: "merco_otp_verified_total", Help: "One-time codes redeemed."},
	{ID: merco.MetricOTPFailure, Name: "merco_otp_failure_total", Help: "Rejected one-time codes."},
	{ID: merco.MetricMagicLinkSent, Name: "merco_magic_link_sent_total", Help: "Magic links issued."},
	{ID: merco.MetricMagicLinkVerified, Name: "merco_magic_link_verified_total", Help: "Magic links redeemed."},
	{ID: merco.MetricMagicLinkFailure, Name: "merco_magic_link_failure_total", Help: "Rejected magic-link tokens."},
	{ID: merco.MetricDeliveryFailure, Name: "merco_delivery_failure_total", Help: "Notification deliveries that failed."},
	{ID: merco.MetricPasswordResetRequest, Name: "merco_password_reset_request_total", Help: "Password reset requests."},
	{ID: merco.MetricPasswordResetConfirm, Name: "merco_password_reset_confirm_total", Help: "Completed password resets."},
	{ID: merco.MetricPasswordChanged, Name: "merco_password_changed_total", Help: "Completed password changes."},
	{ID: merco.MetricAPIKeyVerified, Name: "merco_api_key_verified_total", Help: "Accepted API keys."},
	{ID: merco.MetricAPIKeyRejected, Name: "merco_api_key_rejected_total", Help: "Rejected API keys."},
	{ID: merco.MetricPermissionDenied, Name: "merco_permission_denied_total", Help: "Authorization checks that denied access."},
	{ID: merco.MetricRateLimitHit, Name: "merco_rate_limit_hit_total", Help: "Admission checks that denied a request."},
	{ID: merco.MetricSessionsSwept, Name: "merco_sessions_swept_total", Help: "Expired sessions revoked by the sweeper."},
	{ID: merco.MetricTokensSwept, Name: "merco_tokens_swept_total", Help: "Expired single-use tokens deleted by the sweeper."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: merco.MetricAuthenticateLatency, Name: "merco_authenticate_latency_seconds", Help: "Access token verification latency."},
}

// HistogramUpperBounds are the bucket limits in seconds, matching the engine's
// fixed buckets. The last bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// BucketLabels renders every bucket bound, +Inf included, as an "le" label value.
func BucketLabels() []string {
	out := make([]string, 0, len(HistogramUpperBounds)+1)
	for _, b := range HistogramUpperBounds {
		out = append(out, strconv.FormatFloat(b, 'g', -1, 64))
	}
	return append(out, "+Inf")
}

// AuditDroppedName is the counter for audit events lost to a full buffer.
const AuditDroppedName = "merco_audit_dropped_total"

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
