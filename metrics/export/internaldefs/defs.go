package internaldefs

import (
	"github.com/MrEthical07/authkit"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for events the audit queue discarded.
const AuditDroppedName = "authkit_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Audit events dropped because the audit queue was full or the caller gave up."

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: authkit.MetricLoginSuccess, Name: "authkit_login_success_total", Help: "Successful password logins."},
	{ID: authkit.MetricLoginFailure, Name: "authkit_login_failure_total", Help: "Failed password logins."},
	{ID: authkit.MetricMFARequired, Name: "authkit_mfa_required_total", Help: "Logins that stopped at an MFA challenge."},
	{ID: authkit.MetricMFALoginSuccess, Name: "authkit_mfa_login_success_total", Help: "Login transactions completed with a second factor."},
	{ID: authkit.MetricMFALoginFailure, Name: "authkit_mfa_login_failure_total", Help: "Failed login transaction confirmations."},
	{ID: authkit.MetricTokenIssued, Name: "authkit_token_issued_total", Help: "Issued token pairs."},
	{ID: authkit.MetricRefreshSuccess, Name: "authkit_refresh_success_total", Help: "Successful refresh token rotations."},
	{ID: authkit.MetricRefreshFailure, Name: "authkit_refresh_failure_total", Help: "Rejected refresh token rotations."},
	{ID: authkit.MetricRefreshReuseDetected, Name: "authkit_refresh_reuse_detected_total", Help: "Refresh tokens presented after use."},
	{ID: authkit.MetricRevoke, Name: "authkit_revoke_total", Help: "Single refresh token revocations."},
	{ID: authkit.MetricRevokeAll, Name: "authkit_revoke_all_total", Help: "Per-user refresh token revocations."},
	{ID: authkit.MetricTOTPSetup, Name: "authkit_totp_setup_total", Help: "Pending TOTP factors created."},
	{ID: authkit.MetricTOTPActivated, Name: "authkit_totp_activated_total", Help: "TOTP factors activated."},
	{ID: authkit.MetricTOTPSuccess, Name: "authkit_totp_success_total", Help: "Accepted TOTP codes."},
	{ID: authkit.MetricTOTPFailure, Name: "authkit_totp_failure_total", Help: "Rejected TOTP codes."},
	{ID: authkit.MetricTOTPReplay, Name: "authkit_totp_replay_total", Help: "TOTP codes rejected as replays."},
	{ID: authkit.MetricRecoveryCodeUsed, Name: "authkit_recovery_code_used_total", Help: "Accepted recovery codes."},
	{ID: authkit.MetricRecoveryCodeFailed, Name: "authkit_recovery_code_failed_total", Help: "Rejected recovery codes."},
	{ID: authkit.MetricRecoveryCodesGenerated, Name: "authkit_recovery_codes_generated_total", Help: "Recovery code sets generated."},
	{ID: authkit.MetricFactorRevoked, Name: "authkit_factor_revoked_total", Help: "Revoked MFA factors."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authkit.MetricLoginLatency, Name: "authkit_login_latency_seconds", Help: "Password login latency."},
}

// BucketCount is the number of histogram buckets including +Inf.
const BucketCount = 8

// UpperBounds returns the finite bucket bounds in seconds.
func UpperBounds() []float64 {
	bounds := authkit.HistogramBounds()
	out := make([]float64, len(bounds))
	for i, b := range bounds {
		out[i] = b.Seconds()
	}
	return out
}

// BoundSuffixes names each bucket for exporters without native histograms.
var BoundSuffixes = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to BucketCount entries.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
