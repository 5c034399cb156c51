package internaldefs

import (
	"github.com/MrEthical07/deskauth"
)

// CounterDef names one broker counter.
type CounterDef struct {
	ID   deskauth.MetricID
	Name string
	Help string
}

// HistogramDef names one broker histogram.
type HistogramDef struct {
	ID   deskauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter exported for dispatcher drops.
const AuditDroppedName = "deskauth_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

var CounterDefs = []CounterDef{
	{ID: deskauth.MetricAuthenticateSuccess, Name: "deskauth_authenticate_success_total", Help: "Requests authenticated to a namespace-scoped credential."},
	{ID: deskauth.MetricAuthenticateFailure, Name: "deskauth_authenticate_failure_total", Help: "Requests rejected during authentication."},
	{ID: deskauth.MetricMissingToken, Name: "deskauth_missing_token_total", Help: "Requests without an access token."},
	{ID: deskauth.MetricTokenMalformed, Name: "deskauth_token_malformed_total", Help: "Tokens that could not be decoded."},
	{ID: deskauth.MetricTokenInvalidSignature, Name: "deskauth_token_invalid_signature_total", Help: "Tokens with a bad signature, audience or algorithm."},
	{ID: deskauth.MetricTokenExpired, Name: "deskauth_token_expired_total", Help: "Expired tokens."},
	{ID: deskauth.MetricCredentialUnavailable, Name: "deskauth_credential_unavailable_total", Help: "Identities without a usable cluster credential."},
	{ID: deskauth.MetricRetargetFailure, Name: "deskauth_retarget_failure_total", Help: "Credentials that could not be retargeted."},
	{ID: deskauth.MetricSwitchSuccess, Name: "deskauth_switch_success_total", Help: "Successful workspace switches."},
	{ID: deskauth.MetricSwitchDenied, Name: "deskauth_switch_denied_total", Help: "Workspace switches denied for lack of membership."},
	{ID: deskauth.MetricSwitchFailure, Name: "deskauth_switch_failure_total", Help: "Workspace switches that failed for other reasons."},
	{ID: deskauth.MetricSwitchRateLimited, Name: "deskauth_switch_rate_limited_total", Help: "Workspace switches rejected by the per-user throttle."},
	{ID: deskauth.MetricTokensIssued, Name: "deskauth_tokens_issued_total", Help: "Issued access and app token pairs."},
	{ID: deskauth.MetricBillingTokenIssued, Name: "deskauth_billing_token_issued_total", Help: "Issued billing tokens."},
	{ID: deskauth.MetricResourceVerifySuccess, Name: "deskauth_resource_verify_success_total", Help: "Verified resource tokens."},
	{ID: deskauth.MetricResourceVerifyFailure, Name: "deskauth_resource_verify_failure_total", Help: "Rejected resource tokens."},
	{ID: deskauth.MetricConfigError, Name: "deskauth_config_error_total", Help: "Operations that failed on missing configuration."},
}

var HistogramDefs = []HistogramDef{
	{ID: deskauth.MetricAuthenticateLatency, Name: "deskauth_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
}

// HistogramUpperBounds are the bucket upper bounds in seconds, excluding +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
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
