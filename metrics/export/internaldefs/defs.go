package internaldefs

import (
	goGate "github.com/MrEthical07/goGate"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goGate.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   goGate.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter exported for [goGate.Engine.AuditDropped].
const AuditDroppedName = "gogate_audit_dropped_total"

// AuditDroppedHelp describes [AuditDroppedName].
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goGate.MetricGatePermit, Name: "gogate_gate_permit_total", Help: "Requests let through by the authorization gate."},
	{ID: goGate.MetricGateUnauthenticated, Name: "gogate_gate_unauthenticated_total", Help: "Requests rejected with 401 by the authorization gate."},
	{ID: goGate.MetricGateForbidden, Name: "gogate_gate_forbidden_total", Help: "Requests rejected with 403 by the authorization gate."},
	{ID: goGate.MetricGateBackendFailure, Name: "gogate_gate_backend_failure_total", Help: "Requests answered with 500 because the session store failed."},
	{ID: goGate.MetricResolveCacheHit, Name: "gogate_resolve_cache_hit_total", Help: "Session resolutions served from the in-process cache."},
	{ID: goGate.MetricResolveCacheMiss, Name: "gogate_resolve_cache_miss_total", Help: "Session resolutions that read Redis."},
	{ID: goGate.MetricSignInSuccess, Name: "gogate_sign_in_success_total", Help: "Successful sign-ins."},
	{ID: goGate.MetricSignInFailure, Name: "gogate_sign_in_failure_total", Help: "Rejected sign-ins."},
	{ID: goGate.MetricSignInRateLimited, Name: "gogate_sign_in_rate_limited_total", Help: "Sign-ins refused by the throttle."},
	{ID: goGate.MetricSignUpSuccess, Name: "gogate_sign_up_success_total", Help: "Created accounts."},
	{ID: goGate.MetricSignUpDuplicate, Name: "gogate_sign_up_duplicate_total", Help: "Sign-ups rejected for an existing email."},
	{ID: goGate.MetricSignOut, Name: "gogate_sign_out_total", Help: "Single-session sign-outs."},
	{ID: goGate.MetricSignOutAll, Name: "gogate_sign_out_all_total", Help: "Revoke-all operations."},
	{ID: goGate.MetricSessionCreated, Name: "gogate_session_created_total", Help: "Created sessions."},
	{ID: goGate.MetricSessionInvalidated, Name: "gogate_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: goGate.MetricRoleChange, Name: "gogate_role_change_total", Help: "Successful role changes."},
	{ID: goGate.MetricPasswordResetRequest, Name: "gogate_password_reset_request_total", Help: "Accepted password reset requests."},
	{ID: goGate.MetricPasswordResetConfirmSuccess, Name: "gogate_password_reset_confirm_success_total", Help: "Completed password resets."},
	{ID: goGate.MetricPasswordResetConfirmFailure, Name: "gogate_password_reset_confirm_failure_total", Help: "Rejected password reset confirmations."},
	{ID: goGate.MetricPasswordResetAttemptsExceeded, Name: "gogate_password_reset_attempts_exceeded_total", Help: "Reset tokens burned by the attempt cap."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goGate.MetricResolveLatency, Name: "gogate_resolve_latency_seconds", Help: "Session resolution latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine
// keeps one more overflow bucket.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, overflow last, for exporters that
// flatten buckets into separate instruments.
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

// NormalizeBuckets pads or truncates raw to the engine's 8 buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals. The last
// element is the sample count.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
