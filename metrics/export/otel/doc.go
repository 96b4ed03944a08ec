// Package otel publishes engine counters through an OpenTelemetry Meter.
//
// Counters are grouped into a few instruments sliced by attribute:
// authkit.logins (stage, outcome), authkit.refresh.rotations (outcome),
// authkit.revocations (scope) and authkit.mfa.events (factor, event). Login
// latency is reported as cumulative bucket gauges keyed by le. One callback
// reads Engine.MetricsSnapshot per collection; the caller owns the
// MeterProvider.
package otel
