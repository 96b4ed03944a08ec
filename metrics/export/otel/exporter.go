package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/authkit"
	"github.com/MrEthical07/authkit/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is what the exporter reads. *authkit.Engine satisfies it.
type Source interface {
	MetricsSnapshot() authkit.MetricsSnapshot
	AuditDropped() uint64
}

// series binds one engine counter to the attribute set it is reported under.
type series struct {
	id    authkit.MetricID
	attrs attribute.Set
}

type family struct {
	name   string
	unit   string
	desc   string
	series []series
}

func with(id authkit.MetricID, kv ...attribute.KeyValue) series {
	return series{id: id, attrs: attribute.NewSet(kv...)}
}

var (
	stage   = attribute.Key("stage")
	outcome = attribute.Key("outcome")
	scope   = attribute.Key("scope")
	factor  = attribute.Key("factor")
	event   = attribute.Key("event")
)

// families groups the engine counters by what they count, so dashboards
// slice one instrument by attribute instead of joining twenty.
var families = []family{
	{
		name: "authkit.logins", unit: "{login}", desc: "Login attempts by stage and outcome.",
		series: []series{
			with(authkit.MetricLoginSuccess, stage.String("password"), outcome.String("success")),
			with(authkit.MetricLoginFailure, stage.String("password"), outcome.String("failure")),
			with(authkit.MetricMFARequired, stage.String("password"), outcome.String("mfa_required")),
			with(authkit.MetricMFALoginSuccess, stage.String("mfa"), outcome.String("success")),
			with(authkit.MetricMFALoginFailure, stage.String("mfa"), outcome.String("failure")),
		},
	},
	{
		name: "authkit.refresh.rotations", unit: "{rotation}", desc: "Refresh token rotations by outcome.",
		series: []series{
			with(authkit.MetricRefreshSuccess, outcome.String("success")),
			with(authkit.MetricRefreshFailure, outcome.String("failure")),
			with(authkit.MetricRefreshReuseDetected, outcome.String("reuse_detected")),
		},
	},
	{
		name: "authkit.tokens.issued", unit: "{pair}", desc: "Access and refresh token pairs issued.",
		series: []series{with(authkit.MetricTokenIssued)},
	},
	{
		name: "authkit.revocations", unit: "{revocation}", desc: "Refresh token revocations by scope.",
		series: []series{
			with(authkit.MetricRevoke, scope.String("token")),
			with(authkit.MetricRevokeAll, scope.String("user")),
		},
	},
	{
		name: "authkit.mfa.events", unit: "{event}", desc: "MFA factor lifecycle and verification events.",
		series: []series{
			with(authkit.MetricTOTPSetup, factor.String("totp"), event.String("setup")),
			with(authkit.MetricTOTPActivated, factor.String("totp"), event.String("activated")),
			with(authkit.MetricTOTPSuccess, factor.String("totp"), event.String("accepted")),
			with(authkit.MetricTOTPFailure, factor.String("totp"), event.String("rejected")),
			with(authkit.MetricTOTPReplay, factor.String("totp"), event.String("replay")),
			with(authkit.MetricRecoveryCodesGenerated, factor.String("recovery"), event.String("generated")),
			with(authkit.MetricRecoveryCodeUsed, factor.String("recovery"), event.String("accepted")),
			with(authkit.MetricRecoveryCodeFailed, factor.String("recovery"), event.String("rejected")),
			with(authkit.MetricFactorRevoked, factor.String("any"), event.String("revoked")),
		},
	},
}

type observedFamily struct {
	family
	counter metric.Int64ObservableCounter
}

// Exporter keeps the callback registration alive until Close.
type Exporter struct {
	source       Source
	registration metric.Registration

	families     []observedFamily
	latency      metric.Int64ObservableGauge
	latencyCount metric.Int64ObservableGauge
	latencyLE    []attribute.Set
	auditDropped metric.Int64ObservableCounter
}

// NewExporter registers the instruments on meter and one callback that reads
// a single snapshot from source per collection.
func NewExporter(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	var observables []metric.Observable

	for _, f := range families {
		c, err := meter.Int64ObservableCounter(f.name, metric.WithUnit(f.unit), metric.WithDescription(f.desc))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", f.name, err)
		}
		e.families = append(e.families, observedFamily{family: f, counter: c})
		observables = append(observables, c)
	}

	var err error
	e.latency, err = meter.Int64ObservableGauge("authkit.login.latency.bucket",
		metric.WithUnit("{login}"),
		metric.WithDescription("Password logins at or below the le bound, in seconds."))
	if err != nil {
		return nil, fmt.Errorf("create latency buckets: %w", err)
	}
	e.latencyCount, err = meter.Int64ObservableGauge("authkit.login.latency.count",
		metric.WithUnit("{login}"),
		metric.WithDescription("Password logins with a recorded latency."))
	if err != nil {
		return nil, fmt.Errorf("create latency count: %w", err)
	}
	for _, b := range internaldefs.UpperBounds() {
		e.latencyLE = append(e.latencyLE, attribute.NewSet(attribute.String("le", strconv.FormatFloat(b, 'g', -1, 64))))
	}
	e.latencyLE = append(e.latencyLE, attribute.NewSet(attribute.String("le", "+Inf")))
	observables = append(observables, e.latency, e.latencyCount)

	e.auditDropped, err = meter.Int64ObservableCounter("authkit.audit.dropped",
		metric.WithUnit("{event}"),
		metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	observables = append(observables, e.auditDropped)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()

	for _, f := range e.families {
		for _, s := range f.series {
			o.ObserveInt64(f.counter, int64(snap.Counters[s.id]), metric.WithAttributeSet(s.attrs))
		}
	}

	cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[authkit.MetricLoginLatency]))
	for i, le := range e.latencyLE {
		o.ObserveInt64(e.latency, int64(cumulative[i]), metric.WithAttributeSet(le))
	}
	o.ObserveInt64(e.latencyCount, int64(cumulative[len(cumulative)-1]))

	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
