package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/authkit"
	"github.com/MrEthical07/authkit/metrics/export/internaldefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	counters map[authkit.MetricID]uint64
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() authkit.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	counters := make(map[authkit.MetricID]uint64, len(f.counters))
	for k, v := range f.counters {
		counters[k] = v
	}
	return authkit.MetricsSnapshot{
		Counters: counters,
		Histograms: map[authkit.MetricID][]uint64{
			authkit.MetricLoginLatency: {1, 1, 1, 1, 1, 1, 1, 1},
		},
	}
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

// point returns the value of the data point of name carrying exactly kv.
func point(rm metricdata.ResourceMetrics, name string, kv ...attribute.KeyValue) (int64, bool) {
	want := attribute.NewSet(kv...)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			var points []metricdata.DataPoint[int64]
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				points = data.DataPoints
			case metricdata.Gauge[int64]:
				points = data.DataPoints
			}
			for _, dp := range points {
				if dp.Attributes.Equals(&want) {
					return dp.Value, true
				}
			}
		}
	}
	return 0, false
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func TestExporterGroupsCountersByAttribute(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		counters: map[authkit.MetricID]uint64{
			authkit.MetricLoginSuccess:         3,
			authkit.MetricMFALoginFailure:      2,
			authkit.MetricRefreshReuseDetected: 1,
			authkit.MetricRevokeAll:            4,
			authkit.MetricTOTPReplay:           5,
			authkit.MetricRecoveryCodeUsed:     6,
		},
		dropped: 1,
	}

	exp, err := NewExporter(provider.Meter("authkit-test"), src)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, exp.Close()) })

	rm := collect(t, reader)
	cases := []struct {
		name string
		kv   []attribute.KeyValue
		want int64
	}{
		{"authkit.logins", []attribute.KeyValue{stage.String("password"), outcome.String("success")}, 3},
		{"authkit.logins", []attribute.KeyValue{stage.String("mfa"), outcome.String("failure")}, 2},
		{"authkit.logins", []attribute.KeyValue{stage.String("password"), outcome.String("failure")}, 0},
		{"authkit.refresh.rotations", []attribute.KeyValue{outcome.String("reuse_detected")}, 1},
		{"authkit.revocations", []attribute.KeyValue{scope.String("user")}, 4},
		{"authkit.mfa.events", []attribute.KeyValue{factor.String("totp"), event.String("replay")}, 5},
		{"authkit.mfa.events", []attribute.KeyValue{factor.String("recovery"), event.String("accepted")}, 6},
		{"authkit.audit.dropped", nil, 1},
		{"authkit.login.latency.bucket", []attribute.KeyValue{attribute.String("le", "0.005")}, 1},
		{"authkit.login.latency.bucket", []attribute.KeyValue{attribute.String("le", "+Inf")}, 8},
		{"authkit.login.latency.count", nil, 8},
	}
	for _, tc := range cases {
		v, ok := point(rm, tc.name, tc.kv...)
		require.True(t, ok, "%s %v", tc.name, tc.kv)
		assert.Equal(t, tc.want, v, "%s %v", tc.name, tc.kv)
	}
}

func TestEveryEngineCounterHasASeries(t *testing.T) {
	seen := map[authkit.MetricID]int{}
	for _, f := range families {
		for _, s := range f.series {
			seen[s.id]++
		}
	}
	for _, def := range internaldefs.CounterDefs {
		assert.Equal(t, 1, seen[def.ID], def.Name)
	}
}

func TestExporterRejectsNilArguments(t *testing.T) {
	_, provider := newReader()

	_, err := NewExporter(provider.Meter("authkit-test"), nil)
	assert.ErrorIs(t, err, ErrNilSource)

	_, err = NewExporter(nil, &fakeSource{})
	assert.ErrorIs(t, err, ErrNilMeter)
}

func TestExporterConcurrentCollect(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{counters: map[authkit.MetricID]uint64{}}

	exp, err := NewExporter(provider.Meter("authkit-test"), src)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, exp.Close()) })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.counters[authkit.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
