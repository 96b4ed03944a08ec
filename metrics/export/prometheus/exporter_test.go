package prometheus

import (
	"strings"
	"testing"

	"github.com/MrEthical07/authkit"
	"github.com/MrEthical07/authkit/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	snapshot authkit.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authkit.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                     { return f.dropped }

func TestCollectorRegistersCleanly(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(fakeSource{}, prometheus.Labels{"service": "authkit"})))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, len(internaldefs.CounterDefs)+len(internaldefs.HistogramDefs)+1, n)
}

func TestCollectorCountersAndHistogram(t *testing.T) {
	c := NewCollector(fakeSource{
		snapshot: authkit.MetricsSnapshot{
			Counters: map[authkit.MetricID]uint64{
				authkit.MetricLoginSuccess:         7,
				authkit.MetricRefreshReuseDetected: 2,
			},
			Histograms: map[authkit.MetricID][]uint64{
				authkit.MetricLoginLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 3,
	}, nil)

	expected := `
# HELP authkit_login_latency_seconds Password login latency.
# TYPE authkit_login_latency_seconds histogram
authkit_login_latency_seconds_bucket{le="0.005"} 1
authkit_login_latency_seconds_bucket{le="0.01"} 3
authkit_login_latency_seconds_bucket{le="0.025"} 6
authkit_login_latency_seconds_bucket{le="0.05"} 10
authkit_login_latency_seconds_bucket{le="0.1"} 15
authkit_login_latency_seconds_bucket{le="0.25"} 21
authkit_login_latency_seconds_bucket{le="0.5"} 28
authkit_login_latency_seconds_bucket{le="+Inf"} 36
authkit_login_latency_seconds_sum 0
authkit_login_latency_seconds_count 36
# HELP authkit_login_success_total Successful password logins.
# TYPE authkit_login_success_total counter
authkit_login_success_total 7
# HELP authkit_refresh_reuse_detected_total Refresh tokens presented after use.
# TYPE authkit_refresh_reuse_detected_total counter
authkit_refresh_reuse_detected_total 2
# HELP authkit_audit_dropped_total Audit events dropped because the audit queue was full or the caller gave up.
# TYPE authkit_audit_dropped_total counter
authkit_audit_dropped_total 3
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"authkit_login_latency_seconds",
		"authkit_login_success_total",
		"authkit_refresh_reuse_detected_total",
		"authkit_audit_dropped_total",
	))
}

func TestCollectorReadsMetricsSnapshot(t *testing.T) {
	cfg := authkit.DefaultConfig()
	cfg.Metrics.Enabled = true
	m := authkit.NewMetrics(cfg.Metrics)
	m.Inc(authkit.MetricRevoke)
	m.Inc(authkit.MetricRevoke)

	c := NewCollector(fakeSource{snapshot: m.Snapshot()}, nil)
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() == "authkit_revoke_total" {
			found = true
			assert.Equal(t, 2.0, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}
