package prometheus

import (
	"github.com/MrEthical07/authkit"
	"github.com/MrEthical07/authkit/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus"
)

// Source is what the collector reads. *authkit.Engine satisfies it.
type Source interface {
	MetricsSnapshot() authkit.MetricsSnapshot
	AuditDropped() uint64
}

type counterDesc struct {
	id   authkit.MetricID
	desc *prometheus.Desc
}

type histogramDesc struct {
	id   authkit.MetricID
	desc *prometheus.Desc
}

// Collector renders a Source snapshot on each scrape.
type Collector struct {
	source       Source
	counters     []counterDesc
	histograms   []histogramDesc
	auditDropped *prometheus.Desc
	bounds       []float64
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector over source. constLabels are attached to
// every series.
func NewCollector(source Source, constLabels prometheus.Labels) *Collector {
	c := &Collector{
		source:       source,
		counters:     make([]counterDesc, 0, len(internaldefs.CounterDefs)),
		histograms:   make([]histogramDesc, 0, len(internaldefs.HistogramDefs)),
		auditDropped: prometheus.NewDesc(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, nil, constLabels),
		bounds:       internaldefs.UpperBounds(),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, counterDesc{
			id:   def.ID,
			desc: prometheus.NewDesc(def.Name, def.Help, nil, constLabels),
		})
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms = append(c.histograms, histogramDesc{
			id:   def.ID,
			desc: prometheus.NewDesc(def.Name, def.Help, nil, constLabels),
		})
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
	for _, hd := range c.histograms {
		ch <- hd.desc
	}
	ch <- c.auditDropped
}

// Collect implements prometheus.Collector. Disabled engine metrics produce
// zero-valued series.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		return
	}
	snapshot := c.source.MetricsSnapshot()

	for _, cd := range c.counters {
		ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, float64(snapshot.Counters[cd.id]))
	}

	for _, hd := range c.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[hd.id]))
		buckets := make(map[float64]uint64, len(c.bounds))
		for i, le := range c.bounds {
			buckets[le] = cumulative[i]
		}
		// the snapshot keeps no sum
		ch <- prometheus.MustNewConstHistogram(hd.desc, cumulative[internaldefs.BucketCount-1], 0, buckets)
	}

	ch <- prometheus.MustNewConstMetric(c.auditDropped, prometheus.CounterValue, float64(c.source.AuditDropped()))
}
