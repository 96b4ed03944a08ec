// Package prometheus exposes engine counters as a prometheus.Collector.
//
// The collector reads Engine.MetricsSnapshot on every scrape; nothing is
// registered globally. Register it with the registry that backs /metrics:
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(authprom.NewCollector(engine))
package prometheus
