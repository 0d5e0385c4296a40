package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() goGate.MetricsSnapshot
	AuditDropped() uint64
}

// Collector is a [prometheus.Collector] that reads the engine's counters on
// every scrape. It keeps no state of its own.
type Collector struct {
	source     metricsSource
	counters   []counterDesc
	histograms []histogramDesc
	dropped    *prometheus.Desc
}

type counterDesc struct {
	id   goGate.MetricID
	desc *prometheus.Desc
}

type histogramDesc struct {
	id   goGate.MetricID
	desc *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector reading from engine.
func NewCollector(engine *goGate.Engine) *Collector {
	return NewCollectorFromSource(engine)
}

// NewCollectorFromSource returns a collector reading from any value that
// exposes a metrics snapshot and an audit drop count.
func NewCollectorFromSource(source metricsSource) *Collector {
	c := &Collector{
		source:     source,
		counters:   make([]counterDesc, 0, len(internaldefs.CounterDefs)),
		histograms: make([]histogramDesc, 0, len(internaldefs.HistogramDefs)),
		dropped:    prometheus.NewDesc(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, nil, nil),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, counterDesc{
			id:   def.ID,
			desc: prometheus.NewDesc(def.Name, def.Help, nil, nil),
		})
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms = append(c.histograms, histogramDesc{
			id:   def.ID,
			desc: prometheus.NewDesc(def.Name, def.Help, nil, nil),
		})
	}
	return c
}

// Describe implements [prometheus.Collector].
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d.desc
	}
	for _, d := range c.histograms {
		ch <- d.desc
	}
	ch <- c.dropped
}

// Collect implements [prometheus.Collector]. Metrics missing from the
// snapshot (metrics disabled) are not emitted.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		return
	}

	snapshot := c.source.MetricsSnapshot()
	for _, d := range c.counters {
		value, ok := snapshot.Counters[d.id]
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(d.desc, prometheus.CounterValue, float64(value))
	}

	for _, d := range c.histograms {
		raw, ok := snapshot.Histograms[d.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for i, le := range internaldefs.HistogramUpperBounds {
			buckets[le] = cumulative[i]
		}
		// The engine does not track a sum.
		ch <- prometheus.MustNewConstHistogram(d.desc, cumulative[len(cumulative)-1], 0, buckets)
	}

	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(c.source.AuditDropped()))
}

// Exporter owns a private registry holding a [Collector] and serves it.
type Exporter struct {
	registry *prometheus.Registry
}

// NewExporter registers a collector for engine in a fresh registry. Extra
// collectors, for example process or Go runtime collectors, may be passed
// alongside.
func NewExporter(engine *goGate.Engine, extra ...prometheus.Collector) (*Exporter, error) {
	return NewExporterFromSource(engine, extra...)
}

// NewExporterFromSource is [NewExporter] for a custom source.
func NewExporterFromSource(source metricsSource, extra ...prometheus.Collector) (*Exporter, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollectorFromSource(source)); err != nil {
		return nil, err
	}
	for _, c := range extra {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return &Exporter{registry: reg}, nil
}

// Registry exposes the registry for tests and for mounting elsewhere.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
