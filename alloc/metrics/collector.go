// Package metrics exports allocator statistics to Prometheus.
//
// A Collector reads Stats from each registered allocator at scrape time. The
// allocators are not safe for concurrent use, so callers must make sure no
// allocator is mutated while the registry is being gathered, typically by
// scraping from the goroutine that owns them or behind their own lock.
package metrics

import (
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshuapare/memkit/alloc"
)

// Collector implements prometheus.Collector over named allocators.
type Collector struct {
	mu      sync.Mutex
	sources map[string]alloc.StatsReporter

	capacity *prometheus.Desc
	used     *prometheus.Desc
	allocs   *prometheus.Desc
	frees    *prometheus.Desc
	rejected *prometheus.Desc
	grows    *prometheus.Desc
}

// NewCollector returns an empty Collector. constLabels are attached to every metric.
func NewCollector(constLabels prometheus.Labels) *Collector {
	labels := []string{"allocator", "kind"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("memkit", "allocator", name), help, labels, constLabels)
	}
	return &Collector{
		sources:  make(map[string]alloc.StatsReporter),
		capacity: desc("capacity_bytes", "Bytes of backing memory held by the allocator."),
		used:     desc("used_bytes", "Bytes handed out by the allocator, padding and headers included."),
		allocs:   desc("allocs_total", "Successful allocations."),
		frees:    desc("frees_total", "Accepted frees."),
		rejected: desc("rejected_frees_total", "Frees refused as invalid."),
		grows:    desc("grows_total", "Backing buffer growths or regions mapped."),
	}
}

// Register adds an allocator under name. Names must be unique.
func (c *Collector) Register(name string, src alloc.StatsReporter) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sources[name]; ok {
		return fmt.Errorf("metrics: allocator %q already registered", name)
	}
	c.sources[name] = src
	return nil
}

// Unregister removes the allocator registered under name.
func (c *Collector) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sources, name)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.capacity
	ch <- c.used
	ch <- c.allocs
	ch <- c.frees
	ch <- c.rejected
	ch <- c.grows
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.sources))
	for name := range c.sources {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		c.collectStats(ch, name, c.sources[name].Stats())
	}
}

func (c *Collector) collectStats(ch chan<- prometheus.Metric, name string, s alloc.Stats) {
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Capacity), name, s.Kind)
	ch <- prometheus.MustNewConstMetric(c.used, prometheus.GaugeValue, float64(s.Used), name, s.Kind)
	ch <- prometheus.MustNewConstMetric(c.allocs, prometheus.CounterValue, float64(s.Allocs), name, s.Kind)
	ch <- prometheus.MustNewConstMetric(c.frees, prometheus.CounterValue, float64(s.Frees), name, s.Kind)
	ch <- prometheus.MustNewConstMetric(c.rejected, prometheus.CounterValue, float64(s.RejectedFrees), name, s.Kind)
	ch <- prometheus.MustNewConstMetric(c.grows, prometheus.CounterValue, float64(s.Grows), name, s.Kind)
}
