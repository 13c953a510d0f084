package redis

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PoolMetrics is a point in time snapshot of pool activity.
type PoolMetrics struct {
	CreatedTotal     int64
	ReusedTotal      int64
	CurrentSize      int
	MaxSize          int
	InUse            int
	Idle             int
	Acquires         int64
	Releases         int64
	Discarded        int64
	ConnectionErrors int64
	Exhausted        int64
}

// ReuseRate is the fraction of acquires served by an idle connection.
func (m PoolMetrics) ReuseRate() float64 {
	if m.Acquires == 0 {
		return 0
	}
	return float64(m.ReusedTotal) / float64(m.Acquires)
}

type poolSnapshotter interface {
	Metrics() PoolMetrics
}

// PoolCollector exports pool snapshots to prometheus on each scrape.
type PoolCollector struct {
	pool poolSnapshotter

	created    *prometheus.Desc
	reused     *prometheus.Desc
	size       *prometheus.Desc
	maxSize    *prometheus.Desc
	inUse      *prometheus.Desc
	idle       *prometheus.Desc
	discarded  *prometheus.Desc
	connErrors *prometheus.Desc
	exhausted  *prometheus.Desc
}

func NewPoolCollector(namespace string, pool *Pool) *PoolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "redis_pool", name), help, nil, nil)
	}
	return &PoolCollector{
		pool:       pool,
		created:    desc("connections_created_total", "Connections opened by the pool."),
		reused:     desc("connections_reused_total", "Acquires served by an idle connection."),
		size:       desc("connections", "Live connections, leased or idle."),
		maxSize:    desc("max_connections", "Configured pool capacity."),
		inUse:      desc("connections_in_use", "Connections currently leased."),
		idle:       desc("connections_idle", "Connections waiting for reuse."),
		discarded:  desc("connections_discarded_total", "Connections closed by the pool."),
		connErrors: desc("connection_errors_total", "Dial and probe failures."),
		exhausted:  desc("exhausted_total", "Acquires that timed out waiting for capacity."),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.created
	ch <- c.reused
	ch <- c.size
	ch <- c.maxSize
	ch <- c.inUse
	ch <- c.idle
	ch <- c.discarded
	ch <- c.connErrors
	ch <- c.exhausted
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	m := c.pool.Metrics()
	counter := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge := func(d *prometheus.Desc, v int) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
	}
	counter(c.created, m.CreatedTotal)
	counter(c.reused, m.ReusedTotal)
	gauge(c.size, m.CurrentSize)
	gauge(c.maxSize, m.MaxSize)
	gauge(c.inUse, m.InUse)
	gauge(c.idle, m.Idle)
	counter(c.discarded, m.Discarded)
	counter(c.connErrors, m.ConnectionErrors)
	counter(c.exhausted, m.Exhausted)
}
