package repository

import "github.com/prometheus/client_golang/prometheus"

var (
	poolConnsDesc = prometheus.NewDesc(
		"rinha_pool_connections",
		"Physical connections in the pool by state",
		[]string{"state"}, nil,
	)
	poolMaxDesc = prometheus.NewDesc(
		"rinha_pool_max_connections",
		"Configured pool size",
		nil, nil,
	)
	poolConnectsDesc = prometheus.NewDesc(
		"rinha_pool_connects_total",
		"Physical connections opened and initialized",
		nil, nil,
	)
	poolEvictionsDesc = prometheus.NewDesc(
		"rinha_pool_evictions_total",
		"Broken or invalid connections removed from the pool",
		nil, nil,
	)
	poolAcquiresDesc = prometheus.NewDesc(
		"rinha_pool_acquires_total",
		"Successful connection acquisitions",
		nil, nil,
	)
	poolEmptyWaitsDesc = prometheus.NewDesc(
		"rinha_pool_empty_acquires_total",
		"Acquisitions that had to wait for a connection",
		nil, nil,
	)
	poolCanceledDesc = prometheus.NewDesc(
		"rinha_pool_canceled_acquires_total",
		"Acquisitions abandoned by timeout or cancellation",
		nil, nil,
	)
)

type poolCollector struct {
	pool *ConnPool
}

// NewPoolCollector exposes pool statistics to Prometheus.
func NewPoolCollector(pool *ConnPool) prometheus.Collector {
	return &poolCollector{pool: pool}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- poolConnsDesc
	ch <- poolMaxDesc
	ch <- poolConnectsDesc
	ch <- poolEvictionsDesc
	ch <- poolAcquiresDesc
	ch <- poolEmptyWaitsDesc
	ch <- poolCanceledDesc
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.Stat()
	ch <- prometheus.MustNewConstMetric(poolConnsDesc, prometheus.GaugeValue, float64(s.Idle), "idle")
	ch <- prometheus.MustNewConstMetric(poolConnsDesc, prometheus.GaugeValue, float64(s.Acquired), "acquired")
	ch <- prometheus.MustNewConstMetric(poolConnsDesc, prometheus.GaugeValue, float64(s.Constructing), "constructing")
	ch <- prometheus.MustNewConstMetric(poolMaxDesc, prometheus.GaugeValue, float64(s.Max))
	ch <- prometheus.MustNewConstMetric(poolConnectsDesc, prometheus.CounterValue, float64(s.Connects))
	ch <- prometheus.MustNewConstMetric(poolEvictionsDesc, prometheus.CounterValue, float64(s.Evictions))
	ch <- prometheus.MustNewConstMetric(poolAcquiresDesc, prometheus.CounterValue, float64(s.Acquires))
	ch <- prometheus.MustNewConstMetric(poolEmptyWaitsDesc, prometheus.CounterValue, float64(s.EmptyWaits))
	ch <- prometheus.MustNewConstMetric(poolCanceledDesc, prometheus.CounterValue, float64(s.Canceled))
}
