package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreObservers records the count and latency of store operations.
type StoreObservers struct {
	operations  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	serviceName string
	log         Logger
}

// NewStoreObservers creates the store metrics and registers them with m. A
// nil m returns nil, which is safe to observe.
func NewStoreObservers(m *Metrics) *StoreObservers {
	if m == nil {
		return nil
	}
	o := &StoreObservers{
		log:         m.log,
		operations:  StoreOperationsMetric(),
		latency:     StoreLatencyMetric(),
		serviceName: m.serviceName,
	}
	m.Register(o.operations, o.latency)
	return o
}

func (o *StoreObservers) ObserveOperation(op, outcome string, elapsed time.Duration) {
	if o == nil {
		return
	}
	o.log.Debugf("Observe %s %s: %v", op, outcome, elapsed)
	o.operations.WithLabelValues(o.serviceName, op, outcome).Inc()
	o.latency.WithLabelValues(o.serviceName, op, outcome).Observe(elapsed.Seconds())
}
