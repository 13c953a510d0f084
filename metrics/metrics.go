package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tradecore/go-marketstore-common/environment"
)

const (
	Namespace = "marketstore"
)

// StoreOperationsMetric counts store operations by operation and outcome.
func StoreOperationsMetric() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "store_operations_total",
			Help:      "Total number of store operations by service, operation and outcome.",
		},
		[]string{"service", "operation", "outcome"},
	)
}

// StoreLatencyMetric measures an SLA "95% of reads complete in less than
// 10ms". Retries and backoff are included. Bucket limits are in seconds.
func StoreLatencyMetric() *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "store_operation_latency",
			Help:      "Histogram of time to complete a store operation.",
			Buckets:   []float64{.001, .0025, .005, .01, .02, .04, .08, .16, .32, 1, 2.5},
		},
		[]string{"service", "operation", "outcome"},
	)
}

// Metrics. Only those metrics specified are returned. The GoCollector and
// ProcessCollector metrics are omitted by using our own registry.
type Metrics struct {
	serviceName string
	port        string
	registry    *prometheus.Registry
	log         Logger
}

func New(log Logger, serviceName string) *Metrics {
	return &Metrics{
		log:         log,
		serviceName: strings.ToLower(serviceName),
		registry:    prometheus.NewRegistry(),
	}
}

// NewFromEnvironment returns nil unless USE_METRICS is truthy. All methods
// tolerate a nil *Metrics.
func NewFromEnvironment(log Logger, serviceName string) *Metrics {
	if !environment.GetTruthy("USE_METRICS") {
		return nil
	}
	m := New(log, serviceName)
	m.port = environment.GetOrFatal("METRICS_PORT")
	return m
}

func (m *Metrics) String() string {
	return m.serviceName
}

func (m *Metrics) Register(cs ...prometheus.Collector) {
	if m == nil {
		return
	}
	m.registry.MustRegister(cs...)
}

func (m *Metrics) Port() string {
	if m != nil {
		return m.port
	}
	return ""
}

// Gatherer exposes the registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// NewPromHandler - this handler is used on the endpoint that serves metrics endpoint
// which is provided on a different port to the service.
// The default InstrumentMetricHandler is suppressed.
func (m *Metrics) NewPromHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
