// Package monitor periodically health checks a store and serves its state
// over HTTP.
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tradecore/go-marketstore-common/logger"
	"github.com/tradecore/go-marketstore-common/readiness"
	"github.com/tradecore/go-marketstore-common/redis"
)

type Logger = logger.Logger

// Checker is the part of *redis.Store the monitor uses.
type Checker interface {
	HealthCheck(ctx context.Context) bool
	PoolMetrics() redis.PoolMetrics
}

// Monitor satisfies startup.Listener.
type Monitor struct {
	log      Logger
	store    Checker
	marker   *readiness.Marker
	interval time.Duration

	healthy atomic.Bool
	started atomic.Bool
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// New returns a monitor checking store every interval. marker may be nil.
func New(log Logger, store Checker, marker *readiness.Marker, interval time.Duration) *Monitor {
	return &Monitor{
		log:      log,
		store:    store,
		marker:   marker,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (m *Monitor) String() string {
	return "store-monitor"
}

func (m *Monitor) Healthy() bool {
	return m.healthy.Load()
}

// Listen checks immediately and then every interval until Shutdown.
func (m *Monitor) Listen() error {
	m.started.Store(true)
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check()
	for {
		select {
		case <-m.stop:
			return nil
		case <-ticker.C:
			m.Check()
		}
	}
}

// Check runs one health check and publishes the result.
func (m *Monitor) Check() bool {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()

	healthy := m.store.HealthCheck(ctx)
	if was := m.healthy.Swap(healthy); was != healthy {
		m.log.Infof("store healthy: %v", healthy)
	}
	if m.marker != nil {
		if err := m.marker.Set(healthy); err != nil {
			m.log.Infof("Check: %v", err)
		}
	}

	pm := m.store.PoolMetrics()
	m.log.Debugf("pool: %d/%d connections, %d in use, reuse rate %.2f",
		pm.CurrentSize, pm.MaxSize, pm.InUse, pm.ReuseRate())
	return healthy
}

func (m *Monitor) Shutdown(ctx context.Context) error {
	m.once.Do(func() { close(m.stop) })
	if m.started.Load() {
		select {
		case <-m.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.marker != nil {
		return m.marker.Set(false)
	}
	return nil
}

// Handler serves /healthz, /pool and, when metrics is not nil, /metrics.
func (m *Monitor) Handler(metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !m.Healthy() {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/pool", func(w http.ResponseWriter, r *http.Request) {
		pm := m.store.PoolMetrics()
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(poolReport{PoolMetrics: pm, ReuseRate: pm.ReuseRate()})
		if err != nil {
			m.log.FromContext(r.Context()).Infof("pool report: %v", err)
		}
	})
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	return mux
}

type poolReport struct {
	redis.PoolMetrics
	ReuseRate float64
}
