// marketstore-monitor health checks the shared market data store and
// exports its pool and operation metrics.
package main

import (
	"context"
	"time"

	"github.com/tradecore/go-marketstore-common/environment"
	"github.com/tradecore/go-marketstore-common/httpserver"
	"github.com/tradecore/go-marketstore-common/metrics"
	"github.com/tradecore/go-marketstore-common/monitor"
	"github.com/tradecore/go-marketstore-common/readiness"
	"github.com/tradecore/go-marketstore-common/redis"
	"github.com/tradecore/go-marketstore-common/startup"
	"github.com/tradecore/go-marketstore-common/tracing"
)

const (
	serviceName = "marketstore-monitor"

	defaultPort     = "8080"
	defaultReady    = "/tmp/ready"
	defaultInterval = 15 * time.Second
)

func main() {
	port := environment.GetWithDefault("PORT", defaultPort)
	startup.Run(serviceName, "localhost:"+port, func(log startup.Logger) error {
		return run(log, port)
	})
}

func run(log startup.Logger, port string) error {
	cfg := redis.FromEnvOrFatal(log)

	m := metrics.New(log, serviceName)
	store, err := redis.NewStore(log, cfg, redis.WithObserver(metrics.NewStoreObservers(m)))
	if err != nil {
		return err
	}
	defer store.Close()
	m.Register(redis.NewPoolCollector(metrics.Namespace, store.Pool()))

	marker := readiness.NewMarker(log, environment.GetWithDefault("READY_FILE", defaultReady))
	mon := monitor.New(log, store, marker,
		environment.GetDurationWithDefault("HEALTH_CHECK_INTERVAL", defaultInterval))

	server := httpserver.New(log, serviceName, port, tracing.HTTPMiddleware(mon.Handler(m.NewPromHandler())))

	listeners := startup.NewListeners(log, serviceName,
		startup.WithListener(server),
		startup.WithListener(mon),
	)
	return listeners.Listen(context.Background())
}
