package redis

import (
	"context"
	"time"

	otrace "github.com/opentracing/opentracing-go"
)

const (
	healthCheckKey   = "health_check_test"
	healthCheckValue = "test_value"
	healthCheckTTL   = 10 * time.Second
)

// HealthCheck pings the server and round trips a short lived probe key. It
// does not retry: it reports whether the store works right now.
func (s *Store) HealthCheck(ctx context.Context) bool {
	span, ctx := otrace.StartSpanFromContext(ctx, "redis.store.HealthCheck")
	defer span.Finish()
	log := s.log.FromContext(ctx)
	defer log.Close()

	start := time.Now()
	healthy := s.healthCheck(ctx, log)
	outcome := outcomeOK
	if !healthy {
		outcome = outcomeError
		span.SetTag("error", true)
	}
	s.observe(opHealth, outcome, start)
	return healthy
}

func (s *Store) healthCheck(ctx context.Context, log Logger) bool {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		log.Infof("HealthCheck: %v", err)
		return false
	}
	defer s.pool.Release(conn)

	if !s.pool.Probe(ctx, conn) {
		return false
	}

	c := conn.Client()
	fail := func(step string, err error) bool {
		log.Infof("HealthCheck: %s: %v", step, err)
		if IsConnectionFailure(err) {
			conn.MarkBroken()
			s.pool.RecordConnectionError()
		}
		return false
	}

	if err := c.Set(ctx, healthCheckKey, healthCheckValue, healthCheckTTL).Err(); err != nil {
		return fail("set", err)
	}
	value, err := c.Get(ctx, healthCheckKey).Result()
	if err != nil {
		return fail("get", err)
	}
	if err := c.Del(ctx, healthCheckKey).Err(); err != nil {
		return fail("del", err)
	}
	if value != healthCheckValue {
		log.Infof("HealthCheck: read back %q", value)
		return false
	}
	return true
}
