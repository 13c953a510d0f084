package redis

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecore/go-marketstore-common/logger"
)

func TestPoolCollector(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	d := &fakeDialer{}
	p := newTestPool(t, d, 3, 50*time.Millisecond)
	ctx := execCtx("a")

	c1, err := p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(c1)
	c2, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer p.Release(c2)

	c := NewPoolCollector("marketstore", p)
	assert.Equal(t, 9, testutil.CollectAndCount(c))

	expected := `
# HELP marketstore_redis_pool_connections_created_total Connections opened by the pool.
# TYPE marketstore_redis_pool_connections_created_total counter
marketstore_redis_pool_connections_created_total 1
# HELP marketstore_redis_pool_connections_reused_total Acquires served by an idle connection.
# TYPE marketstore_redis_pool_connections_reused_total counter
marketstore_redis_pool_connections_reused_total 1
# HELP marketstore_redis_pool_connections_in_use Connections currently leased.
# TYPE marketstore_redis_pool_connections_in_use gauge
marketstore_redis_pool_connections_in_use 1
# HELP marketstore_redis_pool_max_connections Configured pool capacity.
# TYPE marketstore_redis_pool_max_connections gauge
marketstore_redis_pool_max_connections 3
`
	err = testutil.CollectAndCompare(c, strings.NewReader(expected),
		"marketstore_redis_pool_connections_created_total",
		"marketstore_redis_pool_connections_reused_total",
		"marketstore_redis_pool_connections_in_use",
		"marketstore_redis_pool_max_connections",
	)
	assert.NoError(t, err)
}

func TestPoolMetricsReuseRateWithoutAcquires(t *testing.T) {
	assert.Zero(t, PoolMetrics{}.ReuseRate())
}
