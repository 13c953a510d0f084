package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	opentracing "github.com/opentracing/opentracing-go"
)

func TestNewTestLevelRecords(t *testing.T) {
	New(TestLevel)
	defer OnExit()

	Sugar.WithServiceName("MarketStore").Infof("hello %s", "world")

	require.NotNil(t, Recorded)
	entries := Recorded.FilterMessage("hello world").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "marketstore", entries[0].ContextMap()[serviceNameKey])
}

func TestInfoRKeyValues(t *testing.T) {
	New(TestLevel)
	defer OnExit()

	Sugar.InfoR("addrs", "a", 7)

	entries := Recorded.FilterMessage("addrs").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "a", fields["arg0"])
	assert.EqualValues(t, 7, fields["arg1"])
}

// FromContext without a span must hand back the same logger
func TestFromContextNoSpan(t *testing.T) {
	New(NoopLevel)
	defer OnExit()

	log := Sugar.FromContext(context.Background())
	defer log.Close()
	assert.Same(t, Sugar, log)
}

// The mock tracer does not emit b3 headers so no trace id field is added,
// but the span path must not fail.
func TestFromContextWithSpan(t *testing.T) {
	New(NoopLevel)
	defer OnExit()

	tracer := mocktracer.New()
	span := tracer.StartSpan("op")
	defer span.Finish()
	ctx := opentracing.ContextWithSpan(context.Background(), span)

	log := Sugar.FromContext(ctx)
	defer log.Close()
	assert.NotNil(t, log)
}

func BenchmarkWrappedLogger_FromContext(b *testing.B) {
	New(NoopLevel)
	defer OnExit()

	ctx := context.Background()
	for n := 0; n < b.N; n++ {
		func(inctx context.Context) {
			log := Sugar.FromContext(inctx)
			defer log.Close()
		}(ctx)
	}
}

func TestWithOperationKeepsKeyCase(t *testing.T) {
	New(TestLevel)
	defer OnExit()

	Sugar.WithOperation("put", "Quotes:BTC-USD").Infof("write failed")

	entries := Recorded.FilterMessage("write failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "put", fields[operationKey])
	assert.Equal(t, "Quotes:BTC-USD", fields[storeKeyKey])
}

func TestWithFileAndConsole(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "store.log")

	New(InfoLevel, WithFile(filename), WithConsole())
	Sugar.Infof("quote stored")
	Sugar.Debugf("below info")
	OnExit()

	b, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Contains(t, string(b), "quote stored")
	assert.NotContains(t, string(b), "below info")
	// console encoding, not json
	assert.NotContains(t, string(b), "{")
}

func TestWithOptionsAddsFields(t *testing.T) {
	New(TestLevel)
	defer OnExit()

	Sugar.WithOptions(zap.Fields(zap.String("venue", "kalshi"))).Infof("tagged")

	entries := Recorded.FilterMessage("tagged").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "kalshi", entries[0].ContextMap()["venue"])
}
