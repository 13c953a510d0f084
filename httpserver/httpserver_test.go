package httpserver

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecore/go-marketstore-common/logger"
)

func TestServerShutdownIsClean(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	s := New(logger.Sugar, "Metrics", "0", http.NotFoundHandler(), WithReadHeaderTimeout(time.Second))
	assert.Equal(t, "metrics:0", s.String())
	assert.Equal(t, time.Second, s.ReadHeaderTimeout)

	done := make(chan error, 1)
	go func() { done <- s.Listen() }()

	// give ListenAndServe a moment to bind
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Shutdown(context.Background()))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
