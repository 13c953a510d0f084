package redis

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/go-redis/redis/v8"

	"github.com/tradecore/go-marketstore-common/errhandling"
)

// server replies that clear up on their own
var transientReplyPrefixes = []string{
	"LOADING",
	"READONLY",
	"MASTERDOWN",
	"TRYAGAIN",
	"CLUSTERDOWN",
	"BUSY",
}

// IsTransient decides whether err is worth another attempt. Explicit marks
// from errhandling win. Anything not recognised is treated as fatal.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errhandling.IsFatal(err):
		return false
	case errhandling.IsTransient(err):
		return true
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrPoolClosed):
		return false
	case errors.Is(err, ErrPoolExhausted):
		return true
	case errors.Is(err, redis.Nil):
		return false
	}

	var reply redis.Error
	if errors.As(err, &reply) {
		msg := reply.Error()
		for _, prefix := range transientReplyPrefixes {
			if strings.HasPrefix(msg, prefix) {
				return true
			}
		}
		return false
	}

	return IsConnectionFailure(err) || errors.Is(err, context.DeadlineExceeded)
}

// IsConnectionFailure reports errors that leave the connection itself
// unusable. Connections that hit one are discarded rather than returned to
// the idle set.
func IsConnectionFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, redis.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
