package startup

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 5 * time.Second

// Listener is anything that runs until shut down: an HTTP server, a
// background poller.
type Listener interface {
	Listen() error
	Shutdown(context.Context) error
}

// Listeners runs a set of Listeners together. The first one to fail, or a
// SIGINT/SIGTERM, shuts all of them down.
type Listeners struct {
	name            string
	log             Logger
	listeners       []Listener
	shutdownTimeout time.Duration
}

type ListenersOption func(*Listeners)

func WithListener(h Listener) ListenersOption {
	return func(l *Listeners) {
		if h != nil {
			l.listeners = append(l.listeners, h)
		}
	}
}

func WithShutdownTimeout(d time.Duration) ListenersOption {
	return func(l *Listeners) {
		l.shutdownTimeout = d
	}
}

func NewListeners(log Logger, name string, opts ...ListenersOption) Listeners {
	l := Listeners{
		log:             log,
		name:            strings.ToLower(name),
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(&l)
	}
	return l
}

func (l *Listeners) String() string {
	return l.name
}

// Listen blocks until ctx is done, a signal arrives or a listener fails.
func (l *Listeners) Listen(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, errCtx := errgroup.WithContext(ctx)
	for _, h := range l.listeners {
		h := h
		g.Go(h.Listen)
	}

	g.Go(func() error {
		<-errCtx.Done()
		l.log.Infof("%s: shutting down listeners", l)
		return l.Shutdown()
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (l *Listeners) Shutdown() error {
	var err error
	for _, h := range l.listeners {
		ctx, cancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
		if e := h.Shutdown(ctx); e != nil {
			err = multierr.Append(err, fmt.Errorf("cannot shutdown %v: %w", h, e))
		}
		cancel()
	}
	return err
}
