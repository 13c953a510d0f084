package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tradecore/go-marketstore-common/logger"
)

type Logger = logger.Logger

const (
	defaultReadHeaderTimeout = 5 * time.Second
)

// Server is an http server with a logger and a name. It satisfies
// startup.Listener.
type Server struct {
	http.Server
	log  Logger
	name string
}

type ServerOption func(*Server)

func WithReadHeaderTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.ReadHeaderTimeout = d
	}
}

func New(log Logger, name string, port string, handler http.Handler, opts ...ServerOption) *Server {
	s := &Server{
		Server: http.Server{
			Addr:              ":" + port,
			Handler:           handler,
			ReadHeaderTimeout: defaultReadHeaderTimeout,
		},
		name: strings.ToLower(name),
	}
	for _, opt := range opts {
		opt(s)
	}
	// http.Server has an internal mutex so a reference is returned
	s.log = log.WithIndex("httpserver", s.String())
	return s
}

func (s *Server) String() string {
	// No logging here please
	return fmt.Sprintf("%s%s", s.name, s.Addr)
}

// Listen serves until Shutdown. A clean shutdown is not an error.
func (s *Server) Listen() error {
	s.log.Infof("Listen")
	err := s.Server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server terminated: %w", s, err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Infof("Shutdown")
	err := s.Server.Shutdown(ctx)
	if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
