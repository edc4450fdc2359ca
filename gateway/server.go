package gateway

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("gateway: server closed")

// ServerConfig configures a Server. Zero values fall back to sane
// defaults in NewServer.
type ServerConfig struct {
	ServerSoftware string
	ServerName     string

	// MaxConnections limits the number of simultaneously served
	// connections. Zero means unlimited, matching the teacher's original
	// unbounded accept loop.
	MaxConnections int64

	App     Application
	Logger  *zap.Logger
	Metrics *Metrics
}

// Server owns a listener's accept loop (spec §4.G): accept connections,
// capture the date string once per accept, and hand each connection to a
// Worker on its own goroutine.
type Server struct {
	cfg ServerConfig

	wk *Worker

	mu        sync.Mutex
	listeners map[net.Listener]bool
	closed    bool

	sem *semaphore.Weighted
}

// NewServer builds a Server ready to Serve one or more listeners.
func NewServer(cfg ServerConfig) *Server {
	if cfg.ServerSoftware == "" {
		cfg.ServerSoftware = "greenhttp"
	}
	if cfg.Logger == nil {
		cfg.Logger = NopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics()
	}

	s := &Server{
		cfg:       cfg,
		listeners: make(map[net.Listener]bool),
	}
	if cfg.MaxConnections > 0 {
		s.sem = semaphore.NewWeighted(cfg.MaxConnections)
	}
	return s
}

// Serve accepts connections on lsn until it errors or Shutdown is called,
// dispatching each to a Worker on its own goroutine. It always returns a
// non-nil error; after Shutdown that error is ErrServerClosed (spec §4.G).
//
// The accept retry backoff (5ms doubling to a 1s cap on temporary accept
// errors) is grounded on the teacher's Server.Serve in
// src/http/server.go.
func (s *Server) Serve(lsn net.Listener) error {
	defer lsn.Close()

	if !s.track(lsn, true) {
		return ErrServerClosed
	}
	defer s.track(lsn, false)

	_, port, _ := net.SplitHostPort(lsn.Addr().String())
	defaultEnv := NewDefaultEnv(port, lsn.Addr().String(), s.cfg.ServerName, s.cfg.ServerSoftware, false, NewErrorsSink(zapErrorsWriter{s.cfg.Logger}))

	wk := &Worker{
		Scheduler:      defaultScheduler,
		App:            s.cfg.App,
		DefaultEnv:     defaultEnv,
		ServerSoftware: s.cfg.ServerSoftware,
		Logger:         s.cfg.Logger,
		Metrics:        s.cfg.Metrics,
	}

	group, ctx := errgroup.WithContext(context.Background())
	var tempDelay time.Duration

	for {
		conn, err := lsn.Accept()
		if err != nil {
			if s.isClosed() {
				_ = group.Wait()
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Temporary() { //nolint:staticcheck // matches the teacher's Server.Serve backoff check
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				s.cfg.Logger.Debug("accept-error-retrying", zap.Error(err), zap.Duration("delay", tempDelay))
				time.Sleep(tempDelay)
				continue
			}
			_ = group.Wait()
			return err
		}
		tempDelay = 0

		if s.sem != nil {
			if err := s.sem.Acquire(ctx, 1); err != nil {
				conn.Close()
				continue
			}
		}

		dateString := HTTPDate(time.Now().Unix())
		remoteAddr := conn.RemoteAddr().String()
		remoteHost, remotePort, _ := net.SplitHostPort(remoteAddr)

		group.Go(func() error {
			defer func() {
				if s.sem != nil {
					s.sem.Release(1)
				}
			}()
			wk.Serve(conn, remoteAddr, remoteHost, remotePort, dateString)
			return nil
		})
	}
}

// Shutdown closes all tracked listeners; in-flight connections are left
// to finish on their own. It does not wait for worker goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	var err error
	for ln := range s.listeners {
		if cerr := ln.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	s.mu.Unlock()
	return err
}

func (s *Server) track(ln net.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.closed {
			return false
		}
		s.listeners[ln] = true
		return true
	}
	delete(s.listeners, ln)
	return true
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// zapErrorsWriter adapts a *zap.Logger to io.Writer for use as the
// listener-wide wsgi.errors sink.
type zapErrorsWriter struct{ log *zap.Logger }

func (w zapErrorsWriter) Write(p []byte) (int, error) {
	w.log.Error(string(p))
	return len(p), nil
}
