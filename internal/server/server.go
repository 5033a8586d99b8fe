package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
	"github.com/vibesql/shardmerge/internal/config"
	"github.com/vibesql/shardmerge/internal/metrics"
)

const (
	ReadTimeout       = 10 * time.Second
	WriteTimeout      = 30 * time.Second
	ShutdownTimeout   = 30 * time.Second
	IdleTimeout       = 30 * time.Second
	ReadHeaderTimeout = 5 * time.Second
)

// NewRouter mounts the handler's endpoints. Responses are gzip compressed
// when the client accepts it, and counted by m when m is not nil.
func NewRouter(h *Handler, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(requestLogging(logger))

	r.HandleFunc("/v1/query", h.HandleQuery).Methods(http.MethodPost)
	r.HandleFunc("/v1/update", h.HandleUpdate).Methods(http.MethodPost)
	r.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, NewMethodNotAllowedError(r.Method, r.URL.Path))
	})

	return m.Middleware(gzhttp.GzipHandler(r))
}

type Server struct {
	cfg        config.ServerConfig
	router     http.Handler
	logger     *slog.Logger
	httpServer *http.Server
	listener   net.Listener
	ready      atomic.Bool
}

func NewServer(cfg config.ServerConfig, router http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 1
	}
	return &Server{cfg: cfg, router: router, logger: logger}
}

func (s *Server) Start() error {
	addr := s.cfg.Address()

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", addr, err)
	}
	s.listener = listener

	limitListener := &limitedListener{
		Listener:  listener,
		semaphore: make(chan struct{}, s.cfg.MaxConnections),
	}

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
		ReadHeaderTimeout: ReadHeaderTimeout,
	}

	s.ready.Store(true)
	s.logger.Info("HTTP server listening", "addr", listener.Addr().String(), "max_connections", s.cfg.MaxConnections)

	go func() {
		if err := s.httpServer.Serve(limitListener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	return nil
}

func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Shutting down HTTP server gracefully")
	s.ready.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

func (s *Server) IsReady() bool {
	return s.ready.Load()
}

func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Address()
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then stops the server
func (s *Server) WaitForShutdown() {
	if !s.IsReady() {
		s.logger.Warn("WaitForShutdown called but server not started")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	s.logger.Info("Received signal", "signal", sig.String())

	if err := s.Stop(); err != nil {
		s.logger.Error("Failed to stop server", "error", err)
	}
}

// limitedListener blocks Accept while cap(semaphore) connections are open
type limitedListener struct {
	net.Listener
	semaphore chan struct{}
}

func (l *limitedListener) Accept() (net.Conn, error) {
	l.semaphore <- struct{}{}

	conn, err := l.Listener.Accept()
	if err != nil {
		<-l.semaphore
		return nil, err
	}

	return &limitedConn{Conn: conn, semaphore: l.semaphore}, nil
}

type limitedConn struct {
	net.Conn
	semaphore chan struct{}
	once      sync.Once
}

func (c *limitedConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(func() { <-c.semaphore })
	return err
}
