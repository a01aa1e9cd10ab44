package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/gofor/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessCheck returns nil when the named component can take traffic.
type ReadinessCheck func() error

// Server is the operator-facing HTTP endpoint of gofor.
//
// Endpoints:
//   - GET /metrics: Prometheus exposition (503 when the registry is not initialised)
//   - GET /healthz: process liveness, always 200
//   - GET /readyz: 200 when every registered readiness check passes, 503 otherwise
//   - GET /: plain-text index of the above
type Server struct {
	server *http.Server
	port   int

	checksMu sync.RWMutex
	checks   map[string]ReadinessCheck

	listenerMu sync.Mutex
	listener   net.Listener

	shutdownOnce sync.Once
}

// ServerConfig configures the metrics HTTP server.
type ServerConfig struct {
	// Port to listen on. Zero or negative selects 9090.
	Port int
}

// NewServer creates a stopped Server. Call Start to serve.
func NewServer(config ServerConfig) *Server {
	if config.Port <= 0 {
		config.Port = 9090
	}

	s := &Server{
		port:   config.Port,
		checks: make(map[string]ReadinessCheck),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeText(w, http.StatusOK, "ok\n")
	})
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/", s.handleIndex)

	s.server = &http.Server{
		Addr:              ":" + strconv.Itoa(config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func metricsHandler() http.Handler {
	registry := GetRegistry()
	if registry == nil {
		logger.Debug("Metrics collection disabled, /metrics answers 503")
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeText(w, http.StatusServiceUnavailable, "metrics collection is disabled\n")
		})
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// AddReadinessCheck registers check under name, replacing any previous
// check with the same name. Safe to call while serving.
func (s *Server) AddReadinessCheck(name string, check ReadinessCheck) {
	s.checksMu.Lock()
	defer s.checksMu.Unlock()
	s.checks[name] = check
}

// readiness runs every check and returns one "name: status" line per check,
// sorted by name, plus whether all of them passed.
func (s *Server) readiness() ([]string, bool) {
	s.checksMu.RLock()
	defer s.checksMu.RUnlock()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	ready := true
	lines := make([]string, 0, len(names))
	for _, name := range names {
		if err := s.checks[name](); err != nil {
			ready = false
			lines = append(lines, name+": "+err.Error())
			continue
		}
		lines = append(lines, name+": ok")
	}
	return lines, ready
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	lines, ready := s.readiness()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeText(w, status, strings.Join(append(lines, ""), "\n"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	var b strings.Builder
	b.WriteString("gofor operator endpoints\n\n")
	b.WriteString("/metrics  Prometheus metrics\n")
	b.WriteString("/healthz  liveness\n")
	b.WriteString("/readyz   adapter readiness\n")

	if lines, _ := s.readiness(); len(lines) > 0 {
		b.WriteString("\n")
		for _, line := range lines {
			b.WriteString(line + "\n")
		}
	}
	writeText(w, http.StatusOK, b.String())
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprint(w, body)
}

// Start binds the port and serves until ctx is cancelled, then shuts down
// with a five second grace period.
//
// Returns an error if the port cannot be bound or serving fails.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()

	logger.Info("Metrics server listening on %s (/metrics, /healthz, /readyz)", listener.Addr())

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop shuts the server down. Only the first call has an effect.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("metrics server shutdown error: %w", err)
			logger.Error("Metrics server shutdown error: %v", err)
			return
		}
		logger.Info("Metrics server stopped")
	})
	return shutdownErr
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the bound address once Start is serving, nil before.
func (s *Server) Addr() net.Addr {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
