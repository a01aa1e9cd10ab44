package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/gofor/internal/logger"
	"github.com/marmos91/gofor/pkg/adapter"
	"github.com/marmos91/gofor/pkg/metrics"
)

// ErrAlreadyServed is returned when Serve is called a second time.
var ErrAlreadyServed = errors.New("serve has already been called on this server instance")

// GoforServer manages the lifecycle of the protocol adapters and the optional
// metrics HTTP server.
//
// Lifecycle:
//  1. Creation: New() with the shutdown timeout
//  2. Registration: AddAdapter() for each protocol
//  3. Startup: Serve() starts all adapters concurrently
//  4. Shutdown: Context cancellation triggers graceful shutdown of all adapters
//
// Thread safety:
// GoforServer is safe for concurrent use. Serve() may only be called once.
//
// Example usage:
//
//	srv := server.New(30 * time.Second)
//	if err := srv.AddAdapter(gopher.New(gopherConfig, gopherMetrics)); err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil {
//	    log.Fatal(err)
//	}
type GoforServer struct {
	// adapters contains all registered protocol adapters
	adapters []adapter.Adapter

	// metricsServer exposes /metrics; nil when metrics are disabled
	metricsServer *metrics.Server

	// stopTimeout bounds the Stop() calls issued during shutdown
	stopTimeout time.Duration

	// mu protects adapters, metricsServer, and served
	mu sync.RWMutex

	served bool
}

// New creates a new GoforServer. stopTimeout bounds how long shutdown waits
// for adapters; 0 selects 30 seconds.
func New(stopTimeout time.Duration) *GoforServer {
	if stopTimeout <= 0 {
		stopTimeout = 30 * time.Second
	}

	return &GoforServer{
		adapters:    make([]adapter.Adapter, 0, 1),
		stopTimeout: stopTimeout,
	}
}

// SetMetricsServer registers the HTTP server that exposes Prometheus metrics.
// It is started with the adapters and stopped with them.
func (s *GoforServer) SetMetricsServer(ms *metrics.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metricsServer = ms
}

// AddAdapter registers a new protocol adapter with the server.
//
// Duplicate protocols and port conflicts are rejected. Port 0 (OS-assigned)
// never conflicts.
//
// Panics if the adapter is nil or Serve() has already been called.
func (s *GoforServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter",
				port, existing.Protocol())
		}
	}

	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)

	return nil
}

// Serve starts all registered adapters and blocks until the context is
// cancelled or an adapter fails.
//
// On shutdown all adapters receive Stop() in reverse registration order and
// Serve waits for every adapter goroutine to return.
//
// Returns:
//   - nil after a requested shutdown (ctx cancelled or its deadline passed)
//   - an error naming the adapter if one failed
//   - ErrAlreadyServed on a second call
func (s *GoforServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return ErrAlreadyServed
	}
	s.served = true

	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	metricsServer := s.metricsServer
	s.mu.Unlock()

	return s.serve(ctx, adapters, metricsServer)
}

func (s *GoforServer) serve(ctx context.Context, adapters []adapter.Adapter, metricsServer *metrics.Server) error {
	logger.Info("Starting gofor with %d adapter(s)", len(adapters))

	// Adapters and the metrics server share a child context so a failing
	// adapter can stop everything else.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// Buffered to prevent goroutine leaks if multiple adapters fail simultaneously
	errChan := make(chan adapterError, len(adapters)+1)

	var wg sync.WaitGroup

	if metricsServer != nil {
		registerReadiness(metricsServer, adapters)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metricsServer.Start(runCtx); err != nil && runCtx.Err() == nil {
				errChan <- adapterError{protocol: "metrics", err: err}
			}
		}()
	}

	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			if err := a.Serve(runCtx); err != nil {
				if !errors.Is(err, context.Canceled) && runCtx.Err() == nil {
					logger.Error("%s adapter failed: %v", protocol, err)
					errChan <- adapterError{protocol: protocol, err: err}
				} else {
					logger.Debug("%s adapter stopped: %v", protocol, err)
				}
			} else {
				logger.Info("%s adapter stopped", protocol)
			}
		}(adp)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	cancelRun()
	s.stopAllAdapters(adapters)

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	logger.Info("gofor stopped")

	return shutdownErr
}

// registerReadiness publishes the listening state of every adapter that
// reports one on the metrics server's /readyz.
func registerReadiness(ms *metrics.Server, adapters []adapter.Adapter) {
	for _, a := range adapters {
		reporter, ok := a.(adapter.ReadinessReporter)
		if !ok {
			continue
		}
		ms.AddReadinessCheck(a.Protocol(), func() error {
			if !reporter.Listening() {
				return errNotListening
			}
			return nil
		})
	}
}

var errNotListening = errors.New("not accepting connections")

// adapterError pairs an adapter protocol name with its error for better error reporting.
type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters calls Stop() on every adapter in reverse registration
// order, bounded by stopTimeout. Errors are logged and do not stop the sweep.
func (s *GoforServer) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		logger.Debug("Stopping %s adapter (port %d)", protocol, adp.Port())

		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		} else {
			logger.Debug("%s adapter stop signal sent", protocol)
		}
	}
}

// Adapters returns a snapshot of currently registered adapters.
func (s *GoforServer) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
