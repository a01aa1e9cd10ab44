package gopher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/gofor/internal/logger"
	"github.com/marmos91/gofor/internal/protocol/gopher"
	"github.com/marmos91/gofor/internal/ratelimiter"
	"github.com/marmos91/gofor/pkg/metrics"
)

// GopherAdapter implements the adapter.Adapter interface for the Gopher protocol.
//
// Gopher is strictly one request per connection: the client sends a selector
// line, the server writes one response and closes. GopherAdapter owns the TCP
// listener and the connection lifecycle; each accepted connection is handed to
// a GopherConnection which runs the protocol handler once.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. shutdownCtx cancelled (file transfers stop between chunks)
//  4. Wait for active connections to complete (up to Timeouts.Shutdown)
//  5. Force-close any remaining connections after timeout
//
// Thread safety:
// All methods are safe for concurrent use. The shutdown mechanism uses sync.Once
// to ensure idempotent behavior even if Stop() is called multiple times.
type GopherAdapter struct {
	// config holds the adapter configuration (document root, ports, limits)
	config GopherConfig

	// listener is the TCP listener for accepting Gopher connections.
	// Guarded by listenerMu because Stop() may race with Serve().
	listener   net.Listener
	listenerMu sync.Mutex

	// handler answers requests. Created in Serve once the bound port is known.
	handler *gopher.Handler

	// cache holds rendered menus when MenuCache.Enabled is set
	cache *gopher.MenuCache

	// limiter throttles the accept rate; nil when RateLimit.RequestsPerSecond is 0
	limiter *ratelimiter.RateLimiter

	// metrics provides optional Prometheus metrics collection
	metrics metrics.GopherMetrics

	// activeConns tracks all currently active connections for graceful shutdown
	activeConns sync.WaitGroup

	// shutdownOnce ensures shutdown is only initiated once
	shutdownOnce sync.Once

	// shutdown signals that graceful shutdown has been initiated
	shutdown chan struct{}

	// ready is closed once Serve has bound the listener or failed to
	ready     chan struct{}
	readyOnce sync.Once

	// listening is true between a successful bind and shutdown
	listening atomic.Bool

	// connCount tracks the current number of active connections
	connCount atomic.Int32

	// boundPort is the port actually bound, which differs from config.Port when it is 0
	boundPort atomic.Int32

	// connSemaphore limits concurrent connections if MaxConnections > 0.
	// nil if MaxConnections is 0 (unlimited).
	connSemaphore chan struct{}

	// shutdownCtx is cancelled during shutdown to abort in-flight transfers
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	// activeConnections maps connection id to net.Conn for forced closure
	activeConnections sync.Map
}

// GopherConfig holds configuration parameters for the Gopher server.
//
// Defaults for the zero values that matter (FQDN, Port, Root, shutdown
// timeout) are applied by pkg/config. Read/write timeouts, the connection
// limit, and the rate limit are disabled when zero.
type GopherConfig struct {
	// Enabled controls whether the Gopher adapter is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// FQDN is the host name advertised in menus and used to decide which
	// relative selectors point back at this server.
	FQDN string `mapstructure:"fqdn" yaml:"fqdn" validate:"required"`

	// Port is the TCP port to listen on. 0 lets the OS pick one.
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// Root is the document root served to clients.
	Root string `mapstructure:"root" yaml:"root" validate:"required"`

	// Chroot confines the process to Root at startup. Requires privileges.
	Chroot bool `mapstructure:"chroot" yaml:"chroot"`

	// IPv4 listens on 0.0.0.0 only instead of the dual-stack wildcard.
	IPv4 bool `mapstructure:"ipv4" yaml:"ipv4"`

	// Verbose logs every request and its outcome at INFO level.
	Verbose bool `mapstructure:"verbose" yaml:"verbose"`

	// URLRedirect answers "URL:" selectors with an HTML redirect page.
	URLRedirect bool `mapstructure:"url_redirect" yaml:"url_redirect"`

	// MaxSelectorLength bounds the request line in bytes.
	MaxSelectorLength int `mapstructure:"max_selector_length" yaml:"max_selector_length" validate:"min=0"`

	// MaxConnections limits concurrent client connections. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections" validate:"min=0"`

	// Timeouts groups all timeout-related configuration.
	Timeouts GopherTimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts"`

	// RateLimit throttles new connections. Zero RequestsPerSecond disables it.
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`

	// MetricsLogInterval is the interval at which connection counts are logged.
	// 0 disables periodic metrics logging.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" yaml:"metrics_log_interval" validate:"min=0"`

	// MenuCache keeps rendered gophermaps in memory.
	MenuCache MenuCacheConfig `mapstructure:"menu_cache" yaml:"menu_cache"`
}

// GopherTimeoutsConfig groups connection timeouts.
type GopherTimeoutsConfig struct {
	// Read bounds the time a client has to send its selector line.
	Read time.Duration `mapstructure:"read" yaml:"read" validate:"min=0"`

	// Write bounds each write of the response; a stalled client is dropped.
	Write time.Duration `mapstructure:"write" yaml:"write" validate:"min=0"`

	// Shutdown is how long active connections get to finish before being
	// force-closed.
	Shutdown time.Duration `mapstructure:"shutdown" yaml:"shutdown" validate:"required,gt=0"`
}

// RateLimitConfig configures the token bucket applied to accepted connections.
type RateLimitConfig struct {
	RequestsPerSecond uint `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             uint `mapstructure:"burst" yaml:"burst"`
}

// MenuCacheConfig configures the rendered menu cache.
type MenuCacheConfig struct {
	Enabled    bool  `mapstructure:"enabled" yaml:"enabled"`
	MaxEntries int64 `mapstructure:"max_entries" yaml:"max_entries" validate:"min=0"`
}

// applyDefaults fills in zero values the adapter cannot run without.
func (c *GopherConfig) applyDefaults() {
	if c.FQDN == "" {
		c.FQDN = "localhost"
	}
	if c.Root == "" {
		c.Root = "."
	}
	if c.Timeouts.Shutdown == 0 {
		c.Timeouts.Shutdown = 30 * time.Second
	}
	if c.MaxSelectorLength == 0 {
		c.MaxSelectorLength = gopher.DefaultMaxSelectorLength
	}
	if c.MenuCache.Enabled && c.MenuCache.MaxEntries == 0 {
		c.MenuCache.MaxEntries = 1024
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = c.RateLimit.RequestsPerSecond
	}
}

// validate checks that the configuration is usable.
func (c *GopherConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.MaxSelectorLength < 0 {
		return fmt.Errorf("invalid MaxSelectorLength %d: must be >= 0", c.MaxSelectorLength)
	}
	if c.Timeouts.Read < 0 {
		return fmt.Errorf("invalid read timeout %v: must be >= 0", c.Timeouts.Read)
	}
	if c.Timeouts.Write < 0 {
		return fmt.Errorf("invalid write timeout %v: must be >= 0", c.Timeouts.Write)
	}
	if c.Timeouts.Shutdown <= 0 {
		return fmt.Errorf("invalid shutdown timeout %v: must be > 0", c.Timeouts.Shutdown)
	}
	if c.MenuCache.MaxEntries < 0 {
		return fmt.Errorf("invalid menu cache size %d: must be >= 0", c.MenuCache.MaxEntries)
	}
	return nil
}

// New creates a new GopherAdapter with the specified configuration.
//
// The adapter is created in a stopped state; call Serve() to start accepting
// connections. Invalid configurations cause a panic since pkg/config has
// already validated user input by the time New is called.
func New(config GopherConfig, gopherMetrics metrics.GopherMetrics) *GopherAdapter {
	config.applyDefaults()

	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid Gopher config: %v", err))
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
		logger.Debug("Gopher connection limit: %d", config.MaxConnections)
	} else {
		logger.Debug("Gopher connection limit: unlimited")
	}

	limiter := ratelimiter.New(config.RateLimit.RequestsPerSecond, config.RateLimit.Burst)
	if limiter != nil {
		logger.Debug("Gopher rate limit: %d conn/s (burst %d)",
			config.RateLimit.RequestsPerSecond, config.RateLimit.Burst)
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	if gopherMetrics == nil {
		gopherMetrics = metrics.NewNoopGopherMetrics()
	}

	return &GopherAdapter{
		config:         config,
		limiter:        limiter,
		metrics:        gopherMetrics,
		shutdown:       make(chan struct{}),
		ready:          make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}
}

// listenAddress returns the network and address to bind.
func (s *GopherAdapter) listenAddress() (string, string) {
	port := strconv.Itoa(s.config.Port)
	if s.config.IPv4 {
		return "tcp4", net.JoinHostPort("0.0.0.0", port)
	}
	return "tcp", net.JoinHostPort("::", port)
}

// handlerConfig builds the protocol handler configuration. Menus advertise
// the port actually bound.
func (s *GopherAdapter) handlerConfig(port int) gopher.ServerConfig {
	return gopher.ServerConfig{
		FQDN:              s.config.FQDN,
		Port:              port,
		Root:              s.config.Root,
		Chroot:            s.config.Chroot,
		Verbose:           s.config.Verbose,
		URLRedirect:       s.config.URLRedirect,
		MaxSelectorLength: s.config.MaxSelectorLength,
	}
}

// Serve starts the Gopher server and blocks until the context is cancelled
// or an unrecoverable error occurs.
//
// Each accepted connection is served in its own goroutine. When the context
// is cancelled the listener is closed, in-flight transfers are cancelled
// between chunks, and Serve waits up to Timeouts.Shutdown for connections to
// finish before force-closing them.
//
// Returns nil on graceful shutdown, or an error if the listener or handler
// cannot be created or shutdown timed out.
//
// Serve() should only be called once per GopherAdapter instance.
func (s *GopherAdapter) Serve(ctx context.Context) error {
	// Waiters on Ready() are released on every return path
	defer s.markReady()

	network, address := s.listenAddress()
	listener, err := net.Listen(network, address)
	if err != nil {
		return fmt.Errorf("failed to create Gopher listener on %s: %w", address, err)
	}

	port := listener.Addr().(*net.TCPAddr).Port
	s.boundPort.Store(int32(port))

	if s.config.MenuCache.Enabled {
		cache, err := gopher.NewMenuCache(s.config.MenuCache.MaxEntries)
		if err != nil {
			_ = listener.Close()
			return err
		}
		s.cache = cache
		defer cache.Close()
	}

	handler, err := gopher.NewHandler(s.handlerConfig(port), s.cache)
	if err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to create Gopher handler: %w", err)
	}
	s.handler = handler

	s.listenerMu.Lock()
	s.listener = listener
	// Stop() may have run before the listener was published
	select {
	case <-s.shutdown:
		_ = listener.Close()
	default:
		s.listening.Store(true)
	}
	s.listenerMu.Unlock()
	s.markReady()

	logger.Info("Gopher server listening on %s (fqdn=%s root=%s chroot=%v)",
		listener.Addr(), s.config.FQDN, s.config.Root, s.config.Chroot)
	logger.Debug("Gopher config: max_connections=%d read_timeout=%v write_timeout=%v max_selector_length=%d menu_cache=%v",
		s.config.MaxConnections, s.config.Timeouts.Read, s.config.Timeouts.Write,
		s.config.MaxSelectorLength, s.config.MenuCache.Enabled)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("Gopher shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(ctx)
	}

	for {
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		throttled, err := s.limiter.Admit(s.shutdownCtx)
		if throttled {
			s.metrics.RecordRateLimited()
		}
		if err != nil {
			s.releaseSlot()
			return s.gracefulShutdown()
		}

		tcpConn, err := listener.Accept()
		if err != nil {
			s.releaseSlot()

			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				if errors.Is(err, net.ErrClosed) {
					return s.gracefulShutdown()
				}
				logger.Debug("Error accepting Gopher connection: %v", err)
				continue
			}
		}

		conn := s.newConn(tcpConn)

		s.activeConns.Add(1)
		s.connCount.Add(1)
		s.activeConnections.Store(conn.id, tcpConn)

		s.metrics.RecordConnectionAccepted()
		currentConns := s.connCount.Load()
		s.metrics.SetActiveConnections(currentConns)

		logger.Debug("Gopher connection %s accepted from %s (active: %d)",
			conn.id, tcpConn.RemoteAddr(), currentConns)

		go func(c *GopherConnection) {
			defer func() {
				s.activeConnections.Delete(c.id)

				s.activeConns.Done()
				s.connCount.Add(-1)
				s.releaseSlot()

				s.metrics.RecordConnectionClosed()
				currentConns := s.connCount.Load()
				s.metrics.SetActiveConnections(currentConns)

				logger.Debug("Gopher connection %s closed (active: %d)", c.id, currentConns)
			}()

			c.Serve(s.shutdownCtx)
		}(conn)
	}
}

func (s *GopherAdapter) releaseSlot() {
	if s.connSemaphore != nil {
		<-s.connSemaphore
	}
}

// initiateShutdown closes the listener and cancels in-flight transfers.
// Safe to call multiple times and from multiple goroutines.
func (s *GopherAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("Gopher shutdown initiated")

		close(s.shutdown)

		s.listenerMu.Lock()
		s.listening.Store(false)
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing Gopher listener: %v", err)
			}
		}
		s.listenerMu.Unlock()

		s.cancelRequests()
	})
}

// gracefulShutdown waits for active connections to complete or for
// Timeouts.Shutdown to expire, after which remaining connections are
// force-closed.
func (s *GopherAdapter) gracefulShutdown() error {
	activeCount := s.connCount.Load()
	logger.Info("Gopher graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		activeCount, s.config.Timeouts.Shutdown)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Gopher graceful shutdown complete: all connections closed")
		return nil

	case <-time.After(s.config.Timeouts.Shutdown):
		remaining := s.connCount.Load()
		logger.Warn("Gopher shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
			remaining, s.config.Timeouts.Shutdown)

		s.forceCloseConnections()

		return fmt.Errorf("gopher shutdown timeout: %d connections force-closed", remaining)
	}
}

// forceCloseConnections closes every tracked connection so blocked reads and
// writes fail immediately.
func (s *GopherAdapter) forceCloseConnections() {
	logger.Info("Force-closing active Gopher connections")

	closedCount := 0
	s.activeConnections.Range(func(key, value any) bool {
		id := key.(string)
		conn := value.(net.Conn)

		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection %s: %v", id, err)
		} else {
			closedCount++
			s.metrics.RecordConnectionForceClosed()
			logger.Debug("Force-closed connection %s", id)
		}
		return true
	})

	if closedCount == 0 {
		logger.Debug("No connections to force-close")
	} else {
		logger.Info("Force-closed %d connection(s)", closedCount)
	}
}

// Stop initiates graceful shutdown of the Gopher server and waits for active
// connections to finish, bounded by ctx.
//
// Safe to call concurrently from multiple goroutines.
func (s *GopherAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	activeCount := s.connCount.Load()
	logger.Info("Gopher graceful shutdown: waiting for %d active connection(s) (context timeout)",
		activeCount)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Gopher graceful shutdown complete: all connections closed")
		return nil

	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("Gopher shutdown context cancelled: %d connection(s) still active: %v",
			remaining, ctx.Err())
		return ctx.Err()
	}
}

// logMetrics periodically logs the active connection count.
func (s *GopherAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			if s.limiter != nil {
				logger.Info("Gopher metrics: active_connections=%d rate_limit_tokens=%.1f",
					s.connCount.Load(), s.limiter.Tokens())
			} else {
				logger.Info("Gopher metrics: active_connections=%d", s.connCount.Load())
			}
		}
	}
}

// GetActiveConnections returns the current number of active connections.
func (s *GopherAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Ready is closed when Serve has either bound the listener (Port() then
// reports the real port) or given up. Use Listening to tell the two apart.
func (s *GopherAdapter) Ready() <-chan struct{} {
	return s.ready
}

func (s *GopherAdapter) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// Listening reports whether the adapter is accepting connections.
func (s *GopherAdapter) Listening() bool {
	return s.listening.Load()
}

func (s *GopherAdapter) newConn(tcpConn net.Conn) *GopherConnection {
	return NewGopherConnection(s, tcpConn)
}

// Port returns the TCP port the Gopher server is listening on, or the
// configured port before Serve() has bound the listener.
func (s *GopherAdapter) Port() int {
	if p := s.boundPort.Load(); p != 0 {
		return int(p)
	}
	return s.config.Port
}

// Protocol returns "Gopher" as the protocol identifier.
func (s *GopherAdapter) Protocol() string {
	return "Gopher"
}
