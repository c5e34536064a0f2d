package location

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/locationd/internal/logger"
	"github.com/marmos91/locationd/internal/ratelimiter"
	"github.com/marmos91/locationd/pkg/directory"
	"github.com/marmos91/locationd/pkg/dispatch"
	"github.com/marmos91/locationd/pkg/metrics"
)

// LocationAdapter implements adapter.Adapter for the location directory
// protocols and for the game message family.
//
// Each accepted connection is served by its own goroutine, which reads one
// request, replies, and closes. The accept loop never waits on a
// connection's I/O.
//
// Quiescence:
// The adapter counts active connections. When a connection finishes and the
// count drops to zero, the quiescence hook is invoked. The hook only queues
// work (typically a checkpoint request) and the connection that triggered it
// has already applied its store mutation.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. shutdownCtx cancelled
//  4. Wait for active connections to complete (up to ShutdownTimeout)
//  5. Force-close any remaining connections after timeout
//
// Thread safety:
// All methods are safe for concurrent use.
type LocationAdapter struct {
	config     LocationConfig
	mode       dispatch.Mode
	name       string
	port       atomic.Int32
	ready      chan struct{}
	readyOnce  sync.Once
	dispatcher *dispatch.Dispatcher
	store      *directory.Store
	metrics    metrics.LocationMetrics
	limiter    *ratelimiter.AcceptLimiter
	onQuiet    func()

	// listenerMu guards listener, which Serve sets and Stop closes.
	listenerMu sync.Mutex
	listener   net.Listener

	// activeConns tracks connections for graceful shutdown.
	activeConns sync.WaitGroup

	shutdownOnce sync.Once
	shutdown     chan struct{}

	// connCount is the number of connections currently being served.
	connCount atomic.Int32

	// connSemaphore bounds concurrent connections; nil when unlimited.
	connSemaphore chan struct{}

	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	// activeConnections maps remote address to net.Conn for forced closure.
	activeConnections sync.Map
}

// RateLimitConfig throttles the accept loop.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained accept rate. 0 disables throttling.
	RequestsPerSecond uint `mapstructure:"requests_per_second"`

	// Burst is the number of connections accepted back-to-back.
	// Default: RequestsPerSecond
	Burst uint `mapstructure:"burst"`
}

// LocationConfig holds the listener configuration of one adapter.
//
// Default values (applied by New if zero):
//   - ShutdownTimeout: 5s
//   - MetricsLogInterval: 5m
//
// ReadTimeout and WriteTimeout have no default here: zero or a negative
// value disables that timeout. The configuration layer supplies 1s.
//
// Port 0 asks the kernel for a free port; the bound port is reported by
// Port() once Ready() is closed.
type LocationConfig struct {
	// Enabled controls whether the adapter is started.
	Enabled bool `mapstructure:"enabled"`

	// Port is the TCP port to listen on.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// MaxConnections limits concurrent connections. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// ReadTimeout bounds reading one complete request. <= 0 disables it.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout bounds writing the reply. <= 0 disables it.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// ShutdownTimeout bounds the wait for active connections at shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`

	// MetricsLogInterval is the period of the connection count log line.
	// Negative disables it.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval"`

	// RateLimit throttles accepted connections.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// applyDefaults fills in zero values.
func (c *LocationConfig) applyDefaults() {
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.MetricsLogInterval == 0 {
		c.MetricsLogInterval = 5 * time.Minute
	}
}

// validate checks the configuration.
func (c *LocationConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	return nil
}

// New creates a LocationAdapter serving mode.
//
// The adapter is created in a stopped state. Call SetStore() to inject the
// directory, then Serve() to start accepting connections.
//
// Parameters:
//   - config: Listener configuration (zero values get defaults)
//   - mode: Message family served by this adapter
//   - m: Optional metrics collector (nil for no metrics)
//
// Panics if config validation fails.
func New(config LocationConfig, mode dispatch.Mode, m metrics.LocationMetrics) *LocationAdapter {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid location adapter config: %v", err))
	}

	name := "LOCATION"
	if mode == dispatch.ModeGame {
		name = "GAME"
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
		logger.Debug("%s connection limit: %d", name, config.MaxConnections)
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	a := &LocationAdapter{
		config:         config,
		mode:           mode,
		name:           name,
		ready:          make(chan struct{}),
		metrics:        metrics.OrNoop(m),
		limiter:        ratelimiter.New(config.RateLimit.RequestsPerSecond, config.RateLimit.Burst),
		shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}
	a.port.Store(int32(config.Port))
	return a
}

// SetStore injects the shared directory.
func (s *LocationAdapter) SetStore(store *directory.Store) {
	s.store = store
	s.dispatcher = dispatch.New(store, s.mode)
	logger.Debug("%s adapter directory configured", s.name)
}

// SetQuiescenceHook registers the callback run when the active connection
// count returns to zero.
func (s *LocationAdapter) SetQuiescenceHook(hook func()) {
	s.onQuiet = hook
}

// Serve listens on the configured port and blocks until the context is
// cancelled or the listener fails.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the listener fails to start or connections had to be
//     force-closed
func (s *LocationAdapter) Serve(ctx context.Context) error {
	if s.dispatcher == nil {
		return fmt.Errorf("%s adapter: SetStore must be called before Serve", s.name)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to create %s listener on port %d: %w", s.name, s.config.Port, err)
	}

	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()
	s.port.Store(int32(listener.Addr().(*net.TCPAddr).Port))
	s.readyOnce.Do(func() { close(s.ready) })

	// Stop may have run before the listener existed.
	select {
	case <-s.shutdown:
		s.closeListener()
		logger.Info("%s adapter stopped before serving", s.name)
		return nil
	default:
	}

	s.metrics.SetDirectoryEntries(s.store.Len())

	logger.Info("%s server listening on port %d", s.name, s.Port())
	logger.Debug("%s config: max_connections=%d read_timeout=%v write_timeout=%v",
		s.name, s.config.MaxConnections, s.config.ReadTimeout, s.config.WriteTimeout)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("%s shutdown signal received: %v", s.name, ctx.Err())
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

		if err := s.limiter.Wait(s.shutdownCtx); err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}
			return s.gracefulShutdown()
		}

		tcpConn, err := listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}

			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting %s connection: %v", s.name, err)
				continue
			}
		}

		s.activeConns.Add(1)
		currentConns := s.connCount.Add(1)

		connAddr := tcpConn.RemoteAddr().String()
		s.activeConnections.Store(connAddr, tcpConn)

		s.metrics.RecordConnectionAccepted(s.name)
		s.metrics.SetActiveConnections(s.name, currentConns)
		logger.Debug("%s connection accepted from %s (active: %d)", s.name, connAddr, currentConns)

		conn := NewLocationConnection(s, tcpConn, currentConns)
		go func(addr string) {
			defer func() {
				s.activeConnections.Delete(addr)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}

				remaining := s.connCount.Add(-1)
				s.metrics.RecordConnectionClosed(s.name)
				s.metrics.SetActiveConnections(s.name, remaining)
				logger.Debug("%s connection closed from %s (active: %d)", s.name, addr, remaining)

				if remaining == 0 && s.onQuiet != nil {
					s.onQuiet()
				}
				s.activeConns.Done()
			}()

			conn.Serve(s.shutdownCtx)
		}(connAddr)
	}
}

// initiateShutdown closes the listener and cancels in-flight requests.
// Safe to call multiple times.
func (s *LocationAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("%s shutdown initiated", s.name)
		close(s.shutdown)
		s.closeListener()
		s.cancelRequests()
	})
}

// closeListener closes the bound listener, if any. Safe to call repeatedly.
func (s *LocationAdapter) closeListener() {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	if s.listener == nil {
		return
	}
	if err := s.listener.Close(); err != nil {
		logger.Debug("Error closing %s listener: %v", s.name, err)
	}
	s.listener = nil
}

// gracefulShutdown waits for active connections, force-closing them once
// ShutdownTimeout expires.
func (s *LocationAdapter) gracefulShutdown() error {
	s.closeListener()

	activeCount := s.connCount.Load()
	logger.Info("%s graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		s.name, activeCount, s.config.ShutdownTimeout)

	select {
	case <-s.waitConnections():
		logger.Info("%s graceful shutdown complete: all connections closed", s.name)
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("%s shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
			s.name, remaining, s.config.ShutdownTimeout)
		s.forceCloseConnections()
		return fmt.Errorf("%s shutdown timeout: %d connections force-closed", s.name, remaining)
	}
}

func (s *LocationAdapter) waitConnections() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()
	return done
}

// forceCloseConnections closes every tracked TCP connection.
func (s *LocationAdapter) forceCloseConnections() {
	closedCount := 0
	s.activeConnections.Range(func(key, value any) bool {
		addr := key.(string)
		conn := value.(net.Conn)

		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection to %s: %v", addr, err)
		} else {
			closedCount++
			s.metrics.RecordConnectionForceClosed(s.name)
		}
		return true
	})

	if closedCount > 0 {
		logger.Info("Force-closed %d %s connection(s)", closedCount, s.name)
	}
}

// Stop initiates shutdown and waits for active connections until ctx is
// done.
//
// Returns:
//   - nil when every connection completed
//   - ctx.Err() if ctx ended first
func (s *LocationAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	select {
	case <-s.waitConnections():
		return nil
	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("%s shutdown context cancelled: %d connection(s) still active: %v",
			s.name, remaining, ctx.Err())
		return ctx.Err()
	}
}

func (s *LocationAdapter) logMetrics(ctx context.Context) {
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
				logger.Info("%s metrics: active_connections=%d accept_tokens=%.1f",
					s.name, s.connCount.Load(), s.limiter.Tokens())
			} else {
				logger.Info("%s metrics: active_connections=%d", s.name, s.connCount.Load())
			}
		}
	}
}

// GetActiveConnections returns the number of connections being served.
func (s *LocationAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Ready is closed once the listener is bound.
func (s *LocationAdapter) Ready() <-chan struct{} {
	return s.ready
}

// Port returns the bound port, or the configured port before Serve binds.
func (s *LocationAdapter) Port() int {
	return int(s.port.Load())
}

// Protocol returns "LOCATION" or "GAME".
func (s *LocationAdapter) Protocol() string {
	return s.name
}

// errShutdown is reported when a connection is abandoned because the
// adapter is shutting down.
var errShutdown = errors.New("adapter shutting down")
