package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/locationd/internal/logger"
	"github.com/marmos91/locationd/pkg/adapter"
	"github.com/marmos91/locationd/pkg/checkpoint"
	"github.com/marmos91/locationd/pkg/directory"
	"github.com/marmos91/locationd/pkg/metrics"
)

// defaultStopTimeout bounds the Stop() calls issued to adapters at shutdown.
const defaultStopTimeout = 30 * time.Second

// LocationServer manages the lifecycle of the adapters that share one
// directory, together with the checkpoint writer and the metrics endpoint.
//
// Architecture:
// Every adapter serves the same Store. Each adapter reports when its last
// active connection closes, and LocationServer turns that signal into a
// checkpoint request for the Writer. The Writer is the only component that
// touches the persistence backend.
//
// Lifecycle:
//  1. Creation: New() with the store and an optional checkpoint writer
//  2. Registration: AddAdapter() for each listener
//  3. Startup: Serve() starts the writer, the metrics server and all adapters
//  4. Shutdown: Context cancellation stops the adapters in reverse order,
//     then the writer writes its final checkpoint
//
// Thread safety:
// AddAdapter() may be called concurrently before Serve(). Serve() must only
// be called once per server instance.
//
// Example usage:
//
//	srv := server.New(store, writer)
//	srv.AddAdapter(location.New(locationConfig, dispatch.ModeLocation, m))
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && err != context.Canceled {
//	    log.Fatal(err)
//	}
type LocationServer struct {
	// store is the directory shared by all adapters
	store *directory.Store

	// writer persists the store; nil disables checkpointing
	writer *checkpoint.Writer

	// metricsServer exposes /metrics and /healthz; nil disables it
	metricsServer *metrics.Server

	// adapters contains all registered adapters
	adapters []adapter.Adapter

	// mu protects adapters, metricsServer and served
	mu sync.RWMutex

	// served indicates whether Serve() has been called
	served bool

	// stopTimeout bounds the Stop() calls issued at shutdown
	stopTimeout time.Duration
}

// New creates a LocationServer around store.
//
// Parameters:
//   - store: The shared directory (required)
//   - writer: Checkpoint writer for store, or nil to run without persistence
//
// Panics if store is nil.
func New(store *directory.Store, writer *checkpoint.Writer) *LocationServer {
	if store == nil {
		panic("directory store cannot be nil")
	}

	return &LocationServer{
		store:       store,
		writer:      writer,
		adapters:    make([]adapter.Adapter, 0, 2),
		stopTimeout: defaultStopTimeout,
	}
}

// SetShutdownTimeout bounds how long shutdown waits on the adapters' Stop
// calls. Non-positive values are ignored.
func (s *LocationServer) SetShutdownTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimeout = d
}

// SetMetricsServer registers the HTTP metrics server started by Serve.
func (s *LocationServer) SetMetricsServer(ms *metrics.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metricsServer = ms
}

// AddAdapter registers an adapter and wires it to the shared store and the
// checkpoint trigger.
//
// Each adapter must have a distinct protocol name and, unless it asks for a
// kernel-assigned port (0), a distinct port.
//
// Panics if adapter is nil or Serve() has already been called.
func (s *LocationServer) AddAdapter(a adapter.Adapter) error {
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
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	a.SetStore(s.store)
	a.SetQuiescenceHook(s.requestCheckpoint)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)
	return nil
}

// requestCheckpoint is the quiescence hook handed to every adapter.
func (s *LocationServer) requestCheckpoint() {
	if s.writer != nil {
		s.writer.Request()
	}
}

// Serve starts the checkpoint writer, the metrics server, and every
// registered adapter, then blocks until the context is cancelled or an
// adapter fails.
//
// Shutdown order:
//  1. Adapters receive Stop() in reverse registration order
//  2. Serve waits for every adapter goroutine to return
//  3. The writer writes the final checkpoint and exits
//
// Returns:
//   - ctx.Err() when shutdown was triggered by the context
//   - error if an adapter failed or none was registered
//
// Panics if called more than once.
func (s *LocationServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		panic("Serve() has already been called on this server instance")
	}
	s.served = true

	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return errors.New("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	metricsServer := s.metricsServer
	stopTimeout := s.stopTimeout
	s.mu.Unlock()

	logger.Info("Starting location server with %d adapter(s), %d entries loaded",
		len(adapters), s.store.Len())

	// The writer outlives the adapters so the final checkpoint sees every
	// mutation they made.
	writerCtx, stopWriter := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWriter()
	if s.writer != nil {
		go s.writer.Run(writerCtx)
	}

	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				logger.Error("Metrics server failed: %v", err)
			}
		}()
	}

	errChan := make(chan adapterError, len(adapters))
	var wg sync.WaitGroup

	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			if err := a.Serve(ctx); err != nil {
				if !errors.Is(err, context.Canceled) && ctx.Err() == nil {
					logger.Error("%s adapter failed: %v", protocol, err)
					errChan <- adapterError{protocol: protocol, err: err}
				} else {
					logger.Warn("%s adapter stopped: %v", protocol, err)
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
		s.stopAllAdapters(adapters, stopTimeout)
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		s.stopAllAdapters(adapters, stopTimeout)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	if s.writer != nil {
		stopWriter()
		<-s.writer.Done()
		logger.Info("Checkpoint writer stopped: %d checkpoint(s) written, %d failed",
			s.writer.Completed(), s.writer.Failed())
	}

	if metricsServer != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Stop(stopCtx); err != nil {
			logger.Debug("Error stopping metrics server: %v", err)
		}
		cancel()
	}

	logger.Info("Location server stopped with %d entries", s.store.Len())
	return shutdownErr
}

// adapterError pairs an adapter protocol name with its error.
type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters stops adapters in reverse registration order. It only
// signals shutdown; the caller waits for the Serve goroutines.
func (s *LocationServer) stopAllAdapters(adapters []adapter.Adapter, stopTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		logger.Debug("Stopping %s adapter (port %d)", protocol, adp.Port())
		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		}
	}
}

// Adapters returns a snapshot of the registered adapters.
func (s *LocationServer) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
