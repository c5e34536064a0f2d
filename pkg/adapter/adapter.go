package adapter

import (
	"context"

	"github.com/marmos91/locationd/pkg/directory"
)

// Adapter is a TCP front end managed by LocationServer.
//
// Each adapter accepts connections for one message family (directory
// lookups/updates or game coordination) and serves them against the single
// directory shared by all adapters.
//
// Lifecycle:
//  1. Creation: Adapter is created with its listener configuration
//  2. Injection: SetStore and SetQuiescenceHook wire the shared directory and
//     the checkpoint trigger
//  3. Startup: Serve() listens and blocks until shutdown
//  4. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Thread safety:
// SetStore and SetQuiescenceHook are called once before Serve(). Stop() may
// be called concurrently with Serve().
type Adapter interface {
	// Serve starts the listener and blocks until the context is cancelled or
	// an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve stops accepting, waits for active
	// connections up to the shutdown timeout, and returns nil.
	//
	// If Serve returns before context cancellation, LocationServer treats it
	// as fatal and stops the other adapters.
	Serve(ctx context.Context) error

	// SetStore injects the shared directory.
	SetStore(store *directory.Store)

	// SetQuiescenceHook registers a callback invoked each time the number of
	// active connections drops back to zero. The callback must not block.
	SetQuiescenceHook(hook func())

	// Stop initiates graceful shutdown. It is idempotent and safe to call
	// concurrently with Serve().
	Stop(ctx context.Context) error

	// Protocol returns the adapter name used in logs and metrics
	// ("LOCATION", "GAME").
	Protocol() string

	// Port returns the TCP port the adapter listens on. Once Serve has bound
	// its listener this is the actual port, even when configured as 0.
	Port() int
}
