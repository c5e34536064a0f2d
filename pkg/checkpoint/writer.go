package checkpoint

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/marmos91/locationd/internal/logger"
	"github.com/marmos91/locationd/pkg/directory"
	"github.com/marmos91/locationd/pkg/metrics"
)

// finalCheckpointTimeout bounds the checkpoint written when Run exits.
const finalCheckpointTimeout = 10 * time.Second

// Writer is the single goroutine that writes checkpoints.
//
// Callers ask for a checkpoint with Request, which never blocks: requests
// made while one is already pending coalesce into it. Each checkpoint
// snapshots the store under its lock at the moment it starts, so it reflects
// every mutation that completed before the request was served and never a
// half-applied one.
//
// Thread safety:
// Request, Flush, and Completed are safe for concurrent use. Run must be
// called exactly once.
type Writer struct {
	store    *directory.Store
	backend  Backend
	interval time.Duration
	metrics  metrics.LocationMetrics

	requests chan struct{}
	flushes  chan chan error
	done     chan struct{}

	completed atomic.Uint64
	failed    atomic.Uint64
}

// NewWriter creates a Writer for store and backend.
//
// Parameters:
//   - interval: When positive, a checkpoint is also written on this period.
//   - m: Metrics sink. nil disables metrics.
func NewWriter(store *directory.Store, backend Backend, interval time.Duration, m metrics.LocationMetrics) *Writer {
	return &Writer{
		store:    store,
		backend:  backend,
		interval: interval,
		metrics:  metrics.OrNoop(m),
		requests: make(chan struct{}, 1),
		flushes:  make(chan chan error),
		done:     make(chan struct{}),
	}
}

// Request asks for a checkpoint without waiting for it.
func (w *Writer) Request() {
	select {
	case w.requests <- struct{}{}:
	default:
	}
}

// Flush writes a checkpoint now and waits for it to finish.
func (w *Writer) Flush(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case w.flushes <- reply:
	case <-w.done:
		return errors.New("checkpoint writer stopped")
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Completed returns how many checkpoints have been written successfully.
func (w *Writer) Completed() uint64 {
	return w.completed.Load()
}

// Failed returns how many checkpoints have failed.
func (w *Writer) Failed() uint64 {
	return w.failed.Load()
}

// Done is closed when Run returns.
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

// Run serves checkpoint requests until ctx is cancelled, then writes one
// final checkpoint and returns.
func (w *Writer) Run(ctx context.Context) {
	defer close(w.done)

	var tick <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalCheckpointTimeout)
			_ = w.write(finalCtx, "shutdown")
			cancel()
			return

		case <-w.requests:
			_ = w.write(ctx, "quiescence")

		case <-tick:
			_ = w.write(ctx, "interval")

		case reply := <-w.flushes:
			reply <- w.write(ctx, "flush")
		}
	}
}

func (w *Writer) write(ctx context.Context, reason string) error {
	entries := w.store.Snapshot()
	start := time.Now()

	err := w.backend.Save(ctx, entries)
	elapsed := time.Since(start)
	w.metrics.RecordCheckpoint(w.backend.Name(), len(entries), elapsed, err)
	w.metrics.SetDirectoryEntries(len(entries))

	if err != nil {
		w.failed.Add(1)
		logger.Error("Checkpoint (%s) to %s backend failed: %v", reason, w.backend.Name(), err)
		return err
	}

	w.completed.Add(1)
	logger.Debug("Checkpoint (%s) wrote %d entries to %s backend in %v", reason, len(entries), w.backend.Name(), elapsed)
	return nil
}
