// Package checkpoint persists directory snapshots and restores them at
// startup.
//
// A Backend writes a complete snapshot and reads back the latest one. The
// file backend keeps the historical two-line text format (name line, then
// location line, per entry); the badger and s3 backends store the same
// entries in an embedded key-value store or an object bucket.
//
// All writes go through a single Writer goroutine, which takes the snapshot
// under the directory lock and hands it to the backend. Adapters only ask
// for a checkpoint; they never write one themselves.
package checkpoint

import (
	"context"
	"errors"

	"github.com/marmos91/locationd/pkg/directory"
)

// ErrChecksumMismatch is returned by Load when the stored digest does not
// match the checkpoint contents.
var ErrChecksumMismatch = errors.New("checkpoint: checksum mismatch")

// Backend stores and retrieves directory snapshots.
//
// Save replaces the previous snapshot entirely. Load returns (nil, nil)
// when nothing has been saved yet.
type Backend interface {
	Name() string
	Save(ctx context.Context, entries []directory.Entry) error
	Load(ctx context.Context) ([]directory.Entry, error)
	Close() error
}

// Restore loads the latest snapshot from backend into store and returns the
// number of entries added.
func Restore(ctx context.Context, backend Backend, store *directory.Store) (int, error) {
	entries, err := backend.Load(ctx)
	if err != nil {
		return 0, err
	}
	return store.Restore(entries), nil
}
