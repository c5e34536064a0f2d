package checkpoint

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/locationd/internal/logger"
	"github.com/marmos91/locationd/pkg/directory"
)

// Keyspace layout:
//
//	current              -> big-endian uint64 generation of the live snapshot
//	gen/<%020d>/<name>   -> location
var (
	currentKey = []byte("current")
	genRoot    = []byte("gen/")
)

// BadgerConfig configures a BadgerBackend.
type BadgerConfig struct {
	// DBPath is the directory holding the badger files.
	DBPath string `mapstructure:"db_path" validate:"required"`

	// InMemory runs badger without touching disk. DBPath is ignored.
	InMemory bool `mapstructure:"in_memory"`
}

// entryBatch is the subset of *badger.WriteBatch used by Save.
type entryBatch interface {
	Set(key, value []byte) error
	Flush() error
	Cancel()
}

// BadgerBackend stores each snapshot as a generation of keys in an embedded
// badger database.
//
// Save writes the new generation in full, then moves the "current" pointer
// to it in a single transaction and only then drops the previous
// generation. A Save that fails at any point leaves the previous snapshot
// readable.
type BadgerBackend struct {
	db *badger.DB

	// newBatch returns the batch a generation is written with.
	newBatch func() entryBatch
}

// NewBadgerBackend opens (or creates) the database described by cfg.
func NewBadgerBackend(cfg BadgerConfig) (*BadgerBackend, error) {
	var opts badger.Options
	switch {
	case cfg.InMemory:
		opts = badger.DefaultOptions("").WithInMemory(true)
	case cfg.DBPath != "":
		opts = badger.DefaultOptions(cfg.DBPath)
	default:
		return nil, errors.New("badger checkpoint: db_path is required")
	}

	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}

	b := &BadgerBackend{db: db}
	b.newBatch = func() entryBatch { return b.db.NewWriteBatch() }
	return b, nil
}

// Name implements Backend.
func (b *BadgerBackend) Name() string { return "badger" }

// Save implements Backend.
func (b *BadgerBackend) Save(ctx context.Context, entries []directory.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	current, found, err := b.currentGeneration()
	if err != nil {
		return err
	}
	next := current + 1

	// Leftovers of an earlier Save that died before switching generations.
	if err := b.db.DropPrefix(genPrefix(next)); err != nil {
		return fmt.Errorf("clear unfinished checkpoint: %w", err)
	}

	wb := b.newBatch()
	defer wb.Cancel()

	for _, e := range entries {
		if err := wb.Set(entryKey(next, e.Name), []byte(e.Location)); err != nil {
			return fmt.Errorf("write entry %q: %w", e.Name, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush checkpoint batch: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(currentKey, binary.BigEndian.AppendUint64(nil, next))
	})
	if err != nil {
		return fmt.Errorf("switch checkpoint generation: %w", err)
	}

	if found {
		if err := b.db.DropPrefix(genPrefix(current)); err != nil {
			logger.Warn("Badger checkpoint: could not drop generation %d: %v", current, err)
		}
	}
	return nil
}

// Load implements Backend.
func (b *BadgerBackend) Load(ctx context.Context) ([]directory.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []directory.Entry
	err := b.db.View(func(txn *badger.Txn) error {
		gen, found, err := readGeneration(txn)
		if err != nil || !found {
			return err
		}

		prefix := genPrefix(gen)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			entries = append(entries, directory.Entry{
				Name:     string(item.Key()[len(prefix):]),
				Location: string(value),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read badger checkpoint: %w", err)
	}
	return entries, nil
}

// Close implements Backend.
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

func (b *BadgerBackend) currentGeneration() (uint64, bool, error) {
	var (
		gen   uint64
		found bool
	)
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		gen, found, err = readGeneration(txn)
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("read checkpoint generation: %w", err)
	}
	return gen, found, nil
}

func readGeneration(txn *badger.Txn) (uint64, bool, error) {
	item, err := txn.Get(currentKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	var gen uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt generation pointer (%d bytes)", len(val))
		}
		gen = binary.BigEndian.Uint64(val)
		return nil
	})
	return gen, err == nil, err
}

func genPrefix(gen uint64) []byte {
	return fmt.Appendf(nil, "%s%020d/", genRoot, gen)
}

func entryKey(gen uint64, name string) []byte {
	return append(genPrefix(gen), name...)
}
