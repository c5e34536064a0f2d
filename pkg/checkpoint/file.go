package checkpoint

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/locationd/internal/logger"
	"github.com/marmos91/locationd/pkg/directory"
	"github.com/zeebo/blake3"
)

// digestSuffix names the sidecar file holding the hex BLAKE3 digest of a
// checkpoint file.
const digestSuffix = ".b3"

// FileConfig configures a FileBackend.
type FileConfig struct {
	// Path of the checkpoint file.
	Path string `mapstructure:"path" validate:"required"`

	// Verify makes Load fail with ErrChecksumMismatch when the digest
	// sidecar disagrees with the file. A missing sidecar is accepted.
	Verify bool `mapstructure:"verify"`
}

// FileBackend stores snapshots as a two-line text file.
//
// Save writes to a temporary file in the same directory and renames it over
// the target, so readers only ever observe a complete snapshot.
type FileBackend struct {
	path   string
	verify bool
}

// NewFileBackend returns a FileBackend for cfg.Path.
func NewFileBackend(cfg FileConfig) (*FileBackend, error) {
	if cfg.Path == "" {
		return nil, errors.New("file checkpoint: path is required")
	}
	return &FileBackend{path: cfg.Path, verify: cfg.Verify}, nil
}

// Name implements Backend.
func (b *FileBackend) Name() string { return "file" }

// Path returns the checkpoint file path.
func (b *FileBackend) Path() string { return b.path }

// Save implements Backend.
func (b *FileBackend) Save(ctx context.Context, entries []directory.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := Encode(&buf, entries); err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	if err := writeAtomic(b.path, buf.Bytes()); err != nil {
		return err
	}

	sum := blake3.Sum256(buf.Bytes())
	if err := writeAtomic(b.path+digestSuffix, []byte(hex.EncodeToString(sum[:])+"\n")); err != nil {
		return fmt.Errorf("write checkpoint digest: %w", err)
	}
	return nil
}

// Load implements Backend.
func (b *FileBackend) Load(ctx context.Context) ([]directory.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", b.path, err)
	}

	if b.verify {
		if err := verifyDigest(b.path+digestSuffix, data); err != nil {
			return nil, err
		}
	}

	return Decode(bytes.NewReader(data))
}

// Close implements Backend.
func (b *FileBackend) Close() error { return nil }

func verifyDigest(path string, data []byte) error {
	want, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Checkpoint digest %s missing, skipping verification", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read checkpoint digest: %w", err)
	}

	sum := blake3.Sum256(data)
	if strings.TrimSpace(string(want)) != hex.EncodeToString(sum[:]) {
		return fmt.Errorf("%w: %s", ErrChecksumMismatch, path)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename checkpoint into place: %w", err)
	}
	return nil
}

// CheckWritable reports whether path can be opened for writing, creating it
// when missing. A file created by the check is left empty.
func CheckWritable(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}
