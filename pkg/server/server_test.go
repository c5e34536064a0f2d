package server

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/locationd/pkg/adapter/location"
	"github.com/marmos91/locationd/pkg/checkpoint"
	"github.com/marmos91/locationd/pkg/directory"
	"github.com/marmos91/locationd/pkg/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter records lifecycle calls and serves until stopped.
type fakeAdapter struct {
	protocol string
	port     int
	serveErr error

	mu       sync.Mutex
	store    *directory.Store
	hook     func()
	stopped  chan struct{}
	stopOnce sync.Once
	stops    int
}

func newFakeAdapter(protocol string, port int) *fakeAdapter {
	return &fakeAdapter{protocol: protocol, port: port, stopped: make(chan struct{})}
}

func (f *fakeAdapter) Serve(ctx context.Context) error {
	if f.serveErr != nil {
		return f.serveErr
	}
	select {
	case <-ctx.Done():
		return nil
	case <-f.stopped:
		return nil
	}
}

func (f *fakeAdapter) SetStore(store *directory.Store) { f.store = store }
func (f *fakeAdapter) SetQuiescenceHook(hook func())   { f.hook = hook }
func (f *fakeAdapter) Protocol() string                { return f.protocol }
func (f *fakeAdapter) Port() int                       { return f.port }

func (f *fakeAdapter) Stop(ctx context.Context) error {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	f.stopOnce.Do(func() { close(f.stopped) })
	return nil
}

func (f *fakeAdapter) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func TestNewRequiresStore(t *testing.T) {
	assert.Panics(t, func() { New(nil, nil) })
}

func TestAddAdapterInjectsStoreAndHook(t *testing.T) {
	store := directory.NewStore()
	srv := New(store, nil)
	a := newFakeAdapter("LOCATION", 43)

	require.NoError(t, srv.AddAdapter(a))
	assert.Same(t, store, a.store)
	require.NotNil(t, a.hook)
	assert.NotPanics(t, a.hook)
	assert.Len(t, srv.Adapters(), 1)
}

func TestAddAdapterRejectsDuplicates(t *testing.T) {
	srv := New(directory.NewStore(), nil)
	require.NoError(t, srv.AddAdapter(newFakeAdapter("LOCATION", 43)))

	err := srv.AddAdapter(newFakeAdapter("LOCATION", 44))
	assert.ErrorContains(t, err, "already registered")

	err = srv.AddAdapter(newFakeAdapter("GAME", 43))
	assert.ErrorContains(t, err, "port 43 already in use")

	require.NoError(t, srv.AddAdapter(newFakeAdapter("GAME", 4343)))
}

func TestAddAdapterAllowsEphemeralPorts(t *testing.T) {
	srv := New(directory.NewStore(), nil)
	require.NoError(t, srv.AddAdapter(newFakeAdapter("LOCATION", 0)))
	require.NoError(t, srv.AddAdapter(newFakeAdapter("GAME", 0)))
}

func TestServeWithoutAdapters(t *testing.T) {
	srv := New(directory.NewStore(), nil)
	assert.Error(t, srv.Serve(context.Background()))
}

func TestServeTwicePanics(t *testing.T) {
	srv := New(directory.NewStore(), nil)
	require.NoError(t, srv.AddAdapter(newFakeAdapter("LOCATION", 0)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, srv.Serve(ctx), context.Canceled)
	assert.Panics(t, func() { _ = srv.Serve(ctx) })
}

func TestAdapterFailureStopsOthers(t *testing.T) {
	srv := New(directory.NewStore(), nil)
	healthy := newFakeAdapter("LOCATION", 0)
	broken := newFakeAdapter("GAME", 0)
	broken.serveErr = errors.New("bind failed")

	require.NoError(t, srv.AddAdapter(healthy))
	require.NoError(t, srv.AddAdapter(broken))

	err := srv.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GAME adapter error")
	assert.Equal(t, 1, healthy.stopCount())
}

func TestCheckpointAfterQuiescence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.txt")
	backend, err := checkpoint.NewFileBackend(checkpoint.FileConfig{Path: path})
	require.NoError(t, err)

	store := directory.NewStore()
	writer := checkpoint.NewWriter(store, backend, 0, nil)
	srv := New(store, writer)

	adp := location.New(location.LocationConfig{Port: 0}, dispatch.ModeLocation, nil)
	require.NoError(t, srv.AddAdapter(adp))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	select {
	case <-adp.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("adapter did not start")
	}
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(adp.Port()))

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	_, err = conn.Write([]byte("alice room 101\r\n"))
	require.NoError(t, err)
	reply, err := io.ReadAll(conn)
	require.NoError(t, err)
	_ = conn.Close()
	assert.Equal(t, "OK\r\n", string(reply))

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && string(data) == "alice\nroom 101\n"
	}, 2*time.Second, 10*time.Millisecond)

	// Mutations made right before shutdown land in the final checkpoint.
	store.Add("bob", "library")
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	restored := directory.NewStore()
	n, err := checkpoint.Restore(context.Background(), backend, restored)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	loc, err := restored.Get("bob")
	require.NoError(t, err)
	assert.Equal(t, "library", loc)
}
