package location

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/locationd/pkg/directory"
	"github.com/marmos91/locationd/pkg/dispatch"
	"github.com/marmos91/locationd/pkg/metrics"
	"github.com/marmos91/locationd/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	adapter *LocationAdapter
	store   *directory.Store
	addr    string
	cancel  context.CancelFunc
	done    chan error
	quiet   atomic.Int32
}

func startAdapter(t *testing.T, config LocationConfig, mode dispatch.Mode) *testServer {
	t.Helper()

	ts := &testServer{store: directory.NewStore(), done: make(chan error, 1)}
	ts.adapter = New(config, mode, nil)
	ts.adapter.SetStore(ts.store)
	ts.adapter.SetQuiescenceHook(func() { ts.quiet.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	ts.cancel = cancel
	go func() { ts.done <- ts.adapter.Serve(ctx) }()

	select {
	case <-ts.adapter.Ready():
	case err := <-ts.done:
		t.Fatalf("adapter failed to start: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("adapter did not start listening")
	}

	ts.addr = net.JoinHostPort("127.0.0.1", strconv.Itoa(ts.adapter.Port()))
	t.Cleanup(func() {
		cancel()
		select {
		case <-ts.done:
		case <-time.After(5 * time.Second):
			t.Error("adapter did not stop")
		}
	})
	return ts
}

func roundTrip(t *testing.T, addr string, payload []byte) string {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetDeadline(time.Now().Add(3*time.Second)))
	_, err = conn.Write(payload)
	require.NoError(t, err)

	reply, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(reply)
}

func encode(t *testing.T, req *protocol.DirectoryRequest) []byte {
	t.Helper()
	raw, err := protocol.EncodeRequest(req, "localhost")
	require.NoError(t, err)
	return raw
}

// ============================================================================
// End-to-end request handling
// ============================================================================

func TestLookupUnknownName(t *testing.T) {
	ts := startAdapter(t, LocationConfig{}, dispatch.ModeLocation)

	reply := roundTrip(t, ts.addr, []byte("alice\r\n"))
	assert.Equal(t, "ERROR: no entries found\r\n", reply)
}

func TestUpdateThenLookup(t *testing.T) {
	ts := startAdapter(t, LocationConfig{}, dispatch.ModeLocation)

	assert.Equal(t, "OK\r\n", roundTrip(t, ts.addr, []byte("alice room 101\r\n")))
	assert.Equal(t, "room 101\r\n", roundTrip(t, ts.addr, []byte("alice\r\n")))
}

func TestHTTP11LookupNotFound(t *testing.T) {
	ts := startAdapter(t, LocationConfig{}, dispatch.ModeLocation)

	reply := roundTrip(t, ts.addr, encode(t, protocol.NewLookup(protocol.HTTP11, "bob")))
	resp := protocol.DecodeResponse(protocol.HTTP11, protocol.Lookup, []byte(reply))
	assert.Equal(t, "HTTP/1.1 404 Not Found", resp.StatusLine)
	assert.False(t, resp.Success)
}

func TestEveryProtocolEndToEnd(t *testing.T) {
	ts := startAdapter(t, LocationConfig{}, dispatch.ModeLocation)

	for i, kind := range []protocol.Kind{protocol.RawDirectory, protocol.HTTP09, protocol.HTTP10, protocol.HTTP11} {
		t.Run(kind.String(), func(t *testing.T) {
			name := fmt.Sprintf("user%d", i)

			reply := roundTrip(t, ts.addr, encode(t, protocol.NewUpdate(kind, name, "the lab")))
			assert.True(t, protocol.DecodeResponse(kind, protocol.Update, []byte(reply)).Success, reply)

			reply = roundTrip(t, ts.addr, encode(t, protocol.NewLookup(kind, name)))
			resp := protocol.DecodeResponse(kind, protocol.Lookup, []byte(reply))
			assert.True(t, resp.Success, reply)
			assert.Equal(t, "the lab", resp.Location)
		})
	}
}

func TestConcurrentUpdates(t *testing.T) {
	ts := startAdapter(t, LocationConfig{}, dispatch.ModeLocation)

	var wg sync.WaitGroup
	replies := make([]string, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			replies[i] = roundTrip(t, ts.addr, []byte(fmt.Sprintf("user%02d room %d\r\n", i, i)))
		}(i)
	}
	wg.Wait()

	for _, r := range replies {
		assert.Equal(t, "OK\r\n", r)
	}

	entries := ts.store.Snapshot()
	require.Len(t, entries, 50)
	for i, e := range entries {
		assert.Equal(t, fmt.Sprintf("user%02d", i), e.Name)
		assert.Equal(t, fmt.Sprintf("room %d", i), e.Location)
	}
}

func TestPartialRequestAfterReadTimeout(t *testing.T) {
	ts := startAdapter(t, LocationConfig{ReadTimeout: 200 * time.Millisecond}, dispatch.ModeLocation)
	ts.store.Add("alice", "room 101")

	reply := roundTrip(t, ts.addr, []byte("alice"))
	assert.Equal(t, "room 101\r\n", reply)
}

func TestHalfCloseCompletesRequest(t *testing.T) {
	ts := startAdapter(t, LocationConfig{ReadTimeout: 5 * time.Second}, dispatch.ModeLocation)
	ts.store.Add("alice", "room 101")

	conn, err := net.Dial("tcp", ts.addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("alice"))
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	start := time.Now()
	reply, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "room 101\r\n", string(reply))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestZeroReadTimeoutWaitsForCompleteRequest(t *testing.T) {
	ts := startAdapter(t, LocationConfig{ReadTimeout: 0}, dispatch.ModeLocation)
	ts.store.Add("alice", "room 101")

	conn, err := net.Dial("tcp", ts.addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ali"))
	require.NoError(t, err)
	// Longer than the 1s default a zero value used to fall back to.
	time.Sleep(1200 * time.Millisecond)
	_, err = conn.Write([]byte("ce\r\n"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	reply, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "room 101\r\n", string(reply))
}

func TestBodyWithoutContentLengthInLaterSegment(t *testing.T) {
	ts := startAdapter(t, LocationConfig{ReadTimeout: 3 * time.Second}, dispatch.ModeLocation)

	conn, err := net.Dial("tcp", ts.addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("POST /alice HTTP/1.0\r\n\r\n"))
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)
	_, err = conn.Write([]byte("room 101\r\n"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	reply, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.0 200 OK\r\nContent-Type: text/plain\r\n\r\n", string(reply))

	location, err := ts.store.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, "room 101", location)
}

func TestSilentClientGetsNoReply(t *testing.T) {
	ts := startAdapter(t, LocationConfig{ReadTimeout: 100 * time.Millisecond}, dispatch.ModeLocation)

	reply := roundTrip(t, ts.addr, nil)
	assert.Empty(t, reply)
	assert.Zero(t, ts.store.Len())
}

func TestUnrecognizedRequest(t *testing.T) {
	ts := startAdapter(t, LocationConfig{}, dispatch.ModeLocation)

	reply := roundTrip(t, ts.addr, []byte("DELETE /alice HTTP/1.1\r\nHost: h\r\n\r\n"))
	assert.Equal(t, "HTTP/1.1 400 Bad Request\r\nContent-Type: text/plain\r\n\r\n", reply)
}

func TestGameMode(t *testing.T) {
	ts := startAdapter(t, LocationConfig{}, dispatch.ModeGame)
	assert.Equal(t, "GAME", ts.adapter.Protocol())

	assert.Equal(t, "MasterPeerNotConnected\r\n", roundTrip(t, ts.addr, []byte("connected\r\n")))
	assert.Equal(t, "serverSet@MasterPeerIP:10.0.0.1@SlavePeerIP:10.0.0.2\r\n",
		roundTrip(t, ts.addr, []byte("10.0.0.1@10.0.0.2@MasterPeer\r\n")))
	assert.Equal(t, "startGameSlave\r\n", roundTrip(t, ts.addr, []byte("connected\r\n")))
}

// ============================================================================
// Quiescence
// ============================================================================

func TestQuiescenceHookAfterLastConnection(t *testing.T) {
	ts := startAdapter(t, LocationConfig{}, dispatch.ModeLocation)

	roundTrip(t, ts.addr, []byte("alice room 101\r\n"))
	require.Eventually(t, func() bool { return ts.quiet.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, ts.store.Contains("alice"))
}

func TestQuiescenceHookWaitsForOpenConnections(t *testing.T) {
	ts := startAdapter(t, LocationConfig{ReadTimeout: 5 * time.Second}, dispatch.ModeLocation)

	idle, err := net.Dial("tcp", ts.addr)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return ts.adapter.GetActiveConnections() == 1 }, time.Second, 5*time.Millisecond)

	roundTrip(t, ts.addr, []byte("alice room 101\r\n"))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, ts.quiet.Load())

	_, err = idle.Write([]byte("alice\r\n"))
	require.NoError(t, err)
	_, _ = io.ReadAll(idle)
	_ = idle.Close()

	require.Eventually(t, func() bool { return ts.quiet.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestGracefulShutdownForcesIdleConnections(t *testing.T) {
	ts := startAdapter(t, LocationConfig{
		ReadTimeout:     10 * time.Second,
		ShutdownTimeout: 300 * time.Millisecond,
	}, dispatch.ModeLocation)

	conn, err := net.Dial("tcp", ts.addr)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return ts.adapter.GetActiveConnections() == 1 }, time.Second, 5*time.Millisecond)

	start := time.Now()
	ts.cancel()

	select {
	case err := <-ts.done:
		assert.Error(t, err)
		ts.done <- err
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after shutdown timeout")
	}
	assert.Less(t, time.Since(start), 2*time.Second)

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestShutdownWithoutConnections(t *testing.T) {
	ts := startAdapter(t, LocationConfig{}, dispatch.ModeLocation)

	ts.cancel()
	select {
	case err := <-ts.done:
		assert.NoError(t, err)
		ts.done <- err
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return")
	}

	_, err := net.DialTimeout("tcp", ts.addr, 200*time.Millisecond)
	assert.Error(t, err)
}

func TestStopIsIdempotent(t *testing.T) {
	ts := startAdapter(t, LocationConfig{}, dispatch.ModeLocation)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, ts.adapter.Stop(ctx))
		}()
	}
	wg.Wait()
}

func TestStopBeforeServeReleasesListener(t *testing.T) {
	a := New(LocationConfig{}, dispatch.ModeLocation, nil)
	a.SetStore(directory.NewStore())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx))

	done := make(chan error, 1)
	go func() { done <- a.Serve(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve kept running after Stop")
	}

	require.NotZero(t, a.Port())
	_, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(a.Port())), 200*time.Millisecond)
	assert.Error(t, err)
}

func TestConnectionLimit(t *testing.T) {
	ts := startAdapter(t, LocationConfig{MaxConnections: 1, ReadTimeout: 5 * time.Second}, dispatch.ModeLocation)

	first, err := net.Dial("tcp", ts.addr)
	require.NoError(t, err)
	defer first.Close()
	require.Eventually(t, func() bool { return ts.adapter.GetActiveConnections() == 1 }, time.Second, 5*time.Millisecond)

	second, err := net.Dial("tcp", ts.addr)
	require.NoError(t, err)
	defer second.Close()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), ts.adapter.GetActiveConnections())

	_, err = first.Write([]byte("alice\r\n"))
	require.NoError(t, err)
	_, _ = io.ReadAll(first)

	_, err = second.Write([]byte("bob\r\n"))
	require.NoError(t, err)
	require.NoError(t, second.SetReadDeadline(time.Now().Add(3*time.Second)))
	reply, err := io.ReadAll(second)
	require.NoError(t, err)
	assert.Equal(t, "ERROR: no entries found\r\n", string(reply))
}

func TestServeRequiresStore(t *testing.T) {
	a := New(LocationConfig{}, dispatch.ModeLocation, nil)
	assert.Error(t, a.Serve(context.Background()))
}

func TestInvalidConfigPanics(t *testing.T) {
	assert.Panics(t, func() {
		New(LocationConfig{Port: 70000}, dispatch.ModeLocation, nil)
	})
}

// entriesRecorder captures the directory size gauge.
type entriesRecorder struct {
	metrics.LocationMetrics
	entries atomic.Int64
}

func (r *entriesRecorder) SetDirectoryEntries(count int) { r.entries.Store(int64(count)) }

func TestDirectoryEntriesGaugeWithoutCheckpoints(t *testing.T) {
	rec := &entriesRecorder{LocationMetrics: metrics.NewNoopLocationMetrics()}
	store := directory.NewStore()
	store.Add("seed", "lobby")

	a := New(LocationConfig{}, dispatch.ModeLocation, rec)
	a.SetStore(store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-a.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("adapter did not start listening")
	}
	require.Eventually(t, func() bool { return rec.entries.Load() == 1 }, time.Second, 5*time.Millisecond)

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(a.Port()))
	assert.Equal(t, "OK\r\n", roundTrip(t, addr, []byte("alice room 101\r\n")))
	assert.Equal(t, "OK\r\n", roundTrip(t, addr, []byte("bob library\r\n")))

	require.Eventually(t, func() bool { return rec.entries.Load() == 3 }, time.Second, 5*time.Millisecond)
}
