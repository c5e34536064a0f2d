package dispatch

import (
	"fmt"
	"sync"
	"testing"

	"github.com/marmos91/locationd/pkg/directory"
	"github.com/marmos91/locationd/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, req *protocol.DirectoryRequest) []byte {
	t.Helper()
	raw, err := protocol.EncodeRequest(req, "localhost")
	require.NoError(t, err)
	return raw
}

// ============================================================================
// Directory requests
// ============================================================================

func TestLookupMissingRaw(t *testing.T) {
	d := New(directory.NewStore(), ModeLocation)

	out := d.Handle([]byte("alice\r\n"), protocol.Auto)
	assert.Equal(t, "ERROR: no entries found\r\n", string(out.Reply))
	assert.Equal(t, ResultNotFound, out.Result)
	assert.Equal(t, "whois", out.Protocol)
	assert.Equal(t, "lookup", out.Operation)
}

func TestUpdateThenLookupRaw(t *testing.T) {
	store := directory.NewStore()
	d := New(store, ModeLocation)

	out := d.Handle([]byte("alice room 101\r\n"), protocol.Auto)
	assert.Equal(t, "OK\r\n", string(out.Reply))
	assert.Equal(t, ResultAdded, out.Result)

	out = d.Handle([]byte("alice\r\n"), protocol.Auto)
	assert.Equal(t, "room 101\r\n", string(out.Reply))
	assert.Equal(t, ResultFound, out.Result)
}

func TestLookupMissingHTTP11(t *testing.T) {
	d := New(directory.NewStore(), ModeLocation)

	out := d.Handle(encode(t, protocol.NewLookup(protocol.HTTP11, "bob")), protocol.Auto)
	assert.Equal(t, "HTTP/1.1 404 Not Found\r\nContent-Type: text/plain\r\n\r\n", string(out.Reply))
}

func TestUpdateAddedVersusUpdated(t *testing.T) {
	store := directory.NewStore()
	d := New(store, ModeLocation)

	for i, kind := range []protocol.Kind{protocol.RawDirectory, protocol.HTTP09, protocol.HTTP10, protocol.HTTP11} {
		t.Run(kind.String(), func(t *testing.T) {
			name := fmt.Sprintf("user%d", i)

			first := d.Handle(encode(t, protocol.NewUpdate(kind, name, "one")), protocol.Auto)
			second := d.Handle(encode(t, protocol.NewUpdate(kind, name, "two")), protocol.Auto)

			assert.Equal(t, ResultAdded, first.Result)
			assert.Equal(t, ResultUpdated, second.Result)
			assert.Equal(t, first.Reply, second.Reply)
			assert.Contains(t, first.Log[len(first.Log)-2], "added")
			assert.Contains(t, second.Log[len(second.Log)-2], "updated")

			loc, err := store.Get(name)
			require.NoError(t, err)
			assert.Equal(t, "two", loc)

			found := d.Handle(encode(t, protocol.NewLookup(kind, name)), protocol.Auto)
			resp := protocol.DecodeResponse(kind, protocol.Lookup, found.Reply)
			assert.True(t, resp.Success)
			assert.Equal(t, "two", resp.Location)
		})
	}
}

func TestLookupDoesNotMutate(t *testing.T) {
	store := directory.NewStore()
	d := New(store, ModeLocation)

	d.Handle([]byte("GET /?name=carol HTTP/1.1\r\nHost: h\r\n\r\n"), protocol.Auto)
	assert.Zero(t, store.Len())
}

func TestUnrecognized(t *testing.T) {
	d := New(directory.NewStore(), ModeLocation)

	out := d.Handle([]byte("DELETE /alice HTTP/1.0\r\n\r\n"), protocol.Auto)
	assert.Equal(t, "HTTP/1.0 400 Bad Request\r\nContent-Type: text/plain\r\n\r\n", string(out.Reply))
	assert.Equal(t, ResultUnrecognized, out.Result)
	assert.Nil(t, out.Request)

	out = d.Handle([]byte("\r\n"), protocol.Auto)
	assert.Equal(t, "ERROR: unrecognized request\r\n", string(out.Reply))
}

func TestHintSkipsDetection(t *testing.T) {
	d := New(directory.NewStore(), ModeLocation)

	out := d.Handle([]byte("GET /alice\r\n"), protocol.RawDirectory)
	require.IsType(t, &protocol.DirectoryRequest{}, out.Request)
	req := out.Request.(*protocol.DirectoryRequest)
	assert.Equal(t, protocol.Update, req.Operation)
	assert.Equal(t, "GET", req.Name)
}

func TestLogOrder(t *testing.T) {
	d := New(directory.NewStore(), ModeLocation)

	out := d.Handle([]byte("alice\r\n"), protocol.Auto)
	require.Len(t, out.Log, 4)
	assert.Contains(t, out.Log[0], "Client sent")
	assert.Contains(t, out.Log[1], "Extracted")
	assert.Contains(t, out.Log[3], "Server replied with")
}

func TestConcurrentUpdates(t *testing.T) {
	store := directory.NewStore()
	d := New(store, ModeLocation)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d.Handle([]byte(fmt.Sprintf("user%d loc%d\r\n", i, i)), protocol.Auto)
			d.Handle([]byte("shared"+fmt.Sprintf(" v%d\r\n", i)), protocol.Auto)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 51, store.Len())
	for i := 0; i < 50; i++ {
		loc, err := store.Get(fmt.Sprintf("user%d", i))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("loc%d", i), loc)
	}
}

// ============================================================================
// Game messages
// ============================================================================

func TestGameConnectedBeforeAndAfterMaster(t *testing.T) {
	d := New(directory.NewStore(), ModeGame)

	out := d.Handle([]byte("connected\r\n"), protocol.Auto)
	assert.Equal(t, "MasterPeerNotConnected\r\n", string(out.Reply))

	out = d.Handle([]byte("10.0.0.1@10.0.0.2@MasterPeer\r\n"), protocol.Auto)
	assert.Equal(t, "serverSet@MasterPeerIP:10.0.0.1@SlavePeerIP:10.0.0.2\r\n", string(out.Reply))

	out = d.Handle([]byte("connected\r\n"), protocol.Auto)
	assert.Equal(t, "startGameSlave\r\n", string(out.Reply))

	out = d.Handle([]byte("GameReset\r\n"), protocol.Auto)
	assert.Equal(t, "Game message not interpreted correctly\r\n", string(out.Reply))
	assert.Equal(t, ResultGame, out.Result)

	out = d.Handle([]byte("connected\r\n"), protocol.Auto)
	assert.Equal(t, "MasterPeerNotConnected\r\n", string(out.Reply))
}

func TestGameMasterPeerInvalidIP(t *testing.T) {
	d := New(directory.NewStore(), ModeGame)

	out := d.Handle([]byte("not-an-ip@10.0.0.2@MasterPeer"), protocol.Auto)
	assert.Equal(t, "Game message not interpreted correctly\r\n", string(out.Reply))
	assert.Equal(t, ResultUnrecognized, out.Result)
}

func TestGameHighscores(t *testing.T) {
	store := directory.NewStore()
	d := New(store, ModeGame)

	out := d.Handle([]byte("RetrieveHighScore\r\n"), protocol.Auto)
	assert.Equal(t, "NoHighscoreFound@"+DefaultHighscores+"\r\n", string(out.Reply))

	out = d.Handle([]byte("RetrieveHighScore\r\n"), protocol.Auto)
	assert.Equal(t, "HighscoreFound@"+DefaultHighscores+"\r\n", string(out.Reply))

	out = d.Handle([]byte("UpdateHighScore@Ann@9@Bob@3\r\n"), protocol.Auto)
	assert.Equal(t, "location set\r\n", string(out.Reply))

	table, err := store.Get(HighscoreKey)
	require.NoError(t, err)
	assert.Equal(t, "Ann@9@Bob@3", table)
}

func TestGameHighscoreCreated(t *testing.T) {
	store := directory.NewStore()
	d := New(store, ModeGame)

	out := d.Handle([]byte("UpdateHighScore@Ann@9"), protocol.Auto)
	assert.Equal(t, "server received request to update highscrore table.\r\n", string(out.Reply))
	assert.True(t, store.Contains(HighscoreKey))
}

func TestGameUnknown(t *testing.T) {
	d := New(directory.NewStore(), ModeGame)

	out := d.Handle([]byte("alice\r\n"), protocol.Auto)
	assert.Equal(t, "Game message not interpreted correctly\r\n", string(out.Reply))
	require.IsType(t, &protocol.GameRequest{}, out.Request)
	assert.Equal(t, ResultUnrecognized, out.Result)
}

func TestModesShareOneStore(t *testing.T) {
	store := directory.NewStore()
	game := New(store, ModeGame)
	loc := New(store, ModeLocation)

	game.Handle([]byte("RetrieveHighScore"), protocol.Auto)

	out := loc.Handle([]byte(HighscoreKey+"\r\n"), protocol.Auto)
	assert.Equal(t, DefaultHighscores+"\r\n", string(out.Reply))
}
