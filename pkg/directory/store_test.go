package directory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddContainsGet(t *testing.T) {
	s := NewStore()

	require.True(t, s.Add("alice", "room 101"))
	assert.True(t, s.Contains("alice"))

	loc, err := s.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, "room 101", loc)
}

func TestAddDuplicateKeepsLocation(t *testing.T) {
	s := NewStore()
	require.True(t, s.Add("alice", "room 101"))

	assert.False(t, s.Add("alice", "room 202"))

	loc, err := s.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, "room 101", loc)
}

func TestAddRejectsEmptyName(t *testing.T) {
	s := NewStore()
	assert.False(t, s.Add("", "nowhere"))
	assert.Zero(t, s.Len())
}

func TestEmptyLocationAllowed(t *testing.T) {
	s := NewStore()
	require.True(t, s.Add("ghost", ""))

	loc, err := s.Get("ghost")
	require.NoError(t, err)
	assert.Equal(t, "", loc)
}

func TestNamesAreCaseSensitive(t *testing.T) {
	s := NewStore()
	require.True(t, s.Add("Alice", "a"))
	require.True(t, s.Add("alice", "b"))
	assert.Equal(t, 2, s.Len())
}

func TestSet(t *testing.T) {
	s := NewStore()

	t.Run("Existing", func(t *testing.T) {
		require.True(t, s.Add("bob", "lab"))
		require.NoError(t, s.Set("bob", "library"))

		loc, err := s.Get("bob")
		require.NoError(t, err)
		assert.Equal(t, "library", loc)
	})

	t.Run("Missing", func(t *testing.T) {
		assert.ErrorIs(t, s.Set("carol", "office"), ErrNotFound)
		assert.False(t, s.Contains("carol"))
	})
}

func TestGetMissing(t *testing.T) {
	_, err := NewStore().Get("nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotSorted(t *testing.T) {
	s := NewStore()
	s.Add("charlie", "3")
	s.Add("alice", "1")
	s.Add("bob", "2")

	assert.Equal(t, []Entry{
		{Name: "alice", Location: "1"},
		{Name: "bob", Location: "2"},
		{Name: "charlie", Location: "3"},
	}, s.Snapshot())
}

func TestRestoreSkipsDuplicates(t *testing.T) {
	s := NewStore()
	s.Add("alice", "existing")

	added := s.Restore([]Entry{
		{Name: "alice", Location: "restored"},
		{Name: "bob", Location: "lab"},
		{Name: "bob", Location: "second"},
		{Name: "", Location: "dropped"},
	})

	assert.Equal(t, 1, added)
	loc, _ := s.Get("alice")
	assert.Equal(t, "existing", loc)
	loc, _ = s.Get("bob")
	assert.Equal(t, "lab", loc)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	src := NewStore()
	for i := 0; i < 100; i++ {
		src.Add(fmt.Sprintf("user%03d", i), fmt.Sprintf("room %d", i))
	}

	dst := NewStore()
	assert.Equal(t, 100, dst.Restore(src.Snapshot()))
	assert.Equal(t, src.Snapshot(), dst.Snapshot())
}

func TestConcurrentMutation(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("user%d", i)
			if !s.Add(name, "first") {
				_ = s.Set(name, "first")
			}
			_ = s.Set(name, fmt.Sprintf("loc%d", i))
			_, _ = s.Get(name)
			_ = s.Snapshot()
		}(i)
	}
	wg.Wait()

	require.Equal(t, 50, s.Len())
	for i := 0; i < 50; i++ {
		loc, err := s.Get(fmt.Sprintf("user%d", i))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("loc%d", i), loc)
	}
}
