package filesystem

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingFetch returns data and counts how often it was called
func countingFetch(data []byte, err error) (FetchFunc, *int) {
	calls := 0
	return func() ([]byte, error) {
		calls++
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), data...), nil
	}, &calls
}

func failFetch(t *testing.T) FetchFunc {
	return func() ([]byte, error) {
		t.Fatal("unexpected fetch")
		return nil, nil
	}
}

func TestDataCache_Lifecycle(t *testing.T) {
	t.Parallel()

	c := NewDataCache()
	assert.Equal(t, CacheAbsent, c.State(1))

	c.Open(1)
	assert.Equal(t, CacheCold, c.State(1))
	assert.Equal(t, uint32(1), c.Handles(1))

	size, err := c.Write(1, 0, []byte("hello"), 0, failFetch(t))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), size)
	assert.Equal(t, CacheWarmDirty, c.State(1))

	var pushed [][]byte
	err = c.Flush(1, func(data []byte) error {
		pushed = append(pushed, append([]byte(nil), data...))
		return nil
	})
	require.NoError(t, err)
	require.Len(t, pushed, 1)
	assert.Equal(t, []byte("hello"), pushed[0])
	assert.Equal(t, CacheWarmSync, c.State(1))

	evicted, err := c.Release(1)
	require.NoError(t, err)
	assert.True(t, evicted)
	assert.Equal(t, CacheAbsent, c.State(1))
	assert.Equal(t, 0, c.Len())
}

func TestDataCache_PartialOverwrite(t *testing.T) {
	t.Parallel()

	c := NewDataCache()
	remote := bytes.Repeat([]byte{'r'}, 50)
	fetch, calls := countingFetch(remote, nil)

	c.Open(1)
	size, err := c.Write(1, 100, bytes.Repeat([]byte{'w'}, 10), 50, fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, *calls)
	assert.Equal(t, uint64(110), size)
	assert.True(t, c.Dirty(1))

	got, err := c.Read(1, 0, 200, fetch)
	require.NoError(t, err)
	require.Len(t, got, 110)
	assert.Equal(t, remote, got[:50])
	assert.Equal(t, make([]byte, 50), got[50:100], "gap must be zero filled")
	assert.Equal(t, bytes.Repeat([]byte{'w'}, 10), got[100:])
	assert.Equal(t, 1, *calls, "warm entry must not fetch again")
}

func TestDataCache_ShortWriteAtZeroFetches(t *testing.T) {
	t.Parallel()

	c := NewDataCache()
	fetch, calls := countingFetch([]byte("0123456789"), nil)

	size, err := c.Write(1, 0, []byte("ab"), 10, fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, *calls)
	assert.Equal(t, uint64(10), size)

	got, err := c.Read(1, 0, 10, fetch)
	require.NoError(t, err)
	assert.Equal(t, []byte("ab23456789"), got)
}

func TestDataCache_FetchFailureStaysCold(t *testing.T) {
	t.Parallel()

	c := NewDataCache()
	boom := errors.New("boom")
	fetch, _ := countingFetch(nil, boom)

	c.Open(1)
	_, err := c.Read(1, 0, 10, fetch)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, CacheCold, c.State(1))

	_, err = c.Write(1, 3, []byte("x"), 10, fetch)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, CacheCold, c.State(1))

	evicted, err := c.Release(1)
	require.NoError(t, err)
	assert.True(t, evicted, "cold entries hold nothing to flush")
}

func TestDataCache_Read(t *testing.T) {
	t.Parallel()

	c := NewDataCache()
	fetch, calls := countingFetch([]byte("hello world"), nil)

	c.Open(1)
	got, err := c.Read(1, 6, 100, fetch)
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), got)

	got, err = c.Read(1, 11, 5, fetch)
	require.NoError(t, err)
	assert.Empty(t, got, "read at end of data")

	got, err = c.Read(1, 0, 5, fetch)
	require.NoError(t, err)
	got[0] = 'J'
	again, _ := c.Read(1, 0, 5, fetch)
	assert.Equal(t, []byte("hello"), again, "read must return a copy")
	assert.Equal(t, 1, *calls)
	assert.Equal(t, CacheWarmSync, c.State(1))
}

func TestDataCache_FlushFailureKeepsDirty(t *testing.T) {
	t.Parallel()

	c := NewDataCache()
	c.Open(1)
	_, err := c.Write(1, 0, []byte("data"), 0, failFetch(t))
	require.NoError(t, err)

	boom := errors.New("remote down")
	require.ErrorIs(t, c.Flush(1, func([]byte) error { return boom }), boom)
	assert.True(t, c.Dirty(1))

	evicted, err := c.Release(1)
	require.NoError(t, err)
	assert.False(t, evicted, "dirty entries are never evicted")
	assert.Equal(t, CacheWarmDirty, c.State(1))

	require.NoError(t, c.Flush(1, func([]byte) error { return nil }))
	assert.Equal(t, CacheAbsent, c.State(1), "flushed entry without handles is evicted")
	assert.Equal(t, 0, c.Len())
}

func TestDataCache_ReadWithoutHandle(t *testing.T) {
	t.Parallel()

	c := NewDataCache()
	fetch, calls := countingFetch([]byte("hello"), nil)

	got, err := c.Read(1, 0, 5, fetch)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
	assert.Equal(t, CacheAbsent, c.State(1))

	_, err = c.Read(1, 0, 5, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, *calls, "nothing is kept between unopened reads")

	_, err = c.Read(2, 0, 5, func() ([]byte, error) { return nil, errors.New("boom") })
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())

	// unflushed writes stay until pushed
	_, err = c.Write(3, 0, []byte("new"), 0, failFetch(t))
	require.NoError(t, err)
	got, err = c.Read(3, 0, 5, failFetch(t))
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
	assert.Equal(t, CacheWarmDirty, c.State(3))
}

func TestDataCache_FlushNoop(t *testing.T) {
	t.Parallel()

	c := NewDataCache()
	push := func([]byte) error {
		t.Fatal("unexpected push")
		return nil
	}
	require.NoError(t, c.Flush(1, push), "absent")
	c.Open(1)
	require.NoError(t, c.Flush(1, push), "cold")
	_, err := c.Read(1, 0, 1, func() ([]byte, error) { return []byte("x"), nil })
	require.NoError(t, err)
	require.NoError(t, c.Flush(1, push), "warm and in sync")
}

func TestDataCache_HandlesKeepEntry(t *testing.T) {
	t.Parallel()

	c := NewDataCache()
	c.Open(1)
	c.Open(1)

	evicted, err := c.Release(1)
	require.NoError(t, err)
	assert.False(t, evicted)
	assert.Equal(t, uint32(1), c.Handles(1))

	evicted, err = c.Release(1)
	require.NoError(t, err)
	assert.True(t, evicted)

	_, err = c.Release(1)
	assert.Error(t, err)
}

func TestDataCache_Truncate(t *testing.T) {
	t.Parallel()

	t.Run("cold to zero skips fetch", func(t *testing.T) {
		c := NewDataCache()
		c.Open(1)
		require.NoError(t, c.Truncate(1, 0, failFetch(t)))
		assert.True(t, c.Dirty(1))
		got, err := c.Read(1, 0, 10, failFetch(t))
		require.NoError(t, err)
		assert.Empty(t, got)
	})
	t.Run("shrink and grow", func(t *testing.T) {
		c := NewDataCache()
		fetch, calls := countingFetch([]byte("abcdef"), nil)
		require.NoError(t, c.Truncate(1, 3, fetch))
		assert.Equal(t, 1, *calls)
		require.NoError(t, c.Truncate(1, 5, fetch))
		got, err := c.Read(1, 0, 10, fetch)
		require.NoError(t, err)
		assert.Equal(t, []byte{'a', 'b', 'c', 0, 0}, got)
	})
}

func TestCacheState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "warm+dirty", CacheWarmDirty.String())
	assert.Equal(t, "CacheState(9)", CacheState(9).String())
}
