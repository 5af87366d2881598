package filesystem

import (
	"fmt"

	"github.com/brettbedarf/datafs"
)

// FetchFunc reads the whole remote object
type FetchFunc func() ([]byte, error)

// PushFunc replaces the whole remote object
type PushFunc func(data []byte) error

// CacheState describes a cache entry
type CacheState int

const (
	CacheAbsent CacheState = iota
	CacheCold              // entry exists, buffer never populated
	CacheWarmSync
	CacheWarmDirty
)

func (s CacheState) String() string {
	switch s {
	case CacheAbsent:
		return "absent"
	case CacheCold:
		return "cold"
	case CacheWarmSync:
		return "warm+sync"
	case CacheWarmDirty:
		return "warm+dirty"
	default:
		return fmt.Sprintf("CacheState(%d)", int(s))
	}
}

type cacheEntry struct {
	buf     []byte
	warm    bool
	sync    bool // buf equals the remote content
	handles uint32
}

// DataCache is a write-back buffer of whole file contents keyed by inode id.
// Entries exist while a file is open or holds unflushed writes.
//
// DataCache is not safe for concurrent use; the driver serializes access.
type DataCache struct {
	entries map[uint64]*cacheEntry
}

func NewDataCache() *DataCache {
	return &DataCache{entries: make(map[uint64]*cacheEntry)}
}

// entry returns the entry for id, creating a cold one if absent
func (c *DataCache) entry(id uint64) *cacheEntry {
	e, ok := c.entries[id]
	if !ok {
		e = &cacheEntry{sync: true}
		c.entries[id] = e
	}
	return e
}

// Open registers a handle on id
func (c *DataCache) Open(id uint64) {
	c.entry(id).handles++
}

// EnsureWarm populates a cold entry with fetch. On failure the entry stays cold.
func (c *DataCache) EnsureWarm(id uint64, fetch FetchFunc) error {
	return c.ensureWarm(c.entry(id), fetch)
}

func (c *DataCache) ensureWarm(e *cacheEntry, fetch FetchFunc) error {
	if e.warm {
		return nil
	}
	data, err := fetch()
	if err != nil {
		return err
	}
	e.buf, e.warm, e.sync = data, true, true
	return nil
}

// Write copies data into the buffer at offset and returns the new buffer
// length. A write at offset 0 covering at least recordedSize bytes replaces the
// object and skips the fetch; any other write on a cold entry fetches first.
// The gap between the old end and offset is zero filled.
func (c *DataCache) Write(id uint64, offset int64, data []byte, recordedSize uint64, fetch FetchFunc) (uint64, error) {
	if offset < 0 {
		return 0, fmt.Errorf("negative offset %d", offset)
	}
	e := c.entry(id)
	if offset == 0 && uint64(len(data)) >= recordedSize {
		if !e.warm {
			e.buf, e.warm = nil, true
		}
	} else if err := c.ensureWarm(e, fetch); err != nil {
		return 0, err
	}

	end := offset + int64(len(data))
	if end > int64(len(e.buf)) {
		grown := make([]byte, end)
		copy(grown, e.buf)
		e.buf = grown
	}
	copy(e.buf[offset:end], data)
	e.sync = false
	return uint64(len(e.buf)), nil
}

// Read returns a copy of up to size bytes at offset. Reading at or past the
// end returns an empty slice and no error. A clean entry without open handles
// is dropped again after the read.
func (c *DataCache) Read(id uint64, offset int64, size int, fetch FetchFunc) ([]byte, error) {
	if offset < 0 {
		return nil, fmt.Errorf("negative offset %d", offset)
	}
	e := c.entry(id)
	defer c.evictIdle(id, e)
	if err := c.ensureWarm(e, fetch); err != nil {
		return nil, err
	}
	if offset >= int64(len(e.buf)) || size <= 0 {
		return []byte{}, nil
	}
	end := min(offset+int64(size), int64(len(e.buf)))
	out := make([]byte, end-offset)
	copy(out, e.buf[offset:end])
	return out, nil
}

// Truncate resizes the buffer to size and marks it dirty. A cold entry is
// fetched first unless it is truncated to zero.
func (c *DataCache) Truncate(id uint64, size uint64, fetch FetchFunc) error {
	e := c.entry(id)
	if size == 0 && !e.warm {
		e.buf, e.warm = nil, true
	} else if err := c.ensureWarm(e, fetch); err != nil {
		return err
	}
	if size <= uint64(len(e.buf)) {
		e.buf = e.buf[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, e.buf)
		e.buf = grown
	}
	e.sync = false
	return nil
}

// Flush pushes a dirty buffer to the remote store. Entries that are absent,
// cold or in sync are left alone. A failed push keeps the entry dirty; a
// successful one evicts the entry if no handles remain.
func (c *DataCache) Flush(id uint64, push PushFunc) error {
	e, ok := c.entries[id]
	if !ok || !e.warm || e.sync {
		return nil
	}
	if err := push(e.buf); err != nil {
		return err
	}
	e.sync = true
	c.evictIdle(id, e)
	return nil
}

// evictIdle drops e once it has no handles and nothing to flush
func (c *DataCache) evictIdle(id uint64, e *cacheEntry) bool {
	if e.handles == 0 && e.sync {
		delete(c.entries, id)
		return true
	}
	return false
}

// Release drops a handle on id and evicts the entry once no handles remain and
// nothing is left to flush. It reports whether the entry was evicted.
func (c *DataCache) Release(id uint64) (evicted bool, err error) {
	e, ok := c.entries[id]
	if !ok {
		return false, fmt.Errorf("release of uncached inode %d: %w", id, datafs.ErrNotFound)
	}
	if e.handles > 0 {
		e.handles--
	}
	return c.evictIdle(id, e), nil
}

// State reports the lifecycle state of id's entry
func (c *DataCache) State(id uint64) CacheState {
	e, ok := c.entries[id]
	switch {
	case !ok:
		return CacheAbsent
	case !e.warm:
		return CacheCold
	case e.sync:
		return CacheWarmSync
	default:
		return CacheWarmDirty
	}
}

// Dirty reports whether id holds writes not yet pushed
func (c *DataCache) Dirty(id uint64) bool {
	return c.State(id) == CacheWarmDirty
}

// Handles is the number of open handles on id
func (c *DataCache) Handles(id uint64) uint32 {
	if e, ok := c.entries[id]; ok {
		return e.handles
	}
	return 0
}

// Len is the number of cached entries
func (c *DataCache) Len() int {
	return len(c.entries)
}
