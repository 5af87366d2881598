package filesystem

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/brettbedarf/datafs"
	"github.com/brettbedarf/datafs/config"
	"github.com/brettbedarf/datafs/internal/metrics"
	"github.com/brettbedarf/datafs/internal/util"
)

// FileSystem answers filesystem operations by lazily mirroring a remote store.
// Directories are listed from the remote store at most once per session;
// file contents are held in a write-back cache while open.
//
// Every operation runs under one mutex, remote round trips included, so
// handlers observe each other in submission order. All handles to a file share
// one cache buffer, which is only safe under this sequential dispatch.
type FileSystem struct {
	cfg    *config.Config
	remote datafs.RemoteStore
	inodes *InodeStore
	cache  *DataCache
	mu     sync.Mutex
}

// DirEntry is one directory listing entry. Offset is the entry's position in
// the listing; "." and ".." take positions 0 and 1.
type DirEntry struct {
	ID     uint64
	Name   string
	Kind   datafs.Kind
	Offset uint64
}

// SetAttrRequest holds the attributes to change; nil fields are left as is
type SetAttrRequest struct {
	Size  *uint64
	UID   *uint32
	GID   *uint32
	Mode  *uint32
	Mtime *time.Time
}

func NewFS(cfg *config.Config, remote datafs.RemoteStore) *FileSystem {
	inodes := NewInodeStore()
	inodes.Insert(newDirInode(RootID, "", RootPerm, cfg.UID, cfg.GID))
	inodes.Insert(newDirInode(DataRootID, DataRoot, RootPerm, cfg.UID, cfg.GID))
	metrics.SetInodes(inodes.Len())

	return &FileSystem{
		cfg:    cfg,
		remote: remote,
		inodes: inodes,
		cache:  NewDataCache(),
	}
}

// Lookup resolves name inside the directory parent, asking the remote store
// only when the local tree cannot answer.
func (fs *FileSystem) Lookup(ctx context.Context, parent uint64, name string) (Inode, error) {
	logger := util.GetLogger("FS.Lookup")
	logger.Trace().Uint64("parent", parent).Str("name", name).Msg("Lookup called")

	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir, ok := fs.inodes.Get(parent)
	if !ok {
		return Inode{}, datafs.ErrNotFound
	}
	if !dir.IsDir() {
		return Inode{}, datafs.ErrNotDir
	}

	if parent == RootID {
		if name == "" {
			return dir, nil
		}
		if name == DataRoot {
			n, _ := fs.inodes.Get(DataRootID)
			return n, nil
		}
		if !fs.cfg.IsConnector(name) {
			metrics.RecordLookupShortCircuit()
			logger.Trace().Str("name", name).Msg("Not a known connector")
			return Inode{}, datafs.ErrNotFound
		}
	}

	if n, ok := fs.inodes.Child(parent, name); ok {
		return n, nil
	}
	if dir.Visited {
		metrics.RecordLookupShortCircuit()
		return Inode{}, datafs.ErrNotFound
	}

	path := joinPath(dir.Path, name)
	uri := PathToURI(path)
	meta, err := fs.remote.GetMetadata(ctx, uri)
	if err != nil {
		if errors.Is(err, datafs.ErrNotFound) {
			logger.Debug().Str("uri", uri).Msg("Remote object not found")
		} else {
			logger.Warn().Err(err).Str("uri", uri).Msg("Failed to get remote metadata")
		}
		return Inode{}, datafs.ErrNotFound
	}

	n := inodeFromMetadata(fs.inodes.NextID(), path, meta, fs.cfg.UID, fs.cfg.GID)
	fs.inodes.Insert(n)
	metrics.SetInodes(fs.inodes.Len())
	logger.Debug().Uint64("id", n.ID).Str("path", path).Stringer("kind", n.Kind).Msg("Added inode")
	return n, nil
}

func (fs *FileSystem) GetAttr(id uint64) (Inode, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, ok := fs.inodes.Get(id)
	if !ok {
		return Inode{}, datafs.ErrNotFound
	}
	return n, nil
}

// SetAttr changes the attributes set in req. A size change truncates or
// extends the cached content; without an open handle the result is pushed
// right away.
func (fs *FileSystem) SetAttr(ctx context.Context, id uint64, req SetAttrRequest) (Inode, error) {
	logger := util.GetLogger("FS.SetAttr")

	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, ok := fs.inodes.Get(id)
	if !ok {
		return Inode{}, datafs.ErrNotFound
	}

	if req.Size != nil && *req.Size != n.Size {
		if n.IsDir() {
			return Inode{}, datafs.ErrIsDir
		}
		if err := fs.truncateLocked(ctx, &n, *req.Size); err != nil {
			logger.Error().Err(err).Uint64("id", id).Uint64("size", *req.Size).Msg("Failed to truncate")
			if fs.cache.Dirty(id) {
				// the truncated buffer is kept for a later push; size follows it
				fs.inodes.SetSize(id, *req.Size)
			}
			return Inode{}, err
		}
	}

	n, _ = fs.inodes.Update(id, func(n *Inode) {
		if req.Size != nil {
			n.Size = *req.Size
		}
		if req.UID != nil {
			n.UID = *req.UID
		}
		if req.GID != nil {
			n.GID = *req.GID
		}
		if req.Mode != nil {
			n.Perm = *req.Mode & 0o7777
		}
		if req.Mtime != nil {
			n.Mtime = *req.Mtime
		}
	})
	return n, nil
}

func (fs *FileSystem) truncateLocked(ctx context.Context, n *Inode, size uint64) error {
	if fs.cache.State(n.ID) != CacheAbsent {
		if err := fs.cache.Truncate(n.ID, size, fs.fetcher(ctx, n)); err != nil {
			return remoteErr(err)
		}
		return nil
	}

	// truncate(2) on a file nobody has open
	fs.cache.Open(n.ID)
	defer func() {
		_, _ = fs.cache.Release(n.ID)
		metrics.SetCacheEntries(fs.cache.Len())
	}()
	if err := fs.cache.Truncate(n.ID, size, fs.fetcher(ctx, n)); err != nil {
		return remoteErr(err)
	}
	return fs.flushLocked(ctx, n)
}

// OpenDir checks that id is a directory
func (fs *FileSystem) OpenDir(id uint64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, ok := fs.inodes.Get(id)
	if !ok {
		return datafs.ErrNotFound
	}
	if !n.IsDir() {
		return datafs.ErrNotDir
	}
	return nil
}

// ReadDir lists the directory id. The whole listing is returned for offset 0;
// later offsets are past the end. The first listing of a directory fetches its
// children from the remote store, later ones are answered locally.
func (fs *FileSystem) ReadDir(ctx context.Context, id uint64, offset uint64) ([]DirEntry, error) {
	logger := util.GetLogger("FS.ReadDir")
	logger.Trace().Uint64("id", id).Uint64("offset", offset).Msg("ReadDir called")

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if offset > 0 {
		return nil, nil
	}

	n, ok := fs.inodes.Get(id)
	if !ok {
		return nil, datafs.ErrNotFound
	}
	if !n.IsDir() {
		return nil, datafs.ErrNotDir
	}

	if id != RootID && !n.Visited {
		if err := fs.listRemoteLocked(ctx, &n); err != nil {
			logger.Error().Err(err).Str("path", n.Path).Msg("Failed to list directory")
			return nil, err
		}
	}

	children, _ := fs.inodes.Children(id)
	parent, _ := fs.inodes.Parent(id)

	entries := make([]DirEntry, 0, len(children)+2)
	entries = append(entries,
		DirEntry{ID: n.ID, Name: ".", Kind: datafs.KindDir, Offset: 0},
		DirEntry{ID: parent.ID, Name: "..", Kind: datafs.KindDir, Offset: 1},
	)
	for i, c := range children {
		entries = append(entries, DirEntry{ID: c.ID, Name: c.Name(), Kind: c.Kind, Offset: uint64(i + 2)})
	}
	return entries, nil
}

// listRemoteLocked stores every remote child of dir and marks it visited.
// Children already known keep their id and get their attributes refreshed.
func (fs *FileSystem) listRemoteLocked(ctx context.Context, dir *Inode) error {
	logger := util.GetLogger("FS.ReadDir")

	uri := PathToURI(dir.Path)
	entries, err := fs.remote.ListChildren(ctx, uri)
	if err != nil {
		return remoteErr(err)
	}

	added := 0
	for _, e := range entries {
		name := Basename(strings.TrimRight(URIToPath(e.URI), "/"))
		if name == "" {
			logger.Warn().Str("uri", e.URI).Msg("Skipping listing entry without a name")
			continue
		}
		path := joinPath(dir.Path, name)

		if known, ok := fs.inodes.GetByPath(path); ok {
			fresh := inodeFromMetadata(known.ID, path, &e.Metadata, known.UID, known.GID)
			fs.inodes.Update(known.ID, func(n *Inode) {
				n.Kind = fresh.Kind
				n.Mtime, n.Atime, n.Ctime = fresh.Mtime, fresh.Atime, fresh.Ctime
				if !fs.cache.Dirty(n.ID) {
					n.Size = fresh.Size
				}
			})
			continue
		}
		fs.inodes.Insert(inodeFromMetadata(fs.inodes.NextID(), path, &e.Metadata, fs.cfg.UID, fs.cfg.GID))
		added++
	}
	fs.inodes.SetVisited(dir.ID, true)
	metrics.SetInodes(fs.inodes.Len())
	logger.Debug().Str("path", dir.Path).Int("entries", len(entries)).Int("added", added).Msg("Listed directory")
	return nil
}

// Open registers a handle on the file id
func (fs *FileSystem) Open(id uint64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, ok := fs.inodes.Get(id)
	if !ok {
		return datafs.ErrNotFound
	}
	if n.IsDir() {
		return datafs.ErrIsDir
	}
	fs.cache.Open(id)
	metrics.SetCacheEntries(fs.cache.Len())
	return nil
}

// Read returns up to size bytes at offset, fetching the whole object on the
// first access. An empty result marks the end of the file.
func (fs *FileSystem) Read(ctx context.Context, id uint64, offset int64, size int) ([]byte, error) {
	logger := util.GetLogger("FS.Read")
	logger.Trace().Uint64("id", id).Int64("offset", offset).Int("size", size).Msg("Read called")

	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, ok := fs.inodes.Get(id)
	if !ok {
		return nil, datafs.ErrNotFound
	}
	if n.IsDir() {
		return nil, datafs.ErrIsDir
	}

	data, err := fs.cache.Read(id, offset, size, fs.fetcher(ctx, &n))
	metrics.SetCacheEntries(fs.cache.Len())
	if err != nil {
		logger.Error().Err(err).Str("path", n.Path).Msg("Failed to read")
		return nil, remoteErr(err)
	}
	return data, nil
}

// Write stores data at offset in the cached buffer and returns the number of
// bytes written. Nothing reaches the remote store until a flush.
func (fs *FileSystem) Write(ctx context.Context, id uint64, offset int64, data []byte) (uint32, error) {
	logger := util.GetLogger("FS.Write")
	logger.Trace().Uint64("id", id).Int64("offset", offset).Int("len", len(data)).Msg("Write called")

	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, ok := fs.inodes.Get(id)
	if !ok {
		return 0, datafs.ErrNotFound
	}
	if n.IsDir() {
		return 0, datafs.ErrIsDir
	}

	size, err := fs.cache.Write(id, offset, data, n.Size, fs.fetcher(ctx, &n))
	metrics.SetCacheEntries(fs.cache.Len())
	if err != nil {
		logger.Error().Err(err).Str("path", n.Path).Msg("Failed to write")
		return 0, remoteErr(err)
	}
	fs.inodes.SetSize(id, size)
	return uint32(len(data)), nil
}

// Fsync pushes unflushed writes of id to the remote store
func (fs *FileSystem) Fsync(ctx context.Context, id uint64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, ok := fs.inodes.Get(id)
	if !ok {
		return datafs.ErrNotFound
	}
	return fs.flushLocked(ctx, &n)
}

// Release drops a handle on id. Unflushed writes are pushed first; if that
// fails the entry stays cached and dirty for a later attempt.
func (fs *FileSystem) Release(ctx context.Context, id uint64) {
	logger := util.GetLogger("FS.Release")

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if n, ok := fs.inodes.Get(id); ok && fs.cache.Dirty(id) {
		if err := fs.flushLocked(ctx, &n); err != nil {
			logger.Error().Err(err).Str("path", n.Path).Msg("Write on close failed; keeping dirty buffer")
		} else {
			logger.Debug().Str("path", n.Path).Msg("Flushed on close")
		}
	}

	evicted, err := fs.cache.Release(id)
	if err != nil {
		logger.Warn().Err(err).Uint64("id", id).Msg("Release without cache entry")
		return
	}
	metrics.SetCacheEntries(fs.cache.Len())
	logger.Trace().Uint64("id", id).Bool("evicted", evicted).Msg("Released")
}

func (fs *FileSystem) flushLocked(ctx context.Context, n *Inode) error {
	if !fs.cache.Dirty(n.ID) {
		return nil
	}
	uri := PathToURI(n.Path)
	err := fs.cache.Flush(n.ID, func(data []byte) error {
		return fs.remote.WriteObject(ctx, uri, data)
	})
	metrics.RecordFlush(err == nil)
	if err != nil {
		return fmt.Errorf("%w: flush %s: %w", datafs.ErrRemoteIO, uri, err)
	}
	return nil
}

// Unlink is not supported
func (fs *FileSystem) Unlink(parent uint64, name string) error {
	return datafs.ErrUnsupported
}

// Rmdir is not supported
func (fs *FileSystem) Rmdir(parent uint64, name string) error {
	return datafs.ErrUnsupported
}

// fetcher reads the whole remote object behind n
func (fs *FileSystem) fetcher(ctx context.Context, n *Inode) FetchFunc {
	uri := PathToURI(n.Path)
	return func() ([]byte, error) {
		return fs.remote.ReadObject(ctx, uri)
	}
}

// remoteErr keeps not-found errors as they are and marks everything else as a
// remote i/o failure
func remoteErr(err error) error {
	if errors.Is(err, datafs.ErrNotFound) || errors.Is(err, datafs.ErrRemoteIO) {
		return err
	}
	return fmt.Errorf("%w: %w", datafs.ErrRemoteIO, err)
}
