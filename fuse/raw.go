package fuse

import (
	"context"
	"errors"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/brettbedarf/datafs"
	"github.com/brettbedarf/datafs/config"
	"github.com/brettbedarf/datafs/filesystem"
	"github.com/brettbedarf/datafs/internal/util"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/puzpuzpuz/xsync/v4"
)

// FileSystem is the set of driver operations the wire protocol is mapped onto
type FileSystem interface {
	Lookup(ctx context.Context, parent uint64, name string) (filesystem.Inode, error)
	GetAttr(id uint64) (filesystem.Inode, error)
	SetAttr(ctx context.Context, id uint64, req filesystem.SetAttrRequest) (filesystem.Inode, error)
	OpenDir(id uint64) error
	ReadDir(ctx context.Context, id uint64, offset uint64) ([]filesystem.DirEntry, error)
	Open(id uint64) error
	Read(ctx context.Context, id uint64, offset int64, size int) ([]byte, error)
	Write(ctx context.Context, id uint64, offset int64, data []byte) (uint32, error)
	Fsync(ctx context.Context, id uint64) error
	Release(ctx context.Context, id uint64)
	Unlink(parent uint64, name string) error
	Rmdir(parent uint64, name string) error
}

var _ FileSystem = (*filesystem.FileSystem)(nil)

// FuseRaw implements the low-level FUSE wire protocol
// It serves as protocol adapter between the FUSE and core filesystem
// See https://www.man7.org/linux//man-pages/man4/fuse.4.html
type FuseRaw struct {
	fuse.RawFileSystem
	fs           FileSystem
	server       *fuse.Server
	attrTimeout  time.Duration
	entryTimeout time.Duration

	// Directory listings are taken once per opendir and served from this
	// snapshot when the kernel comes back for the rest of a large listing.
	lastDirFh atomic.Uint64
	dirs      *xsync.Map[uint64, []filesystem.DirEntry]
}

func NewFuseRaw(fs FileSystem, cfg *config.Config) *FuseRaw {
	return &FuseRaw{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		fs:            fs,
		attrTimeout:   seconds(cfg.AttrTimeout),
		entryTimeout:  seconds(cfg.EntryTimeout),
		dirs:          xsync.NewMap[uint64, []filesystem.DirEntry](),
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (r *FuseRaw) Init(s *fuse.Server) {
	logger := util.GetLogger("Fuse.Init")
	logger.Debug().Msg("FUSE initialized")
	r.server = s
}

func (r *FuseRaw) OnUnmount() {
	logger := util.GetLogger("Fuse.OnUnmount")
	logger.Info().Msg("FUSE unmounted")
}

func (r *FuseRaw) String() string {
	return "FuseRaw"
}

// Handlers never observe cancellation; a started remote call runs to completion.
func opCtx() context.Context {
	return context.Background()
}

// toStatus maps driver errors onto errno replies
func toStatus(err error) fuse.Status {
	switch {
	case err == nil:
		return fuse.OK
	case errors.Is(err, datafs.ErrNotFound):
		return fuse.ENOENT
	case errors.Is(err, datafs.ErrUnsupported):
		return fuse.Status(syscall.ENOTSUP)
	case errors.Is(err, datafs.ErrNotDir):
		return fuse.ENOTDIR
	case errors.Is(err, datafs.ErrIsDir):
		return fuse.Status(syscall.EISDIR)
	default:
		return fuse.EIO
	}
}

func (r *FuseRaw) fillEntry(n *filesystem.Inode, out *fuse.EntryOut) {
	out.NodeId = n.ID
	out.Attr = n.Attr()
	out.SetEntryTimeout(r.entryTimeout)
	out.SetAttrTimeout(r.attrTimeout)
}

// Lookup is called by the kernel when the VFS wants to know
// about a file inside a directory.
func (r *FuseRaw) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	logger := util.GetLogger("Fuse.Lookup")
	logger.Trace().Uint64("parent", header.NodeId).Str("name", name).Msg("Lookup called")

	n, err := r.fs.Lookup(opCtx(), header.NodeId, name)
	if err != nil {
		return toStatus(err)
	}
	r.fillEntry(&n, out)
	return fuse.OK
}

// Forget is a no-op: inodes live for the whole session.
func (r *FuseRaw) Forget(nodeid, nlookup uint64) {}

func (r *FuseRaw) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	n, err := r.fs.GetAttr(input.NodeId)
	if err != nil {
		return toStatus(err)
	}
	out.Attr = n.Attr()
	out.SetTimeout(r.attrTimeout)
	return fuse.OK
}

func (r *FuseRaw) SetAttr(cancel <-chan struct{}, input *fuse.SetAttrIn, out *fuse.AttrOut) fuse.Status {
	logger := util.GetLogger("Fuse.SetAttr")
	logger.Trace().Uint64("id", input.NodeId).Uint32("valid", input.Valid).Msg("SetAttr called")

	var req filesystem.SetAttrRequest
	if size, ok := input.GetSize(); ok {
		req.Size = &size
	}
	if uid, ok := input.GetUID(); ok {
		req.UID = &uid
	}
	if gid, ok := input.GetGID(); ok {
		req.GID = &gid
	}
	if mode, ok := input.GetMode(); ok {
		req.Mode = &mode
	}
	if mtime, ok := input.GetMTime(); ok {
		req.Mtime = &mtime
	}

	n, err := r.fs.SetAttr(opCtx(), input.NodeId, req)
	if err != nil {
		return toStatus(err)
	}
	out.Attr = n.Attr()
	out.SetTimeout(r.attrTimeout)
	return fuse.OK
}

func (r *FuseRaw) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	if err := r.fs.OpenDir(input.NodeId); err != nil {
		return toStatus(err)
	}
	out.Fh = r.lastDirFh.Add(1)
	return fuse.OK
}

// listing returns the snapshot for the open directory handle, taking it from
// the driver at offset 0
func (r *FuseRaw) listing(input *fuse.ReadIn) ([]filesystem.DirEntry, fuse.Status) {
	if input.Offset == 0 {
		entries, err := r.fs.ReadDir(opCtx(), input.NodeId, 0)
		if err != nil {
			return nil, toStatus(err)
		}
		r.dirs.Store(input.Fh, entries)
		return entries, fuse.OK
	}
	if entries, ok := r.dirs.Load(input.Fh); ok {
		return entries, fuse.OK
	}
	entries, err := r.fs.ReadDir(opCtx(), input.NodeId, input.Offset)
	return entries, toStatus(err)
}

func dirMode(kind datafs.Kind) uint32 {
	if kind == datafs.KindDir {
		return syscall.S_IFDIR
	}
	return syscall.S_IFREG
}

func (r *FuseRaw) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	logger := util.GetLogger("Fuse.ReadDir")
	logger.Trace().Uint64("id", input.NodeId).Uint64("offset", input.Offset).Msg("ReadDir called")

	entries, status := r.listing(input)
	if !status.Ok() {
		return status
	}
	for _, e := range entries {
		if e.Offset < input.Offset {
			continue
		}
		if !out.AddDirEntry(fuse.DirEntry{Name: e.Name, Ino: e.ID, Mode: dirMode(e.Kind), Off: e.Offset + 1}) {
			// buffer full; the kernel asks again from the last offset
			break
		}
	}
	return fuse.OK
}

func (r *FuseRaw) ReadDirPlus(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	entries, status := r.listing(input)
	if !status.Ok() {
		return status
	}
	for _, e := range entries {
		if e.Offset < input.Offset {
			continue
		}
		entryOut := out.AddDirLookupEntry(fuse.DirEntry{Name: e.Name, Ino: e.ID, Mode: dirMode(e.Kind), Off: e.Offset + 1})
		if entryOut == nil {
			break
		}
		if e.Name == "." || e.Name == ".." {
			continue
		}
		if n, err := r.fs.GetAttr(e.ID); err == nil {
			r.fillEntry(&n, entryOut)
		}
	}
	return fuse.OK
}

func (r *FuseRaw) ReleaseDir(input *fuse.ReleaseIn) {
	r.dirs.Delete(input.Fh)
}

func (r *FuseRaw) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	logger := util.GetLogger("Fuse.Open")
	logger.Trace().Uint64("id", input.NodeId).Uint32("flags", input.Flags).Msg("Open called")

	return toStatus(r.fs.Open(input.NodeId))
}

func (r *FuseRaw) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	size := min(int(input.Size), len(buf))
	data, err := r.fs.Read(opCtx(), input.NodeId, int64(input.Offset), size)
	if err != nil {
		return nil, toStatus(err)
	}
	return fuse.ReadResultData(data), fuse.OK
}

func (r *FuseRaw) Write(cancel <-chan struct{}, input *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	written, err := r.fs.Write(opCtx(), input.NodeId, int64(input.Offset), data)
	return written, toStatus(err)
}

// Flush is sent on every close(2) of a file descriptor; pending writes are
// pushed here so close reports remote failures.
func (r *FuseRaw) Flush(cancel <-chan struct{}, input *fuse.FlushIn) fuse.Status {
	return toStatus(r.fs.Fsync(opCtx(), input.NodeId))
}

func (r *FuseRaw) Fsync(cancel <-chan struct{}, input *fuse.FsyncIn) fuse.Status {
	return toStatus(r.fs.Fsync(opCtx(), input.NodeId))
}

func (r *FuseRaw) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {
	r.fs.Release(opCtx(), input.NodeId)
}

func (r *FuseRaw) Unlink(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	return toStatus(r.fs.Unlink(header.NodeId, name))
}

func (r *FuseRaw) Rmdir(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	return toStatus(r.fs.Rmdir(header.NodeId, name))
}

func (r *FuseRaw) StatFs(cancel <-chan struct{}, header *fuse.InHeader, out *fuse.StatfsOut) fuse.Status {
	out.Bsize = 4096
	out.Frsize = 4096
	out.NameLen = 255
	return fuse.OK
}
