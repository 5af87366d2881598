package filesystem

import (
	"syscall"
	"time"

	"github.com/brettbedarf/datafs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

const (
	// RootID is the mount root, path ""
	RootID uint64 = fuse.FUSE_ROOT_ID
	// DataRootID is the fixed data directory directly below the root
	DataRootID uint64 = RootID + 1

	// Permission bits. Enforcement is left to the remote store.
	RootPerm uint32 = 0o550
	DirPerm  uint32 = 0o750
	FilePerm uint32 = 0o640

	blockSize = 4096
)

// DirTime is reported for directories, which carry no remote timestamps
var DirTime = time.Unix(1426147200, 0).UTC()

// Inode is one known filesystem entry. Values handed out by the store are
// copies; mutate through the store.
type Inode struct {
	ID      uint64
	Path    string
	Kind    datafs.Kind
	Size    uint64
	Perm    uint32 // permission bits only, the file type comes from Kind
	UID     uint32
	GID     uint32
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
	Visited bool // directory children fully listed from the remote store
}

func (n *Inode) IsDir() bool {
	return n.Kind == datafs.KindDir
}

// Name is the last path segment; empty for the root
func (n *Inode) Name() string {
	return Basename(n.Path)
}

// Attr converts the inode into fuse wire attributes
func (n *Inode) Attr() fuse.Attr {
	attr := fuse.Attr{
		Ino:     n.ID,
		Size:    n.Size,
		Blocks:  (n.Size + 511) / 512,
		Blksize: blockSize,
		Owner:   fuse.Owner{Uid: n.UID, Gid: n.GID},
	}
	if n.IsDir() {
		attr.Mode = syscall.S_IFDIR | n.Perm
		attr.Nlink = 2
	} else {
		attr.Mode = syscall.S_IFREG | n.Perm
		attr.Nlink = 1
	}
	attr.Atime, attr.Atimensec = unixTime(n.Atime)
	attr.Mtime, attr.Mtimensec = unixTime(n.Mtime)
	attr.Ctime, attr.Ctimensec = unixTime(n.Ctime)
	return attr
}

func unixTime(t time.Time) (uint64, uint32) {
	if t.IsZero() || t.Unix() < 0 {
		return 0, 0
	}
	return uint64(t.Unix()), uint32(t.Nanosecond())
}

// newDirInode returns a directory inode with the fixed directory timestamps
func newDirInode(id uint64, path string, perm, uid, gid uint32) Inode {
	return Inode{
		ID:    id,
		Path:  path,
		Kind:  datafs.KindDir,
		Perm:  perm,
		UID:   uid,
		GID:   gid,
		Atime: DirTime,
		Mtime: DirTime,
		Ctime: DirTime,
	}
}

// inodeFromMetadata builds an inode for a remote object. Files take their
// timestamps from the remote modification time.
func inodeFromMetadata(id uint64, path string, meta *datafs.Metadata, uid, gid uint32) Inode {
	if meta.Kind == datafs.KindDir {
		return newDirInode(id, path, DirPerm, uid, gid)
	}
	mtime := meta.Modified
	if mtime.IsZero() {
		mtime = DirTime
	}
	return Inode{
		ID:    id,
		Path:  path,
		Kind:  datafs.KindFile,
		Size:  meta.Size,
		Perm:  FilePerm,
		UID:   uid,
		GID:   gid,
		Atime: mtime,
		Mtime: mtime,
		Ctime: mtime,
	}
}
