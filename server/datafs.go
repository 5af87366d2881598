package server

import (
	"github.com/brettbedarf/datafs"
	"github.com/brettbedarf/datafs/config"
	"github.com/brettbedarf/datafs/filesystem"
	dfuse "github.com/brettbedarf/datafs/fuse"
	"github.com/brettbedarf/datafs/internal/util"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// DataFs contains the core filesystem state and operations with abstractions
// over the underlying FUSE wire protocol implementation
type DataFs struct {
	*filesystem.FileSystem
	cfg    *config.Config
	server *fuse.Server
}

// New creates a DataFs backed by the given remote store.
func New(cfg *config.Config, remote datafs.RemoteStore) *DataFs {
	return &DataFs{
		FileSystem: filesystem.NewFS(cfg, remote),
		cfg:        cfg,
	}
}

// Serve mounts the filesystem at mountPoint and returns once the kernel has
// finished mounting. Requests are served in the background until Unmount.
func (fs *DataFs) Serve(mountPoint string) error {
	logger := util.GetLogger("Server")

	raw := dfuse.NewFuseRaw(fs.FileSystem, fs.cfg)
	opts := fs.cfg.MountOptions
	srv, err := fuse.NewServer(raw, mountPoint, &fuse.MountOptions{
		Name:       opts.Name,
		FsName:     opts.FsName,
		AllowOther: opts.AllowOther,
		Debug:      opts.Debug || fs.cfg.LogLvl == util.TraceLevel,
		Logger:     util.NewLogLogger("FuseServer", util.DebugLevel),
		// the driver handles one request at a time
		SingleThreaded: true,
	})
	if err != nil {
		return err
	}
	fs.server = srv

	go srv.Serve()
	if err := srv.WaitMount(); err != nil {
		return err
	}
	logger.Info().Str("mountpoint", mountPoint).Msg("Mounted")
	return nil
}

func (fs *DataFs) ServeAsync(mountPoint string) <-chan error {
	done := make(chan error, 1)

	go func() {
		done <- fs.Serve(mountPoint)
		close(done)
	}()

	return done
}

// Wait blocks until the filesystem is unmounted.
func (fs *DataFs) Wait() {
	if fs.server != nil {
		fs.server.Wait()
	}
}

// Unmount cleanly unmounts the filesystem.
func (fs *DataFs) Unmount() error {
	if fs.server == nil {
		return nil
	}
	return fs.server.Unmount()
}
