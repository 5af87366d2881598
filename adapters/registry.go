package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/brettbedarf/datafs"
	"github.com/puzpuzpuz/xsync/v4"
)

// Registry routes URIs to the connector registered for their scheme. It is
// itself a datafs.RemoteStore.
//
// A scheme is matched exactly first, then by the longest registered name it
// starts with ("dropbox-work" is served by "dropbox"), then by the default
// connector if one is set.
type Registry struct {
	connectors *xsync.Map[string, datafs.RemoteStore]
	fallback   datafs.RemoteStore
}

func NewRegistry() *Registry {
	return &Registry{connectors: xsync.NewMap[string, datafs.RemoteStore]()}
}

// Register ties a connector to a scheme. The first registration for a scheme
// wins; it reports whether store was registered.
func (r *Registry) Register(scheme string, store datafs.RemoteStore) bool {
	_, loaded := r.connectors.LoadOrStore(scheme, store)
	return !loaded
}

// SetDefault sets the connector serving schemes without a registration.
// It must be called before the registry is shared.
func (r *Registry) SetDefault(store datafs.RemoteStore) {
	r.fallback = store
}

// Schemes returns the registered scheme names
func (r *Registry) Schemes() []string {
	out := make([]string, 0, r.connectors.Size())
	r.connectors.Range(func(k string, _ datafs.RemoteStore) bool {
		out = append(out, k)
		return true
	})
	return out
}

// Connector returns the store serving scheme
func (r *Registry) Connector(scheme string) (datafs.RemoteStore, error) {
	if s, ok := r.connectors.Load(scheme); ok {
		return s, nil
	}
	var (
		best    datafs.RemoteStore
		bestLen int
	)
	r.connectors.Range(func(name string, s datafs.RemoteStore) bool {
		if len(name) > bestLen && strings.HasPrefix(scheme, name) {
			best, bestLen = s, len(name)
		}
		return true
	})
	if best != nil {
		return best, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("no connector for %q: %w", scheme, datafs.ErrNotFound)
}

func (r *Registry) resolve(uri string) (datafs.RemoteStore, error) {
	scheme, _, _ := strings.Cut(uri, "://")
	return r.Connector(scheme)
}

func (r *Registry) GetMetadata(ctx context.Context, uri string) (*datafs.Metadata, error) {
	s, err := r.resolve(uri)
	if err != nil {
		return nil, err
	}
	return s.GetMetadata(ctx, uri)
}

func (r *Registry) ListChildren(ctx context.Context, uri string) ([]datafs.Entry, error) {
	s, err := r.resolve(uri)
	if err != nil {
		return nil, err
	}
	return s.ListChildren(ctx, uri)
}

func (r *Registry) ReadObject(ctx context.Context, uri string) ([]byte, error) {
	s, err := r.resolve(uri)
	if err != nil {
		return nil, err
	}
	return s.ReadObject(ctx, uri)
}

func (r *Registry) WriteObject(ctx context.Context, uri string, data []byte) error {
	s, err := r.resolve(uri)
	if err != nil {
		return err
	}
	return s.WriteObject(ctx, uri, data)
}

var _ datafs.RemoteStore = (*Registry)(nil)
