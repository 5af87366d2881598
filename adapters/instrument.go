package adapters

import (
	"context"
	"errors"
	"time"

	"github.com/brettbedarf/datafs"
	"github.com/brettbedarf/datafs/internal/metrics"
)

// Instrumented records prometheus metrics for every call to the wrapped store
type Instrumented struct {
	name  string
	store datafs.RemoteStore
}

// Instrument wraps store, labelling its metrics with name
func Instrument(name string, store datafs.RemoteStore) *Instrumented {
	return &Instrumented{name: name, store: store}
}

func callStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, datafs.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func (i *Instrumented) record(op string, start time.Time, err error) {
	metrics.RecordRemoteCall(i.name, op, time.Since(start), callStatus(err))
}

func (i *Instrumented) GetMetadata(ctx context.Context, uri string) (*datafs.Metadata, error) {
	start := time.Now()
	meta, err := i.store.GetMetadata(ctx, uri)
	i.record("get_metadata", start, err)
	return meta, err
}

func (i *Instrumented) ListChildren(ctx context.Context, uri string) ([]datafs.Entry, error) {
	start := time.Now()
	entries, err := i.store.ListChildren(ctx, uri)
	i.record("list_children", start, err)
	return entries, err
}

func (i *Instrumented) ReadObject(ctx context.Context, uri string) ([]byte, error) {
	start := time.Now()
	data, err := i.store.ReadObject(ctx, uri)
	i.record("read_object", start, err)
	if err == nil {
		metrics.RecordBytesRead(len(data))
	}
	return data, err
}

func (i *Instrumented) WriteObject(ctx context.Context, uri string, data []byte) error {
	start := time.Now()
	err := i.store.WriteObject(ctx, uri, data)
	i.record("write_object", start, err)
	if err == nil {
		metrics.RecordBytesWritten(len(data))
	}
	return err
}

var _ datafs.RemoteStore = (*Instrumented)(nil)
