package adapters

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/brettbedarf/datafs"
	"github.com/brettbedarf/datafs/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRegister_SingleConnector(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	store := &mocks.MockRemoteStore{}

	assert.True(t, r.Register(S3Connector, store))
	got, err := r.Connector(S3Connector)

	require.NoError(t, err)
	assert.Same(t, store, got)
}

func TestRegister_DuplicateConnector(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	store1 := &mocks.MockRemoteStore{}
	store2 := &mocks.MockRemoteStore{}

	assert.True(t, r.Register("test", store1))
	assert.False(t, r.Register("test", store2))

	got, err := r.Connector("test")
	require.NoError(t, err)
	assert.Same(t, store1, got, "first registration wins")
}

func TestRegister_Concurrent(t *testing.T) {
	t.Parallel()
	var wg sync.WaitGroup
	r := NewRegistry()

	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheme := fmt.Sprintf("test%d", i)
			store := &mocks.MockRemoteStore{}
			r.Register(scheme, store)
			got, err := r.Connector(scheme)
			assert.NoError(t, err)
			assert.Same(t, store, got)
		}()
	}
	wg.Wait()
	assert.Len(t, r.Schemes(), 100)
}

func TestConnector_Resolution(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	drop := &mocks.MockRemoteStore{}
	dropWork := &mocks.MockRemoteStore{}
	r.Register("dropbox", drop)
	r.Register("dropbox-work", dropWork)

	got, err := r.Connector("dropbox-personal")
	require.NoError(t, err)
	assert.Same(t, drop, got, "prefix match")

	got, err = r.Connector("dropbox-work2")
	require.NoError(t, err)
	assert.Same(t, dropWork, got, "longest prefix wins")

	_, err = r.Connector("gdrive")
	assert.ErrorIs(t, err, datafs.ErrNotFound, "no default set")

	fallback := &mocks.MockRemoteStore{}
	r.SetDefault(fallback)
	got, err = r.Connector("gdrive")
	require.NoError(t, err)
	assert.Same(t, fallback, got)
}

func TestRegistry_Routes(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	s3 := &mocks.MockRemoteStore{}
	api := &mocks.MockRemoteStore{}
	r.Register("s3", s3)
	r.SetDefault(api)
	ctx := context.Background()

	s3.On("GetMetadata", ctx, "s3://b/k").Return(&datafs.Metadata{Size: 1}, nil).Once()
	s3.On("WriteObject", ctx, "s3://b/k", []byte("x")).Return(nil).Once()
	api.On("ListChildren", ctx, "data://").Return([]datafs.Entry{}, nil).Once()
	api.On("ReadObject", ctx, "dropbox://f").Return([]byte("y"), nil).Once()

	meta, err := r.GetMetadata(ctx, "s3://b/k")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), meta.Size)
	require.NoError(t, r.WriteObject(ctx, "s3://b/k", []byte("x")))
	_, err = r.ListChildren(ctx, "data://")
	require.NoError(t, err)
	data, err := r.ReadObject(ctx, "dropbox://f")
	require.NoError(t, err)
	assert.Equal(t, []byte("y"), data)

	s3.AssertExpectations(t)
	api.AssertExpectations(t)
	api.AssertNotCalled(t, "GetMetadata", mock.Anything, mock.Anything)
}

func TestRegistry_NoConnector(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, err := r.GetMetadata(context.Background(), "gdrive://x")
	assert.ErrorIs(t, err, datafs.ErrNotFound)
	assert.Error(t, r.WriteObject(context.Background(), "gdrive://x", nil))
}
