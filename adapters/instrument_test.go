package adapters

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/brettbedarf/datafs"
	"github.com/brettbedarf/datafs/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ok", callStatus(nil))
	assert.Equal(t, "not_found", callStatus(fmt.Errorf("x: %w", datafs.ErrNotFound)))
	assert.Equal(t, "error", callStatus(errors.New("boom")))
}

func TestInstrumented_PassesThrough(t *testing.T) {
	t.Parallel()

	store := &mocks.MockRemoteStore{}
	ctx := context.Background()
	boom := errors.New("boom")
	store.On("GetMetadata", ctx, "data://a").Return(&datafs.Metadata{Size: 3}, nil).Once()
	store.On("ListChildren", ctx, "data://").Return(nil, boom).Once()
	store.On("ReadObject", ctx, "data://a").Return([]byte("abc"), nil).Once()
	store.On("WriteObject", ctx, "data://a", []byte("xyz")).Return(nil).Once()

	i := Instrument("test", store)

	meta, err := i.GetMetadata(ctx, "data://a")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), meta.Size)

	_, err = i.ListChildren(ctx, "data://")
	assert.ErrorIs(t, err, boom)

	data, err := i.ReadObject(ctx, "data://a")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)

	require.NoError(t, i.WriteObject(ctx, "data://a", []byte("xyz")))
	store.AssertExpectations(t)
}
