package mocks

import (
	"context"

	"github.com/brettbedarf/datafs"
	"github.com/stretchr/testify/mock"
)

// MockRemoteStore implements datafs.RemoteStore for testing across packages
type MockRemoteStore struct {
	mock.Mock
}

func (m *MockRemoteStore) GetMetadata(ctx context.Context, uri string) (*datafs.Metadata, error) {
	args := m.Called(ctx, uri)

	// Handle function return types (for complex tests)
	if fn, ok := args.Get(0).(func(context.Context, string) *datafs.Metadata); ok {
		return fn(ctx, uri), args.Error(1)
	}

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*datafs.Metadata), args.Error(1)
}

func (m *MockRemoteStore) ListChildren(ctx context.Context, uri string) ([]datafs.Entry, error) {
	args := m.Called(ctx, uri)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]datafs.Entry), args.Error(1)
}

func (m *MockRemoteStore) ReadObject(ctx context.Context, uri string) ([]byte, error) {
	args := m.Called(ctx, uri)

	// Handle function return types (for complex tests)
	if fn, ok := args.Get(0).(func(context.Context, string) []byte); ok {
		return fn(ctx, uri), args.Error(1)
	}

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockRemoteStore) WriteObject(ctx context.Context, uri string, data []byte) error {
	// copy so later buffer mutation cannot change what the assertion sees
	cp := make([]byte, len(data))
	copy(cp, data)
	args := m.Called(ctx, uri, cp)
	return args.Error(0)
}

var _ datafs.RemoteStore = (*MockRemoteStore)(nil)
