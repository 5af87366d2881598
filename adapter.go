// Package datafs contains core domain types and interfaces for the datafs filesystem
package datafs

import (
	"context"
	"errors"
	"time"
)

// RemoteStore defines the URI-addressed operations the filesystem needs from a
// remote object store. URIs have the form "{connector}://{remainder}".
//
// Implementations report a missing object with an error wrapping [ErrNotFound];
// any other error is treated as a remote I/O failure.
type RemoteStore interface {
	// GetMetadata returns the kind, size and modification time of the object at uri
	GetMetadata(ctx context.Context, uri string) (*Metadata, error)

	// ListChildren returns the direct children of the directory at uri.
	// Only the first page of a paginated listing is returned.
	ListChildren(ctx context.Context, uri string) ([]Entry, error)

	// ReadObject returns the whole content of the file at uri
	ReadObject(ctx context.Context, uri string) ([]byte, error)

	// WriteObject replaces the whole content of the file at uri
	WriteObject(ctx context.Context, uri string, data []byte) error
}

// Kind distinguishes directories from regular files
type Kind int

const (
	KindFile Kind = iota
	KindDir
)

func (k Kind) String() string {
	switch k {
	case KindDir:
		return "dir"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// Metadata contains standardized metadata across all connector types
type Metadata struct {
	Kind     Kind
	Size     uint64
	Modified time.Time // zero when the connector does not report it
}

// Entry is a single item of a directory listing
type Entry struct {
	URI string
	Metadata
}

var (
	// ErrNotFound reports an unknown id/path or a missing remote object
	ErrNotFound = errors.New("not found")

	// ErrUnsupported reports an operation the filesystem intentionally does not implement
	ErrUnsupported = errors.New("operation not supported")

	// ErrRemoteIO wraps any non not-found failure returned by a RemoteStore
	ErrRemoteIO = errors.New("remote i/o error")

	// ErrNotDir reports a directory operation on a file
	ErrNotDir = errors.New("not a directory")

	// ErrIsDir reports a file operation on a directory
	ErrIsDir = errors.New("is a directory")
)
