package filesystem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathToURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
	}{
		{"s3/bucket/key.txt", "s3://bucket/key.txt"},
		{"/s3/bucket/key.txt", "s3://bucket/key.txt"},
		{"dropbox", "dropbox://"},
		{"data", "data://"},
		{"data/a/b/c", "data://a/b/c"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, PathToURI(tt.path))
		})
	}
}

func TestURIToPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		uri  string
		want string
	}{
		{"s3://bucket/key.txt", "s3/bucket/key.txt"},
		{"dropbox://", "dropbox"},
		{"://", DataRoot},
		{"://ignored", DataRoot},
		{"", DataRoot},
		{"foo.txt", "data/foo.txt"},
		{"data://x/y", "data/x/y"},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, URIToPath(tt.uri))
		})
	}
}

func TestPathURIRoundTrip(t *testing.T) {
	t.Parallel()

	paths := []string{"s3", "s3/bucket", "s3/bucket/key.txt", "data/foo.txt", "dropbox/a/b/c.bin"}
	for _, p := range paths {
		assert.Equal(t, p, URIToPath(PathToURI(p)), "path %q", p)
	}

	uris := []string{"s3://bucket/key.txt", "data://foo.txt", "dropbox://a/b"}
	for _, u := range uris {
		assert.Equal(t, u, PathToURI(URIToPath(u)), "uri %q", u)
	}
}

func TestBasename(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "key.txt", Basename("s3/bucket/key.txt"))
	assert.Equal(t, "s3", Basename("s3"))
	assert.Equal(t, "", Basename(""))
}

func TestSplitJoinPath(t *testing.T) {
	t.Parallel()

	assert.Empty(t, splitPath(""))
	assert.Equal(t, []string{"a", "b"}, splitPath("/a//b/"))
	assert.Equal(t, "a", joinPath("", "a"))
	assert.Equal(t, "a/b", joinPath("a", "b"))
}
