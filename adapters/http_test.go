package adapters

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/brettbedarf/datafs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDataAPI serves an in-memory tree in the data API's wire format
type fakeDataAPI struct {
	mu    sync.Mutex
	dirs  map[string]dirListing
	files map[string][]byte
	puts  map[string][]byte
	auth  []string
	ids   []string
}

func newFakeDataAPI() *fakeDataAPI {
	return &fakeDataAPI{
		dirs:  make(map[string]dirListing),
		files: make(map[string][]byte),
		puts:  make(map[string][]byte),
	}
}

func (f *fakeDataAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	f.ids = append(f.ids, r.Header.Get(requestIDHeader))

	p := r.URL.Path
	switch r.Method {
	case http.MethodHead:
		if _, ok := f.dirs[p]; ok {
			w.Header().Set(dataTypeHeader, dataTypeDir)
			return
		}
		if data, ok := f.files[p]; ok {
			w.Header().Set(dataTypeHeader, dataTypeFile)
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.Header().Set("Last-Modified", "Wed, 01 May 2024 12:00:00 GMT")
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case http.MethodGet:
		if l, ok := f.dirs[p]; ok {
			_ = json.NewEncoder(w).Encode(l)
			return
		}
		if data, ok := f.files[p]; ok {
			_, _ = w.Write(data)
			return
		}
		if p == "/v1/data/broken" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.puts[p] = body
		f.files[p] = body
	}
}

func (f *fakeDataAPI) setFile(path string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = data
}

func (f *fakeDataAPI) setDir(path string, l dirListing) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirs[path] = l
}

func (f *fakeDataAPI) headers() (auth, ids []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.auth...), append([]string(nil), f.ids...)
}

func (f *fakeDataAPI) put(path string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts[path]
}

func newTestHTTPStore(t *testing.T) (*HTTPStore, *fakeDataAPI) {
	t.Helper()
	api := newFakeDataAPI()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return NewHTTPStore(srv.URL+"/", "secret", 5*time.Second), api
}

func TestHTTPStore_Endpoint(t *testing.T) {
	t.Parallel()

	h := NewHTTPStore("https://api.example.com/", "", 0)
	tests := []struct {
		uri  string
		want string
	}{
		{"data://", "https://api.example.com/v1/data/"},
		{"data://.my/foo.txt", "https://api.example.com/v1/data/.my/foo.txt"},
		{"dropbox://a b/c", "https://api.example.com/v1/connector/dropbox/a%20b/c"},
		{"s3://bucket/", "https://api.example.com/v1/connector/s3/bucket"},
	}
	for _, tt := range tests {
		got, err := h.endpoint(tt.uri)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.uri)
	}

	_, err := h.endpoint("no-scheme")
	assert.Error(t, err)
}

func TestHTTPStore_GetMetadata(t *testing.T) {
	t.Parallel()

	h, api := newTestHTTPStore(t)
	api.setFile("/v1/data/foo.txt", []byte("hello"))
	api.setDir("/v1/connector/dropbox/docs", dirListing{})

	meta, err := h.GetMetadata(context.Background(), "data://foo.txt")
	require.NoError(t, err)
	assert.Equal(t, datafs.KindFile, meta.Kind)
	assert.Equal(t, uint64(5), meta.Size)
	assert.True(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Equal(meta.Modified))

	meta, err = h.GetMetadata(context.Background(), "dropbox://docs")
	require.NoError(t, err)
	assert.Equal(t, datafs.KindDir, meta.Kind)

	_, err = h.GetMetadata(context.Background(), "data://missing")
	assert.ErrorIs(t, err, datafs.ErrNotFound)

	auth, ids := api.headers()
	require.Len(t, auth, 3)
	assert.Equal(t, "Simple secret", auth[0])
	assert.NotEmpty(t, ids[0], "requests carry a request id")
	assert.NotEqual(t, ids[0], ids[1])
}

func TestHTTPStore_ListChildren(t *testing.T) {
	t.Parallel()

	h, api := newTestHTTPStore(t)
	var l dirListing
	require.NoError(t, json.Unmarshal([]byte(`{
		"folders": [{"name": "sub"}],
		"files": [{"filename": "a.txt", "size": 3, "last_modified": "2024-05-01T12:00:00Z"}],
		"marker": "next-page"
	}`), &l))
	api.setDir("/v1/data/dir", l)
	api.setDir("/v1/data/", dirListing{})

	entries, err := h.ListChildren(context.Background(), "data://dir")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "data://dir/sub", entries[0].URI)
	assert.Equal(t, datafs.KindDir, entries[0].Kind)
	assert.Equal(t, "data://dir/a.txt", entries[1].URI)
	assert.Equal(t, uint64(3), entries[1].Size)

	entries, err = h.ListChildren(context.Background(), "data://")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHTTPStore_ReadWrite(t *testing.T) {
	t.Parallel()

	h, api := newTestHTTPStore(t)
	api.setFile("/v1/data/f.bin", []byte{1, 2, 3})

	data, err := h.ReadObject(context.Background(), "data://f.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	require.NoError(t, h.WriteObject(context.Background(), "data://new.txt", []byte("hello")))
	assert.Equal(t, []byte("hello"), api.put("/v1/data/new.txt"))

	require.NoError(t, h.WriteObject(context.Background(), "data://empty", nil))
	assert.Empty(t, api.put("/v1/data/empty"))

	_, err = h.ReadObject(context.Background(), "data://nope")
	assert.ErrorIs(t, err, datafs.ErrNotFound)

	_, err = h.ReadObject(context.Background(), "data://broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, datafs.ErrNotFound)
	assert.Contains(t, err.Error(), "500")
}

func TestChildURI(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "s3://bucket", childURI("s3://", "bucket"))
	assert.Equal(t, "data://a/b", childURI("data://a", "b"))
	assert.Equal(t, "data://a/b", childURI("data://a/", "b"))
}
