package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brettbedarf/datafs"
	"github.com/brettbedarf/datafs/internal/util"
	"github.com/google/uuid"
)

const (
	dataTypeHeader  = "X-Data-Type"
	requestIDHeader = "X-Request-ID"

	dataTypeFile = "file"
	dataTypeDir  = "directory"
)

// HTTPClient is the subset of *http.Client used by HTTPStore
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPStore implements [datafs.RemoteStore] against the hosted data API.
// "data://" URIs live under /v1/data, every other connector under
// /v1/connector/{scheme}.
type HTTPStore struct {
	baseURL string
	apiKey  string
	client  HTTPClient
}

// NewHTTPStore returns a store talking to the API at baseURL. A zero timeout
// means no client timeout.
func NewHTTPStore(baseURL, apiKey string, timeout time.Duration) *HTTPStore {
	return NewHTTPStoreWithClient(baseURL, apiKey, &http.Client{Timeout: timeout})
}

func NewHTTPStoreWithClient(baseURL, apiKey string, client HTTPClient) *HTTPStore {
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

// dirListing is the JSON body returned when GETting a directory
type dirListing struct {
	Folders []struct {
		Name string `json:"name"`
	} `json:"folders"`
	Files []struct {
		Filename     string    `json:"filename"`
		Size         uint64    `json:"size"`
		LastModified time.Time `json:"last_modified"`
	} `json:"files"`
	Marker string `json:"marker,omitempty"` // set when more pages exist
}

// endpoint maps a URI onto its API URL
func (h *HTTPStore) endpoint(uri string) (string, error) {
	scheme, rest, found := strings.Cut(uri, "://")
	if !found || scheme == "" {
		return "", fmt.Errorf("invalid data uri %q", uri)
	}

	segs := strings.FieldsFunc(rest, func(r rune) bool { return r == '/' })
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	path := strings.Join(segs, "/")

	if scheme == "data" {
		return h.baseURL + "/v1/data/" + path, nil
	}
	return h.baseURL + "/v1/connector/" + url.PathEscape(scheme) + "/" + path, nil
}

func (h *HTTPStore) do(ctx context.Context, method, uri string, body []byte) (*http.Response, error) {
	logger := util.GetLogger("HTTPStore")

	endpoint, err := h.endpoint(uri)
	if err != nil {
		return nil, err
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return nil, err
	}
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Simple "+h.apiKey)
	}
	reqID := uuid.NewString()
	req.Header.Set(requestIDHeader, reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	logger.Trace().Str("method", method).Str("url", endpoint).Str("request_id", reqID).Msg("Sending request")
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, uri, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: %w", method, uri, datafs.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: unexpected status %d: %s", method, uri, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

func (h *HTTPStore) GetMetadata(ctx context.Context, uri string) (*datafs.Metadata, error) {
	resp, err := h.do(ctx, http.MethodHead, uri, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch t := resp.Header.Get(dataTypeHeader); t {
	case dataTypeDir:
		return &datafs.Metadata{Kind: datafs.KindDir}, nil
	case dataTypeFile, "":
		meta := &datafs.Metadata{Kind: datafs.KindFile}
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if size, err := strconv.ParseUint(cl, 10, 64); err == nil {
				meta.Size = size
			}
		} else if resp.ContentLength > 0 {
			meta.Size = uint64(resp.ContentLength)
		}
		if lm := resp.Header.Get("Last-Modified"); lm != "" {
			if mtime, err := http.ParseTime(lm); err == nil {
				meta.Modified = mtime
			}
		}
		return meta, nil
	default:
		return nil, fmt.Errorf("HEAD %s: unknown data type %q", uri, t)
	}
}

// ListChildren returns the first page of the directory listing
func (h *HTTPStore) ListChildren(ctx context.Context, uri string) ([]datafs.Entry, error) {
	logger := util.GetLogger("HTTPStore")

	resp, err := h.do(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var listing dirListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("GET %s: decode listing: %w", uri, err)
	}
	if listing.Marker != "" {
		logger.Warn().Str("uri", uri).Msg("Directory has more entries than the first page; only the first page is shown")
	}

	entries := make([]datafs.Entry, 0, len(listing.Folders)+len(listing.Files))
	for _, d := range listing.Folders {
		entries = append(entries, datafs.Entry{
			URI:      childURI(uri, d.Name),
			Metadata: datafs.Metadata{Kind: datafs.KindDir},
		})
	}
	for _, f := range listing.Files {
		entries = append(entries, datafs.Entry{
			URI:      childURI(uri, f.Filename),
			Metadata: datafs.Metadata{Kind: datafs.KindFile, Size: f.Size, Modified: f.LastModified},
		})
	}
	return entries, nil
}

func (h *HTTPStore) ReadObject(ctx context.Context, uri string) ([]byte, error) {
	resp, err := h.do(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("GET %s: read body: %w", uri, err)
	}
	return data, nil
}

func (h *HTTPStore) WriteObject(ctx context.Context, uri string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	resp, err := h.do(ctx, http.MethodPut, uri, data)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// childURI appends name to the directory uri
func childURI(dir, name string) string {
	if strings.HasSuffix(dir, "://") {
		return dir + name
	}
	return strings.TrimRight(dir, "/") + "/" + name
}

var _ datafs.RemoteStore = (*HTTPStore)(nil)
