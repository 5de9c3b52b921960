// Package storage provides read-only access to cloud object storage for page
// images, plus a directory-backed implementation for local runs and tests.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ObjectRef identifies one object in a bucket.
type ObjectRef struct {
	Bucket string
	Path   string
}

// ObjectStore fetches raw object bytes by bucket and path.
type ObjectStore interface {
	Fetch(ctx context.Context, ref ObjectRef) ([]byte, error)
}

// ParseObjectURI parses a gs://bucket/path/to/object reference.
func ParseObjectURI(uri string) (ObjectRef, error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return ObjectRef{}, fmt.Errorf("not an object URI: %s", uri)
	}
	bucket, objectPath, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || objectPath == "" {
		return ObjectRef{}, fmt.Errorf("object URI missing bucket or path: %s", uri)
	}
	return ObjectRef{Bucket: bucket, Path: objectPath}, nil
}

// ParseDownloadURL recognizes the hosted download-URL shape
// (firebasestorage.googleapis.com/v0/b/{bucket}/o/{object}) and resolves it
// to the underlying object reference. Returns ok=false for any other URL.
func ParseDownloadURL(rawURL string) (ObjectRef, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() != "firebasestorage.googleapis.com" {
		return ObjectRef{}, false
	}
	parts := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")
	var bucket, object string
	for i := 0; i < len(parts)-1; i++ {
		switch parts[i] {
		case "b":
			bucket = parts[i+1]
		case "o":
			object = parts[i+1]
		}
	}
	if bucket == "" || object == "" {
		return ObjectRef{}, false
	}
	decoded, err := url.PathUnescape(object)
	if err != nil {
		return ObjectRef{}, false
	}
	return ObjectRef{Bucket: bucket, Path: decoded}, true
}

// HTTPStore fetches objects over the storage JSON API media endpoint using
// ambient credentials-free public access or a bearer token.
type HTTPStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPStore builds an HTTPStore. baseURL defaults to the public Google
// Cloud Storage endpoint when empty.
func NewHTTPStore(baseURL, token string) *HTTPStore {
	if baseURL == "" {
		baseURL = "https://storage.googleapis.com"
	}
	return &HTTPStore{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch downloads one object.
func (s *HTTPStore) Fetch(ctx context.Context, ref ObjectRef) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media",
		s.baseURL, url.PathEscape(ref.Bucket), url.PathEscape(ref.Path))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("object fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("object fetch returned status %d for gs://%s/%s",
			resp.StatusCode, ref.Bucket, ref.Path)
	}
	return io.ReadAll(resp.Body)
}

// DirStore resolves objects against a local directory tree, one subdirectory
// per bucket. Used in tests and emulated runs.
type DirStore struct {
	Root string
}

// Fetch reads the object file from disk.
func (s *DirStore) Fetch(_ context.Context, ref ObjectRef) ([]byte, error) {
	p := filepath.Join(s.Root, ref.Bucket, filepath.FromSlash(ref.Path))
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("object not found gs://%s/%s: %w", ref.Bucket, ref.Path, err)
	}
	return data, nil
}
