package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestParseObjectURI(t *testing.T) {
	ref, err := ParseObjectURI("gs://gallery-pages/albums/page_07.png")
	if err != nil {
		t.Fatalf("ParseObjectURI: %v", err)
	}
	if ref.Bucket != "gallery-pages" || ref.Path != "albums/page_07.png" {
		t.Errorf("got %+v", ref)
	}

	for _, bad := range []string{"http://x/y", "gs://", "gs://bucket-only", "gs://bucket/"} {
		if _, err := ParseObjectURI(bad); err == nil {
			t.Errorf("ParseObjectURI(%q) should fail", bad)
		}
	}
}

func TestParseDownloadURL(t *testing.T) {
	ref, ok := ParseDownloadURL(
		"https://firebasestorage.googleapis.com/v0/b/gallery.appspot.com/o/pages%2Fpage_07.png?alt=media&token=abc")
	if !ok {
		t.Fatal("expected download URL to parse")
	}
	if ref.Bucket != "gallery.appspot.com" || ref.Path != "pages/page_07.png" {
		t.Errorf("got %+v", ref)
	}

	if _, ok := ParseDownloadURL("https://example.com/v0/b/x/o/y"); ok {
		t.Error("foreign host should not parse")
	}
	if _, ok := ParseDownloadURL("https://firebasestorage.googleapis.com/v0/missing"); ok {
		t.Error("URL without bucket/object segments should not parse")
	}
}

func TestHTTPStoreFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Object names stay percent-encoded in the request path
		if r.URL.EscapedPath() != "/storage/v1/b/pages/o/album%2F1.png" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("alt") != "media" {
			t.Errorf("missing alt=media, got %q", r.URL.RawQuery)
		}
		w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, "")
	data, err := store.Fetch(context.Background(), ObjectRef{Bucket: "pages", Path: "album/1.png"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("got %q", data)
	}

	if _, err := store.Fetch(context.Background(), ObjectRef{Bucket: "pages", Path: "missing"}); err == nil {
		t.Error("expected error for missing object")
	}
}

func TestDirStoreFetch(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "pages", "album")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "1.png"), []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}

	store := &DirStore{Root: root}
	data, err := store.Fetch(context.Background(), ObjectRef{Bucket: "pages", Path: "album/1.png"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "data" {
		t.Errorf("got %q", data)
	}
}
