package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStorePutGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc := json.RawMessage(`[{"id":"coins","name":"Coins of India"}]`)
	if err := s.Put(ctx, "collections", doc); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "collections")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(doc) {
		t.Errorf("got %s", got)
	}
}

func TestStoreGetMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get(context.Background(), "collection_details/nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestStorePutReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "collection_details/coins", json.RawMessage(`{"v":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "collection_details/coins", json.RawMessage(`{"v":2}`)); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "collection_details/coins")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"v":2}` {
		t.Errorf("got %s, want replacement", got)
	}
}

func TestStorePutRejectsInvalidJSON(t *testing.T) {
	s := openTestStore(t)
	if err := s.Put(context.Background(), "x", json.RawMessage(`{broken`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestStoreKeys(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"collections", "collection_details/a", "collection_details/b"} {
		if err := s.Put(ctx, k, json.RawMessage(`{}`)); err != nil {
			t.Fatal(err)
		}
	}
	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 3 || keys[0] != "collection_details/a" {
		t.Errorf("keys %v", keys)
	}
}
