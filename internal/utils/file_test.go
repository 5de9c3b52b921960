package utils

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		in, fallback, want string
	}{
		{"Coin Top Left", "item", "coin-top-left"},
		{"  Mughal--Empire!!1858 ", "item", "mughal-empire-1858"},
		{"", "item-3", "item-3"},
		{"___", "fallback", "fallback"},
		{"page_07.PNG", "page", "page-07-png"},
	}
	for _, c := range cases {
		if got := Slugify(c.in, c.fallback); got != c.want {
			t.Errorf("Slugify(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSlugifyCapsLength(t *testing.T) {
	got := Slugify(strings.Repeat("a b ", 100), "item")
	if len(got) > 64 {
		t.Errorf("slug length %d exceeds 64", len(got))
	}
	if strings.HasSuffix(got, "-") || strings.HasPrefix(got, "-") {
		t.Errorf("slug %q has dangling dash", got)
	}
}

func TestSlugifyDeterministic(t *testing.T) {
	a := Slugify("Item #1 (obverse)", "item")
	b := Slugify("Item #1 (obverse)", "item")
	if a != b {
		t.Errorf("slugify not deterministic: %q vs %q", a, b)
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	// Second call on an existing directory is a no-op.
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir (existing): %v", err)
	}
}
