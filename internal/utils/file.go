package utils

import (
	"os"
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns arbitrary text into a short filename-safe token: lowercase,
// runs of non-alphanumerics collapsed to single dashes, trimmed, capped at 64
// characters. Returns fallback when nothing survives.
func Slugify(s, fallback string) string {
	out := strings.ToLower(s)
	out = slugPattern.ReplaceAllString(out, "-")
	out = strings.Trim(out, "-")
	if len(out) > 64 {
		out = strings.Trim(out[:64], "-")
	}
	if out == "" {
		return fallback
	}
	return out
}

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}
