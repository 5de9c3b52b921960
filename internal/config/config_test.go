package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Server.Listen != ":8080" {
		t.Errorf("listen %q", cfg.Server.Listen)
	}
	if cfg.Recognition.Backend != "openai" || cfg.Recognition.Model != "gpt-4o" {
		t.Errorf("recognition %+v", cfg.Recognition)
	}
	if cfg.Loader.MaxSide != 4096 {
		t.Errorf("max side %d", cfg.Loader.MaxSide)
	}
	if cfg.Output.DownscaleMax != 1400 || cfg.Output.Format != "png" {
		t.Errorf("output %+v", cfg.Output)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[server]
listen = ":9090"

[recognition]
backend = "ollama"
url = "http://localhost:11434"
model = "llava:13b"

[output]
format = "webp"
max_items = 12
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != ":9090" {
		t.Errorf("listen %q", cfg.Server.Listen)
	}
	if cfg.Recognition.Backend != "ollama" || cfg.Recognition.Model != "llava:13b" {
		t.Errorf("recognition %+v", cfg.Recognition)
	}
	if cfg.Output.Format != "webp" || cfg.Output.MaxItems != 12 {
		t.Errorf("output %+v", cfg.Output)
	}
	// untouched sections keep defaults
	if cfg.Loader.MaxSide != 4096 {
		t.Errorf("loader defaults lost: %+v", cfg.Loader)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
	t.Setenv("OUTPUT_DIR", "/data/out")
	t.Setenv("LISTEN_ADDR", ":7000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Recognition.APIKey != "sk-test" {
		t.Errorf("api key %q", cfg.Recognition.APIKey)
	}
	if cfg.Recognition.Model != "gpt-4o-mini" {
		t.Errorf("model %q", cfg.Recognition.Model)
	}
	if cfg.Output.Dir != "/data/out" {
		t.Errorf("output dir %q", cfg.Output.Dir)
	}
	if cfg.Server.Listen != ":7000" {
		t.Errorf("listen %q", cfg.Server.Listen)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad backend", func(c *Config) { c.Recognition.Backend = "gemini" }, "backend"},
		{"empty model", func(c *Config) { c.Recognition.Model = "" }, "model"},
		{"zero downscale", func(c *Config) { c.Output.DownscaleMax = 0 }, "downscale"},
		{"too many items", func(c *Config) { c.Output.MaxItems = 100 }, "max_items"},
		{"bad format", func(c *Config) { c.Output.Format = "jpeg" }, "format"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := Default()
			c.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), c.want) {
				t.Errorf("got %v, want error mentioning %q", err, c.want)
			}
		})
	}
}
