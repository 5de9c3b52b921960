// Package config holds the application configuration, loaded once at
// process start and passed down explicitly.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Server contains HTTP listener configuration.
type Server struct {
	Listen       string   `toml:"listen"`
	CORSOrigins  []string `toml:"cors_origins"`
	MaxBodyBytes int64    `toml:"max_body_bytes"`
}

// Recognition selects and configures the vision model backend.
type Recognition struct {
	Backend string `toml:"backend"` // "openai" or "ollama"
	URL     string `toml:"url"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
}

// Loader bounds page image acquisition.
type Loader struct {
	MaxSide        int   `toml:"max_side"`
	TimeoutSeconds int   `toml:"timeout_seconds"`
	MaxBytes       int64 `toml:"max_bytes"`
}

// Output configures crop and manifest persistence.
type Output struct {
	Dir          string `toml:"dir"`
	Format       string `toml:"format"`
	DownscaleMax int    `toml:"downscale_max"`
	MaxItems     int    `toml:"max_items"`
}

// Storage configures the read-only object store for page images.
type Storage struct {
	BaseURL   string `toml:"base_url"`
	Token     string `toml:"token"`
	LocalRoot string `toml:"local_root"` // when set, objects resolve against a local directory
}

// Catalog configures the collection document store and its cache.
type Catalog struct {
	DBPath          string `toml:"db_path"`
	CacheAddr       string `toml:"cache_addr"`
	CacheTTLSeconds int    `toml:"cache_ttl_seconds"`
}

// Log configures logging output.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "console" or "json"
}

// Config is the full application configuration.
type Config struct {
	Server      Server      `toml:"server"`
	Recognition Recognition `toml:"recognition"`
	Loader      Loader      `toml:"loader"`
	Output      Output      `toml:"output"`
	Storage     Storage     `toml:"storage"`
	Catalog     Catalog     `toml:"catalog"`
	Log         Log         `toml:"log"`
}

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Server: Server{
			Listen:       ":8080",
			CORSOrigins:  []string{"*"},
			MaxBodyBytes: 20 << 20,
		},
		Recognition: Recognition{
			Backend: "openai",
			Model:   "gpt-4o",
		},
		Loader: Loader{
			MaxSide:        4096,
			TimeoutSeconds: 25,
			MaxBytes:       60 << 20,
		},
		Output: Output{
			Dir:          defaultOutputDir(),
			Format:       "png",
			DownscaleMax: 1400,
			MaxItems:     32,
		},
		Catalog: Catalog{
			DBPath:          "catalog.db",
			CacheTTLSeconds: 300,
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
	}
}

// defaultOutputDir resolves the crop output directory: explicit override,
// a working-tree path in emulated runs, or a temp path in production.
func defaultOutputDir() string {
	if dir := os.Getenv("OUTPUT_DIR"); dir != "" {
		return dir
	}
	if os.Getenv("FUNCTIONS_EMULATOR") != "" {
		cwd, err := os.Getwd()
		if err == nil {
			return filepath.Join(cwd, "temp", "images")
		}
	}
	return filepath.Join(os.TempDir(), "images")
}

// Load reads a TOML config file on top of the defaults and applies
// environment overrides. An empty path returns defaults with overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Recognition.APIKey == "" {
		cfg.Recognition.APIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.Recognition.Model = v
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("CATALOG_DB"); v != "" {
		cfg.Catalog.DBPath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Catalog.CacheAddr = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Server.Listen = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Recognition.Backend {
	case "openai", "ollama":
	default:
		return fmt.Errorf("recognition.backend must be openai or ollama, got %q", c.Recognition.Backend)
	}
	if c.Recognition.Model == "" {
		return fmt.Errorf("recognition.model must be set")
	}
	if c.Output.DownscaleMax < 1 {
		return fmt.Errorf("output.downscale_max must be positive")
	}
	if c.Output.MaxItems < 1 || c.Output.MaxItems > 64 {
		return fmt.Errorf("output.max_items must be between 1 and 64")
	}
	switch c.Output.Format {
	case "png", "webp":
	default:
		return fmt.Errorf("output.format must be png or webp, got %q", c.Output.Format)
	}
	if c.Loader.MaxSide < 1 {
		return fmt.Errorf("loader.max_side must be positive")
	}
	return nil
}
