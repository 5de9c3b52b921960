// Command album-cataloger runs the catalog API server: the page-processing
// endpoint plus the collection read routes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/menta2k/album-cataloger/internal/config"
	"github.com/menta2k/album-cataloger/pkg/catalog"
	"github.com/menta2k/album-cataloger/pkg/client"
	"github.com/menta2k/album-cataloger/pkg/cropper"
	"github.com/menta2k/album-cataloger/pkg/detection"
	"github.com/menta2k/album-cataloger/pkg/loader"
	"github.com/menta2k/album-cataloger/pkg/ollamavision"
	"github.com/menta2k/album-cataloger/pkg/openaivision"
	"github.com/menta2k/album-cataloger/pkg/pipeline"
	"github.com/menta2k/album-cataloger/pkg/server"
	"github.com/menta2k/album-cataloger/pkg/storage"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	listen := flag.String("listen", "", "Listen address override")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}

	log := newLogger(cfg.Log)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func newLogger(cfg config.Log) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.Format == "console" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}

func run(cfg *config.Config, log zerolog.Logger) error {
	var store storage.ObjectStore
	if cfg.Storage.LocalRoot != "" {
		store = &storage.DirStore{Root: cfg.Storage.LocalRoot}
	} else {
		store = storage.NewHTTPStore(cfg.Storage.BaseURL, cfg.Storage.Token)
	}

	vc, err := newVisionClient(cfg.Recognition)
	if err != nil {
		return err
	}
	log.Info().Str("backend", cfg.Recognition.Backend).Str("model", vc.Model()).Msg("recognition backend ready")

	flow := pipeline.New(
		loader.New(store, log),
		detection.NewDetector(vc, log),
		loader.Options{
			Timeout:  time.Duration(cfg.Loader.TimeoutSeconds) * time.Second,
			MaxSide:  cfg.Loader.MaxSide,
			MaxBytes: cfg.Loader.MaxBytes,
		},
		cropper.Config{
			OutputDir:    cfg.Output.Dir,
			DownscaleMax: cfg.Output.DownscaleMax,
			Format:       cfg.Output.Format,
		},
		pipeline.Limits{MaxItems: cfg.Output.MaxItems},
		log,
	)

	var reader catalog.Reader
	if cfg.Catalog.DBPath != "" {
		docStore, err := catalog.Open(cfg.Catalog.DBPath)
		if err != nil {
			return fmt.Errorf("open catalog store: %w", err)
		}
		defer docStore.Close()
		reader = docStore

		if cfg.Catalog.CacheAddr != "" {
			cached := catalog.WithCache(docStore, cfg.Catalog.CacheAddr,
				time.Duration(cfg.Catalog.CacheTTLSeconds)*time.Second, log)
			defer cached.Close()
			reader = cached
			log.Info().Str("addr", cfg.Catalog.CacheAddr).Msg("catalog cache enabled")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := server.New(flow, reader, server.Options{
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		CORSOrigins:  cfg.Server.CORSOrigins,
	}, registry, log)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Listen).Str("output_dir", cfg.Output.Dir).Msg("listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func newVisionClient(cfg config.Recognition) (client.VisionClient, error) {
	switch cfg.Backend {
	case "ollama":
		return ollamavision.NewClient(cfg.URL, cfg.Model)
	default:
		return openaivision.NewClient(cfg.URL, cfg.APIKey, cfg.Model)
	}
}
