// Command catalog-import loads collection documents into the catalog
// database: a collection index file plus a directory of per-collection
// detail files. The API server only reads; this tool is the writer.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/menta2k/album-cataloger/pkg/catalog"
)

func main() {
	dbPath := flag.String("db", "catalog.db", "Path to the catalog database")
	collections := flag.String("collections", "", "JSON file holding the collection index")
	detailsDir := flag.String("details", "", "Directory of per-collection detail JSON files")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if *collections == "" && *detailsDir == "" {
		fmt.Fprintln(os.Stderr, "nothing to import: pass -collections and/or -details")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*dbPath, *collections, *detailsDir, log); err != nil {
		log.Fatal().Err(err).Msg("import failed")
	}
}

func run(dbPath, collections, detailsDir string, log zerolog.Logger) error {
	store, err := catalog.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open catalog store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	if collections != "" {
		if err := importFile(ctx, store, "collections", collections); err != nil {
			return err
		}
		log.Info().Str("file", collections).Msg("collection index imported")
	}

	if detailsDir != "" {
		entries, err := os.ReadDir(detailsDir)
		if err != nil {
			return fmt.Errorf("read details dir: %w", err)
		}
		n := 0
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			id := strings.TrimSuffix(e.Name(), ".json")
			key := "collection_details/" + id
			if err := importFile(ctx, store, key, filepath.Join(detailsDir, e.Name())); err != nil {
				return err
			}
			log.Info().Str("collection", id).Msg("collection details imported")
			n++
		}
		if n == 0 {
			log.Warn().Str("dir", detailsDir).Msg("no .json files found")
		}
	}

	keys, err := store.Keys(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("documents", len(keys)).Msg("import complete")
	return nil
}

func importFile(ctx context.Context, store *catalog.Store, key, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := store.Put(ctx, key, json.RawMessage(data)); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}
