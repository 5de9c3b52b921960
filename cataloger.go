// Package albumcataloger catalogs heritage album pages: it detects the
// individual items on a photographed page with a vision language model,
// crops each one out, and writes a manifest describing the result.
//
// Detection runs in two passes against a strict JSON schema: a first pass
// proposes item regions and metadata, a second pass refines the boxes to
// pixel accuracy. If the refinement pass returns nothing, the first-pass
// list is used as is.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		albumcataloger "github.com/menta2k/album-cataloger"
//	)
//
//	func main() {
//		cat, err := albumcataloger.New(albumcataloger.Config{
//			Backend:   "ollama",
//			ServerURL: "http://localhost:11434",
//			Model:     "llava:13b",
//			OutputDir: "./out",
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		resp, err := cat.ProcessURL(context.Background(), "https://example.com/page1.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("%d items, manifest at %s", len(resp.Items), resp.ManifestPath)
//	}
//
// The package consists of three main layers:
//
// 1. Loader (pkg/loader): image acquisition from data URLs, object storage, or HTTP
// 2. Detection (pkg/detection): the two-pass schema-constrained model passes
// 3. Cropper (pkg/cropper): geometry clamping, crop files, and the page manifest
//
// pkg/pipeline ties the layers into one synchronous flow, and pkg/server
// exposes it over HTTP together with the collection read API.
package albumcataloger

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/menta2k/album-cataloger/pkg/client"
	"github.com/menta2k/album-cataloger/pkg/cropper"
	"github.com/menta2k/album-cataloger/pkg/detection"
	"github.com/menta2k/album-cataloger/pkg/loader"
	"github.com/menta2k/album-cataloger/pkg/ollamavision"
	"github.com/menta2k/album-cataloger/pkg/openaivision"
	"github.com/menta2k/album-cataloger/pkg/pipeline"
	"github.com/menta2k/album-cataloger/pkg/storage"
	"github.com/menta2k/album-cataloger/pkg/types"
)

// Version of the album cataloger library
const Version = "1.0.0"

// Config holds the knobs most embedders need. Anything not set falls back
// to the same defaults the server binary uses.
type Config struct {
	Backend   string // "openai" (default) or "ollama"
	ServerURL string
	APIKey    string
	Model     string

	OutputDir    string
	CropFormat   string // "png" (default) or "webp"
	DownscaleMax int
	MaxItems     int

	StorageBaseURL string
	StorageToken   string

	Logger zerolog.Logger
}

// Cataloger is the high-level entry point wrapping the processing flow.
type Cataloger struct {
	flow *pipeline.Flow
}

// New builds a Cataloger from Config.
func New(cfg Config) (*Cataloger, error) {
	var vc client.VisionClient
	var err error
	switch cfg.Backend {
	case "ollama":
		vc, err = ollamavision.NewClient(cfg.ServerURL, cfg.Model)
	default:
		vc, err = openaivision.NewClient(cfg.ServerURL, cfg.APIKey, cfg.Model)
	}
	if err != nil {
		return nil, err
	}

	store := storage.NewHTTPStore(cfg.StorageBaseURL, cfg.StorageToken)
	flow := pipeline.New(
		loader.New(store, cfg.Logger),
		detection.NewDetector(vc, cfg.Logger),
		loader.Options{},
		cropper.Config{
			OutputDir:    cfg.OutputDir,
			DownscaleMax: cfg.DownscaleMax,
			Format:       cfg.CropFormat,
		},
		pipeline.Limits{MaxItems: cfg.MaxItems},
		cfg.Logger,
	)
	return &Cataloger{flow: flow}, nil
}

// Process runs one page through the full flow.
func (c *Cataloger) Process(ctx context.Context, req pipeline.Request) (*pipeline.Response, error) {
	return c.flow.Process(ctx, req)
}

// ProcessDataURL processes an inline base64 data URL.
func (c *Cataloger) ProcessDataURL(ctx context.Context, dataURL string) (*pipeline.Response, error) {
	return c.flow.Process(ctx, pipeline.Request{Source: loader.Source{InlineDataURL: dataURL}})
}

// ProcessObject processes a gs:// object URI.
func (c *Cataloger) ProcessObject(ctx context.Context, objectURI string) (*pipeline.Response, error) {
	return c.flow.Process(ctx, pipeline.Request{Source: loader.Source{ObjectURI: objectURI}})
}

// ProcessURL processes a remote HTTP(S) image URL.
func (c *Cataloger) ProcessURL(ctx context.Context, imageURL string) (*pipeline.Response, error) {
	return c.flow.Process(ctx, pipeline.Request{Source: loader.Source{RemoteURL: imageURL}})
}

// ProcessGrid processes a page known to be a pocket grid, optionally with a
// rows/cols hint (pass zero to let the model infer the layout).
func (c *Cataloger) ProcessGrid(ctx context.Context, src loader.Source, rows, cols int) (*pipeline.Response, error) {
	return c.flow.Process(ctx, pipeline.Request{
		Source:   src,
		Mode:     types.GridAware,
		GridRows: rows,
		GridCols: cols,
	})
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
