// Package cropper extracts, downsamples, and persists the accepted item
// regions of a page, and writes the page manifest.
package cropper

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"github.com/menta2k/album-cataloger/internal/utils"
	"github.com/menta2k/album-cataloger/pkg/geometry"
	"github.com/menta2k/album-cataloger/pkg/types"
)

// ManifestWriteError reports a failed manifest write. It aborts the whole
// flow even when every crop succeeded.
type ManifestWriteError struct {
	Path string
	Err  error
}

func (e *ManifestWriteError) Error() string {
	return fmt.Sprintf("failed to write manifest %s: %v", e.Path, e.Err)
}
func (e *ManifestWriteError) Unwrap() error { return e.Err }

// Config holds crop output settings, resolved once at process start.
type Config struct {
	OutputDir    string
	DownscaleMax int    // longest side ceiling for crops, default 1400
	MinItemSide  int    // minimum item rect size before falling back to the pocket rect, default 24
	Format       string // "png" (default) or "webp", both lossless
}

func (c Config) withDefaults() Config {
	if c.DownscaleMax <= 0 {
		c.DownscaleMax = 1400
	}
	if c.MinItemSide <= 0 {
		c.MinItemSide = 24
	}
	if c.Format == "" {
		c.Format = "png"
	}
	return c
}

// Items are asked not to overlap beyond this IoU; crops past it are still
// written but flagged in the log.
const overlapTolerance = 0.05

// Cropper persists item crops and manifests for one output directory.
type Cropper struct {
	cfg Config
	log zerolog.Logger
}

// New creates a Cropper.
func New(cfg Config, log zerolog.Logger) *Cropper {
	return &Cropper{cfg: cfg.withDefaults(), log: log}
}

// Result is the outcome of one crop-and-persist run.
type Result struct {
	Items        []types.ResolvedItem
	Crops        []types.CropRecord
	Manifest     types.PageManifest
	ManifestPath string
}

// Run crops every candidate, skipping (not aborting) those whose rectangle
// fails clamping, then writes the page manifest. A failed crop write or
// manifest write aborts with an error.
func (c *Cropper) Run(img image.Image, w, h int, pageID, source, model string, mode types.DetectMode, candidates []types.ItemCandidate) (*Result, error) {
	if err := utils.EnsureDir(c.cfg.OutputDir); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	res := &Result{
		Items: []types.ResolvedItem{},
		Crops: []types.CropRecord{},
	}

	for idx, it := range candidates {
		fallback := fmt.Sprintf("item-%d", idx+1)
		slug := utils.Slugify(it.ID, fallback)

		rect := c.selectRect(it, mode)
		clamped := geometry.Clamp(rect, w, h)
		if clamped == nil {
			c.log.Warn().Str("item", slug).Interface("bbox", rect).Msg("skipping item with invalid bbox")
			continue
		}

		cell := geometry.ClampAllowEmpty(it.CellBbox, w, h)
		if mode == types.GridAware && cell != nil && !geometry.Contains(*cell, *clamped) {
			c.log.Warn().Str("item", slug).Msg("item rect extends outside its pocket rect")
		}
		for _, prev := range res.Items {
			if iou := geometry.IoU(prev.Bbox, *clamped); iou > overlapTolerance {
				c.log.Warn().Str("item", slug).Str("overlaps", prev.ID).Float64("iou", iou).
					Msg("accepted items overlap beyond tolerance")
			}
		}

		crop := imaging.Crop(img, image.Rect(clamped.X, clamped.Y, clamped.X+clamped.Width, clamped.Y+clamped.Height))
		b := crop.Bounds()
		if b.Dx() > c.cfg.DownscaleMax || b.Dy() > c.cfg.DownscaleMax {
			if b.Dx() >= b.Dy() {
				crop = imaging.Resize(crop, c.cfg.DownscaleMax, 0, imaging.Lanczos)
			} else {
				crop = imaging.Resize(crop, 0, c.cfg.DownscaleMax, imaging.Lanczos)
			}
		}

		outPath := filepath.Join(c.cfg.OutputDir, fmt.Sprintf("%s-%s.%s", pageID, slug, c.cfg.Format))
		if err := c.save(crop, outPath); err != nil {
			return nil, fmt.Errorf("failed to save crop %s: %w", outPath, err)
		}

		item := types.ResolvedItem{
			ID:          pageID + "-" + slug,
			Bbox:        *clamped,
			CellBbox:    cell,
			ImageFile:   outPath,
			Name:        it.Name,
			Description: it.Description,
			Metadata:    it.Metadata,
		}
		res.Items = append(res.Items, item)
		res.Crops = append(res.Crops, types.CropRecord{ID: item.ID, Path: outPath, Bbox: *clamped})
	}

	res.Manifest = types.PageManifest{
		SourcePage:  types.SourcePage{Width: w, Height: h, Image: source},
		ModelUsed:   model,
		GeneratedAt: time.Now().UTC(),
		Items:       res.Items,
	}
	res.ManifestPath = filepath.Join(c.cfg.OutputDir, pageID+"-manifest.json")
	if err := writeManifest(res.ManifestPath, res.Manifest); err != nil {
		return nil, err
	}
	return res, nil
}

// selectRect picks the rectangle to crop. Grid-aware pages prefer the item
// rect when it is at least MinItemSide on both axes, falling back to the
// pocket rect; free-form pages always use the item rect.
func (c *Cropper) selectRect(it types.ItemCandidate, mode types.DetectMode) *types.BoundingBox {
	if mode == types.GridAware {
		if it.ItemBbox != nil && it.ItemBbox.Width >= c.cfg.MinItemSide && it.ItemBbox.Height >= c.cfg.MinItemSide {
			return it.ItemBbox
		}
		return it.CellBbox
	}
	if it.Bbox != nil {
		return it.Bbox
	}
	return it.ItemBbox
}

func (c *Cropper) save(img image.Image, path string) error {
	if c.cfg.Format == "webp" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return webp.Encode(f, img, &webp.Options{Lossless: true})
	}
	return imaging.Save(img, path)
}

func writeManifest(path string, m types.PageManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return &ManifestWriteError{Path: path, Err: err}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &ManifestWriteError{Path: path, Err: err}
	}
	return nil
}
