// Package detection runs the two schema-constrained recognition passes over
// a page image: initial item detection and corrective refinement.
package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/menta2k/album-cataloger/pkg/client"
	"github.com/menta2k/album-cataloger/pkg/types"
)

// DefaultMaxItems caps the candidate list when the caller supplies none.
const DefaultMaxItems = 32

// EmptyError reports an empty or missing response body from the recognition
// service. Not retried by this layer.
type EmptyError struct {
	Pass string
}

func (e *EmptyError) Error() string {
	return fmt.Sprintf("%s pass returned empty response", e.Pass)
}

// SchemaError reports a response that failed schema validation. Not retried
// by this layer.
type SchemaError struct {
	Pass string
	Err  error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s pass returned malformed payload: %v", e.Pass, e.Err)
}
func (e *SchemaError) Unwrap() error { return e.Err }

// Constraints carries the hard limits communicated to the recognition
// service: schema variant, item cap, and optional grid hints.
type Constraints struct {
	Mode     types.DetectMode
	MaxItems int
	GridRows int
	GridCols int
}

func (c Constraints) withDefaults() Constraints {
	if c.Mode == "" {
		c.Mode = types.FreeForm
	}
	if c.MaxItems <= 0 {
		c.MaxItems = DefaultMaxItems
	}
	return c
}

// Detector drives both recognition passes through a VisionClient.
type Detector struct {
	client   client.VisionClient
	validate *validator.Validate
	log      zerolog.Logger
}

// NewDetector creates a detector with a vision client.
func NewDetector(vc client.VisionClient, log zerolog.Logger) *Detector {
	return &Detector{
		client:   vc,
		validate: validator.New(),
		log:      log,
	}
}

// Model reports the backend model identifier.
func (d *Detector) Model() string { return d.client.Model() }

// DetectItems runs the first pass over the full page.
func (d *Detector) DetectItems(ctx context.Context, imgB64 string, w, h int, c Constraints) (*types.PageItems, error) {
	c = c.withDefaults()
	raw, err := d.client.StructuredQuery(ctx, client.StructuredRequest{
		System:      detectSystemPrompt(w, h, c),
		UserParts:   []string{detectUserPrompt(c.MaxItems)},
		ImageB64:    imgB64,
		SchemaName:  "page_items",
		Schema:      PageItemsSchema(c.Mode, c.MaxItems),
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}
	return d.parsePayload("detection", raw)
}

// RefineItems re-submits the image with the preliminary candidate list for a
// corrective second pass under the same schema.
func (d *Detector) RefineItems(ctx context.Context, imgB64 string, w, h int, prior *types.PageItems, c Constraints) (*types.PageItems, error) {
	c = c.withDefaults()

	prelim := types.PageItems{
		ImageDimensions: types.ImageDimensions{Width: w, Height: h},
	}
	if prior != nil {
		prelim.Items = prior.Items
	}
	prelimJSON, err := json.Marshal(prelim)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal preliminary items: %w", err)
	}

	raw, err := d.client.StructuredQuery(ctx, client.StructuredRequest{
		System: refineSystemPrompt(w, h, c),
		UserParts: []string{
			refineUserPrompt(c.MaxItems),
			"Preliminary items JSON follows:",
			string(prelimJSON),
		},
		ImageB64:    imgB64,
		SchemaName:  "page_items",
		Schema:      PageItemsSchema(c.Mode, c.MaxItems),
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}
	return d.parsePayload("refinement", raw)
}

// Wire mirrors of the schema payload. Coordinates decode as floats so lax
// backends don't fail the whole pass; they are floored to integers here.
type wireBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Units  string  `json:"units"`
}

type wireItem struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Metadata    types.ItemMetadata `json:"metadata"`
	Bbox        *wireBox           `json:"bbox"`
	CellBbox    *wireBox           `json:"cell_bbox"`
	ItemBbox    *wireBox           `json:"item_bbox"`
}

type wirePage struct {
	ImageDimensions types.ImageDimensions `json:"image_dimensions"`
	Items           []wireItem            `json:"items"`
}

func (d *Detector) parsePayload(pass, raw string) (*types.PageItems, error) {
	raw = sanitizeModelJSON(raw)
	if strings.TrimSpace(raw) == "" {
		return nil, &EmptyError{Pass: pass}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	var page wirePage
	if err := dec.Decode(&page); err != nil {
		return nil, &SchemaError{Pass: pass, Err: err}
	}

	out := &types.PageItems{ImageDimensions: page.ImageDimensions}
	for _, it := range page.Items {
		out.Items = append(out.Items, types.ItemCandidate{
			ID:          it.ID,
			Name:        it.Name,
			Description: it.Description,
			Metadata:    it.Metadata,
			Bbox:        floorBox(it.Bbox),
			CellBbox:    floorBox(it.CellBbox),
			ItemBbox:    floorBox(it.ItemBbox),
		})
	}

	if err := d.validate.Struct(out); err != nil {
		return nil, &SchemaError{Pass: pass, Err: err}
	}
	return out, nil
}

func floorBox(b *wireBox) *types.BoundingBox {
	if b == nil {
		return nil
	}
	units := b.Units
	if units == "" {
		units = "pixels"
	}
	return &types.BoundingBox{
		X:      int(math.Floor(b.X)),
		Y:      int(math.Floor(b.Y)),
		Width:  int(math.Floor(b.Width)),
		Height: int(math.Floor(b.Height)),
		Units:  units,
	}
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments, and trailing commas from
// a model response and slices to the outermost object.
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
