package types

import "time"

// DetectMode selects the detection schema variant sent to the recognition service.
type DetectMode string

const (
	// FreeForm asks for arbitrary non-overlapping item rectangles.
	FreeForm DetectMode = "freeform"
	// GridAware asks for a pocket grid with a cell rectangle and a tighter
	// item rectangle per occupied pocket.
	GridAware DetectMode = "grid"
)

// BoundingBox is a rectangle in integer pixel units, origin top-left.
// Out-of-bounds rectangles are corrected (or rejected) by geometry.Clamp
// rather than failing schema validation.
type BoundingBox struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Units  string `json:"units,omitempty"`
}

// ItemMetadata is the fixed descriptive field set attached to every item.
// All fields are mandatory in the wire schema, even when empty.
type ItemMetadata struct {
	Type            string `json:"type"`
	RulerOrIssuer   string `json:"ruler_or_issuer"`
	YearOrPeriod    string `json:"year_or_period"`
	MintOrPlace     string `json:"mint_or_place"`
	Denomination    string `json:"denomination"`
	SeriesOrCatalog string `json:"series_or_catalog"`
	Material        string `json:"material"`
	Condition       string `json:"condition"`
	Notes           string `json:"notes"`
}

// ItemCandidate is an unconfirmed detected item before clamping and cropping.
// FreeForm responses carry Bbox; GridAware responses carry CellBbox and
// ItemBbox, with ItemBbox guaranteed inside CellBbox by the prompt contract.
type ItemCandidate struct {
	ID          string       `json:"id" validate:"required"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Metadata    ItemMetadata `json:"metadata"`
	Bbox        *BoundingBox `json:"bbox,omitempty"`
	CellBbox    *BoundingBox `json:"cell_bbox,omitempty"`
	ItemBbox    *BoundingBox `json:"item_bbox,omitempty"`
}

// ImageDimensions is the pixel size the recognition service echoed back.
type ImageDimensions struct {
	Width  int `json:"width" validate:"min=1"`
	Height int `json:"height" validate:"min=1"`
}

// PageItems is the payload exchanged with the recognition service in both
// passes: the image dimensions and an ordered candidate list.
type PageItems struct {
	ImageDimensions ImageDimensions `json:"image_dimensions"`
	Items           []ItemCandidate `json:"items" validate:"dive"`
}

// ResolvedItem is a candidate that survived clamping and was cropped to disk.
type ResolvedItem struct {
	ID          string       `json:"id"`
	Bbox        BoundingBox  `json:"bbox"`
	CellBbox    *BoundingBox `json:"cell_bbox,omitempty"`
	ImageFile   string       `json:"image_file"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Metadata    ItemMetadata `json:"metadata"`
}

// SourcePage describes where the processed page image came from.
type SourcePage struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Image  string `json:"image"`
}

// PageManifest is the persisted record of one page run. It is written once
// per successful flow and never mutated; reprocessing the same page produces
// a new manifest at the same path.
type PageManifest struct {
	SourcePage  SourcePage     `json:"source_page"`
	ModelUsed   string         `json:"model_used"`
	GeneratedAt time.Time      `json:"generated_at"`
	Items       []ResolvedItem `json:"items"`
}

// CropRecord summarizes one crop output for the response body.
type CropRecord struct {
	ID   string      `json:"id"`
	Path string      `json:"path"`
	Bbox BoundingBox `json:"bbox"`
}
