package detection

import (
	"encoding/json"

	"github.com/menta2k/album-cataloger/pkg/types"
)

// metadataSchema enumerates the fixed descriptive field set. Every field is
// required even when empty, and no undeclared fields are accepted.
func metadataSchema() map[string]any {
	fields := []string{
		"type", "ruler_or_issuer", "year_or_period", "mint_or_place",
		"denomination", "series_or_catalog", "material", "condition", "notes",
	}
	props := map[string]any{}
	for _, f := range fields {
		props[f] = map[string]any{"type": "string"}
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             fields,
	}
}

func bboxSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"x":      map[string]any{"type": "integer", "minimum": 0},
			"y":      map[string]any{"type": "integer", "minimum": 0},
			"width":  map[string]any{"type": "integer", "minimum": 1},
			"height": map[string]any{"type": "integer", "minimum": 1},
			"units":  map[string]any{"type": "string", "enum": []string{"pixels"}},
		},
		"required": []string{"x", "y", "width", "height", "units"},
	}
}

// PageItemsSchema builds the strict response schema used by both passes.
// Every object enumerates all permitted fields with additionalProperties
// disabled; the item cap is tightened to maxItems at runtime.
func PageItemsSchema(mode types.DetectMode, maxItems int) json.RawMessage {
	itemProps := map[string]any{
		"id":          map[string]any{"type": "string", "minLength": 1},
		"name":        map[string]any{"type": "string"},
		"description": map[string]any{"type": "string"},
		"metadata":    metadataSchema(),
	}
	required := []string{"id", "name", "description", "metadata"}

	switch mode {
	case types.GridAware:
		itemProps["cell_bbox"] = bboxSchema()
		itemProps["item_bbox"] = bboxSchema()
		required = append(required, "cell_bbox", "item_bbox")
	default:
		itemProps["bbox"] = bboxSchema()
		required = append(required, "bbox")
	}

	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"image_dimensions": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"width":  map[string]any{"type": "integer", "minimum": 1},
					"height": map[string]any{"type": "integer", "minimum": 1},
				},
				"required": []string{"width", "height"},
			},
			"items": map[string]any{
				"type":     "array",
				"maxItems": maxItems,
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties":           itemProps,
					"required":             required,
				},
			},
		},
		"required": []string{"image_dimensions", "items"},
	}

	raw, _ := json.Marshal(schema)
	return raw
}
