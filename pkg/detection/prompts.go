package detection

import (
	"fmt"

	"github.com/menta2k/album-cataloger/pkg/types"
)

// detectSystemPrompt states the hard constraints for the first pass:
// pixel-exact coordinates, true visual edges, non-overlap, unique ids.
func detectSystemPrompt(w, h int, c Constraints) string {
	base := fmt.Sprintf(`You are an expert image cataloguer. The user provides an album page image with multiple items (coins/stamps/etc.).
Return tight pixel bounding boxes around EACH physical item (not the page background), with brief details.

Hard rules:
- Coordinates MUST be INTEGER PIXELS relative to THIS image: width=%d, height=%d.
- Use { "units":"pixels" } on every box.
- DO NOT assume a regular grid. DO NOT output placeholder or rounded coordinates (e.g., 50/100/250).
- DO NOT guess uniform widths/heights. Snap to the actual visible edges of the item/holder.
- EXCLUDE white page margins and loose captions unless they are physically inside/attached to the same holder.
- Enforce NON-OVERLAP: IoU between two boxes must be <= 0.05, unless a merge clearly represents a single item.
- Bounds: 0 <= x < %d, 0 <= y < %d, x+width <= %d, y+height <= %d.
- Prefer fewer high-confidence boxes to many guesses.
- IDs must be unique and kebab-case (e.g., "item-01", "coin-top-left").`, w, h, w, h, w, h)

	if c.Mode == types.GridAware {
		grid := "\n- The page uses a pocket grid. First infer the row/column layout"
		if c.GridRows > 0 && c.GridCols > 0 {
			grid = fmt.Sprintf("\n- The page uses a pocket grid of roughly %d rows x %d columns", c.GridRows, c.GridCols)
		}
		base += grid + `, then return ONLY occupied pockets.
- For each occupied pocket return "cell_bbox" (the pocket) and "item_bbox" (the item inside it).
- "item_bbox" must lie fully inside "cell_bbox" and hug the item's visible edges.`
	}
	return base
}

func detectUserPrompt(maxItems int) string {
	return fmt.Sprintf(`Return strictly valid JSON only (no commentary).
Provide "image_dimensions" and "items".
Boxes must reflect real visual edges, not an assumed page layout and not round-number grids.
Cap items to %d.`, maxItems)
}

// refineSystemPrompt states the corrective second-pass tasks: tighten,
// dedup, merge/split, same bounds and overlap constraints.
func refineSystemPrompt(w, h int, c Constraints) string {
	base := fmt.Sprintf(`You are refining bounding boxes for an album page image with multiple items.
Tasks: tighten boxes to actual visible edges; remove duplicates/false positives; merge or split where appropriate.
Avoid quantized "grid-like" coordinates; prefer visually precise pixel edges even if messy.
Non-overlap constraint: IoU between distinct items <= 0.05 (merge if they represent the same physical item).
Bounds: 0 <= x < %d, 0 <= y < %d, x+width <= %d, y+height <= %d.`, w, h, w, h)

	if c.Mode == types.GridAware {
		base += `
Keep the pocket structure: every "item_bbox" must remain fully inside its "cell_bbox".`
	}
	return base
}

func refineUserPrompt(maxItems int) string {
	return fmt.Sprintf(`You are given the original page image and a preliminary list of items with boxes.
Return a corrected list that:
- removes false positives,
- tightens loose boxes,
- corrects positions/sizes that look like placeholders or neat grids,
- ensures each box encloses exactly one item,
- keeps "units":"pixels",
- and includes at most %d items.

Return strictly valid JSON per the same schema as detection.`, maxItems)
}
