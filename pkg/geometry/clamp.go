// Package geometry provides pure rectangle validation against image bounds.
package geometry

import (
	"math"

	"github.com/menta2k/album-cataloger/pkg/types"
)

// Clamp validates a candidate rectangle against image bounds and returns a
// corrected copy, or nil when the rectangle is degenerate. Coordinates and
// extents are floored to integers, negative origins shrink the corresponding
// extent, and overflow past the image edge shrinks the extent to fit. The
// function is deterministic and idempotent: Clamp(Clamp(b)) == Clamp(b).
func Clamp(bbox *types.BoundingBox, imgW, imgH int) *types.BoundingBox {
	return clamp(bbox, imgW, imgH, false)
}

// ClampAllowEmpty behaves like Clamp but skips the pre-clamp positivity
// check, for placeholder pocket cells whose extents may only become valid
// after the origin correction. A rectangle that is still non-positive after
// clamping is rejected either way.
func ClampAllowEmpty(bbox *types.BoundingBox, imgW, imgH int) *types.BoundingBox {
	return clamp(bbox, imgW, imgH, true)
}

func clamp(bbox *types.BoundingBox, imgW, imgH int, allowEmpty bool) *types.BoundingBox {
	if bbox == nil || imgW <= 0 || imgH <= 0 {
		return nil
	}

	x, y := bbox.X, bbox.Y
	w, h := bbox.Width, bbox.Height

	if !allowEmpty && (w <= 0 || h <= 0) {
		return nil
	}
	if x < 0 {
		w += x
		x = 0
	}
	if y < 0 {
		h += y
		y = 0
	}
	if x+w > imgW {
		w = imgW - x
	}
	if y+h > imgH {
		h = imgH - y
	}
	if w <= 0 || h <= 0 {
		return nil
	}
	if x >= imgW || y >= imgH {
		return nil
	}
	return &types.BoundingBox{X: x, Y: y, Width: w, Height: h, Units: "pixels"}
}

// IoU returns the intersection-over-union of two rectangles, 0 when either
// is degenerate or they do not overlap.
func IoU(a, b types.BoundingBox) float64 {
	if a.Width <= 0 || a.Height <= 0 || b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	x0 := math.Max(float64(a.X), float64(b.X))
	y0 := math.Max(float64(a.Y), float64(b.Y))
	x1 := math.Min(float64(a.X+a.Width), float64(b.X+b.Width))
	y1 := math.Min(float64(a.Y+a.Height), float64(b.Y+b.Height))
	if x1 <= x0 || y1 <= y0 {
		return 0
	}
	inter := (x1 - x0) * (y1 - y0)
	union := float64(a.Width*a.Height+b.Width*b.Height) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Contains reports whether inner lies fully within outer.
func Contains(outer, inner types.BoundingBox) bool {
	return inner.X >= outer.X && inner.Y >= outer.Y &&
		inner.X+inner.Width <= outer.X+outer.Width &&
		inner.Y+inner.Height <= outer.Y+outer.Height
}
