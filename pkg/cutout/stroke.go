package cutout

import (
	"image"
	"math"

	"golang.org/x/image/vector"

	"github.com/menta2k/icon-editor/pkg/types"
)

// kappa places cubic Bezier control points so four arcs approximate a circle.
const kappa = 0.5522847498

// StrokeMask rasterizes a round-capped, round-joined polyline of the given
// width into an anti-aliased coverage mask of size bounds.
func StrokeMask(bounds image.Rectangle, stroke types.Stroke, width float64) *image.Alpha {
	mask := image.NewAlpha(bounds)
	if len(stroke.Points) == 0 || width <= 0 {
		return mask
	}
	r := width / 2
	z := vector.NewRasterizer(0, 0)

	prev := stroke.Points[0]
	FillCircle(mask, z, prev.X, prev.Y, r)
	for _, p := range stroke.Points[1:] {
		fillSegment(mask, z, prev, p, r)
		FillCircle(mask, z, p.X, p.Y, r)
		prev = p
	}
	return mask
}

// FillCircle composites a filled anti-aliased circle onto mask. z may be nil.
func FillCircle(mask *image.Alpha, z *vector.Rasterizer, cx, cy, r float64) {
	if r <= 0 {
		return
	}
	area := image.Rect(
		int(math.Floor(cx-r)), int(math.Floor(cy-r)),
		int(math.Ceil(cx+r)), int(math.Ceil(cy+r)),
	).Intersect(mask.Bounds())
	if area.Empty() {
		return
	}
	if z == nil {
		z = vector.NewRasterizer(0, 0)
	}
	z.Reset(area.Dx(), area.Dy())

	ox, oy := float32(cx)-float32(area.Min.X), float32(cy)-float32(area.Min.Y)
	rr, k := float32(r), float32(r*kappa)
	z.MoveTo(ox+rr, oy)
	z.CubeTo(ox+rr, oy+k, ox+k, oy+rr, ox, oy+rr)
	z.CubeTo(ox-k, oy+rr, ox-rr, oy+k, ox-rr, oy)
	z.CubeTo(ox-rr, oy-k, ox-k, oy-rr, ox, oy-rr)
	z.CubeTo(ox+k, oy-rr, ox+rr, oy-k, ox+rr, oy)
	z.ClosePath()
	z.Draw(mask, area, image.Opaque, image.Point{})
}

// fillSegment composites the rectangle of half-width r around segment a-b.
func fillSegment(mask *image.Alpha, z *vector.Rasterizer, a, b types.Point, r float64) {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	nx, ny := -dy/length*r, dx/length*r

	area := image.Rect(
		int(math.Floor(math.Min(a.X, b.X)-r)), int(math.Floor(math.Min(a.Y, b.Y)-r)),
		int(math.Ceil(math.Max(a.X, b.X)+r)), int(math.Ceil(math.Max(a.Y, b.Y)+r)),
	).Intersect(mask.Bounds())
	if area.Empty() {
		return
	}
	z.Reset(area.Dx(), area.Dy())

	pt := func(x, y float64) (float32, float32) {
		return float32(x - float64(area.Min.X)), float32(y - float64(area.Min.Y))
	}
	z.MoveTo(pt(a.X+nx, a.Y+ny))
	z.LineTo(pt(b.X+nx, b.Y+ny))
	z.LineTo(pt(b.X-nx, b.Y-ny))
	z.LineTo(pt(a.X-nx, a.Y-ny))
	z.ClosePath()
	z.Draw(mask, area, image.Opaque, image.Point{})
}

// applyDstOut removes canvas alpha wherever the mask has coverage.
func applyDstOut(canvas *image.NRGBA, mask *image.Alpha) {
	b := canvas.Bounds().Intersect(mask.Bounds())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		mi := mask.PixOffset(b.Min.X, y)
		ci := canvas.PixOffset(b.Min.X, y)
		for x := b.Min.X; x < b.Max.X; x, mi, ci = x+1, mi+1, ci+4 {
			m := uint32(mask.Pix[mi])
			if m == 0 {
				continue
			}
			a := uint32(canvas.Pix[ci+3]) * (255 - m) / 255
			canvas.Pix[ci+3] = uint8(a)
			if a == 0 {
				canvas.Pix[ci], canvas.Pix[ci+1], canvas.Pix[ci+2] = 0, 0, 0
			}
		}
	}
}
