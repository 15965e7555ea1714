package cropper

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/icon-editor/pkg/types"
)

var (
	subjectColor = color.NRGBA{0, 255, 0, 255}
	boxColor     = color.NRGBA{255, 204, 0, 255}
	centerColor  = color.NRGBA{255, 0, 0, 255}
	imageColor   = color.NRGBA{0, 170, 255, 255}
	shadeColor   = color.NRGBA{0, 0, 0, 128}
)

// Overlay renders the image with the area outside the crop box dimmed, the box
// outlined and its center marked. When subject is non-nil its box is drawn too.
func (c *Controller) Overlay(subject *types.Primary) *image.NRGBA {
	if c == nil {
		return nil
	}
	out := imaging.Clone(c.img)
	w, h := c.w, c.h

	box := c.Box().Sub(c.img.Bounds().Min)
	shadeOutside(out, box)

	stroke := int(math.Max(2, 0.004*float64(min(w, h))))
	cross := int(math.Max(4, 0.01*float64(min(w, h))))

	if subject != nil && subject.Box.W > 0 && subject.Box.H > 0 {
		drawRect(out, normalizedToPixels(subject.Box, w, h), subjectColor, stroke)
	}
	drawRect(out, box, boxColor, stroke)

	px, py := box.Min.X+box.Dx()/2, box.Min.Y+box.Dy()/2
	drawHLine(out, py, px-cross, px+cross, centerColor)
	drawVLine(out, px, py-cross, py+cross, centerColor)

	ix, iy := w/2, h/2
	drawHLine(out, iy, ix-6, ix+6, imageColor)
	drawVLine(out, ix, iy-6, iy+6, imageColor)

	return out
}

func normalizedToPixels(b types.Box, w, h int) image.Rectangle {
	x0 := int(b.X*float64(w) + 0.5)
	y0 := int(b.Y*float64(h) + 0.5)
	x1 := int((b.X+b.W)*float64(w) + 0.5)
	y1 := int((b.Y+b.H)*float64(h) + 0.5)
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	return image.Rect(x0, y0, x1, y1)
}

// shadeOutside blends shadeColor over every pixel not inside keep.
func shadeOutside(img *image.NRGBA, keep image.Rectangle) {
	b := img.Bounds()
	a := uint32(shadeColor.A)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if image.Pt(x, y).In(keep) {
				continue
			}
			i := img.PixOffset(x, y)
			for k := 0; k < 3; k++ {
				img.Pix[i+k] = uint8((uint32(img.Pix[i+k])*(255-a) + uint32(shadeColor.R)*a) / 255)
			}
		}
	}
}

func drawRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	for s := 0; s < stroke; s++ {
		drawHLine(img, r.Min.Y+s, r.Min.X, r.Max.X, c)
		drawHLine(img, r.Max.Y-1-s, r.Min.X, r.Max.X, c)
		drawVLine(img, r.Min.X+s, r.Min.Y, r.Max.Y, c)
		drawVLine(img, r.Max.X-1-s, r.Min.Y, r.Max.Y, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	x0 = max(x0, 0)
	x1 = min(x1, img.Bounds().Dx())
	for x := x0; x < x1; x++ {
		img.SetNRGBA(x, y, c)
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	y0 = max(y0, 0)
	y1 = min(y1, img.Bounds().Dy())
	for y := y0; y < y1; y++ {
		img.SetNRGBA(x, y, c)
	}
}
