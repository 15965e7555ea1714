// Package cropper implements the square crop box shown over a source image.
//
// The box is always 1:1 and always inside the image. Zoom is the view scale:
// zooming in shows less of the image, so the box side in image pixels is
// base/zoom, clamped to [MinBoxSize, min(W,H)].
package cropper

import (
	"context"
	"image"
	"math"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"

	"github.com/menta2k/icon-editor/pkg/subject"
	"github.com/menta2k/icon-editor/pkg/types"
)

// Config holds configuration for the crop box
type Config struct {
	// OutputSize is the side of the exported square.
	OutputSize int
	// ZoomStep is the relative zoom change of one ZoomIn/ZoomOut.
	ZoomStep float64
	// PresetRatio is the box side Enlarge grows to, as a fraction of min(W,H).
	PresetRatio float64
	// MinBoxSize is the smallest box side in image pixels.
	MinBoxSize int
}

// DefaultConfig returns the crop defaults
func DefaultConfig() Config {
	return Config{
		OutputSize:  512,
		ZoomStep:    0.1,
		PresetRatio: 1.0,
		MinBoxSize:  16,
	}
}

// Controller owns the crop box state for one image.
type Controller struct {
	img    image.Image
	config Config
	w, h   int

	cx, cy float64 // box center in image pixels, relative to bounds origin
	base   float64 // box side at zoom 1
	zoom   float64
}

// New creates a controller with default configuration
func New(img image.Image) *Controller {
	return NewWithConfig(img, DefaultConfig())
}

// NewWithConfig creates a controller with custom configuration. A nil image
// yields a nil controller, on which every operation is a no-op.
func NewWithConfig(img image.Image, config Config) *Controller {
	if img == nil || img.Bounds().Empty() {
		return nil
	}
	def := DefaultConfig()
	if config.OutputSize <= 0 {
		config.OutputSize = def.OutputSize
	}
	if config.ZoomStep <= 0 {
		config.ZoomStep = def.ZoomStep
	}
	if config.PresetRatio <= 0 || config.PresetRatio > 1 {
		config.PresetRatio = def.PresetRatio
	}
	if config.MinBoxSize <= 0 {
		config.MinBoxSize = def.MinBoxSize
	}

	b := img.Bounds()
	c := &Controller{
		img:    img,
		config: config,
		w:      b.Dx(),
		h:      b.Dy(),
	}
	c.Reset()
	return c
}

// Image returns the image the box is drawn over.
func (c *Controller) Image() image.Image {
	if c == nil {
		return nil
	}
	return c.img
}

// Zoom returns the current view scale.
func (c *Controller) Zoom() float64 {
	if c == nil {
		return 0
	}
	return c.zoom
}

// Box returns the crop rectangle in the image's coordinate space.
func (c *Controller) Box() image.Rectangle {
	if c == nil {
		return image.Rectangle{}
	}
	side := c.side()
	s := int(math.Round(side))
	x0 := int(math.Round(c.cx - side/2))
	y0 := int(math.Round(c.cy - side/2))
	x0 = max(0, min(x0, c.w-s))
	y0 = max(0, min(y0, c.h-s))

	origin := c.img.Bounds().Min
	return image.Rect(x0, y0, x0+s, y0+s).Add(origin)
}

// NormalizedBox returns the crop rectangle as a fraction of the image size.
func (c *Controller) NormalizedBox() types.Box {
	if c == nil {
		return types.Box{}
	}
	r := c.Box().Sub(c.img.Bounds().Min)
	return types.Box{
		X: float64(r.Min.X) / float64(c.w),
		Y: float64(r.Min.Y) / float64(c.h),
		W: float64(r.Dx()) / float64(c.w),
		H: float64(r.Dy()) / float64(c.h),
	}
}

// Reset restores the default box: the largest centered square at zoom 1.
func (c *Controller) Reset() {
	if c == nil {
		return
	}
	c.base = float64(min(c.w, c.h))
	c.zoom = 1
	c.cx = float64(c.w) / 2
	c.cy = float64(c.h) / 2
}

// Center moves the box so that its origin is ((W-side)/2, (H-side)/2).
func (c *Controller) Center() {
	if c == nil {
		return
	}
	c.cx = float64(c.w) / 2
	c.cy = float64(c.h) / 2
	c.clampCenter()
}

// Enlarge grows the box to the preset size around its center. It never shrinks the box.
func (c *Controller) Enlarge() {
	if c == nil {
		return
	}
	target := c.config.PresetRatio * float64(min(c.w, c.h))
	if target > c.side() {
		c.base = target * c.zoom
	}
	c.clampCenter()
}

// ZoomIn scales the view up by one step, which shrinks the box in image space.
func (c *Controller) ZoomIn() {
	if c == nil {
		return
	}
	c.setZoom(c.zoom * (1 + c.config.ZoomStep))
}

// ZoomOut scales the view down by one step, which grows the box in image space.
func (c *Controller) ZoomOut() {
	if c == nil {
		return
	}
	c.setZoom(c.zoom / (1 + c.config.ZoomStep))
}

// Move translates the box by (dx, dy) image pixels, stopping at the image edges.
func (c *Controller) Move(dx, dy float64) {
	if c == nil {
		return
	}
	c.cx += dx
	c.cy += dy
	c.clampCenter()
}

// SetBox places the box with its top-left corner at (x, y) and the given side,
// all in pixels relative to the image origin. Out of range values are clamped.
func (c *Controller) SetBox(x, y, size float64) {
	if c == nil {
		return
	}
	side := c.clampSide(size)
	c.base = side * c.zoom
	c.cx = x + side/2
	c.cy = y + side/2
	c.clampCenter()
}

// PlaceOnSubject centers the box on the subject found by locator, keeping its
// size. On error the box is left unchanged.
func (c *Controller) PlaceOnSubject(ctx context.Context, locator subject.Locator) (types.Primary, error) {
	if c == nil {
		return types.Primary{}, types.ErrNoImage
	}
	p, err := locator.Locate(ctx, c.img)
	if err != nil {
		return types.Primary{}, err
	}
	nx, ny := subject.Anchor(p)
	c.cx = nx * float64(c.w)
	c.cy = ny * float64(c.h)
	c.clampCenter()
	return p, nil
}

// Export crops the box and resamples it to the configured output size.
func (c *Controller) Export() (*image.NRGBA, error) {
	if c == nil {
		return nil, types.ErrNoImage
	}
	return c.ExportSize(c.config.OutputSize)
}

// ExportSize crops the box and resamples it to size x size with Catmull-Rom.
func (c *Controller) ExportSize(size int) (*image.NRGBA, error) {
	if c == nil || c.img == nil {
		return nil, types.ErrNoImage
	}
	if size <= 0 {
		size = c.config.OutputSize
	}
	cropped := imaging.Crop(c.img, c.Box())
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), cropped, cropped.Bounds(), xdraw.Src, nil)
	return dst, nil
}

func (c *Controller) side() float64 {
	return c.clampSide(c.base / c.zoom)
}

func (c *Controller) clampSide(side float64) float64 {
	lo := math.Min(float64(c.config.MinBoxSize), float64(min(c.w, c.h)))
	return math.Max(lo, math.Min(float64(min(c.w, c.h)), side))
}

// setZoom applies z and pulls it back to the range where the box side is not clamped.
func (c *Controller) setZoom(z float64) {
	side := c.clampSide(c.base / z)
	c.zoom = c.base / side
	c.clampCenter()
}

func (c *Controller) clampCenter() {
	half := c.side() / 2
	c.cx = math.Max(half, math.Min(float64(c.w)-half, c.cx))
	c.cy = math.Max(half, math.Min(float64(c.h)-half, c.cy))
}
