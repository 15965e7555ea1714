// Package cutout implements the background eraser: a transparent canvas sized
// to the editor container with the source image fitted and centered on it, a
// round eraser brush, and bounded undo.
package cutout

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"

	"github.com/menta2k/icon-editor/pkg/history"
	"github.com/menta2k/icon-editor/pkg/types"
)

var (
	// ErrDisposed is returned by every operation after Dispose.
	ErrDisposed = errors.New("cutout canvas disposed")
	// ErrCanvasTooLarge is returned when the container exceeds the canvas limits.
	ErrCanvasTooLarge = errors.New("cutout canvas too large")
)

const (
	MinBrushSize = 1
	MaxBrushSize = 200

	// DefaultMaxSize bounds each canvas side.
	DefaultMaxSize = 4096
)

// Config holds configuration for the cutout canvas
type Config struct {
	MinWidth     int
	MinHeight    int
	MaxWidth     int
	MaxHeight    int
	BrushSize    float64
	HistoryLimit int
}

// MaxSize returns the largest container the canvas accepts. Unset limits use
// DefaultMaxSize and never fall below the floors.
func (c Config) MaxSize() types.Size {
	def := DefaultConfig()
	size := types.Size{W: c.MaxWidth, H: c.MaxHeight}
	if size.W <= 0 {
		size.W = def.MaxWidth
	}
	if size.H <= 0 {
		size.H = def.MaxHeight
	}
	return types.Size{W: max(size.W, c.MinWidth), H: max(size.H, c.MinHeight)}
}

// DefaultConfig returns the cutout defaults
func DefaultConfig() Config {
	return Config{
		MinWidth:     300,
		MinHeight:    420,
		MaxWidth:     DefaultMaxSize,
		MaxHeight:    DefaultMaxSize,
		BrushSize:    25,
		HistoryLimit: history.DefaultLimit,
	}
}

// Brush is the armed eraser tool.
type Brush struct {
	Width float64
}

// Controller owns the cutout canvas and its undo history.
type Controller struct {
	config    Config
	canvas    *image.NRGBA
	placement image.Rectangle
	history   *history.Stack
	brush     *Brush
	brushSize float64
	disposed  bool

	// capture records a snapshot; it is history.Capture outside tests.
	capture func(image.Image) error
}

// New creates a controller with default configuration
func New(img image.Image, container types.Size) (*Controller, error) {
	return NewWithConfig(img, container, DefaultConfig())
}

// NewWithConfig builds the canvas for img inside a container of the given size.
// The canvas is max(MinWidth, container.W) by max(MinHeight, container.H); the
// image is scaled by min(w/iw, h/ih) and centered. The pristine canvas is the
// first history entry.
func NewWithConfig(img image.Image, container types.Size, config Config) (*Controller, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, types.ErrNoImage
	}
	def := DefaultConfig()
	if config.MinWidth <= 0 {
		config.MinWidth = def.MinWidth
	}
	if config.MinHeight <= 0 {
		config.MinHeight = def.MinHeight
	}
	if config.BrushSize <= 0 {
		config.BrushSize = def.BrushSize
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = def.HistoryLimit
	}

	if limit := config.MaxSize(); container.W > limit.W || container.H > limit.H {
		return nil, fmt.Errorf("%w: %dx%d exceeds %dx%d", ErrCanvasTooLarge, container.W, container.H, limit.W, limit.H)
	}

	w := max(config.MinWidth, container.W)
	h := max(config.MinHeight, container.H)
	canvas := image.NewNRGBA(image.Rect(0, 0, w, h))

	ib := img.Bounds()
	scale := math.Min(float64(w)/float64(ib.Dx()), float64(h)/float64(ib.Dy()))
	sw := max(1, int(math.Round(float64(ib.Dx())*scale)))
	sh := max(1, int(math.Round(float64(ib.Dy())*scale)))
	x0, y0 := (w-sw)/2, (h-sh)/2
	placement := image.Rect(x0, y0, x0+sw, y0+sh)
	xdraw.CatmullRom.Scale(canvas, placement, img, ib, xdraw.Over, nil)

	c := &Controller{
		config:    config,
		canvas:    canvas,
		placement: placement,
		history:   history.New(config.HistoryLimit),
		brushSize: clampBrush(config.BrushSize),
	}
	c.capture = c.history.Capture
	c.arm()
	if err := c.history.Capture(canvas); err != nil {
		return nil, fmt.Errorf("failed to capture initial snapshot: %w", err)
	}
	return c, nil
}

func clampBrush(size float64) float64 {
	return math.Max(MinBrushSize, math.Min(MaxBrushSize, size))
}

func (c *Controller) arm() {
	c.brush = &Brush{Width: c.brushSize}
}

// Size returns the canvas dimensions.
func (c *Controller) Size() types.Size {
	if c == nil || c.disposed {
		return types.Size{}
	}
	return types.Size{W: c.canvas.Bounds().Dx(), H: c.canvas.Bounds().Dy()}
}

// Placement returns where the source image was drawn on the canvas.
func (c *Controller) Placement() image.Rectangle {
	if c == nil {
		return image.Rectangle{}
	}
	return c.placement
}

// Image returns a copy of the current canvas.
func (c *Controller) Image() (*image.NRGBA, error) {
	if c == nil || c.disposed {
		return nil, ErrDisposed
	}
	return imaging.Clone(c.canvas), nil
}

// BrushSize returns the eraser stroke width.
func (c *Controller) BrushSize() float64 {
	if c == nil {
		return 0
	}
	return c.brushSize
}

// SetBrushSize changes the stroke width of the armed brush, clamped to
// [MinBrushSize, MaxBrushSize], and returns the applied width.
func (c *Controller) SetBrushSize(size float64) (float64, error) {
	if c == nil || c.disposed {
		return 0, ErrDisposed
	}
	c.brushSize = clampBrush(size)
	if c.brush != nil {
		c.brush.Width = c.brushSize
	}
	return c.brushSize, nil
}

// Erase applies a completed stroke and records a snapshot. A stroke with no
// points changes nothing and records nothing. The stroke is drawn on a copy
// that only replaces the canvas once its snapshot is recorded, so a failed
// capture leaves both unchanged.
func (c *Controller) Erase(stroke types.Stroke) error {
	if c == nil || c.disposed {
		return ErrDisposed
	}
	if len(stroke.Points) == 0 {
		return nil
	}
	mask := StrokeMask(c.canvas.Bounds(), stroke, c.brush.Width)
	next := imaging.Clone(c.canvas)
	applyDstOut(next, mask)
	if err := c.capture(next); err != nil {
		return fmt.Errorf("failed to capture snapshot: %w", err)
	}
	c.canvas = next
	return nil
}

// Undo reverts the last stroke. With a single snapshot left it does nothing
// and reports false. The restored snapshot is stretched to the current canvas
// size and a fresh brush is armed.
func (c *Controller) Undo() (bool, error) {
	if c == nil || c.disposed {
		return false, ErrDisposed
	}
	if !c.history.Pop() {
		return false, nil
	}
	snap, err := c.history.Restore()
	if err != nil {
		return false, err
	}

	b := c.canvas.Bounds()
	if snap.Bounds().Dx() != b.Dx() || snap.Bounds().Dy() != b.Dy() {
		snap = imaging.Resize(snap, b.Dx(), b.Dy(), imaging.CatmullRom)
	}
	draw.Draw(c.canvas, b, snap, snap.Bounds().Min, draw.Src)
	c.arm()
	return true, nil
}

// HistoryLen returns the number of snapshots held.
func (c *Controller) HistoryLen() int {
	if c == nil || c.disposed {
		return 0
	}
	return c.history.Len()
}

// Dispose releases the canvas and history. It is safe to call more than once.
func (c *Controller) Dispose() {
	if c == nil || c.disposed {
		return
	}
	c.disposed = true
	c.history.Clear()
	c.canvas = nil
	c.brush = nil
}

// Disposed reports whether Dispose has been called.
func (c *Controller) Disposed() bool {
	return c == nil || c.disposed
}
