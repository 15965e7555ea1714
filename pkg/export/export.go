// Package export turns the active editor controller into 512x512 square or
// circular PNG artifacts.
package export

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"

	"github.com/disintegration/imaging"

	"github.com/menta2k/icon-editor/pkg/cropper"
	"github.com/menta2k/icon-editor/pkg/cutout"
	"github.com/menta2k/icon-editor/pkg/types"
)

// DefaultSize is the side of every exported icon.
const DefaultSize = 512

// Active is the controller currently shown. At most one field is set.
type Active struct {
	Crop   *cropper.Controller
	Cutout *cutout.Controller
}

// Artifact is one exported icon.
type Artifact struct {
	Shape types.Shape
	Image *image.NRGBA
	Data  []byte
}

// Width returns the artifact width in pixels.
func (a *Artifact) Width() int { return a.Image.Bounds().Dx() }

// Height returns the artifact height in pixels.
func (a *Artifact) Height() int { return a.Image.Bounds().Dy() }

// DataURL returns the PNG as a data URL for in-page preview.
func (a *Artifact) DataURL() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// WriteFile stores the PNG at path.
func (a *Artifact) WriteFile(path string) error {
	if err := os.WriteFile(path, a.Data, 0644); err != nil {
		return fmt.Errorf("failed to write icon: %w", err)
	}
	return nil
}

// Pipeline renders artifacts of a fixed size.
type Pipeline struct {
	size int
}

// New creates a pipeline producing DefaultSize icons
func New() *Pipeline {
	return &Pipeline{size: DefaultSize}
}

// NewWithSize creates a pipeline producing size x size icons
func NewWithSize(size int) *Pipeline {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pipeline{size: size}
}

// Size returns the output side length.
func (p *Pipeline) Size() int {
	return p.size
}

// Square renders the active controller into a square frame. The cutout canvas
// is fitted and centered on a transparent frame; the crop box is resampled
// directly.
func (p *Pipeline) Square(active Active) (*image.NRGBA, error) {
	switch {
	case active.Cutout != nil && !active.Cutout.Disposed():
		canvas, err := active.Cutout.Image()
		if err != nil {
			return nil, err
		}
		return FitSquare(canvas, p.size), nil
	case active.Crop != nil:
		return active.Crop.ExportSize(p.size)
	}
	return nil, types.ErrNoImage
}

// Circle renders the square frame and clips it to the inscribed circle.
func (p *Pipeline) Circle(active Active) (*image.NRGBA, error) {
	square, err := p.Square(active)
	if err != nil {
		return nil, err
	}
	return ClipCircle(square), nil
}

// Export renders and encodes the requested shape.
func (p *Pipeline) Export(active Active, shape types.Shape) (*Artifact, error) {
	var (
		img *image.NRGBA
		err error
	)
	switch shape {
	case types.ShapeSquare:
		img, err = p.Square(active)
	case types.ShapeCircle:
		img, err = p.Circle(active)
	default:
		return nil, fmt.Errorf("unknown shape: %q", shape)
	}
	if err != nil {
		return nil, err
	}

	data, err := Encode(img)
	if err != nil {
		return nil, err
	}
	return &Artifact{Shape: shape, Image: img, Data: data}, nil
}

// Encode writes img as PNG.
func Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.DefaultCompression)); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// FitSquare scales img to fit a size x size transparent frame, preserving its
// aspect ratio, and centers it.
func FitSquare(img image.Image, size int) *image.NRGBA {
	frame := imaging.New(size, size, color.Transparent)
	b := img.Bounds()
	if b.Empty() {
		return frame
	}
	var fitted *image.NRGBA
	if b.Dx() >= b.Dy() {
		fitted = imaging.Resize(img, size, 0, imaging.CatmullRom)
	} else {
		fitted = imaging.Resize(img, 0, size, imaging.CatmullRom)
	}
	return imaging.PasteCenter(frame, fitted)
}

// ClipCircle keeps the pixels of img inside the circle of radius size/2
// centered on the image, with an anti-aliased edge. Everything outside becomes
// transparent.
func ClipCircle(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	mask := image.NewAlpha(b)
	r := float64(min(b.Dx(), b.Dy())) / 2
	cutout.FillCircle(mask, nil, float64(b.Min.X)+float64(b.Dx())/2, float64(b.Min.Y)+float64(b.Dy())/2, r)

	out := image.NewNRGBA(b)
	draw.DrawMask(out, b, img, b.Min, mask, b.Min, draw.Over)
	return out
}
