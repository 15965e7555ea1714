// Package saliency is an offline subject locator based on edge strength and
// brightness. It needs no model server and is used when no vision backend is
// configured.
package saliency

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/menta2k/icon-editor/pkg/subject"
	"github.com/menta2k/icon-editor/pkg/types"
)

// Config holds configuration for subject detection
type Config struct {
	EdgeThreshold   float64
	ContrastWeight  float64
	ColorWeight     float64
	MinSubjectRatio float64
	// MaxDim is the working resolution; larger images are downscaled first.
	MaxDim int
	// Keep is the fraction of the best window score a window needs to join the subject box.
	Keep float64
}

// DefaultConfig returns the detector defaults
func DefaultConfig() Config {
	return Config{
		EdgeThreshold:   0.01,
		ContrastWeight:  0.3,
		ColorWeight:     0.2,
		MinSubjectRatio: 0.05,
		MaxDim:          256,
		Keep:            0.9,
	}
}

// Locator finds the most salient area of an image
type Locator struct {
	config Config
}

var _ subject.Locator = (*Locator)(nil)

// New creates a Locator with default configuration
func New() *Locator {
	return &Locator{config: DefaultConfig()}
}

// NewWithConfig creates a Locator with custom configuration
func NewWithConfig(config Config) *Locator {
	if config.MaxDim <= 0 {
		config.MaxDim = DefaultConfig().MaxDim
	}
	if config.Keep <= 0 || config.Keep > 1 {
		config.Keep = DefaultConfig().Keep
	}
	return &Locator{config: config}
}

// Region represents a rectangular region of interest
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
	Score  float64
}

// Center returns the center point of the region
func (r Region) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Area returns the area of the region
func (r Region) Area() int {
	return r.Width * r.Height
}

// Locate returns the salient subject of img in normalized coordinates.
func (l *Locator) Locate(ctx context.Context, img image.Image) (types.Primary, error) {
	work := imaging.Clone(img)
	if b := work.Bounds(); b.Dx() > l.config.MaxDim || b.Dy() > l.config.MaxDim {
		work = imaging.Fit(work, l.config.MaxDim, l.config.MaxDim, imaging.Box)
	}
	w, h := work.Bounds().Dx(), work.Bounds().Dy()

	regions, err := l.regions(ctx, work)
	if err != nil {
		return types.Primary{}, err
	}
	if len(regions) == 0 {
		return types.Primary{}, subject.ErrNoSubject
	}

	best, worst := regions[0].Score, regions[len(regions)-1].Score
	if best-worst < 1e-3 {
		// Flat image: nothing stands out.
		return types.Primary{}, subject.ErrNoSubject
	}

	x0, y0, x1, y1 := w, h, 0, 0
	for _, r := range regions {
		if r.Score < best*l.config.Keep {
			break
		}
		x0 = min(x0, r.X)
		y0 = min(y0, r.Y)
		x1 = max(x1, r.X+r.Width)
		y1 = max(y1, r.Y+r.Height)
	}

	box := types.Box{
		X: float64(x0) / float64(w),
		Y: float64(y0) / float64(h),
		W: float64(x1-x0) / float64(w),
		H: float64(y1-y0) / float64(h),
	}
	return types.Primary{
		Label:      "salient region",
		Confidence: math.Min(1, best),
		Box:        box,
		Cx:         box.X + box.W/2,
		Cy:         box.Y + box.H/2,
	}, nil
}

// Regions returns candidate regions of img sorted by score, best first.
func (l *Locator) Regions(ctx context.Context, img image.Image) ([]Region, error) {
	return l.regions(ctx, imaging.Clone(img))
}

func (l *Locator) regions(ctx context.Context, img *image.NRGBA) ([]Region, error) {
	width, height := img.Bounds().Dx(), img.Bounds().Dy()

	sat, err := l.summedSaliency(ctx, img)
	if err != nil {
		return nil, err
	}

	minArea := int(float64(width*height) * l.config.MinSubjectRatio)
	short := min(width, height)

	var regions []Region
	for _, windowSize := range []int{short / 8, short / 4, short / 3, short / 2} {
		if windowSize < 10 || windowSize*windowSize < minArea {
			continue
		}
		step := max(1, windowSize/8)
		for y := 0; y <= height-windowSize; y += step {
			for x := 0; x <= width-windowSize; x += step {
				score := regionScore(sat, width, x, y, windowSize, windowSize)
				if score > l.config.EdgeThreshold {
					regions = append(regions, Region{X: x, Y: y, Width: windowSize, Height: windowSize, Score: score})
				}
			}
		}
	}

	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].Score > regions[j].Score
	})
	return regions, nil
}

// summedSaliency computes a per-pixel saliency map and returns its summed-area
// table with a one pixel zero border, so any window sum is four lookups.
func (l *Locator) summedSaliency(ctx context.Context, img *image.NRGBA) ([]float64, error) {
	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	stride := width + 1
	sat := make([]float64, stride*(height+1))

	// Edges are clamped so border pixels are scored like interior ones.
	rgb := func(x, y int) (float64, float64, float64) {
		x = max(0, min(width-1, x))
		y = max(0, min(height-1, y))
		i := y*img.Stride + x*4
		return float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2])
	}
	neighbors := [8][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}

	for y := 0; y < height; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var rowSum float64
		for x := 0; x < width; x++ {
			r1, g1, b1 := rgb(x, y)

			var edgeStrength float64
			for _, off := range neighbors {
				r2, g2, b2 := rgb(x+off[0], y+off[1])
				dr, dg, db := r1-r2, g1-g2, b1-b2
				edgeStrength += math.Sqrt(dr*dr + dg*dg + db*db)
			}
			edgeStrength /= 8.0 * 255.0

			brightness := (r1 + g1 + b1) / (3.0 * 255.0)
			saliency := l.config.ContrastWeight*edgeStrength + l.config.ColorWeight*brightness
			rowSum += saliency
			sat[(y+1)*stride+x+1] = sat[y*stride+x+1] + rowSum
		}
	}
	return sat, nil
}

func regionScore(sat []float64, width, x, y, w, h int) float64 {
	stride := width + 1
	sum := sat[(y+h)*stride+x+w] - sat[y*stride+x+w] - sat[(y+h)*stride+x] + sat[y*stride+x]
	return sum / float64(w*h)
}
