// Package subject locates the dominant subject of an image so the crop box can
// be placed on it.
package subject

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/menta2k/icon-editor/pkg/client"
	"github.com/menta2k/icon-editor/pkg/types"
)

// ErrNoSubject is returned when no subject could be found.
var ErrNoSubject = errors.New("no subject found")

// Locator finds the dominant subject of an image. Coordinates are normalized to [0,1].
type Locator interface {
	Locate(ctx context.Context, img image.Image) (types.Primary, error)
}

// LocatorFunc adapts a function to the Locator interface.
type LocatorFunc func(ctx context.Context, img image.Image) (types.Primary, error)

// Locate calls f(ctx, img).
func (f LocatorFunc) Locate(ctx context.Context, img image.Image) (types.Primary, error) {
	return f(ctx, img)
}

// DefaultPrompt asks a vision model for the subject an icon should be centered on.
const DefaultPrompt = `You are an icon subject locator.

Return JSON only:
{
  "primary": {
    "label": "string",
    "confidence": 0.0,
    "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0},
    "cx": 0.0,
    "cy": 0.0
  },
  "description": "short neutral sentence (<= 20 words)",
  "tags": ["tag1", "tag2", "tag3"]
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels).
- The box should tightly include the single object that would make the best square icon
  (a logo, a face, a product, an animal; else the most central salient object).
- cx/cy is the visual center of that object.
- Tags: lowercase, concise, no punctuation or duplicates.
- If no subject is found, return:
  {
    "primary":{"label":"none","confidence":0.0,"box":{"x":0.25,"y":0.25,"w":0.50,"h":0.50},"cx":0.5,"cy":0.5},
    "description":"no clear subject",
    "tags":["none"]
  }
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// ModelLocator asks a vision model where the subject is.
type ModelLocator struct {
	client        client.VisionClient
	model         string
	prompt        string
	maxDim        int
	minConfidence float64
}

// NewModelLocator creates a locator backed by a vision client
func NewModelLocator(c client.VisionClient, model string) *ModelLocator {
	return &ModelLocator{
		client:        c,
		model:         model,
		prompt:        DefaultPrompt,
		maxDim:        768,
		minConfidence: 0.2,
	}
}

// WithPrompt replaces the prompt sent to the model.
func (m *ModelLocator) WithPrompt(prompt string) *ModelLocator {
	m.prompt = prompt
	return m
}

// Locate sends a downscaled JPEG of img to the model and returns the normalized subject.
func (m *ModelLocator) Locate(ctx context.Context, img image.Image) (types.Primary, error) {
	imgB64, err := PrepareImage(img, "jpg", m.maxDim, 85)
	if err != nil {
		return types.Primary{}, fmt.Errorf("failed to prepare image: %w", err)
	}

	result, err := m.client.AnalyzeImage(ctx, m.model, m.prompt, imgB64)
	if err != nil {
		return types.Primary{}, fmt.Errorf("failed to analyze image: %w", err)
	}

	p := validate(result)
	if strings.EqualFold(p.Label, "none") || p.Confidence < m.minConfidence {
		return types.Primary{}, ErrNoSubject
	}
	return p, nil
}

// validate normalizes the model answer and marks fallback answers as "none".
func validate(result *types.AnalysisResult) types.Primary {
	p := result.Primary
	p.Box = normalizeBox(p.Box)

	if strings.EqualFold(p.Label, "none") {
		return p
	}

	if p.Cx == 0 && p.Cy == 0 {
		p.Cx = p.Box.X + p.Box.W/2
		p.Cy = p.Box.Y + p.Box.H/2
	}
	p.Cx = clamp(p.Cx, 0, 1)
	p.Cy = clamp(p.Cy, 0, 1)

	fallbackIndicators := []string{"unclear", "empty", "parse", "error", "fallback", "non-json", "no json"}
	for _, indicator := range fallbackIndicators {
		if strings.Contains(strings.ToLower(p.Label), indicator) ||
			strings.Contains(strings.ToLower(result.Description), indicator) {
			p.Label = "none"
			p.Confidence = 0
			break
		}
	}
	return p
}

// normalizeBox keeps the box inside the unit square
func normalizeBox(b types.Box) types.Box {
	b.X = clamp(b.X, 0, 1)
	b.Y = clamp(b.Y, 0, 1)
	b.W = clamp(b.W, 0, 1-b.X)
	b.H = clamp(b.H, 0, 1-b.Y)
	return b
}

// Anchor returns the point inside the subject box nearest to its reported center.
func Anchor(p types.Primary) (float64, float64) {
	cx := clamp(p.Cx, p.Box.X, p.Box.X+p.Box.W)
	cy := clamp(p.Cy, p.Box.Y, p.Box.Y+p.Box.H)
	if p.Box.W == 0 || p.Box.H == 0 {
		cx, cy = clamp(p.Cx, 0, 1), clamp(p.Cy, 0, 1)
	}
	return cx, cy
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
