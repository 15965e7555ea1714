package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/menta2k/icon-editor/internal/config"
	"github.com/menta2k/icon-editor/pkg/client"
	"github.com/menta2k/icon-editor/pkg/llamacpp"
	"github.com/menta2k/icon-editor/pkg/ollama"
	"github.com/menta2k/icon-editor/pkg/saliency"
	"github.com/menta2k/icon-editor/pkg/subject"
	"github.com/menta2k/icon-editor/pkg/types"
)

// strokeList collects repeated -stroke flags.
type strokeList []types.Stroke

func (s *strokeList) String() string {
	return fmt.Sprintf("%d strokes", len(*s))
}

func (s *strokeList) Set(v string) error {
	stroke, err := parseStroke(v)
	if err != nil {
		return err
	}
	*s = append(*s, stroke)
	return nil
}

// parseStroke reads "x,y x,y ..." canvas coordinates.
func parseStroke(v string) (types.Stroke, error) {
	var stroke types.Stroke
	for _, field := range strings.Fields(v) {
		x, y, err := parsePair(field)
		if err != nil {
			return types.Stroke{}, fmt.Errorf("invalid stroke point %q: %w", field, err)
		}
		stroke.Points = append(stroke.Points, types.Point{X: x, Y: y})
	}
	if len(stroke.Points) == 0 {
		return types.Stroke{}, fmt.Errorf("empty stroke")
	}
	return stroke, nil
}

func parsePair(v string) (float64, float64, error) {
	a, b, ok := strings.Cut(v, ",")
	if !ok {
		return 0, 0, fmt.Errorf("expected x,y")
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
	if err != nil {
		return 0, 0, err
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

// parseBox reads "x,y,size" in image pixels.
func parseBox(v string) (x, y, size float64, err error) {
	parts := strings.Split(v, ",")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid box %q: expected x,y,size", v)
	}
	vals := make([]float64, 3)
	for i, p := range parts {
		if vals[i], err = strconv.ParseFloat(strings.TrimSpace(p), 64); err != nil {
			return 0, 0, 0, fmt.Errorf("invalid box %q: %w", v, err)
		}
	}
	return vals[0], vals[1], vals[2], nil
}

// loadStrokes reads a JSON array of strokes as sent by the page.
func loadStrokes(path string) ([]types.Stroke, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strokes: %w", err)
	}
	var strokes []types.Stroke
	if err := json.Unmarshal(data, &strokes); err != nil {
		return nil, fmt.Errorf("failed to parse strokes: %w", err)
	}
	return strokes, nil
}

// parseShapes accepts square, circle or both.
func parseShapes(v string) ([]types.Shape, error) {
	if v == "both" {
		return []types.Shape{types.ShapeSquare, types.ShapeCircle}, nil
	}
	shape, err := types.ParseShape(v)
	if err != nil {
		return nil, err
	}
	return []types.Shape{shape}, nil
}

// buildLocator creates the subject locator for the configured vision backend.
// The none backend returns nil.
func buildLocator(cfg config.VisionConfig, saliencyConfig saliency.Config) (subject.Locator, error) {
	var (
		vc  client.VisionClient
		err error
	)
	switch cfg.Backend {
	case config.BackendNone, "":
		return nil, nil
	case config.BackendSaliency:
		return saliency.NewWithConfig(saliencyConfig), nil
	case config.BackendOllama:
		vc, err = ollama.NewClient(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
	case config.BackendLlamaCpp:
		vc, err = llamacpp.NewClient(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown backend: %s (use none, saliency, ollama or llamacpp)", cfg.Backend)
	}
	return subject.NewModelLocator(vc, cfg.Model), nil
}
