// Package iconeditor turns arbitrary images into 512x512 square or circular
// PNG icons and uploads them to an icon library.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		iconeditor "github.com/menta2k/icon-editor"
//		"github.com/menta2k/icon-editor/pkg/types"
//	)
//
//	func main() {
//		ie := iconeditor.New()
//
//		// Crop photo.jpg to its centered square and write photo.png
//		// and photo_circle.png into ./icons
//		files, err := ie.ProcessImageFile(context.Background(), "photo.jpg", "icons",
//			[]types.Shape{types.ShapeSquare, types.ShapeCircle})
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("wrote %v", files)
//	}
//
// The package consists of these components:
//
// 1. Source (pkg/source): decodes files, readers and URLs into bitmaps
// 2. Cropper (pkg/cropper): the 1:1 crop box with zoom, center and enlarge
// 3. Cutout (pkg/cutout): the eraser canvas with a bounded undo history
// 4. Export (pkg/export): square and circle PNG rendering
// 5. Upload (pkg/upload): multipart upload of single icons and batches
// 6. Editor (pkg/editor): the session that switches between crop and cutout
//
// Subject placement of the crop box is optional and uses either the offline
// saliency locator (pkg/saliency) or a vision model served by Ollama or
// llama.cpp (pkg/subject, pkg/ollama, pkg/llamacpp).
package iconeditor

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/menta2k/icon-editor/internal/utils"
	"github.com/menta2k/icon-editor/pkg/editor"
	"github.com/menta2k/icon-editor/pkg/export"
	"github.com/menta2k/icon-editor/pkg/subject"
	"github.com/menta2k/icon-editor/pkg/types"
	"github.com/menta2k/icon-editor/pkg/upload"
)

// Version of the icon editor
const Version = "1.0.0"

// IconEditor provides a high-level interface over an editor session
type IconEditor struct {
	session *editor.Session
	locator subject.Locator
}

// New creates a new IconEditor with default configuration
func New() *IconEditor {
	return &IconEditor{session: editor.New()}
}

// NewWithConfig creates a new IconEditor with custom configuration
func NewWithConfig(config editor.Config, logger *slog.Logger) *IconEditor {
	return &IconEditor{session: editor.NewWithConfig(config, editor.WithLogger(logger))}
}

// SetLocator enables subject placement of the crop box before export.
func (ie *IconEditor) SetLocator(l subject.Locator) {
	ie.locator = l
}

// Session returns the underlying editor session.
func (ie *IconEditor) Session() *editor.Session {
	return ie.session
}

// MakeIcon crops img to its centered square, or to the located subject when
// a locator is set, and renders it in the given shape.
func (ie *IconEditor) MakeIcon(ctx context.Context, name string, img image.Image, shape types.Shape) (*export.Artifact, error) {
	if err := ie.session.LoadImage(name, img); err != nil {
		return nil, err
	}
	if err := ie.placeOnSubject(ctx); err != nil {
		return nil, err
	}
	return ie.session.Export(shape)
}

// placeOnSubject keeps the centered box when no subject is found or the
// locator fails; the session logs why. Only cancellation is returned.
func (ie *IconEditor) placeOnSubject(ctx context.Context) error {
	if ie.locator == nil {
		return nil
	}
	if _, err := ie.session.PlaceOnSubject(ctx, ie.locator); err != nil && ctx.Err() != nil {
		return fmt.Errorf("subject placement cancelled: %w", ctx.Err())
	}
	return nil
}

// ProcessImageFile is a convenience function that loads an image, crops it
// and writes one PNG per shape into outputDir. Circle icons get the
// upload.CircleSuffix suffix.
func (ie *IconEditor) ProcessImageFile(ctx context.Context, inputPath, outputDir string, shapes []types.Shape) ([]string, error) {
	if err := ie.session.Open(ctx, inputPath); err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	if err := ie.placeOnSubject(ctx); err != nil {
		return nil, err
	}

	if err := utils.EnsureDir(outputDir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var written []string
	for _, shape := range shapes {
		art, err := ie.session.Export(shape)
		if err != nil {
			return written, fmt.Errorf("failed to export %s: %w", shape, err)
		}
		suffix := ""
		if shape == types.ShapeCircle {
			suffix = upload.CircleSuffix
		}
		path := utils.GenerateOutputFilename(inputPath, outputDir, "", suffix, "png")
		if err := art.WriteFile(path); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}
