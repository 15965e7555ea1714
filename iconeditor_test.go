package iconeditor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/menta2k/icon-editor/pkg/editor"
	"github.com/menta2k/icon-editor/pkg/saliency"
	"github.com/menta2k/icon-editor/pkg/subject"
	"github.com/menta2k/icon-editor/pkg/types"
)

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	// Create a pattern with a bright subject in the center
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/3 && x < 2*width/3 && y > height/3 && y < 2*height/3 {
				// Central bright region (subject)
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				// Background
				img.Set(x, y, color.RGBA{64, 64, 64, 255})
			}
		}
	}

	return img
}

func TestNew(t *testing.T) {
	ie := New()
	if ie == nil || ie.Session() == nil {
		t.Fatal("New() returned no session")
	}
	if ie.Session().Mode() != types.ModeEmpty {
		t.Errorf("Expected empty mode, got %s", ie.Session().Mode())
	}
}

func TestMakeIcon(t *testing.T) {
	ie := New()
	art, err := ie.MakeIcon(context.Background(), "sample.png", createTestImage(600, 300), types.ShapeCircle)
	if err != nil {
		t.Fatalf("MakeIcon failed: %v", err)
	}
	if art.Width() != 512 || art.Height() != 512 {
		t.Errorf("Expected 512x512, got %dx%d", art.Width(), art.Height())
	}
	if art.Image.NRGBAAt(0, 0).A != 0 {
		t.Error("Circle corner should be transparent")
	}
	if c := art.Image.NRGBAAt(256, 256); c.A != 255 || c.R != 255 {
		t.Errorf("Center should show the bright subject, got %v", c)
	}
}

func TestMakeIconWithLocator(t *testing.T) {
	ie := New()
	ie.SetLocator(saliency.New())
	art, err := ie.MakeIcon(context.Background(), "sample.png", createTestImage(900, 300), types.ShapeSquare)
	if err != nil {
		t.Fatalf("MakeIcon failed: %v", err)
	}
	if art.Image.NRGBAAt(256, 256).R != 255 {
		t.Error("Crop should be placed on the bright subject")
	}
	if ie.Session().Subject() == nil {
		t.Error("Located subject should be recorded")
	}
}

func TestMakeIconLocatorFailures(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ie := NewWithConfig(editor.DefaultConfig(), logger)

	// A dead backend keeps the centered box and is logged as a warning
	ie.SetLocator(subject.LocatorFunc(func(ctx context.Context, img image.Image) (types.Primary, error) {
		return types.Primary{}, errors.New("connection refused")
	}))
	art, err := ie.MakeIcon(context.Background(), "sample.png", createTestImage(600, 300), types.ShapeSquare)
	if err != nil {
		t.Fatalf("MakeIcon failed: %v", err)
	}
	if art.Image.NRGBAAt(256, 256).R != 255 {
		t.Error("Centered crop should be kept")
	}
	if !strings.Contains(logs.String(), "level=WARN") || !strings.Contains(logs.String(), "connection refused") {
		t.Errorf("Expected a warning with the backend error, got %q", logs.String())
	}

	// No subject is expected and only logged at debug level
	logs.Reset()
	ie.SetLocator(subject.LocatorFunc(func(ctx context.Context, img image.Image) (types.Primary, error) {
		return types.Primary{}, subject.ErrNoSubject
	}))
	if _, err := ie.MakeIcon(context.Background(), "sample.png", createTestImage(600, 300), types.ShapeSquare); err != nil {
		t.Fatalf("MakeIcon failed: %v", err)
	}
	if !strings.Contains(logs.String(), "level=DEBUG") || strings.Contains(logs.String(), "level=WARN") {
		t.Errorf("Expected only a debug record, got %q", logs.String())
	}

	// Cancellation is returned to the caller
	ctx, cancel := context.WithCancel(context.Background())
	ie.SetLocator(subject.LocatorFunc(func(ctx context.Context, img image.Image) (types.Primary, error) {
		cancel()
		return types.Primary{}, ctx.Err()
	}))
	if _, err := ie.MakeIcon(ctx, "sample.png", createTestImage(600, 300), types.ShapeSquare); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestProcessImageFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "photo.jpg")
	if err := imaging.Save(createTestImage(320, 240), input); err != nil {
		t.Fatalf("Failed to save test image: %v", err)
	}

	ie := New()
	outDir := filepath.Join(dir, "icons")
	files, err := ie.ProcessImageFile(context.Background(), input, outDir, []types.Shape{types.ShapeSquare, types.ShapeCircle})
	if err != nil {
		t.Fatalf("ProcessImageFile failed: %v", err)
	}

	want := []string{filepath.Join(outDir, "photo.png"), filepath.Join(outDir, "photo_circle.png")}
	if len(files) != len(want) {
		t.Fatalf("Expected %d files, got %v", len(want), files)
	}
	for i, path := range want {
		if files[i] != path {
			t.Errorf("Expected %s, got %s", path, files[i])
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Missing output %s: %v", path, err)
		}
	}

	if _, err := ie.ProcessImageFile(context.Background(), filepath.Join(dir, "missing.jpg"), outDir, nil); err == nil {
		t.Error("Expected error for missing input")
	}
}
