package history

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

// createTestImage creates a solid image whose red channel encodes n
func createTestImage(n int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(n), 10, 20, 255})
		}
	}
	return img
}

func TestNew(t *testing.T) {
	s := New(0)
	if s.Limit() != DefaultLimit {
		t.Errorf("Expected default limit %d, got %d", DefaultLimit, s.Limit())
	}
	if s.Len() != 0 {
		t.Errorf("Expected empty stack, got %d", s.Len())
	}

	if New(5).Limit() != 5 {
		t.Error("Expected custom limit to be kept")
	}
}

func TestPushEvictsOldest(t *testing.T) {
	s := New(DefaultLimit)

	evictions := 0
	for i := 0; i < 45; i++ {
		if s.Push([]byte{byte(i)}) {
			evictions++
		}
	}

	if s.Len() != DefaultLimit {
		t.Fatalf("Expected %d snapshots, got %d", DefaultLimit, s.Len())
	}
	if evictions != 45-DefaultLimit {
		t.Errorf("Expected %d evictions, got %d", 45-DefaultLimit, evictions)
	}

	snaps := s.Snapshots()
	for i, snap := range snaps {
		want := byte(45 - DefaultLimit + i)
		if snap[0] != want {
			t.Errorf("Snapshot %d: expected %d, got %d", i, want, snap[0])
		}
	}
}

func TestPopNeverBelowOne(t *testing.T) {
	s := New(3)

	if s.Pop() {
		t.Error("Pop on empty stack should be a no-op")
	}

	s.Push([]byte("first"))
	if s.Pop() {
		t.Error("Pop at size 1 should be a no-op")
	}
	if s.Len() != 1 {
		t.Fatalf("Expected 1 snapshot, got %d", s.Len())
	}

	s.Push([]byte("second"))
	if !s.Pop() {
		t.Error("Expected Pop to remove the second snapshot")
	}
	top, err := s.Top()
	if err != nil {
		t.Fatalf("Top failed: %v", err)
	}
	if string(top) != "first" {
		t.Errorf("Expected top to be first, got %q", top)
	}
}

func TestTopEmpty(t *testing.T) {
	s := New(3)
	if _, err := s.Top(); !errors.Is(err, ErrEmpty) {
		t.Errorf("Expected ErrEmpty, got %v", err)
	}
	if _, err := s.Restore(); !errors.Is(err, ErrEmpty) {
		t.Errorf("Expected ErrEmpty from Restore, got %v", err)
	}
}

func TestCaptureRestore(t *testing.T) {
	s := New(3)

	for i := 1; i <= 2; i++ {
		if err := s.Capture(createTestImage(i * 50)); err != nil {
			t.Fatalf("Capture %d failed: %v", i, err)
		}
	}

	img, err := s.Restore()
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 6 {
		t.Errorf("Expected 8x6 snapshot, got %v", img.Bounds())
	}
	r, _, _, _ := img.At(3, 3).RGBA()
	if r>>8 != 100 {
		t.Errorf("Expected red 100 from latest snapshot, got %d", r>>8)
	}

	s.Pop()
	img, err = s.Restore()
	if err != nil {
		t.Fatalf("Restore after pop failed: %v", err)
	}
	r, _, _, _ = img.At(3, 3).RGBA()
	if r>>8 != 50 {
		t.Errorf("Expected red 50 from first snapshot, got %d", r>>8)
	}
}

func TestClear(t *testing.T) {
	s := New(3)
	s.Push([]byte("a"))
	s.Push([]byte("b"))
	s.Clear()
	if s.Len() != 0 {
		t.Errorf("Expected empty stack after Clear, got %d", s.Len())
	}
}
