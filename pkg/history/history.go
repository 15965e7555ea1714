// Package history keeps a bounded stack of full-canvas snapshots for undo.
//
// Snapshots are stored PNG-encoded. The first entry is the pristine canvas;
// once the limit is exceeded the oldest entry is evicted. The stack never pops
// below one entry, so undo past the initial snapshot is a no-op.
package history

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
)

// DefaultLimit is the number of snapshots kept when no limit is configured.
const DefaultLimit = 30

// ErrEmpty is returned when reading from a stack with no snapshots.
var ErrEmpty = errors.New("history: no snapshots")

// Stack is an ordered, bounded list of encoded snapshots, oldest first.
type Stack struct {
	limit     int
	snapshots [][]byte
}

// New creates an empty stack holding at most limit snapshots.
func New(limit int) *Stack {
	if limit < 1 {
		limit = DefaultLimit
	}
	return &Stack{
		limit:     limit,
		snapshots: make([][]byte, 0, limit),
	}
}

// Limit returns the maximum number of snapshots kept.
func (s *Stack) Limit() int {
	return s.limit
}

// Len returns the number of snapshots currently held.
func (s *Stack) Len() int {
	return len(s.snapshots)
}

// Push appends a snapshot and evicts the oldest one when the limit is exceeded.
// It reports whether an eviction happened.
func (s *Stack) Push(snapshot []byte) bool {
	s.snapshots = append(s.snapshots, snapshot)
	if len(s.snapshots) <= s.limit {
		return false
	}
	// Drop the reference before reslicing so the evicted buffer can be collected.
	s.snapshots[0] = nil
	s.snapshots = s.snapshots[1:]
	return true
}

// Pop removes the most recent snapshot unless it is the only one left.
// It reports whether a snapshot was removed.
func (s *Stack) Pop() bool {
	if len(s.snapshots) <= 1 {
		return false
	}
	last := len(s.snapshots) - 1
	s.snapshots[last] = nil
	s.snapshots = s.snapshots[:last]
	return true
}

// Top returns the most recent snapshot.
func (s *Stack) Top() ([]byte, error) {
	if len(s.snapshots) == 0 {
		return nil, ErrEmpty
	}
	return s.snapshots[len(s.snapshots)-1], nil
}

// Snapshots returns the held snapshots, oldest first. The slice is a copy;
// the byte buffers are shared and must not be modified.
func (s *Stack) Snapshots() [][]byte {
	out := make([][]byte, len(s.snapshots))
	copy(out, s.snapshots)
	return out
}

// Clear drops every snapshot.
func (s *Stack) Clear() {
	for i := range s.snapshots {
		s.snapshots[i] = nil
	}
	s.snapshots = s.snapshots[:0]
}

// Capture encodes img as PNG and pushes it.
func (s *Stack) Capture(img image.Image) error {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestSpeed)); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	s.Push(buf.Bytes())
	return nil
}

// Restore decodes the most recent snapshot.
func (s *Stack) Restore() (image.Image, error) {
	top, err := s.Top()
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(top))
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return img, nil
}
