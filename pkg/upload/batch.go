package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// File is one entry of a batch selection.
type File struct {
	// Name is the original filename; its stem becomes the library name.
	Name string
	Data []byte
}

// ReadFile loads a batch entry from disk.
func ReadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return File{Name: filepath.Base(path), Data: data}, nil
}

// BatchEntry is the outcome of one file in a batch.
type BatchEntry struct {
	File string `json:"file"`
	Name string `json:"name"`
	OK   bool   `json:"ok"`
	Err  error  `json:"-"`
}

// Message is the line shown for the entry in the batch result list.
func (e BatchEntry) Message() string {
	if e.OK {
		return fmt.Sprintf("%s: uploaded as %s", e.File, e.Name)
	}
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

// BatchSummary reports every entry of a batch in selection order.
type BatchSummary struct {
	Entries   []BatchEntry `json:"entries"`
	Attempted int          `json:"attempted"`
}

// Succeeded counts the entries that uploaded.
func (s BatchSummary) Succeeded() int {
	n := 0
	for _, e := range s.Entries {
		if e.OK {
			n++
		}
	}
	return n
}

// Failed counts the entries that did not upload.
func (s BatchSummary) Failed() int {
	return len(s.Entries) - s.Succeeded()
}

// ProgressFunc is called after each file with its index and outcome.
type ProgressFunc func(index int, entry BatchEntry)

// UploadBatch uploads files one at a time in the given order. Each file is
// named after its filename stem and sent as selected. A failed file never
// stops the rest; only a cancelled context does.
func (c *Client) UploadBatch(ctx context.Context, files []File, progress ProgressFunc) BatchSummary {
	summary := BatchSummary{Entries: make([]BatchEntry, 0, len(files))}

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			c.logger.Warn("batch upload stopped", "remaining", len(files)-i, "error", err)
			break
		}

		entry := BatchEntry{File: f.Name, Name: ResolveName("", f.Name, "")}
		summary.Attempted++

		result, err := c.Upload(ctx, Request{
			Data:     f.Data,
			Name:     entry.Name,
			FileName: filepath.Base(f.Name),
		})
		if err != nil {
			entry.Err = err
		} else {
			entry.OK = true
			entry.Name = result.Name
		}

		summary.Entries = append(summary.Entries, entry)
		if progress != nil {
			progress(i, entry)
		}
	}

	c.logger.Info("batch upload finished",
		"attempted", summary.Attempted,
		"succeeded", summary.Succeeded(),
		"failed", summary.Failed())
	return summary
}
