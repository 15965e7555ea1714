package upload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

type received struct {
	name     string
	filename string
	ctype    string
	data     []byte
}

// fakeLibrary records multipart uploads and answers with handler.
type fakeLibrary struct {
	mu      sync.Mutex
	uploads []received
	handler func(w http.ResponseWriter, r received)
}

func (f *fakeLibrary) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != DefaultEndpoint {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile(FieldSource)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "Missing file"})
		return
	}
	defer file.Close()
	data, _ := io.ReadAll(file)

	rec := received{
		name:     r.FormValue(FieldName),
		filename: header.Filename,
		ctype:    header.Header.Get("Content-Type"),
		data:     data,
	}
	f.mu.Lock()
	f.uploads = append(f.uploads, rec)
	f.mu.Unlock()

	if f.handler != nil {
		f.handler(w, rec)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"success": true, "name": rec.name})
}

func newTestClient(t *testing.T, lib *fakeLibrary) *Client {
	t.Helper()
	srv := httptest.NewServer(lib)
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(srv.URL, WithHTTPClient(srv.Client()), WithLogger(logger))
}

func TestResolveName(t *testing.T) {
	tests := []struct {
		input, filename, fallback string
		want                      string
	}{
		{"", "photo.jpeg", "", "photo"},
		{"  logo  ", "photo.jpeg", "", "logo"},
		{"", `C:\fakepath\cat.final.png`, "", "cat.final"},
		{"", "", "edited", "edited"},
		{"   ", "", "", DefaultName},
		{"", ".hidden", "", DefaultName},
		{"", "archive.", "", "archive."},
	}
	for _, tt := range tests {
		if got := ResolveName(tt.input, tt.filename, tt.fallback); got != tt.want {
			t.Errorf("ResolveName(%q, %q, %q) = %q, want %q", tt.input, tt.filename, tt.fallback, got, tt.want)
		}
	}
}

func TestFileName(t *testing.T) {
	if got := FileName("photo", ""); got != "photo.png" {
		t.Errorf("Unexpected square filename %s", got)
	}
	if got := FileName("photo", CircleSuffix); got != "photo_circle.png" {
		t.Errorf("Unexpected circle filename %s", got)
	}
}

func TestUploadSuccess(t *testing.T) {
	lib := &fakeLibrary{handler: func(w http.ResponseWriter, r received) {
		json.NewEncoder(w).Encode(map[string]any{"success": true, "name": r.name + "_2", "url": "/icons/" + r.name + "_2.png"})
	}}
	c := newTestClient(t, lib)

	res, err := c.Upload(context.Background(), Request{Data: pngHeader, Name: "photo", Suffix: CircleSuffix})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if res.Name != "photo_2" || res.URL != "/icons/photo_2.png" {
		t.Errorf("Unexpected result %+v", res)
	}

	if len(lib.uploads) != 1 {
		t.Fatalf("Expected 1 upload, got %d", len(lib.uploads))
	}
	got := lib.uploads[0]
	if got.name != "photo" || got.filename != "photo_circle.png" {
		t.Errorf("Unexpected form fields name=%q filename=%q", got.name, got.filename)
	}
	if got.ctype != "image/png" {
		t.Errorf("Expected image/png, got %s", got.ctype)
	}
	if string(got.data) != string(pngHeader) {
		t.Error("File body was altered")
	}
}

func TestUploadServerNameFallback(t *testing.T) {
	lib := &fakeLibrary{handler: func(w http.ResponseWriter, r received) {
		w.Write([]byte(`{"success": true}`))
	}}
	c := newTestClient(t, lib)

	res, err := c.Upload(context.Background(), Request{Data: pngHeader, Name: "photo"})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if res.Name != "photo" {
		t.Errorf("Expected requested name, got %s", res.Name)
	}
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"server text", http.StatusBadRequest, `{"error": "Icon already exists"}`, "Icon already exists"},
		{"status only", http.StatusInternalServerError, `{}`, "upload failed (HTTP 500)"},
		{"not json", http.StatusBadGateway, `<html>bad gateway</html>`, "upload failed (HTTP 502)"},
		{"success false", http.StatusOK, `{"success": false, "error": "Upload rejected"}`, "Upload rejected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := &fakeLibrary{handler: func(w http.ResponseWriter, r received) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}}
			c := newTestClient(t, lib)

			_, err := c.Upload(context.Background(), Request{Data: pngHeader, Name: "x"})
			var serr *ServerError
			if !errors.As(err, &serr) {
				t.Fatalf("Expected ServerError, got %v", err)
			}
			if serr.Status != tt.status || serr.Error() != tt.message {
				t.Errorf("Unexpected error status=%d message=%q", serr.Status, serr.Error())
			}
		})
	}
}

func TestUploadMalformedSuccess(t *testing.T) {
	lib := &fakeLibrary{handler: func(w http.ResponseWriter, r received) {
		w.Write([]byte(`{"success": tru`))
	}}
	c := newTestClient(t, lib)

	_, err := c.Upload(context.Background(), Request{Data: pngHeader, Name: "x"})
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Expected TransportError, got %v", err)
	}
}

func TestUploadUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	_, err := c.Upload(context.Background(), Request{Data: pngHeader, Name: "x"})
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Expected TransportError, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "upload failed: ") {
		t.Errorf("Unexpected message %q", err.Error())
	}
}

func TestUploadMissingInput(t *testing.T) {
	lib := &fakeLibrary{}
	c := newTestClient(t, lib)

	for _, req := range []Request{{Data: pngHeader, Name: " "}, {Name: "x"}} {
		if _, err := c.Upload(context.Background(), req); !errors.Is(err, ErrMissingInput) {
			t.Errorf("Expected ErrMissingInput, got %v", err)
		}
	}
	if len(lib.uploads) != 0 {
		t.Error("No request should reach the server without input")
	}
}

func TestWithEndpoint(t *testing.T) {
	c := NewClient("http://icons.local/", WithEndpoint("v2/upload"))
	if c.URL() != "http://icons.local/v2/upload" {
		t.Errorf("Unexpected URL %s", c.URL())
	}
}

func TestUploadBatch(t *testing.T) {
	lib := &fakeLibrary{handler: func(w http.ResponseWriter, r received) {
		if r.name == "second" {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "Disk full", "details": "no space"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "name": r.name})
	}}
	c := newTestClient(t, lib)

	files := []File{
		{Name: "first.png", Data: pngHeader},
		{Name: "second.jpg", Data: pngHeader},
		{Name: "third.webp", Data: pngHeader},
	}
	var seen []int
	summary := c.UploadBatch(context.Background(), files, func(i int, e BatchEntry) {
		seen = append(seen, i)
	})

	if summary.Attempted != 3 || len(summary.Entries) != 3 {
		t.Fatalf("Expected 3 attempted entries, got %+v", summary)
	}
	if !summary.Entries[0].OK || !summary.Entries[2].OK {
		t.Errorf("Expected entries 1 and 3 to succeed: %+v", summary.Entries)
	}
	second := summary.Entries[1]
	if second.OK || second.Err == nil || second.Err.Error() != "Disk full" {
		t.Errorf("Expected entry 2 to fail with server text, got %+v", second)
	}
	if second.Message() != "second.jpg: Disk full" {
		t.Errorf("Unexpected message %q", second.Message())
	}
	if summary.Succeeded() != 2 || summary.Failed() != 1 {
		t.Errorf("Unexpected counts %d/%d", summary.Succeeded(), summary.Failed())
	}
	if len(seen) != 3 || seen[0] != 0 || seen[2] != 2 {
		t.Errorf("Unexpected progress calls %v", seen)
	}

	// Files go out in selection order under their original filenames.
	order := []string{"first.png", "second.jpg", "third.webp"}
	for i, rec := range lib.uploads {
		if rec.filename != order[i] {
			t.Errorf("Upload %d: expected %s, got %s", i, order[i], rec.filename)
		}
	}
}

func TestUploadBatchCancelled(t *testing.T) {
	c := newTestClient(t, &fakeLibrary{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := c.UploadBatch(ctx, []File{{Name: "a.png", Data: pngHeader}}, nil)
	if summary.Attempted != 0 || len(summary.Entries) != 0 {
		t.Errorf("Expected nothing attempted, got %+v", summary)
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logo.png")
	if err := os.WriteFile(path, pngHeader, 0644); err != nil {
		t.Fatal(err)
	}
	f, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if f.Name != "logo.png" || len(f.Data) != len(pngHeader) {
		t.Errorf("Unexpected file %+v", f)
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("Expected error for missing file")
	}
}
