package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/icon-editor/pkg/editor"
	"github.com/menta2k/icon-editor/pkg/subject"
	"github.com/menta2k/icon-editor/pkg/types"
	"github.com/menta2k/icon-editor/pkg/upload"
)

func createTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{220, 120, 20, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fakeLibrary answers like the icon library; names listed in reject fail
// with a server error.
func fakeLibrary(t *testing.T, reject ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		name := r.FormValue(upload.FieldName)
		for _, bad := range reject {
			if name == bad {
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]string{"error": "Storage unavailable"})
				return
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "name": name})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, libraryURL string, opts ...Option) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	session := editor.New(editor.WithLogger(logger))
	client := upload.NewClient(libraryURL, upload.WithLogger(logger))
	s := New(session, client, append([]Option{WithLogger(logger)}, opts...)...)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func multipartBody(t *testing.T, field string, files map[string][]byte, order []string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range order {
		part, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		part.Write(files[name])
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func do(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func loadImage(t *testing.T, base string, width, height int) map[string]any {
	t.Helper()
	body, ctype := multipartBody(t, "file", map[string][]byte{"photo.jpeg": createTestPNG(t, width, height)}, []string{"photo.jpeg"})
	resp, err := http.Post(base+"/session/image", ctype, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	return state
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, "http://unused")
	resp, body := do(t, http.MethodGet, srv.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestLoadAndCrop(t *testing.T) {
	srv := newTestServer(t, "http://unused")

	_, state := do(t, http.MethodGet, srv.URL+"/session", nil)
	assert.Equal(t, "empty", state["mode"])

	state = loadImage(t, srv.URL, 400, 300)
	assert.Equal(t, "crop", state["mode"])
	img := state["image"].(map[string]any)
	assert.Equal(t, "photo.jpeg", img["name"])
	assert.EqualValues(t, 400, img["width"])

	box := state["crop_box"].(map[string]any)
	assert.EqualValues(t, 50, box["x"])
	assert.EqualValues(t, 300, box["size"])

	resp, state := do(t, http.MethodPost, srv.URL+"/session/crop/zoom-in", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Less(t, state["crop_box"].(map[string]any)["size"].(float64), 300.0)

	resp, _ = do(t, http.MethodPost, srv.URL+"/session/crop/spin", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, state = do(t, http.MethodPut, srv.URL+"/session/crop/box", map[string]float64{"x": 0, "y": 0, "size": 100})
	box = state["crop_box"].(map[string]any)
	assert.EqualValues(t, 0, box["x"])
	assert.EqualValues(t, 100, box["size"])

	_, state = do(t, http.MethodPost, srv.URL+"/session/crop/move", map[string]float64{"dx": 20, "dy": 10})
	box = state["crop_box"].(map[string]any)
	assert.EqualValues(t, 20, box["x"])
	assert.EqualValues(t, 10, box["y"])
}

func TestLoadRejectsGarbage(t *testing.T) {
	srv := newTestServer(t, "http://unused")
	body, ctype := multipartBody(t, "file", map[string][]byte{"x.png": []byte("nope")}, []string{"x.png"})
	resp, err := http.Post(srv.URL+"/session/image", ctype, body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNoImageConflicts(t *testing.T) {
	srv := newTestServer(t, "http://unused")

	resp, body := do(t, http.MethodPost, srv.URL+"/session/mode/cutout", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, editor.NoImageMessage, body["error"])

	resp, _ = do(t, http.MethodPost, srv.URL+"/session/export/square", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = do(t, http.MethodPost, srv.URL+"/session/upload", map[string]string{"shape": "circle"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "alert", body["kind"])

	resp, _ = do(t, http.MethodPost, srv.URL+"/session/mode/sideways", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCutoutEraseAndUndo(t *testing.T) {
	srv := newTestServer(t, "http://unused")
	loadImage(t, srv.URL, 100, 100)

	do(t, http.MethodPut, srv.URL+"/session/container", types.Size{W: 200, H: 200})
	resp, state := do(t, http.MethodPost, srv.URL+"/session/mode/cutout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cutout", state["mode"])
	canvas := state["canvas"].(map[string]any)
	assert.EqualValues(t, 300, canvas["w"])
	assert.EqualValues(t, 420, canvas["h"])
	assert.EqualValues(t, 1, state["history"])

	_, state = do(t, http.MethodPut, srv.URL+"/session/brush", map[string]float64{"size": 40})
	assert.EqualValues(t, 40, state["brush_size"])

	stroke := types.Stroke{Points: []types.Point{{X: 100, Y: 200}, {X: 200, Y: 200}}}
	_, state = do(t, http.MethodPost, srv.URL+"/session/erase", stroke)
	assert.EqualValues(t, 2, state["history"])

	_, body := do(t, http.MethodPost, srv.URL+"/session/undo", nil)
	assert.Equal(t, true, body["changed"])
	_, body = do(t, http.MethodPost, srv.URL+"/session/undo", nil)
	assert.Equal(t, false, body["changed"])
}

func TestContainerRejectsBadSizes(t *testing.T) {
	srv := newTestServer(t, "http://unused")
	loadImage(t, srv.URL, 100, 100)

	for _, size := range []types.Size{{W: 0, H: 500}, {W: 500, H: -1}, {W: 1 << 24, H: 1 << 24}, {W: 100000, H: 400}} {
		resp, body := do(t, http.MethodPut, srv.URL+"/session/container", size)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "size %v", size)
		assert.Contains(t, body["error"], "invalid container size")
	}

	resp, _ := do(t, http.MethodPut, srv.URL+"/session/container", types.Size{W: 800, H: 600})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, state := do(t, http.MethodPost, srv.URL+"/session/mode/cutout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	canvas := state["canvas"].(map[string]any)
	assert.EqualValues(t, 800, canvas["w"])
	assert.EqualValues(t, 600, canvas["h"])
}

func TestExportAndPreview(t *testing.T) {
	srv := newTestServer(t, "http://unused")
	loadImage(t, srv.URL, 300, 200)

	resp, _ := do(t, http.MethodGet, srv.URL+"/session/preview", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := do(t, http.MethodPost, srv.URL+"/session/export/circle", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "circle", body["shape"])
	assert.EqualValues(t, 512, body["width"])
	assert.True(t, strings.HasPrefix(body["data_url"].(string), "data:image/png;base64,"))

	pngResp, err := http.Get(srv.URL + "/session/preview?format=png")
	require.NoError(t, err)
	defer pngResp.Body.Close()
	assert.Equal(t, "image/png", pngResp.Header.Get("Content-Type"))
	img, err := png.Decode(pngResp.Body)
	require.NoError(t, err)
	assert.Equal(t, 512, img.Bounds().Dx())

	resp, _ = do(t, http.MethodPost, srv.URL+"/session/export/hexagon", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpload(t *testing.T) {
	lib := fakeLibrary(t, "broken")
	srv := newTestServer(t, lib.URL)
	loadImage(t, srv.URL, 64, 64)

	resp, body := do(t, http.MethodPost, srv.URL+"/session/upload", map[string]string{"shape": "square"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["kind"])
	assert.Equal(t, "photo", body["name"])

	resp, body = do(t, http.MethodPost, srv.URL+"/session/upload", map[string]string{"shape": "circle", "name": "broken"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "Error: Storage unavailable", body["message"])
}

func TestBatch(t *testing.T) {
	lib := fakeLibrary(t, "second")
	srv := newTestServer(t, lib.URL)

	files := map[string][]byte{
		"first.png":  createTestPNG(t, 8, 8),
		"second.png": createTestPNG(t, 8, 8),
		"third.png":  createTestPNG(t, 8, 8),
	}
	body, ctype := multipartBody(t, "files", files, []string{"first.png", "second.png", "third.png"})
	resp, err := http.Post(srv.URL+"/batch", ctype, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out batchResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 3, out.Attempted)
	assert.Equal(t, 2, out.Succeeded)
	require.Len(t, out.Entries, 3)
	assert.True(t, out.Entries[0].OK)
	assert.False(t, out.Entries[1].OK)
	assert.Equal(t, "Storage unavailable", out.Entries[1].Error)
	assert.True(t, out.Entries[2].OK)
	assert.Equal(t, "third", out.Entries[2].Name)

	empty, ctype := multipartBody(t, "files", nil, nil)
	resp2, err := http.Post(srv.URL+"/batch", ctype, empty)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestSubject(t *testing.T) {
	srv := newTestServer(t, "http://unused")
	loadImage(t, srv.URL, 400, 300)
	resp, _ := do(t, http.MethodPost, srv.URL+"/session/crop/subject", nil)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	locator := subject.LocatorFunc(func(ctx context.Context, img image.Image) (types.Primary, error) {
		return types.Primary{}, subject.ErrNoSubject
	})
	srv = newTestServer(t, "http://unused", WithLocator(locator))
	loadImage(t, srv.URL, 400, 300)
	resp, _ = do(t, http.MethodPost, srv.URL+"/session/crop/subject", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	overlay, err := http.Get(srv.URL + "/session/crop/overlay")
	require.NoError(t, err)
	overlay.Body.Close()
	assert.Equal(t, "image/png", overlay.Header.Get("Content-Type"))
}

func TestReset(t *testing.T) {
	srv := newTestServer(t, "http://unused")
	loadImage(t, srv.URL, 50, 50)
	_, state := do(t, http.MethodPost, srv.URL+"/session/reset", nil)
	assert.Equal(t, "empty", state["mode"])
	assert.Nil(t, state["image"])
}
