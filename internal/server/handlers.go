package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/disintegration/imaging"
	"github.com/go-chi/chi/v5"

	"github.com/menta2k/icon-editor/pkg/cutout"
	"github.com/menta2k/icon-editor/pkg/editor"
	"github.com/menta2k/icon-editor/pkg/source"
	"github.com/menta2k/icon-editor/pkg/subject"
	"github.com/menta2k/icon-editor/pkg/types"
	"github.com/menta2k/icon-editor/pkg/upload"
)

// State is the session snapshot returned after every action.
type State struct {
	Mode       types.Mode     `json:"mode"`
	Image      *ImageState    `json:"image,omitempty"`
	CropBox    *CropBox       `json:"crop_box,omitempty"`
	Zoom       float64        `json:"zoom,omitempty"`
	Subject    *types.Primary `json:"subject,omitempty"`
	Canvas     *types.Size    `json:"canvas,omitempty"`
	BrushSize  float64        `json:"brush_size"`
	History    int            `json:"history"`
	HasPreview bool           `json:"has_preview"`
}

// CropBox is the square crop selection in image pixels.
type CropBox struct {
	X    int `json:"x"`
	Y    int `json:"y"`
	Size int `json:"size"`
}

// ImageState describes the loaded source image.
type ImageState struct {
	Name string `json:"name"`
	source.Info
}

type moveRequest struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

type boxRequest struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Size float64 `json:"size"`
}

type brushRequest struct {
	Size float64 `json:"size"`
}

type undoResponse struct {
	Changed bool  `json:"changed"`
	State   State `json:"state"`
}

type exportResponse struct {
	Shape   types.Shape `json:"shape"`
	Width   int         `json:"width"`
	Height  int         `json:"height"`
	DataURL string      `json:"data_url"`
}

type uploadRequest struct {
	Shape types.Shape `json:"shape"`
	Name  string      `json:"name"`
}

type batchEntry struct {
	File  string `json:"file"`
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type batchResponse struct {
	Entries   []batchEntry `json:"entries"`
	Attempted int          `json:"attempted"`
	Succeeded int          `json:"succeeded"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps session and upload errors to HTTP status codes.
func statusFor(err error) int {
	var (
		serverErr    *upload.ServerError
		transportErr *upload.TransportError
	)
	switch {
	case errors.Is(err, types.ErrNoImage):
		return http.StatusConflict
	case errors.Is(err, upload.ErrMissingInput),
		errors.Is(err, editor.ErrInvalidContainer),
		errors.Is(err, cutout.ErrCanvasTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, subject.ErrNoSubject):
		return http.StatusUnprocessableEntity
	case errors.As(err, &serverErr), errors.As(err, &transportErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusConflict {
		writeError(w, status, editor.NoImageMessage)
		return
	}
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		s.logger.Error("request failed", "error", err)
	}
	writeError(w, status, err.Error())
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// state must be called with mu held.
func (s *Server) state() State {
	st := State{
		Mode:       s.session.Mode(),
		BrushSize:  s.session.BrushSize(),
		History:    s.session.HistoryLen(),
		HasPreview: s.session.Preview() != nil,
		Subject:    s.session.Subject(),
	}
	if src := s.session.Source(); src != nil {
		st.Image = &ImageState{Name: src.Name(), Info: src.Info()}
	}
	switch st.Mode {
	case types.ModeCrop:
		box := s.session.CropBox()
		st.CropBox = &CropBox{X: box.Min.X, Y: box.Min.Y, Size: box.Dx()}
		st.Zoom = s.session.Crop().Zoom()
	case types.ModeCutout:
		size := s.session.Cutout().Size()
		st.Canvas = &size
	}
	return st
}

func (s *Server) writeState(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeState(w)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Please choose an image")
		return
	}
	defer file.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.session.Load(r.Context(), header.Filename, file); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeState(w)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Reset()
	s.writeState(w)
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	mode := types.Mode(chi.URLParam(r, "mode"))
	if mode != types.ModeCrop && mode != types.ModeCutout {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown mode: %s", mode))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.session.SwitchTo(mode); err != nil {
		s.fail(w, err)
		return
	}
	s.writeState(w)
}

func (s *Server) handleContainer(w http.ResponseWriter, r *http.Request) {
	var size types.Size
	if err := decodeBody(r, &size); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.session.SetContainer(size); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeState(w)
}

func (s *Server) handleCropAction(w http.ResponseWriter, r *http.Request) {
	action := editor.CropAction(chi.URLParam(r, "action"))

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.session.ApplyCrop(action); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeState(w)
}

func (s *Server) handleCropMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.MoveCrop(req.DX, req.DY)
	s.writeState(w)
}

func (s *Server) handleCropBox(w http.ResponseWriter, r *http.Request) {
	var req boxRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.SetCropBox(req.X, req.Y, req.Size)
	s.writeState(w)
}

func (s *Server) handleSubject(w http.ResponseWriter, r *http.Request) {
	if s.locator == nil {
		writeError(w, http.StatusNotImplemented, "no vision backend configured")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.session.PlaceOnSubject(r.Context(), s.locator); err != nil {
		s.fail(w, err)
		return
	}
	s.writeState(w)
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	img, err := s.session.Overlay()
	s.mu.Unlock()
	if err != nil {
		s.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		s.logger.Warn("failed to write overlay", "error", err)
	}
}

func (s *Server) handleBrush(w http.ResponseWriter, r *http.Request) {
	var req brushRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.SetBrushSize(req.Size)
	s.writeState(w)
}

func (s *Server) handleErase(w http.ResponseWriter, r *http.Request) {
	var stroke types.Stroke
	if err := decodeBody(r, &stroke); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.session.Erase(stroke); err != nil {
		s.fail(w, err)
		return
	}
	s.writeState(w)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed, err := s.session.Undo()
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, undoResponse{Changed: changed, State: s.state()})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	shape, err := types.ParseShape(chi.URLParam(r, "shape"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	art, err := s.session.Export(shape)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exportResponse{
		Shape:   art.Shape,
		Width:   art.Width(),
		Height:  art.Height(),
		DataURL: art.DataURL(),
	})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	art := s.session.Preview()
	s.mu.Unlock()
	if art == nil {
		writeError(w, http.StatusNotFound, "nothing exported yet")
		return
	}

	if r.URL.Query().Get("format") == "png" {
		w.Header().Set("Content-Type", "image/png")
		w.Write(art.Data)
		return
	}
	writeJSON(w, http.StatusOK, exportResponse{
		Shape:   art.Shape,
		Width:   art.Width(),
		Height:  art.Height(),
		DataURL: art.DataURL(),
	})
}

// handleUpload exports and uploads the current view. The upload outlives the
// request so closing the page does not abort it.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Shape == "" {
		req.Shape = types.ShapeSquare
	}
	if _, err := types.ParseShape(string(req.Shape)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.WithoutCancel(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()
	fb := s.session.Upload(ctx, s.uploader, req.Shape, req.Name)
	status := http.StatusOK
	if !fb.OK() {
		status = statusFor(fb.Err)
	}
	writeJSON(w, status, fb)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "Please choose at least one image")
		return
	}

	files := make([]upload.File, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		files = append(files, upload.File{Name: h.Filename, Data: data})
	}

	summary := s.uploader.UploadBatch(context.WithoutCancel(r.Context()), files, nil)

	resp := batchResponse{
		Entries:   make([]batchEntry, 0, len(summary.Entries)),
		Attempted: summary.Attempted,
		Succeeded: summary.Succeeded(),
	}
	for _, e := range summary.Entries {
		entry := batchEntry{File: e.File, Name: e.Name, OK: e.OK}
		if e.Err != nil {
			entry.Error = e.Err.Error()
		}
		resp.Entries = append(resp.Entries, entry)
	}
	writeJSON(w, http.StatusOK, resp)
}
