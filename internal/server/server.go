// Package server exposes the editor session to the page over a small JSON API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/menta2k/icon-editor/pkg/editor"
	"github.com/menta2k/icon-editor/pkg/subject"
	"github.com/menta2k/icon-editor/pkg/upload"
)

// DefaultMaxUploadBytes bounds a multipart request body.
const DefaultMaxUploadBytes = 64 << 20

// Uploader sends single icons and batches to the icon library.
type Uploader interface {
	editor.Uploader
	UploadBatch(ctx context.Context, files []upload.File, progress upload.ProgressFunc) upload.BatchSummary
}

// Server serves one editor session. Handlers run concurrently, so every
// session access holds mu.
type Server struct {
	mu       sync.Mutex
	session  *editor.Session
	uploader Uploader
	locator  subject.Locator
	logger   *slog.Logger
	maxBytes int64
	router   chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLocator enables subject placement of the crop box.
func WithLocator(l subject.Locator) Option {
	return func(s *Server) { s.locator = l }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxUploadBytes bounds multipart request bodies.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// New creates a server for session that uploads through uploader.
func New(session *editor.Session, uploader Uploader, opts ...Option) *Server {
	s := &Server{
		session:  session,
		uploader: uploader,
		logger:   slog.Default(),
		maxBytes: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)

	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.handleState)
		r.Post("/image", s.handleLoad)
		r.Post("/reset", s.handleReset)
		r.Post("/mode/{mode}", s.handleMode)
		r.Put("/container", s.handleContainer)

		r.Post("/crop/move", s.handleCropMove)
		r.Put("/crop/box", s.handleCropBox)
		r.Post("/crop/subject", s.handleSubject)
		r.Get("/crop/overlay", s.handleOverlay)
		r.Post("/crop/{action}", s.handleCropAction)

		r.Put("/brush", s.handleBrush)
		r.Post("/erase", s.handleErase)
		r.Post("/undo", s.handleUndo)

		r.Post("/export/{shape}", s.handleExport)
		r.Get("/preview", s.handlePreview)
		r.Post("/upload", s.handleUpload)
	})

	r.Post("/batch", s.handleBatch)
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}
