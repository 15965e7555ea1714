// Package editor holds the single-user editing session: which view is shown,
// the loaded source image and the controller that edits it.
package editor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"

	"github.com/menta2k/icon-editor/pkg/cropper"
	"github.com/menta2k/icon-editor/pkg/cutout"
	"github.com/menta2k/icon-editor/pkg/export"
	"github.com/menta2k/icon-editor/pkg/source"
	"github.com/menta2k/icon-editor/pkg/subject"
	"github.com/menta2k/icon-editor/pkg/types"
	"github.com/menta2k/icon-editor/pkg/upload"
)

// ErrInvalidContainer is returned for a container size that is not positive
// or exceeds the cutout canvas limits.
var ErrInvalidContainer = errors.New("invalid container size")

// Config holds configuration for a session
type Config struct {
	Crop       cropper.Config
	Cutout     cutout.Config
	OutputSize int
	// Container is the measured editor area the cutout canvas is sized to.
	Container types.Size
	// DefaultName names uploads when neither the user nor the imported
	// filename gives one.
	DefaultName string
}

// DefaultConfig returns the session defaults
func DefaultConfig() Config {
	return Config{
		Crop:        cropper.DefaultConfig(),
		Cutout:      cutout.DefaultConfig(),
		OutputSize:  export.DefaultSize,
		DefaultName: upload.DefaultName,
	}
}

// Uploader sends one exported icon to the icon library.
type Uploader interface {
	Upload(ctx context.Context, req upload.Request) (*upload.Result, error)
}

// Session is the editor state for one user. It is not safe for concurrent use.
type Session struct {
	config   Config
	loader   *source.Loader
	pipeline *export.Pipeline
	logger   *slog.Logger

	mode      types.Mode
	source    *source.Image
	crop      *cropper.Controller
	cutout    *cutout.Controller
	artifact  *export.Artifact
	subject   *types.Primary
	brushSize float64
	container types.Size
}

// Option configures a Session.
type Option func(*Session)

// WithLoader sets the loader used to decode imported images.
func WithLoader(l *source.Loader) Option {
	return func(s *Session) {
		if l != nil {
			s.loader = l
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an empty session with default configuration
func New(opts ...Option) *Session {
	return NewWithConfig(DefaultConfig(), opts...)
}

// NewWithConfig creates an empty session with custom configuration
func NewWithConfig(config Config, opts ...Option) *Session {
	if config.OutputSize <= 0 {
		config.OutputSize = export.DefaultSize
	}
	if config.Crop.OutputSize <= 0 {
		config.Crop.OutputSize = config.OutputSize
	}
	if config.Cutout.BrushSize <= 0 {
		config.Cutout.BrushSize = cutout.DefaultConfig().BrushSize
	}

	s := &Session{
		config:    config,
		loader:    source.NewLoader(),
		pipeline:  export.NewWithSize(config.OutputSize),
		logger:    slog.Default(),
		mode:      types.ModeEmpty,
		brushSize: config.Cutout.BrushSize,
		container: config.Container,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode returns the view currently shown.
func (s *Session) Mode() types.Mode {
	return s.mode
}

// Source returns the loaded source image, or nil.
func (s *Session) Source() *source.Image {
	return s.source
}

// Crop returns the crop controller while in crop mode, or nil.
func (s *Session) Crop() *cropper.Controller {
	return s.crop
}

// Cutout returns the cutout controller while in cutout mode, or nil.
func (s *Session) Cutout() *cutout.Controller {
	return s.cutout
}

// Preview returns the last exported artifact, or nil once it was cleared.
func (s *Session) Preview() *export.Artifact {
	return s.artifact
}

// Subject returns the last located subject, or nil.
func (s *Session) Subject() *types.Primary {
	return s.subject
}

// BrushSize returns the eraser width applied to new cutout canvases.
func (s *Session) BrushSize() float64 {
	return s.brushSize
}

// Container returns the measured editor area.
func (s *Session) Container() types.Size {
	return s.container
}

// SetContainer records the measured editor area. It applies the next time
// the cutout canvas is built. Sizes that are not positive or exceed
// MaxContainer are rejected and the previous size is kept.
func (s *Session) SetContainer(size types.Size) error {
	limit := s.MaxContainer()
	if size.W <= 0 || size.H <= 0 || size.W > limit.W || size.H > limit.H {
		return fmt.Errorf("%w: %dx%d (limit %dx%d)", ErrInvalidContainer, size.W, size.H, limit.W, limit.H)
	}
	s.container = size
	return nil
}

// MaxContainer returns the largest container the cutout canvas accepts.
func (s *Session) MaxContainer() types.Size {
	return s.config.Cutout.MaxSize()
}

// Load decodes r and makes it the session image, entering crop mode. On a
// decode failure the current image and view are kept.
func (s *Session) Load(ctx context.Context, name string, r io.Reader) error {
	img, err := s.loader.Decode(ctx, name, r)
	if err != nil {
		return err
	}
	s.reset(img)
	return s.SwitchToCrop()
}

// Open loads a file path or http(s) URL.
func (s *Session) Open(ctx context.Context, src string) error {
	img, err := s.loader.Load(ctx, src)
	if err != nil {
		return err
	}
	s.reset(img)
	return s.SwitchToCrop()
}

// LoadImage makes an already decoded bitmap the session image.
func (s *Session) LoadImage(name string, img image.Image) error {
	if img == nil {
		return types.ErrNoImage
	}
	s.reset(source.New(name, img))
	return s.SwitchToCrop()
}

// Reset drops the image, both controllers and the preview, and shows the
// empty view.
func (s *Session) Reset() {
	s.reset(nil)
}

// reset is the only place the source image is substituted.
func (s *Session) reset(next *source.Image) {
	s.clearPreview()
	s.crop = nil
	s.subject = nil
	s.disposeCutout()
	if s.source != nil && s.source != next {
		s.source.Release()
	}
	s.source = next
	s.mode = types.ModeEmpty
	if next != nil {
		info := next.Info()
		s.logger.Info("image loaded", "name", next.Name(), "format", info.Format, "width", info.Width, "height", info.Height)
	}
}

// SwitchTo changes to the named mode.
func (s *Session) SwitchTo(mode types.Mode) error {
	switch mode {
	case types.ModeCrop:
		return s.SwitchToCrop()
	case types.ModeCutout:
		return s.SwitchToCutout()
	case types.ModeEmpty:
		s.Reset()
		return nil
	}
	return fmt.Errorf("unknown mode: %q", mode)
}

// SwitchToCrop shows the crop view with a fresh crop box over the source
// image. Erase edits are not written back.
func (s *Session) SwitchToCrop() error {
	s.clearPreview()
	s.disposeCutout()

	bitmap, err := s.bitmap()
	if err != nil {
		s.mode = types.ModeEmpty
		s.crop = nil
		return err
	}
	s.crop = cropper.NewWithConfig(bitmap, s.config.Crop)
	s.subject = nil
	s.mode = types.ModeCrop
	return nil
}

// SwitchToCutout shows the cutout view on a canvas rebuilt from the source
// image. Any previous canvas and its history are discarded. If the canvas
// cannot be built the session returns to the crop view.
func (s *Session) SwitchToCutout() error {
	s.clearPreview()
	s.crop = nil
	s.subject = nil
	s.disposeCutout()

	bitmap, err := s.bitmap()
	if err != nil {
		s.mode = types.ModeEmpty
		return err
	}

	cfg := s.config.Cutout
	cfg.BrushSize = s.brushSize
	c, err := cutout.NewWithConfig(bitmap, s.container, cfg)
	if err != nil {
		// The image is still loaded; fall back to the crop view.
		s.crop = cropper.NewWithConfig(bitmap, s.config.Crop)
		s.mode = types.ModeCrop
		return fmt.Errorf("failed to build cutout canvas: %w", err)
	}
	s.cutout = c
	s.mode = types.ModeCutout
	return nil
}

func (s *Session) bitmap() (image.Image, error) {
	if s.source == nil {
		return nil, types.ErrNoImage
	}
	bitmap, err := s.source.Bitmap()
	if err != nil {
		return nil, types.ErrNoImage
	}
	return bitmap, nil
}

func (s *Session) disposeCutout() {
	if s.cutout != nil {
		s.cutout.Dispose()
		s.cutout = nil
	}
}

func (s *Session) clearPreview() {
	s.artifact = nil
}

// CropAction is a named crop toolbar button.
type CropAction string

const (
	CropCenter  CropAction = "center"
	CropEnlarge CropAction = "enlarge"
	CropZoomIn  CropAction = "zoom-in"
	CropZoomOut CropAction = "zoom-out"
	CropReset   CropAction = "reset"
)

// ApplyCrop runs a crop toolbar action. Outside crop mode it does nothing.
func (s *Session) ApplyCrop(action CropAction) error {
	var op func()
	switch action {
	case CropCenter:
		op = s.crop.Center
	case CropEnlarge:
		op = s.crop.Enlarge
	case CropZoomIn:
		op = s.crop.ZoomIn
	case CropZoomOut:
		op = s.crop.ZoomOut
	case CropReset:
		op = s.crop.Reset
	default:
		return fmt.Errorf("unknown crop action: %q", action)
	}
	if s.mode == types.ModeCrop {
		op()
	}
	return nil
}

// MoveCrop drags the crop box by dx, dy image pixels.
func (s *Session) MoveCrop(dx, dy float64) {
	if s.mode == types.ModeCrop {
		s.crop.Move(dx, dy)
	}
}

// SetCropBox places the crop box at x, y with the given side.
func (s *Session) SetCropBox(x, y, size float64) {
	if s.mode == types.ModeCrop {
		s.crop.SetBox(x, y, size)
	}
}

// CropBox returns the crop box in image pixels, or an empty rectangle outside crop mode.
func (s *Session) CropBox() image.Rectangle {
	if s.mode != types.ModeCrop {
		return image.Rectangle{}
	}
	return s.crop.Box()
}

// PlaceOnSubject moves the crop box onto the subject found by locator.
func (s *Session) PlaceOnSubject(ctx context.Context, locator subject.Locator) (types.Primary, error) {
	if s.mode != types.ModeCrop || s.crop == nil {
		return types.Primary{}, types.ErrNoImage
	}
	p, err := s.crop.PlaceOnSubject(ctx, locator)
	if err != nil {
		if errors.Is(err, subject.ErrNoSubject) {
			s.logger.Debug("no subject found, keeping crop box")
		} else {
			s.logger.Warn("subject location failed", "error", err)
		}
		return types.Primary{}, err
	}
	s.subject = &p
	s.logger.Info("crop placed on subject", "label", p.Label, "confidence", p.Confidence)
	return p, nil
}

// Overlay renders the image with the crop box and located subject drawn on it.
func (s *Session) Overlay() (*image.NRGBA, error) {
	if s.mode != types.ModeCrop || s.crop == nil {
		return nil, types.ErrNoImage
	}
	return s.crop.Overlay(s.subject), nil
}

// SetBrushSize changes the eraser width, clamped to the brush limits, and
// returns the applied width. It also applies to the live canvas.
func (s *Session) SetBrushSize(size float64) float64 {
	s.brushSize = min(cutout.MaxBrushSize, max(cutout.MinBrushSize, size))
	if s.mode == types.ModeCutout {
		if applied, err := s.cutout.SetBrushSize(s.brushSize); err == nil {
			s.brushSize = applied
		}
	}
	return s.brushSize
}

// Erase applies a completed stroke in cutout mode. Outside it nothing happens.
func (s *Session) Erase(stroke types.Stroke) error {
	if s.mode != types.ModeCutout {
		return nil
	}
	return s.cutout.Erase(stroke)
}

// Undo reverts the last stroke in cutout mode and reports whether anything changed.
func (s *Session) Undo() (bool, error) {
	if s.mode != types.ModeCutout {
		return false, nil
	}
	return s.cutout.Undo()
}

// HistoryLen returns the number of undo snapshots of the live canvas.
func (s *Session) HistoryLen() int {
	if s.mode != types.ModeCutout {
		return 0
	}
	return s.cutout.HistoryLen()
}

func (s *Session) active() export.Active {
	switch s.mode {
	case types.ModeCrop:
		return export.Active{Crop: s.crop}
	case types.ModeCutout:
		return export.Active{Cutout: s.cutout}
	}
	return export.Active{}
}

// Export renders the active view in the given shape and keeps it as the preview.
func (s *Session) Export(shape types.Shape) (*export.Artifact, error) {
	art, err := s.pipeline.Export(s.active(), shape)
	if err != nil {
		return nil, err
	}
	s.artifact = art
	s.logger.Info("icon exported", "shape", shape, "mode", s.mode, "bytes", len(art.Data))
	return art, nil
}

// ExportSquare renders a square icon.
func (s *Session) ExportSquare() (*export.Artifact, error) {
	return s.Export(types.ShapeSquare)
}

// ExportCircle renders a circular icon.
func (s *Session) ExportCircle() (*export.Artifact, error) {
	return s.Export(types.ShapeCircle)
}

// Upload exports the given shape from the current view and sends it to up. The name falls back to
// the imported filename stem and then to the default name. The outcome is
// returned as user-facing feedback.
func (s *Session) Upload(ctx context.Context, up Uploader, shape types.Shape, name string) Feedback {
	art, err := s.Export(shape)
	if err != nil {
		return FeedbackFor(err)
	}

	req := upload.Request{
		Data: art.Data,
		Name: upload.ResolveName(name, s.source.Name(), s.config.DefaultName),
	}
	if shape == types.ShapeCircle {
		req.Suffix = upload.CircleSuffix
	}

	result, err := up.Upload(ctx, req)
	if err != nil {
		return FeedbackFor(err)
	}
	return Success(result.Name)
}
