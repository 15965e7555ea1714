// Package source decodes user-selected images into bitmap handles owned by an
// editing session.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrReleased is returned when a released image is used.
var ErrReleased = errors.New("source image released")

// DefaultMaxBytes bounds how much data a single import may read.
const DefaultMaxBytes = 64 << 20

// Info contains basic image metadata
type Info struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Format      string  `json:"format"`
	HasAlpha    bool    `json:"has_alpha"`
}

// Image is a decoded source bitmap together with the name it was selected under.
type Image struct {
	name   string
	format string
	img    image.Image
}

// New wraps an already decoded bitmap.
func New(name string, img image.Image) *Image {
	return &Image{name: name, format: "memory", img: img}
}

// Name returns the original filename (or URL) of the image.
func (i *Image) Name() string {
	if i == nil {
		return ""
	}
	return i.name
}

// Format returns the decoder name that produced the bitmap.
func (i *Image) Format() string {
	if i == nil {
		return ""
	}
	return i.format
}

// Bitmap returns the decoded image.
func (i *Image) Bitmap() (image.Image, error) {
	if i == nil || i.img == nil {
		return nil, ErrReleased
	}
	return i.img, nil
}

// Info returns dimensions and alpha information. A released image reports zero values.
func (i *Image) Info() Info {
	if i == nil || i.img == nil {
		return Info{}
	}
	b := i.img.Bounds()
	info := Info{
		Width:    b.Dx(),
		Height:   b.Dy(),
		Format:   i.format,
		HasAlpha: hasAlpha(i.img),
	}
	if b.Dy() > 0 {
		info.AspectRatio = float64(b.Dx()) / float64(b.Dy())
	}
	return info
}

// Release drops the bitmap. It is safe to call more than once.
func (i *Image) Release() {
	if i == nil {
		return
	}
	i.img = nil
}

// Released reports whether Release has been called.
func (i *Image) Released() bool {
	return i == nil || i.img == nil
}

func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}

// Loader decodes images from readers, files and URLs.
type Loader struct {
	httpClient *http.Client
	maxBytes   int64
	userAgent  string
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient sets the client used by Fetch.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.httpClient = c }
}

// WithMaxBytes limits the size of a single import.
func WithMaxBytes(n int64) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// NewLoader creates a loader with default settings
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxBytes:   DefaultMaxBytes,
		userAgent:  "Icon-Editor/1.0",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Decode reads r fully and decodes it. The context is checked before and after
// decoding so a caller that gave up does not receive a stale image.
func (l *Loader) Decode(ctx context.Context, name string, r io.Reader) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("image %s exceeds %d bytes", name, l.maxBytes)
	}

	img, format, err := decodeBytes(data, name)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", name, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Image{name: name, format: format, img: img}, nil
}

// Open decodes a local file.
func (l *Loader) Open(ctx context.Context, path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	defer f.Close()
	return l.Decode(ctx, filepath.Base(path), f)
}

// Fetch downloads and decodes an image from an http(s) URL.
func (l *Loader) Fetch(ctx context.Context, imageURL string) (*Image, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	name := filepath.Base(parsedURL.Path)
	if name == "." || name == "/" {
		name = parsedURL.Host
	}
	return l.Decode(ctx, name, resp.Body)
}

// Load decodes either a URL or a file path.
func (l *Loader) Load(ctx context.Context, src string) (*Image, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return l.Fetch(ctx, src)
	}
	return l.Open(ctx, src)
}

// decodeBytes tries the registered decoders first (with EXIF orientation
// applied) and falls back to an explicit WebP decode.
func decodeBytes(data []byte, name string) (image.Image, string, error) {
	_, format, cfgErr := image.DecodeConfig(bytes.NewReader(data))
	if cfgErr == nil {
		img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err == nil {
			return img, format, nil
		}
	}

	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, "webp", nil
	}

	if cfgErr != nil {
		return nil, "", cfgErr
	}
	return nil, "", fmt.Errorf("image: unknown or unsupported format for %s", name)
}
