// Package upload posts exported icons to the icon library endpoint.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/menta2k/icon-editor/internal/utils"
)

const (
	// DefaultEndpoint is the upload path on the icon library server.
	DefaultEndpoint = "/api/upload"
	// DefaultName is used when neither the user nor the filename gives a name.
	DefaultName = "icon"
	// CircleSuffix is appended to the filename of circular icons.
	CircleSuffix = "_circle"
	// DefaultTimeout bounds a single upload request.
	DefaultTimeout = 60 * time.Second

	// FieldSource and FieldName are the multipart field names.
	FieldSource = "source"
	FieldName   = "name"
)

// ErrMissingInput is returned before any network call when the name or file is missing.
var ErrMissingInput = errors.New("please enter a name and choose an image")

// ServerError is a non-success answer from the upload endpoint.
type ServerError struct {
	Status  int
	Message string
	Err     error
}

func (e *ServerError) Error() string {
	return e.Message
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

// TransportError is a failure to reach the endpoint or read its answer.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "upload failed: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Result is the server's answer to a successful upload.
type Result struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

type response struct {
	Success bool   `json:"success"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	Error   string `json:"error"`
	Details string `json:"details"`
}

// Request is one file to upload.
type Request struct {
	Data []byte
	// Name is the library entry name sent in the name field.
	Name string
	// Suffix is appended to Name to build the filename, e.g. CircleSuffix.
	Suffix string
	// FileName overrides the generated {Name}{Suffix}.png filename.
	FileName string
	// ContentType overrides the sniffed content type.
	ContentType string
}

// ResolveName picks the upload name: the trimmed user input, else the stem of
// filename, else fallback, else DefaultName.
func ResolveName(input, filename, fallback string) string {
	if name := strings.TrimSpace(input); name != "" {
		return name
	}
	if stem := strings.TrimSpace(utils.FileStem(filename)); stem != "" {
		return stem
	}
	if fallback = strings.TrimSpace(fallback); fallback != "" {
		return fallback
	}
	return DefaultName
}

// FileName returns {name}{suffix}.png
func FileName(name, suffix string) string {
	return name + suffix + ".png"
}

// ValidateInput reports ErrMissingInput when the name is blank or there is no data.
func ValidateInput(name string, data []byte) error {
	if strings.TrimSpace(name) == "" || len(data) == 0 {
		return ErrMissingInput
	}
	return nil
}

// Client uploads icons to an icon library server.
type Client struct {
	baseURL    string
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for uploads.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithEndpoint overrides the upload path.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = "/" + strings.TrimPrefix(endpoint, "/")
		}
	}
}

// WithTimeout bounds each upload when the caller's context has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for the server at baseURL. An empty baseURL
// posts to the endpoint path as given, relative to nothing; callers normally
// pass the page origin.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		endpoint:   DefaultEndpoint,
		httpClient: http.DefaultClient,
		timeout:    DefaultTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the full upload URL.
func (c *Client) URL() string {
	return c.baseURL + c.endpoint
}

// Upload posts one file as multipart form data with fields "source" and "name".
func (c *Client) Upload(ctx context.Context, req Request) (*Result, error) {
	if err := ValidateInput(req.Name, req.Data); err != nil {
		return nil, err
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	fileName := req.FileName
	if fileName == "" {
		fileName = FileName(req.Name, req.Suffix)
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(req.Data)
	}

	body, formType, err := encodeForm(req.Data, fileName, contentType, req.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(), body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	httpReq.Header.Set("Content-Type", formType)
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("upload failed", "file", fileName, "error", err)
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	result, err := decodeResponse(resp)
	if err != nil {
		c.logger.Warn("upload rejected", "file", fileName, "status", resp.StatusCode, "error", err)
		return nil, err
	}
	if result.Name == "" {
		result.Name = req.Name
	}
	c.logger.Info("upload complete", "file", fileName, "name", result.Name, "duration", time.Since(start))
	return result, nil
}

func encodeForm(data []byte, fileName, contentType, name string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FieldSource, escapeQuotes(fileName)))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := mw.WriteField(FieldName, name); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// decodeResponse maps the server answer to a Result or an error. A server
// error text is reported verbatim; otherwise the status code is.
func decodeResponse(resp *http.Response) (*Result, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	fallback := fmt.Sprintf("upload failed (HTTP %d)", resp.StatusCode)

	var body response
	if err := json.Unmarshal(raw, &body); err != nil {
		if ok {
			return nil, &TransportError{Err: fmt.Errorf("malformed response: %w", err)}
		}
		return nil, &ServerError{Status: resp.StatusCode, Message: fallback, Err: err}
	}

	if ok && body.Success {
		return &Result{Name: body.Name, URL: body.URL}, nil
	}

	msg := body.Error
	if msg == "" {
		msg = fallback
	}
	return nil, &ServerError{Status: resp.StatusCode, Message: msg}
}
