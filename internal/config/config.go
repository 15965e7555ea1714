package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/icon-editor/pkg/cropper"
	"github.com/menta2k/icon-editor/pkg/cutout"
	"github.com/menta2k/icon-editor/pkg/editor"
	"github.com/menta2k/icon-editor/pkg/saliency"
	"github.com/menta2k/icon-editor/pkg/types"
)

// Vision backends
const (
	BackendNone     = "none"
	BackendSaliency = "saliency"
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
)

// Config holds the application configuration
type Config struct {
	Editor EditorConfig `json:"editor" yaml:"editor"`
	Upload UploadConfig `json:"upload" yaml:"upload"`
	Vision VisionConfig `json:"vision" yaml:"vision"`
	Server ServerConfig `json:"server" yaml:"server"`
}

// EditorConfig holds configuration for cropping, erasing and export
type EditorConfig struct {
	OutputSize   int     `json:"output_size" yaml:"output_size"`
	HistoryLimit int     `json:"history_limit" yaml:"history_limit"`
	BrushSize    float64 `json:"brush_size" yaml:"brush_size"`
	MinWidth     int     `json:"min_width" yaml:"min_width"`
	MinHeight    int     `json:"min_height" yaml:"min_height"`
	MaxWidth     int     `json:"max_canvas_width" yaml:"max_canvas_width"`
	MaxHeight    int     `json:"max_canvas_height" yaml:"max_canvas_height"`
	ZoomStep     float64 `json:"zoom_step" yaml:"zoom_step"`
	PresetRatio  float64 `json:"preset_ratio" yaml:"preset_ratio"`
	MinBoxSize   int     `json:"min_box_size" yaml:"min_box_size"`
	MaxFileSize  int64   `json:"max_file_size" yaml:"max_file_size"`
}

// UploadConfig holds configuration for the icon library endpoint
type UploadConfig struct {
	BaseURL        string `json:"base_url" yaml:"base_url"`
	Endpoint       string `json:"endpoint" yaml:"endpoint"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
	DefaultName    string `json:"default_name" yaml:"default_name"`
}

// VisionConfig holds configuration for subject location
type VisionConfig struct {
	Backend         string  `json:"backend" yaml:"backend"`
	URL             string  `json:"url" yaml:"url"`
	Model           string  `json:"model" yaml:"model"`
	EdgeThreshold   float64 `json:"edge_threshold" yaml:"edge_threshold"`
	ContrastWeight  float64 `json:"contrast_weight" yaml:"contrast_weight"`
	ColorWeight     float64 `json:"color_weight" yaml:"color_weight"`
	MinSubjectRatio float64 `json:"min_subject_ratio" yaml:"min_subject_ratio"`
}

// ServerConfig holds configuration for the local page API
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
	// ContainerWidth and ContainerHeight size the cutout canvas when the page
	// does not report its measured editor area.
	ContainerWidth  int `json:"container_width" yaml:"container_width"`
	ContainerHeight int `json:"container_height" yaml:"container_height"`
}

// Default returns a configuration with default values
func Default() *Config {
	saliencyDefaults := saliency.DefaultConfig()
	return &Config{
		Editor: EditorConfig{
			OutputSize:   512,
			HistoryLimit: 30,
			BrushSize:    25,
			MinWidth:     300,
			MinHeight:    420,
			MaxWidth:     cutout.DefaultMaxSize,
			MaxHeight:    cutout.DefaultMaxSize,
			ZoomStep:     0.1,
			PresetRatio:  1.0,
			MinBoxSize:   16,
			MaxFileSize:  64 << 20,
		},
		Upload: UploadConfig{
			BaseURL:        "http://localhost:5000",
			Endpoint:       "/api/upload",
			TimeoutSeconds: 60,
			DefaultName:    "icon",
		},
		Vision: VisionConfig{
			Backend:         BackendSaliency,
			URL:             "http://localhost:11434",
			Model:           "minicpm-v",
			EdgeThreshold:   saliencyDefaults.EdgeThreshold,
			ContrastWeight:  saliencyDefaults.ContrastWeight,
			ColorWeight:     saliencyDefaults.ColorWeight,
			MinSubjectRatio: saliencyDefaults.MinSubjectRatio,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			ContainerWidth:  600,
			ContainerHeight: 420,
		},
	}
}

func isYAML(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}

// LoadFromFile loads configuration from a JSON file, or YAML when the
// extension is .yaml or .yml. Missing fields keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if isYAML(filename) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON or YAML file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(filename) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Editor.OutputSize < 16 || c.Editor.OutputSize > 4096 {
		return fmt.Errorf("editor.output_size must be between 16 and 4096")
	}

	if c.Editor.HistoryLimit < 1 {
		return fmt.Errorf("editor.history_limit must be positive")
	}

	if c.Editor.BrushSize < cutout.MinBrushSize || c.Editor.BrushSize > cutout.MaxBrushSize {
		return fmt.Errorf("editor.brush_size must be between %d and %d", cutout.MinBrushSize, cutout.MaxBrushSize)
	}

	if c.Editor.MinWidth < 1 || c.Editor.MinHeight < 1 {
		return fmt.Errorf("editor.min_width and editor.min_height must be positive")
	}

	if c.Editor.MaxWidth < c.Editor.MinWidth || c.Editor.MaxHeight < c.Editor.MinHeight {
		return fmt.Errorf("editor.max_canvas_width and editor.max_canvas_height must not be below the minimums")
	}

	if c.Editor.ZoomStep <= 0 || c.Editor.ZoomStep >= 1 {
		return fmt.Errorf("editor.zoom_step must be between 0 and 1")
	}

	if c.Editor.PresetRatio <= 0 || c.Editor.PresetRatio > 1 {
		return fmt.Errorf("editor.preset_ratio must be between 0 and 1")
	}

	if c.Editor.MaxFileSize < 1 {
		return fmt.Errorf("editor.max_file_size must be positive")
	}

	if c.Upload.BaseURL != "" {
		u, err := url.Parse(c.Upload.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("upload.base_url must be an http(s) URL")
		}
	}

	if !strings.HasPrefix(c.Upload.Endpoint, "/") {
		return fmt.Errorf("upload.endpoint must start with /")
	}

	if c.Upload.TimeoutSeconds < 1 {
		return fmt.Errorf("upload.timeout_seconds must be positive")
	}

	if strings.TrimSpace(c.Upload.DefaultName) == "" {
		return fmt.Errorf("upload.default_name cannot be empty")
	}

	switch c.Vision.Backend {
	case BackendNone, BackendSaliency:
	case BackendOllama, BackendLlamaCpp:
		if c.Vision.URL == "" {
			return fmt.Errorf("vision.url is required for backend %s", c.Vision.Backend)
		}
	default:
		return fmt.Errorf("vision.backend must be one of none, saliency, ollama, llamacpp")
	}

	if c.Vision.EdgeThreshold < 0 || c.Vision.EdgeThreshold > 1 {
		return fmt.Errorf("vision.edge_threshold must be between 0 and 1")
	}

	if c.Vision.MinSubjectRatio < 0 || c.Vision.MinSubjectRatio > 1 {
		return fmt.Errorf("vision.min_subject_ratio must be between 0 and 1")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}

	if c.Server.ContainerWidth > c.Editor.MaxWidth || c.Server.ContainerHeight > c.Editor.MaxHeight {
		return fmt.Errorf("server.container_width and server.container_height must fit the editor canvas limits")
	}

	return nil
}

// UploadTimeout returns the upload timeout as a duration.
func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.Upload.TimeoutSeconds) * time.Second
}

// EditorSession returns the session configuration for the editor section.
func (c *Config) EditorSession() editor.Config {
	return editor.Config{
		Crop: cropper.Config{
			OutputSize:  c.Editor.OutputSize,
			ZoomStep:    c.Editor.ZoomStep,
			PresetRatio: c.Editor.PresetRatio,
			MinBoxSize:  c.Editor.MinBoxSize,
		},
		Cutout: cutout.Config{
			MinWidth:     c.Editor.MinWidth,
			MinHeight:    c.Editor.MinHeight,
			MaxWidth:     c.Editor.MaxWidth,
			MaxHeight:    c.Editor.MaxHeight,
			BrushSize:    c.Editor.BrushSize,
			HistoryLimit: c.Editor.HistoryLimit,
		},
		OutputSize:  c.Editor.OutputSize,
		Container:   types.Size{W: c.Server.ContainerWidth, H: c.Server.ContainerHeight},
		DefaultName: c.Upload.DefaultName,
	}
}

// Saliency returns the offline locator configuration.
func (c *Config) Saliency() saliency.Config {
	sc := saliency.DefaultConfig()
	sc.EdgeThreshold = c.Vision.EdgeThreshold
	sc.ContrastWeight = c.Vision.ContrastWeight
	sc.ColorWeight = c.Vision.ColorWeight
	sc.MinSubjectRatio = c.Vision.MinSubjectRatio
	return sc
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "icon-editor", "config.json")
}
