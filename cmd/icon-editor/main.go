package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/disintegration/imaging"

	iconeditor "github.com/menta2k/icon-editor"
	"github.com/menta2k/icon-editor/internal/config"
	"github.com/menta2k/icon-editor/internal/server"
	"github.com/menta2k/icon-editor/internal/utils"
	"github.com/menta2k/icon-editor/pkg/editor"
	"github.com/menta2k/icon-editor/pkg/source"
	"github.com/menta2k/icon-editor/pkg/types"
	"github.com/menta2k/icon-editor/pkg/upload"
)

const usage = `usage: icon-editor <command> [flags]

commands:
  edit     crop or erase one image and export 512x512 icons
  batch    upload image files or directories to the icon library
  serve    serve the editor API for the page
  version  print the version

run "icon-editor <command> -h" for command flags`

// commonFlags are shared by every command.
type commonFlags struct {
	configPath string
	baseURL    string
	backend    string
	visionURL  string
	model      string
	verbose    bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "config file (.json, .yaml); defaults to "+config.GetConfigPath()+" when present")
	fs.StringVar(&c.baseURL, "base-url", "", "icon library base URL (overrides config)")
	fs.StringVar(&c.backend, "backend", "", "subject locator: none|saliency|ollama|llamacpp (overrides config)")
	fs.StringVar(&c.visionURL, "url", "", "vision server URL (overrides config)")
	fs.StringVar(&c.model, "model", "", "vision model name (overrides config)")
	fs.BoolVar(&c.verbose, "v", false, "verbose logging")
}

// load reads the config file and applies flag overrides.
func (c *commonFlags) load() (*config.Config, error) {
	path := c.configPath
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}

	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if c.baseURL != "" {
		cfg.Upload.BaseURL = c.baseURL
	}
	if c.backend != "" {
		cfg.Vision.Backend = c.backend
	}
	if c.visionURL != "" {
		cfg.Vision.URL = c.visionURL
	}
	if c.model != "" {
		cfg.Vision.Model = c.model
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *commonFlags) logger() *slog.Logger {
	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newUploadClient(cfg *config.Config, logger *slog.Logger) *upload.Client {
	return upload.NewClient(cfg.Upload.BaseURL,
		upload.WithEndpoint(cfg.Upload.Endpoint),
		upload.WithTimeout(cfg.UploadTimeout()),
		upload.WithLogger(logger))
}

func newSession(cfg *config.Config, logger *slog.Logger) *editor.Session {
	loader := source.NewLoader(source.WithMaxBytes(cfg.Editor.MaxFileSize))
	return editor.NewWithConfig(cfg.EditorSession(), editor.WithLoader(loader), editor.WithLogger(logger))
}

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		log.Fatal(usage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "edit":
		err = runEdit(ctx, args)
	case "batch":
		err = runBatch(ctx, args)
	case "serve":
		err = runServe(ctx, args)
	case "version":
		fmt.Printf("icon-editor %s\n", iconeditor.Version)
	case "help", "-h", "--help":
		fmt.Println(usage)
	default:
		log.Fatalf("unknown command %q\n\n%s", cmd, usage)
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatal(utils.DecorateText(err.Error(), utils.ErrorMessage))
	}
}

func runEdit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)

	var (
		in, out, mode, shapeFlag, name string
		box, move, strokesFile         string
		zoomIn, zoomOut, undo          int
		center, enlarge, locate        bool
		doUpload, debug                bool
		brush                          float64
		strokes                        strokeList
	)
	fs.StringVar(&in, "in", "", "input image path or URL (jpg/png/gif/bmp/tiff/webp)")
	fs.StringVar(&out, "out", ".", `output directory, or "-" to write a single icon to stdout`)
	fs.StringVar(&mode, "mode", "crop", "editing mode: crop|cutout")
	fs.StringVar(&shapeFlag, "shape", "both", "icon shape: square|circle|both")

	fs.IntVar(&zoomIn, "zoom-in", 0, "crop: zoom in N steps")
	fs.IntVar(&zoomOut, "zoom-out", 0, "crop: zoom out N steps")
	fs.BoolVar(&center, "center", false, "crop: center the box")
	fs.BoolVar(&enlarge, "enlarge", false, "crop: enlarge the box to the preset size")
	fs.StringVar(&box, "box", "", "crop: place the box at x,y,size (image pixels)")
	fs.StringVar(&move, "move", "", "crop: move the box by dx,dy (image pixels)")
	fs.BoolVar(&locate, "subject", false, "crop: place the box on the subject found by the vision backend")
	fs.BoolVar(&debug, "debug", false, "crop: write an overlay image showing the crop box")

	fs.Float64Var(&brush, "brush", 0, "cutout: eraser width (1-200, default from config)")
	fs.Var(&strokes, "stroke", `cutout: eraser stroke "x,y x,y ..." in canvas pixels (repeatable)`)
	fs.StringVar(&strokesFile, "strokes", "", "cutout: JSON file with an array of strokes")
	fs.IntVar(&undo, "undo", 0, "cutout: undo the last N strokes")

	fs.BoolVar(&doUpload, "upload", false, "upload the icons to the icon library")
	fs.StringVar(&name, "name", "", "icon name (defaults to the input filename)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if in == "" {
		return fmt.Errorf("usage: icon-editor edit -in input.jpg|URL [-mode crop|cutout] [-shape square|circle|both] [-out dir|-] [-upload]")
	}
	if m := types.Mode(mode); m != types.ModeCrop && m != types.ModeCutout {
		return fmt.Errorf("unknown mode: %s (use crop or cutout)", mode)
	}
	shapes, err := parseShapes(shapeFlag)
	if err != nil {
		return err
	}
	if out == "-" {
		if len(shapes) != 1 {
			return fmt.Errorf(`-out - needs a single -shape`)
		}
		if utils.IsTerminal(os.Stdout) {
			return fmt.Errorf("refusing to write PNG data to a terminal; redirect stdout or use -out dir")
		}
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	logger := common.logger()
	start := time.Now()

	session := newSession(cfg, logger)
	if err := session.Open(ctx, in); err != nil {
		return err
	}
	info := session.Source().Info()
	log.Printf("loaded %s (%dx%d %s)", filepath.Base(in), info.Width, info.Height, info.Format)

	// Crop operations
	if locate {
		locator, err := buildLocator(cfg.Vision, cfg.Saliency())
		if err != nil {
			return err
		}
		if locator == nil {
			return fmt.Errorf("-subject needs a vision backend; set -backend")
		}
		p, err := session.PlaceOnSubject(ctx, locator)
		if err != nil {
			log.Print(utils.DecorateText(fmt.Sprintf("subject not found, keeping centered box: %v", err), utils.StatusMessage))
		} else {
			log.Printf("subject=%q conf=%.2f", p.Label, p.Confidence)
		}
	}
	if box != "" {
		x, y, size, err := parseBox(box)
		if err != nil {
			return err
		}
		session.SetCropBox(x, y, size)
	}
	if move != "" {
		dx, dy, err := parsePair(move)
		if err != nil {
			return fmt.Errorf("invalid move %q: %w", move, err)
		}
		session.MoveCrop(dx, dy)
	}
	if enlarge {
		session.ApplyCrop(editor.CropEnlarge)
	}
	for i := 0; i < zoomIn; i++ {
		session.ApplyCrop(editor.CropZoomIn)
	}
	for i := 0; i < zoomOut; i++ {
		session.ApplyCrop(editor.CropZoomOut)
	}
	if center {
		session.ApplyCrop(editor.CropCenter)
	}
	if b := session.CropBox(); !b.Empty() {
		logger.Debug("crop box", "x", b.Min.X, "y", b.Min.Y, "size", b.Dx())
	}
	if debug && out != "-" {
		if err := writeOverlay(session, in, out); err != nil {
			log.Printf("debug overlay failed: %v", err)
		}
	}

	// Cutout operations
	if types.Mode(mode) == types.ModeCutout {
		if brush > 0 {
			session.SetBrushSize(brush)
		}
		if err := session.SwitchToCutout(); err != nil {
			return err
		}
		if strokesFile != "" {
			fromFile, err := loadStrokes(strokesFile)
			if err != nil {
				return err
			}
			strokes = append(fromFile, strokes...)
		}
		for _, s := range strokes {
			if err := session.Erase(s); err != nil {
				return err
			}
		}
		for i := 0; i < undo; i++ {
			if changed, err := session.Undo(); err != nil || !changed {
				break
			}
		}
		log.Printf("cutout: %d strokes, %d snapshots", len(strokes), session.HistoryLen())
	}

	var client *upload.Client
	if doUpload {
		client = newUploadClient(cfg, logger)
	}

	for _, shape := range shapes {
		art, err := session.Export(shape)
		if err != nil {
			return err
		}

		if out == "-" {
			if _, err := os.Stdout.Write(art.Data); err != nil {
				return fmt.Errorf("failed to write icon: %w", err)
			}
		} else {
			if err := utils.EnsureDir(out); err != nil {
				return err
			}
			suffix := ""
			if shape == types.ShapeCircle {
				suffix = upload.CircleSuffix
			}
			path := utils.GenerateOutputFilename(in, out, "", suffix, "png")
			if err := art.WriteFile(path); err != nil {
				return err
			}
			log.Print(utils.DecorateText(fmt.Sprintf("wrote %s (%s)", path, utils.FormatFileSize(int64(len(art.Data)))), utils.SuccessMessage))
		}

		if client != nil {
			fb := session.Upload(ctx, client, shape, name)
			if !fb.OK() {
				return fb.Err
			}
			log.Print(utils.DecorateText(fb.Message, utils.SuccessMessage))
		}
	}

	log.Printf("done in %s", utils.FormatTime(time.Since(start)))
	return nil
}

func writeOverlay(session *editor.Session, in, out string) error {
	img, err := session.Overlay()
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(out); err != nil {
		return err
	}
	path := utils.GenerateOutputFilename(in, out, "", "_overlay", "png")
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save overlay: %w", err)
	}
	log.Printf("wrote %s", path)
	return nil
}

func runBatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: icon-editor batch [-base-url URL] file|dir ...")
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	logger := common.logger()
	start := time.Now()

	paths, err := utils.ExpandImagePaths(fs.Args())
	if err != nil {
		return err
	}

	files := make([]upload.File, 0, len(paths))
	unreadable := 0
	for _, p := range paths {
		f, err := upload.ReadFile(p)
		if err != nil {
			unreadable++
			log.Print(utils.DecorateText(err.Error(), utils.ErrorMessage))
			continue
		}
		files = append(files, f)
	}

	client := newUploadClient(cfg, logger)
	summary := client.UploadBatch(ctx, files, func(i int, e upload.BatchEntry) {
		msgType := utils.SuccessMessage
		if !e.OK {
			msgType = utils.ErrorMessage
		}
		log.Print(utils.DecorateText(fmt.Sprintf("[%d/%d] %s", i+1, len(files), e.Message()), msgType))
	})

	attempted := summary.Attempted + unreadable
	failed := summary.Failed() + unreadable
	log.Printf("attempted %d files, %d uploaded, %d failed in %s",
		attempted, summary.Succeeded(), failed, utils.FormatTime(time.Since(start)))
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, attempted)
	}
	return nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	var addr string
	fs.StringVar(&addr, "addr", "", "listen address (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.Server.Addr
	}
	logger := common.logger()

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithMaxUploadBytes(cfg.Editor.MaxFileSize),
	}
	locator, err := buildLocator(cfg.Vision, cfg.Saliency())
	if err != nil {
		return err
	}
	if locator != nil {
		opts = append(opts, server.WithLocator(locator))
	}

	srv := server.New(newSession(cfg, logger), newUploadClient(cfg, logger), opts...)
	log.Print(utils.DecorateText(fmt.Sprintf("serving on http://%s (uploads to %s%s)", addr, cfg.Upload.BaseURL, cfg.Upload.Endpoint), utils.StatusMessage))
	return srv.ListenAndServe(ctx, addr)
}
