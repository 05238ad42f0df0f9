package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	_ "image/jpeg"

	"github.com/catalogai/doc-analyzer/internal/fault"
)

// ghostscriptPaths are checked before falling back to PATH lookup.
var ghostscriptPaths = []string{
	"/usr/bin/gs",
	"/usr/local/bin/gs",
	"/opt/homebrew/bin/gs",
}

// GhostscriptBackend shells out to gs. It stages the input in a temp
// directory, renders JPEGs there, reads them back, and removes the
// directory before returning.
type GhostscriptBackend struct {
	runner Runner
	binary string
	log    *slog.Logger
}

// NewGhostscriptBackend builds the external-process backend. binaryPath
// overrides discovery when non-empty; otherwise known install locations are
// checked before PATH.
func NewGhostscriptBackend(binaryPath string, logger *slog.Logger) *GhostscriptBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &GhostscriptBackend{runner: execRunner{}, binary: binaryPath, log: logger}
}

func (b *GhostscriptBackend) ID() string { return "ghostscript" }

func (b *GhostscriptBackend) Available(context.Context) error {
	if b.findBinary() == "" {
		return fault.New(fault.KindNoBackendAvailable, "ghostscript binary not found on this host")
	}
	return nil
}

func (b *GhostscriptBackend) findBinary() string {
	if b.binary != "" {
		return b.binary
	}
	for _, p := range ghostscriptPaths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			b.binary = p
			return p
		}
	}
	if p, err := exec.LookPath("gs"); err == nil {
		b.binary = p
		return p
	}
	return ""
}

func (b *GhostscriptBackend) Convert(ctx context.Context, pdfData []byte, opts ConvertOptions) ([]Page, error) {
	opts = opts.Clamped()

	bin := b.findBinary()
	if bin == "" {
		return nil, fault.New(fault.KindNoBackendAvailable, "ghostscript binary not found on this host")
	}

	stage, err := os.MkdirTemp("", "doc-analyzer-gs-*")
	if err != nil {
		return nil, fault.Wrap(fault.KindFileUnreadable, err, "ghostscript: create staging dir")
	}
	defer func() {
		if rerr := os.RemoveAll(stage); rerr != nil {
			b.log.Warn("raster.stage_cleanup_failed", "dir", stage, "error", rerr)
		}
	}()

	input := filepath.Join(stage, "input.pdf")
	if err := os.WriteFile(input, pdfData, 0o600); err != nil {
		return nil, fault.Wrap(fault.KindFileUnreadable, err, "ghostscript: stage input")
	}

	// Arguments go through argv, never a shell.
	outPattern := filepath.Join(stage, "page-%03d.jpg")
	args := []string{
		"-dNOPAUSE", "-dBATCH", "-dSAFER", "-dQUIET",
		"-sDEVICE=jpeg",
		fmt.Sprintf("-r%d", opts.DPI),
		fmt.Sprintf("-dJPEGQ=%d", opts.Quality),
		"-dFirstPage=1",
		fmt.Sprintf("-dLastPage=%d", opts.MaxPages),
		"-sOutputFile=" + outPattern,
		input,
	}
	if _, errb, err := b.runner.Run(ctx, bin, args...); err != nil {
		return nil, fault.Wrap(fault.KindFileUnreadable,
			fmt.Errorf("%w: %s", err, truncate(string(errb), 2<<10)),
			"ghostscript: render failed")
	}

	matches, _ := filepath.Glob(filepath.Join(stage, "page-*.jpg"))
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, fault.New(fault.KindFileUnreadable, "ghostscript: produced no page images")
	}
	if len(matches) > opts.MaxPages {
		matches = matches[:opts.MaxPages]
	}

	pages := make([]Page, 0, len(matches))
	for i, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fault.Wrap(fault.KindFileUnreadable, err, "ghostscript: read page %d", i+1)
		}
		width, height := jpegDims(data)
		pages = append(pages, Page{
			Number:   i + 1,
			Data:     data,
			MIMEType: "image/jpeg",
			Width:    width,
			Height:   height,
		})
	}
	return pages, nil
}

func jpegDims(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
