package raster

import (
	"bytes"
	"context"
	"log/slog"
	"strings"

	ledongthuc "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/catalogai/doc-analyzer/internal/fault"
)

// Service converts PDFs to page images by trying its backends in order.
// The first backend that is both available and succeeds wins; a failure
// moves on to the next one instead of aborting the request.
type Service struct {
	backends []Backend
	log      *slog.Logger
}

func NewService(backends []Backend, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backends: backends, log: logger}
}

// DefaultBackends is the standard order: in-process MuPDF first, then the
// ghostscript binary if the host has one. gsPath overrides ghostscript
// discovery when non-empty.
func DefaultBackends(gsPath string, logger *slog.Logger) []Backend {
	return []Backend{NewFitzBackend(), NewGhostscriptBackend(gsPath, logger)}
}

// Convert renders up to opts.MaxPages pages and reports which backend did
// the work. When every backend is unavailable or fails, the error carries
// each backend's reason.
func (s *Service) Convert(ctx context.Context, pdfData []byte, opts ConvertOptions) ([]Page, string, error) {
	opts = opts.Clamped()

	var reasons []string
	for _, b := range s.backends {
		if err := b.Available(ctx); err != nil {
			s.log.Debug("raster.backend_unavailable", "backend", b.ID(), "reason", err)
			reasons = append(reasons, b.ID()+": "+err.Error())
			continue
		}

		s.log.Debug("raster.convert.start", "backend", b.ID(),
			"dpi", opts.DPI, "quality", opts.Quality, "max_pages", opts.MaxPages)

		pages, err := b.Convert(ctx, pdfData, opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			s.log.Warn("raster.convert.backend_failed", "backend", b.ID(), "error", err)
			reasons = append(reasons, b.ID()+": "+err.Error())
			continue
		}

		s.log.Info("raster.convert.done", "backend", b.ID(), "pages", len(pages))
		return pages, b.ID(), nil
	}

	if len(reasons) == 0 {
		return nil, "", fault.New(fault.KindNoBackendAvailable, "no conversion backends configured")
	}
	return nil, "", fault.New(fault.KindNoBackendAvailable,
		"no conversion backend could render the document: %s", strings.Join(reasons, "; "))
}

// ProbeBackends reports availability of every configured backend without
// converting anything.
func (s *Service) ProbeBackends(ctx context.Context) []ProbeResult {
	results := make([]ProbeResult, 0, len(s.backends))
	for _, b := range s.backends {
		r := ProbeResult{ID: b.ID(), Available: true}
		if err := b.Available(ctx); err != nil {
			r.Available = false
			r.Detail = err.Error()
		}
		results = append(results, r)
	}
	return results
}

// DocInfo is a cheap structural probe of a PDF.
type DocInfo struct {
	PageCount int  `json:"page_count"`
	HasImages bool `json:"has_images"`
}

// Inspect reads the document structure without rendering. It prefers the
// full pdfcpu pass, which also detects image XObjects (the scanned-document
// signal); when pdfcpu rejects the file it falls back to a lighter
// page-count-only reader.
func (s *Service) Inspect(pdfData []byte) (DocInfo, error) {
	conf := model.NewDefaultConfiguration()
	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(pdfData), conf)
	if err == nil {
		return DocInfo{
			PageCount: pctx.PageCount,
			HasImages: hasImageStreams(pctx),
		}, nil
	}
	s.log.Debug("raster.inspect.pdfcpu_failed", "error", err)

	if n := fallbackPageCount(pdfData); n > 0 {
		return DocInfo{PageCount: n}, nil
	}
	return DocInfo{}, fault.Wrap(fault.KindFileUnreadable, err, "document structure could not be read")
}

// fallbackPageCount counts pages with the lighter reader. That parser
// panics on some malformed inputs, so the panic is contained here.
func fallbackPageCount(pdfData []byte) (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	reader, err := ledongthuc.NewReader(bytes.NewReader(pdfData), int64(len(pdfData)))
	if err != nil {
		return 0
	}
	return reader.NumPage()
}

// hasImageStreams reports whether any page references an image XObject.
func hasImageStreams(pctx *model.Context) bool {
	if pctx.Optimize == nil {
		return false
	}
	for pageNr := 1; pageNr <= pctx.PageCount; pageNr++ {
		if len(pdfcpu.ImageObjNrs(pctx, pageNr)) > 0 {
			return true
		}
	}
	return false
}
