package raster

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"github.com/gen2brain/go-fitz"

	"github.com/catalogai/doc-analyzer/internal/fault"
)

// FitzBackend renders pages in-process through MuPDF. It is the preferred
// backend: no staging files, no external binary.
type FitzBackend struct{}

func NewFitzBackend() *FitzBackend { return &FitzBackend{} }

func (b *FitzBackend) ID() string { return "fitz" }

// Available always succeeds: the MuPDF library is linked into the binary.
func (b *FitzBackend) Available(context.Context) error { return nil }

func (b *FitzBackend) Convert(ctx context.Context, pdfData []byte, opts ConvertOptions) ([]Page, error) {
	opts = opts.Clamped()

	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fault.Wrap(fault.KindFileUnreadable, err, "fitz: open document")
	}
	defer doc.Close()

	total := doc.NumPage()
	if total == 0 {
		return nil, fault.New(fault.KindFileUnreadable, "fitz: document has no pages")
	}

	return renderPages(ctx, total, opts, func(n int) (image.Image, error) {
		return doc.ImageDPI(n, float64(opts.DPI))
	})
}

// renderPages drives a per-page renderer, capping output at opts.MaxPages
// and checking for cancellation between pages. Pages are numbered from 1.
func renderPages(ctx context.Context, total int, opts ConvertOptions, render func(int) (image.Image, error)) ([]Page, error) {
	if total > opts.MaxPages {
		total = opts.MaxPages
	}

	pages := make([]Page, 0, total)
	for n := 0; n < total; n++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := render(n)
		if err != nil {
			return nil, fault.Wrap(fault.KindFileUnreadable, err, "fitz: render page %d", n+1)
		}

		data, err := encodeJPEG(img, opts.Quality)
		if err != nil {
			return nil, fault.Wrap(fault.KindFileUnreadable, err, "fitz: encode page %d", n+1)
		}

		bounds := img.Bounds()
		pages = append(pages, Page{
			Number:   n + 1,
			Data:     data,
			MIMEType: "image/jpeg",
			Width:    bounds.Dx(),
			Height:   bounds.Dy(),
		})
	}
	return pages, nil
}

// encodeJPEG flattens the render over a white background before encoding,
// since JPEG has no alpha channel.
func encodeJPEG(src image.Image, quality int) ([]byte, error) {
	bounds := src.Bounds()
	flat := image.NewRGBA(bounds)
	draw.Draw(flat, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(flat, bounds, src, bounds.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
