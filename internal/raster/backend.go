package raster

import "context"

// Defaults and bounds for conversion parameters. Values outside the bounds
// are clamped, not rejected, so a sloppy caller still gets a usable render.
const (
	MinDPI     = 72
	MaxDPI     = 300
	DefaultDPI = 150

	MinQuality     = 50
	MaxQuality     = 100
	DefaultQuality = 85

	MinPages        = 1
	MaxPagesLimit   = 20
	DefaultMaxPages = 5
)

// ConvertOptions controls a PDF to image conversion run.
type ConvertOptions struct {
	DPI      int
	Quality  int
	MaxPages int
}

// Clamped returns a copy with every field forced into its valid range.
// Zero fields take the defaults.
func (o ConvertOptions) Clamped() ConvertOptions {
	if o.DPI == 0 {
		o.DPI = DefaultDPI
	}
	if o.Quality == 0 {
		o.Quality = DefaultQuality
	}
	if o.MaxPages == 0 {
		o.MaxPages = DefaultMaxPages
	}
	o.DPI = clamp(o.DPI, MinDPI, MaxDPI)
	o.Quality = clamp(o.Quality, MinQuality, MaxQuality)
	o.MaxPages = clamp(o.MaxPages, MinPages, MaxPagesLimit)
	return o
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Page is one rendered PDF page.
type Page struct {
	Number   int    `json:"page"`
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// Backend renders PDF bytes to page images. Implementations must not leave
// files behind: any staging directory is removed before Convert returns,
// success or not.
type Backend interface {
	ID() string

	// Available reports whether the backend can run on this host right
	// now. A non-nil error carries the reason it cannot.
	Available(ctx context.Context) error

	Convert(ctx context.Context, pdfData []byte, opts ConvertOptions) ([]Page, error)
}

// ProbeResult describes one backend's availability for diagnostics.
type ProbeResult struct {
	ID        string `json:"id"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}
