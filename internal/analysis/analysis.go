// Package analysis decides how a document gets analyzed: direct vision for
// images, text extraction for PDFs and plain text, raster fallback for
// scanned PDFs. Text is always tried before pixels because it is cheaper
// and more accurate when present.
package analysis

import (
	"context"
	"log/slog"
	"strings"

	"github.com/catalogai/doc-analyzer/internal/cache"
	"github.com/catalogai/doc-analyzer/internal/fault"
	"github.com/catalogai/doc-analyzer/internal/pdftext"
	"github.com/catalogai/doc-analyzer/internal/provider"
	"github.com/catalogai/doc-analyzer/internal/raster"
)

// DefaultTextThreshold separates real body text from boilerplate fragments.
const DefaultTextThreshold = 100

// DefaultPrompt is used when the caller supplies none.
const DefaultPrompt = `You are a document analyst. Extract the document's metadata ` +
	`(title, author, date, language, document type, summary) and return it as a ` +
	`single JSON object. Use null for fields you cannot determine.`

// Document is an immutable input to one analyze call.
type Document struct {
	ID       string
	Data     []byte
	MIMEType string

	// URL is an optional caller-claimed public address for image
	// documents. It is used only after the public-address and liveness
	// checks pass; otherwise bytes are inlined.
	URL string
}

// Converter is the raster dependency. *raster.Service satisfies it.
type Converter interface {
	Convert(ctx context.Context, pdfData []byte, opts raster.ConvertOptions) ([]raster.Page, string, error)
}

// Options tunes one Service instance.
type Options struct {
	TextThreshold int
	Prompt        string
	Raster        raster.ConvertOptions
	Provider      provider.Options

	// MetadataSchema, when non-nil, is a JSON schema every provider result
	// must satisfy. A mismatch fails the analyze call.
	MetadataSchema map[string]any
}

// Service runs the per-document strategy state machine. It holds no mutable
// state; concurrent Analyze calls are independent.
type Service struct {
	provider  provider.Provider
	converter Converter
	store     cache.Store
	urls      *URLChecker
	opts      Options
	log       *slog.Logger

	// extractText is swappable in tests.
	extractText func([]byte) string
}

func NewService(p provider.Provider, conv Converter, store cache.Store, opts Options, logger *slog.Logger) *Service {
	if opts.TextThreshold <= 0 {
		opts.TextThreshold = DefaultTextThreshold
	}
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	if store == nil {
		store = cache.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider:    p,
		converter:   conv,
		store:       store,
		urls:        NewURLChecker(logger),
		opts:        opts,
		log:         logger,
		extractText: pdftext.Parse,
	}
}

type docKind int

const (
	kindOther docKind = iota
	kindImage
	kindPDF
	kindText
)

// classify maps the declared MIME type to a strategy, sniffing the bytes
// when the declaration is missing or generic.
func classify(mimeType string, data []byte) docKind {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch {
	case strings.HasPrefix(mt, "image/"):
		return kindImage
	case mt == "application/pdf" || mt == "application/x-pdf":
		return kindPDF
	case strings.HasPrefix(mt, "text/") || mt == "application/json" || mt == "application/xml":
		return kindText
	case mt == "" || mt == "application/octet-stream":
		if pdftext.IsPDF(data) {
			return kindPDF
		}
		return kindOther
	default:
		return kindOther
	}
}

// Analyze runs the state machine for one document. The returned result
// always carries the extraction method that produced it; a failed call
// returns a typed error and no result.
func (s *Service) Analyze(ctx context.Context, doc Document) (*provider.Result, error) {
	s.log.Info("analysis.start",
		"doc_id", doc.ID,
		"mime_type", doc.MIMEType,
		"bytes", len(doc.Data),
	)

	switch classify(doc.MIMEType, doc.Data) {
	case kindImage:
		return s.analyzeImage(ctx, doc)
	case kindPDF:
		return s.analyzePDF(ctx, doc)
	case kindText:
		return s.analyzeTextDoc(ctx, doc)
	default:
		return nil, fault.New(fault.KindUnsupportedType,
			"unsupported document type %q", doc.MIMEType)
	}
}

// checkMetadata validates a provider result against the configured schema.
// Schema details stay in the cause; the caller-facing message is generic.
func (s *Service) checkMetadata(doc Document, res *provider.Result) error {
	if s.opts.MetadataSchema == nil {
		return nil
	}
	if err := provider.ValidateMetadata(s.opts.MetadataSchema, res.Metadata); err != nil {
		s.log.Warn("analysis.metadata_schema_mismatch", "doc_id", doc.ID, "error", err)
		return fault.Wrap(fault.KindJSONParse, err,
			"provider metadata does not satisfy the configured schema")
	}
	return nil
}

func (s *Service) analyzeImage(ctx context.Context, doc Document) (*provider.Result, error) {
	if !s.provider.SupportsVision() {
		return nil, fault.New(fault.KindVisionNotSupported,
			"provider %s does not support image analysis", s.provider.ID())
	}

	img := provider.Image{Data: doc.Data, MIMEType: doc.MIMEType}
	if doc.URL != "" && s.urls.Usable(ctx, doc.URL) {
		img = provider.Image{URL: doc.URL, MIMEType: doc.MIMEType}
	}

	res, err := s.provider.AnalyzeImage(ctx, img, s.opts.Prompt, s.opts.Provider)
	if err != nil {
		return nil, err
	}
	if err := s.checkMetadata(doc, res); err != nil {
		return nil, err
	}
	res.Method = "vision"
	s.log.Info("analysis.done", "doc_id", doc.ID, "method", res.Method, "tokens", res.Usage.TotalTokens)
	return res, nil
}

func (s *Service) analyzePDF(ctx context.Context, doc Document) (*provider.Result, error) {
	text := s.extractText(doc.Data)
	chars := len([]rune(text))
	s.log.Debug("analysis.pdf_text_extracted", "doc_id", doc.ID, "chars", chars, "threshold", s.opts.TextThreshold)

	if chars > s.opts.TextThreshold {
		res, err := s.provider.AnalyzeText(ctx, text, s.opts.Prompt, s.opts.Provider)
		if err != nil {
			return nil, err
		}
		if err := s.checkMetadata(doc, res); err != nil {
			return nil, err
		}
		res.Method = "text_extraction"
		s.log.Info("analysis.done", "doc_id", doc.ID, "method", res.Method, "tokens", res.Usage.TotalTokens)
		return res, nil
	}

	if !s.provider.SupportsVision() {
		return nil, fault.New(fault.KindNoExtractableText,
			"no extractable text in document (%d chars, threshold %d) and provider %s does not support vision",
			chars, s.opts.TextThreshold, s.provider.ID())
	}

	s.log.Info("analysis.visual_fallback", "doc_id", doc.ID, "chars", chars)

	pages, backend, err := s.converter.Convert(ctx, doc.Data, s.opts.Raster)
	if err != nil {
		return nil, err
	}
	imgs := make([]provider.Image, len(pages))
	for i, p := range pages {
		imgs[i] = provider.Image{Data: p.Data, MIMEType: p.MIMEType}
	}

	res, err := s.provider.AnalyzeImages(ctx, imgs, s.opts.Prompt, s.opts.Provider)
	if err != nil {
		return nil, err
	}
	if err := s.checkMetadata(doc, res); err != nil {
		return nil, err
	}
	res.Method = "visual_analysis"
	s.log.Info("analysis.done",
		"doc_id", doc.ID, "method", res.Method,
		"pages", len(pages), "backend", backend,
		"tokens", res.Usage.TotalTokens,
	)
	return res, nil
}

func (s *Service) analyzeTextDoc(ctx context.Context, doc Document) (*provider.Result, error) {
	res, err := s.provider.AnalyzeText(ctx, string(doc.Data), s.opts.Prompt, s.opts.Provider)
	if err != nil {
		return nil, err
	}
	if err := s.checkMetadata(doc, res); err != nil {
		return nil, err
	}
	res.Method = "text_extraction"
	s.log.Info("analysis.done", "doc_id", doc.ID, "method", res.Method, "tokens", res.Usage.TotalTokens)
	return res, nil
}

// ExtractText exposes the structural text path on its own, for callers that
// want the raw text without an AI round trip.
func (s *Service) ExtractText(doc Document) (string, error) {
	if classify(doc.MIMEType, doc.Data) != kindPDF {
		return "", fault.New(fault.KindUnsupportedType,
			"text extraction requires a PDF, got %q", doc.MIMEType)
	}
	return s.extractText(doc.Data), nil
}
