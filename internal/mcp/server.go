package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/catalogai/doc-analyzer/internal/analysis"
	"github.com/catalogai/doc-analyzer/internal/config"
	"github.com/catalogai/doc-analyzer/internal/fault"
	"github.com/catalogai/doc-analyzer/internal/pdftext"
	"github.com/catalogai/doc-analyzer/internal/provider"
	"github.com/catalogai/doc-analyzer/internal/raster"
)

// shutdownGrace bounds how long an SSE shutdown may take.
const shutdownGrace = 5 * time.Second

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	analyzer  *analysis.Service
	raster    *raster.Service
	provider  provider.Provider
	mcpServer *server.MCPServer
	log       *slog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, analyzer *analysis.Service, rasterSvc *raster.Service,
	prov provider.Provider, logger *slog.Logger,
) (*Server, error) {
	if analyzer == nil {
		return nil, fmt.Errorf("analyzer cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Create MCP server
	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false), // We don't support dynamic tool capabilities
	)

	s := &Server{
		config:    cfg,
		analyzer:  analyzer,
		raster:    rasterSvc,
		provider:  prov,
		mcpServer: mcpServer,
		log:       logger,
	}

	// Register tools
	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	docAnalyzeTool := mcp.NewTool(
		"doc_analyze",
		mcp.WithDescription("Analyze a document (PDF, image, or text file) with the configured AI provider and return structured metadata"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the document file"),
		),
		mcp.WithBoolean("force_refresh",
			mcp.Description("Skip the result cache and analyze again"),
		),
	)
	s.mcpServer.AddTool(docAnalyzeTool, s.handleDocAnalyze)

	docExtractTextTool := mcp.NewTool(
		"doc_extract_text",
		mcp.WithDescription("Extract text from a PDF using the structural parser, without any AI call"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the PDF file"),
		),
	)
	s.mcpServer.AddTool(docExtractTextTool, s.handleDocExtractText)

	docProbeBackendsTool := mcp.NewTool(
		"doc_probe_backends",
		mcp.WithDescription("Report which PDF raster conversion backends are available on this host"),
	)
	s.mcpServer.AddTool(docProbeBackendsTool, s.handleDocProbeBackends)

	docTestConnectionTool := mcp.NewTool(
		"doc_test_connection",
		mcp.WithDescription("Verify the configured AI provider credentials with a round trip"),
	)
	s.mcpServer.AddTool(docTestConnectionTool, s.handleDocTestConnection)

	docServerInfoTool := mcp.NewTool(
		"doc_server_info",
		mcp.WithDescription("Get server information, configured provider, backends, and usage guidance"),
	)
	s.mcpServer.AddTool(docServerInfoTool, s.handleDocServerInfo)
}

// loadDocument reads and classifies a document from disk, enforcing the
// configured size limit.
func (s *Server) loadDocument(path string) (analysis.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return analysis.Document{}, fault.Wrap(fault.KindFileNotFound, err, "invalid path %q", path)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return analysis.Document{}, fault.New(fault.KindFileNotFound, "file not found: %s", abs)
		}
		return analysis.Document{}, fault.Wrap(fault.KindFileUnreadable, err, "cannot access %s", abs)
	}
	if info.IsDir() {
		return analysis.Document{}, fault.New(fault.KindFileUnreadable, "%s is a directory", abs)
	}
	if info.Size() > s.config.MaxFileSize {
		return analysis.Document{}, fault.New(fault.KindFileUnreadable,
			"file %s exceeds the %d byte limit", abs, s.config.MaxFileSize)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return analysis.Document{}, fault.Wrap(fault.KindFileUnreadable, err, "cannot read %s", abs)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(abs))
	if mimeType == "" && pdftext.IsPDF(data) {
		mimeType = "application/pdf"
	}

	return analysis.Document{
		ID:       abs,
		Data:     data,
		MIMEType: mimeType,
	}, nil
}

// toolError logs the full error, cause chain included, and returns a result
// carrying only the kind and message. Raw upstream payloads never reach the
// tool caller.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	s.log.Warn("mcp.tool_failed", "tool", tool, "error", err)
	return mcp.NewToolResultError(fault.UserMessage(err))
}

// Handler functions
func (s *Server) handleDocAnalyze(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return s.toolError("doc_analyze", err), nil
	}

	forceRefresh := false
	if v, ok := request.GetArguments()["force_refresh"].(bool); ok {
		forceRefresh = v
	}

	doc, err := s.loadDocument(path)
	if err != nil {
		return s.toolError("doc_analyze", err), nil
	}

	result, cached, err := s.analyzer.AnalyzeCached(ctx, doc, forceRefresh)
	if err != nil {
		return s.toolError("doc_analyze", err), nil
	}

	return mcp.NewToolResultText(s.formatAnalysisResult(doc.ID, result, cached)), nil
}

func (s *Server) handleDocExtractText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return s.toolError("doc_extract_text", err), nil
	}

	doc, err := s.loadDocument(path)
	if err != nil {
		return s.toolError("doc_extract_text", err), nil
	}

	text, err := s.analyzer.ExtractText(doc)
	if err != nil {
		return s.toolError("doc_extract_text", err), nil
	}

	responseText := fmt.Sprintf("Extracted text from: %s\n", doc.ID)
	responseText += fmt.Sprintf("Characters: %d\n", len([]rune(text)))
	if info, ierr := s.raster.Inspect(doc.Data); ierr == nil {
		responseText += fmt.Sprintf("Pages: %d\n", info.PageCount)
		responseText += fmt.Sprintf("Has Images: %t\n", info.HasImages)
		if info.HasImages && len([]rune(text)) <= s.config.TextThreshold {
			responseText += "\nNOTE: This PDF looks like a scanned document. " +
				"'doc_analyze' with a vision-capable provider will fall back to visual analysis.\n"
		}
	}
	responseText += "\nContent:\n"
	responseText += text

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleDocProbeBackends(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	results := s.raster.ProbeBackends(ctx)

	responseText := "Raster Conversion Backends\n"
	available := 0
	for _, r := range results {
		if r.Available {
			available++
			responseText += fmt.Sprintf("• %s: available\n", r.ID)
		} else {
			responseText += fmt.Sprintf("• %s: unavailable (%s)\n", r.ID, r.Detail)
		}
	}
	if available == 0 {
		responseText += "\nWARNING: No backend can render PDFs on this host; scanned documents cannot be analyzed.\n"
	}

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleDocTestConnection(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := s.provider.TestConnection(ctx)

	var responseText string
	if status.Success {
		responseText = fmt.Sprintf("Provider %s (model %s): connection OK\n%s",
			s.provider.ID(), s.provider.Model(), status.Message)
	} else {
		responseText = fmt.Sprintf("Provider %s (model %s): connection FAILED\n%s",
			s.provider.ID(), s.provider.Model(), status.Message)
	}

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleDocServerInfo(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := fmt.Sprintf("%s v%s - Server Information\n", s.config.ServerName, s.config.Version)
	text += fmt.Sprintf("Default Directory: %s\n", s.config.DocumentDirectory)
	text += fmt.Sprintf("Max File Size: %d MB\n", s.config.MaxFileSize/(1024*1024))
	text += fmt.Sprintf("Provider: %s (model %s, vision: %t)\n",
		s.provider.ID(), s.provider.Model(), s.provider.SupportsVision())
	text += fmt.Sprintf("Raster defaults: %d dpi, quality %d, max %d pages\n",
		s.config.Raster.DPI, s.config.Raster.Quality, s.config.Raster.MaxPages)
	text += fmt.Sprintf("Text threshold: %d characters\n", s.config.TextThreshold)
	if s.config.Cache.TTLSecs > 0 {
		text += fmt.Sprintf("Result cache: enabled (TTL %ds)\n", s.config.Cache.TTLSecs)
	} else {
		text += "Result cache: disabled\n"
	}

	text += "\nBackends:\n"
	for _, r := range s.raster.ProbeBackends(ctx) {
		state := "available"
		if !r.Available {
			state = "unavailable"
		}
		text += fmt.Sprintf("  • %s: %s\n", r.ID, state)
	}

	text += "\nAvailable Tools:\n"
	text += "  • doc_analyze - analyze a document and return structured metadata\n"
	text += "  • doc_extract_text - structural PDF text extraction, no AI call\n"
	text += "  • doc_probe_backends - raster backend availability\n"
	text += "  • doc_test_connection - verify provider credentials\n"
	text += "  • doc_server_info - this summary\n"

	text += "\nPDFs are analyzed from their text when enough is extractable; " +
		"scanned documents fall back to page rendering with a vision-capable provider."

	return mcp.NewToolResultText(text), nil
}

// Formatting methods
func (s *Server) formatAnalysisResult(path string, result *provider.Result, cached bool) string {
	text := fmt.Sprintf("Analysis of: %s\n", path)
	text += fmt.Sprintf("Provider: %s\n", result.Provider)
	text += fmt.Sprintf("Model: %s\n", result.Model)
	text += fmt.Sprintf("Extraction Method: %s\n", result.Method)
	text += fmt.Sprintf("Cached: %t\n", cached)
	text += fmt.Sprintf("Tokens: %d prompt + %d completion = %d total\n",
		result.Usage.PromptTokens, result.Usage.CompletionTokens, result.Usage.TotalTokens)

	if pricing := s.provider.Pricing(result.Model); pricing != (provider.Pricing{}) && !cached {
		text += fmt.Sprintf("Estimated cost: $%.6f\n", provider.CalculateCost(result.Usage, pricing))
	}

	text += "\nMetadata:\n"
	if pretty, err := json.MarshalIndent(result.Metadata, "", "  "); err == nil {
		text += string(pretty)
	} else {
		text += fmt.Sprintf("%v", result.Metadata)
	}
	return text
}

// Run starts the MCP server in the configured mode
func (s *Server) Run(ctx context.Context) error {
	if s.config.IsServerMode() {
		return s.runServerMode(ctx)
	}
	return s.runStdioMode(ctx)
}

// runStdioMode runs the server in stdio mode
func (s *Server) runStdioMode(_ context.Context) error {
	s.log.Debug("mcp.serve.stdio",
		"server", s.config.ServerName,
		"provider", s.provider.ID(),
		"dir", s.config.DocumentDirectory,
	)

	// Use the mark3labs/mcp-go server.ServeStdio function
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

// runServerMode runs the server over SSE on the configured address
func (s *Server) runServerMode(ctx context.Context) error {
	addr := s.config.Address()
	s.log.Info("mcp.serve.sse", "addr", addr)

	sse := server.NewSSEServer(s.mcpServer,
		server.WithBaseURL("http://"+addr),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- sse.Start(addr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := sse.Shutdown(shutdownCtx); err != nil && !strings.Contains(err.Error(), "closed") {
			return fmt.Errorf("sse shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve sse: %w", err)
		}
		return nil
	}
}
