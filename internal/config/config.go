package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/catalogai/doc-analyzer/internal/analysis"
	"github.com/catalogai/doc-analyzer/internal/raster"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort        = 8080
	DefaultHost        = "127.0.0.1"
	DefaultLogLevel    = "info"
	DefaultMaxFileSize = 100 * 1024 * 1024 // 100MB
	DefaultProvider    = "openai"
	DefaultTimeoutSecs = 30
	DefaultCacheTTL    = 24 * 60 * 60 // seconds

	// Directory permissions
	DefaultDirPerm = 0o750
)

// ProviderConfig selects and tunes the AI backend.
type ProviderConfig struct {
	ID          string
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	TimeoutSecs int
}

// RasterConfig tunes PDF page rendering. GhostscriptPath overrides binary
// discovery when set.
type RasterConfig struct {
	DPI             int
	Quality         int
	MaxPages        int
	GhostscriptPath string
}

// CacheConfig controls the result cache. A TTL of zero disables it.
type CacheConfig struct {
	Path    string
	TTLSecs int
}

// Config holds all configuration for the document analyzer server
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// Document configuration
	DocumentDirectory string
	MaxFileSize       int64

	// Pipeline configuration
	Provider      ProviderConfig
	Raster        RasterConfig
	Cache         CacheConfig
	TextThreshold int

	// SchemaPath points at a JSON schema file that provider metadata must
	// satisfy. Empty disables validation.
	SchemaPath string

	// Application configuration
	Version    string
	ServerName string
	LogLevel   string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	return &Config{
		Mode:              ModeStdio, // Default to stdio mode for MCP compatibility
		Host:              DefaultHost,
		Port:              DefaultPort,
		DocumentDirectory: currentDir,
		MaxFileSize:       DefaultMaxFileSize,
		Provider: ProviderConfig{
			ID:          DefaultProvider,
			TimeoutSecs: DefaultTimeoutSecs,
		},
		Raster: RasterConfig{
			DPI:      raster.DefaultDPI,
			Quality:  raster.DefaultQuality,
			MaxPages: raster.DefaultMaxPages,
		},
		Cache: CacheConfig{
			Path:    filepath.Join(currentDir, "doc-analyzer-cache.db"),
			TTLSecs: DefaultCacheTTL,
		},
		TextThreshold: analysis.DefaultTextThreshold,
		Version:       "1.0.0",
		ServerName:    "doc-analyzer",
		LogLevel:      DefaultLogLevel,
	}
}

// LoadFromFlags parses command line flags and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	populateConfigFromViper(cfg)

	// Expand paths if needed
	if cfg.DocumentDirectory != "" {
		if expandedPath, err := filepath.Abs(cfg.DocumentDirectory); err == nil {
			cfg.DocumentDirectory = expandedPath
		}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	// Set environment variable prefix
	viper.SetEnvPrefix("DOC_ANALYZER")
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("dir", cfg.DocumentDirectory)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
	viper.SetDefault("provider", cfg.Provider.ID)
	viper.SetDefault("apikey", cfg.Provider.APIKey)
	viper.SetDefault("baseurl", cfg.Provider.BaseURL)
	viper.SetDefault("model", cfg.Provider.Model)
	viper.SetDefault("maxtokens", cfg.Provider.MaxTokens)
	viper.SetDefault("temperature", cfg.Provider.Temperature)
	viper.SetDefault("timeout", cfg.Provider.TimeoutSecs)
	viper.SetDefault("dpi", cfg.Raster.DPI)
	viper.SetDefault("quality", cfg.Raster.Quality)
	viper.SetDefault("maxpages", cfg.Raster.MaxPages)
	viper.SetDefault("gspath", cfg.Raster.GhostscriptPath)
	viper.SetDefault("textthreshold", cfg.TextThreshold)
	viper.SetDefault("schema", cfg.SchemaPath)
	viper.SetDefault("cachepath", cfg.Cache.Path)
	viper.SetDefault("cachettl", cfg.Cache.TTLSecs)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Server mode: 'stdio' for MCP standard I/O, 'server' for HTTP server")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.String("dir", cfg.DocumentDirectory, "Directory containing documents")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum document file size in bytes")
	pflag.String("provider", cfg.Provider.ID, "AI provider: openai, anthropic, or ollama")
	pflag.String("apikey", cfg.Provider.APIKey, "AI provider API key")
	pflag.String("baseurl", cfg.Provider.BaseURL, "AI provider base URL override")
	pflag.String("model", cfg.Provider.Model, "AI model name (empty uses the provider default)")
	pflag.Int("maxtokens", cfg.Provider.MaxTokens, "Response token limit (0 uses the provider default)")
	pflag.Float64("temperature", cfg.Provider.Temperature, "Generation temperature")
	pflag.Int("timeout", cfg.Provider.TimeoutSecs, "Provider request timeout in seconds")
	pflag.Int("dpi", cfg.Raster.DPI, "Raster conversion DPI (clamped to 72-300)")
	pflag.Int("quality", cfg.Raster.Quality, "Raster JPEG quality (clamped to 50-100)")
	pflag.Int("maxpages", cfg.Raster.MaxPages, "Maximum pages rendered per document (clamped to 1-20)")
	pflag.String("gspath", cfg.Raster.GhostscriptPath, "Ghostscript binary path (empty uses discovery)")
	pflag.Int("textthreshold", cfg.TextThreshold, "Minimum extracted characters before the text path is used")
	pflag.String("schema", cfg.SchemaPath, "Path to a JSON schema that analysis metadata must satisfy (empty disables)")
	pflag.String("cachepath", cfg.Cache.Path, "Result cache database path")
	pflag.Int("cachettl", cfg.Cache.TTLSecs, "Result cache TTL in seconds (0 disables caching)")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for _, name := range []string{
		"mode", "host", "port", "dir", "loglevel", "maxfilesize",
		"provider", "apikey", "baseurl", "model", "maxtokens", "temperature", "timeout",
		"dpi", "quality", "maxpages", "gspath", "textthreshold", "schema", "cachepath", "cachettl",
	} {
		_ = viper.BindPFlag(name, pflag.Lookup(name))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nDoc Analyzer - AI document analysis over the Model Context Protocol\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --provider=openai --apikey=sk-...            # stdio mode (default)\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --provider=ollama --model=llama3.1           # local text-only provider\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=server --host=0.0.0.0 --port=8081     # HTTP server mode\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  DOC_ANALYZER_MODE           Server mode\n")
		fmt.Fprintf(os.Stderr, "  DOC_ANALYZER_PROVIDER       AI provider id\n")
		fmt.Fprintf(os.Stderr, "  DOC_ANALYZER_APIKEY         Provider API key\n")
		fmt.Fprintf(os.Stderr, "  DOC_ANALYZER_MODEL          Model name\n")
		fmt.Fprintf(os.Stderr, "  DOC_ANALYZER_DIR            Document directory\n")
		fmt.Fprintf(os.Stderr, "  DOC_ANALYZER_CACHETTL       Cache TTL seconds (0 disables)\n")
		fmt.Fprintf(os.Stderr, "  DOC_ANALYZER_LOGLEVEL       Log level\n")
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.DocumentDirectory = viper.GetString("dir")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
	cfg.Provider.ID = viper.GetString("provider")
	cfg.Provider.APIKey = viper.GetString("apikey")
	cfg.Provider.BaseURL = viper.GetString("baseurl")
	cfg.Provider.Model = viper.GetString("model")
	cfg.Provider.MaxTokens = viper.GetInt("maxtokens")
	cfg.Provider.Temperature = viper.GetFloat64("temperature")
	cfg.Provider.TimeoutSecs = viper.GetInt("timeout")
	cfg.Raster.DPI = viper.GetInt("dpi")
	cfg.Raster.Quality = viper.GetInt("quality")
	cfg.Raster.MaxPages = viper.GetInt("maxpages")
	cfg.Raster.GhostscriptPath = viper.GetString("gspath")
	cfg.TextThreshold = viper.GetInt("textthreshold")
	cfg.SchemaPath = viper.GetString("schema")
	cfg.Cache.Path = viper.GetString("cachepath")
	cfg.Cache.TTLSecs = viper.GetInt("cachettl")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate mode
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	// Validate port range (only for server mode)
	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	// Validate document directory
	if c.DocumentDirectory == "" {
		return errors.New("document directory cannot be empty")
	}

	// Check if document directory exists, create if it doesn't
	if _, err := os.Stat(c.DocumentDirectory); os.IsNotExist(err) {
		if err := os.MkdirAll(c.DocumentDirectory, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create document directory %s: %w", c.DocumentDirectory, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access document directory %s: %w", c.DocumentDirectory, err)
	}

	// Validate max file size
	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	switch c.Provider.ID {
	case "openai", "anthropic", "ollama":
	default:
		return fmt.Errorf("unknown provider: %s (must be one of: openai, anthropic, ollama)", c.Provider.ID)
	}

	if c.Provider.TimeoutSecs <= 0 {
		return errors.New("provider timeout must be positive")
	}

	if c.TextThreshold < 0 {
		return errors.New("text threshold cannot be negative")
	}

	if c.SchemaPath != "" {
		if _, err := os.Stat(c.SchemaPath); err != nil {
			return fmt.Errorf("cannot access metadata schema %s: %w", c.SchemaPath, err)
		}
	}

	if c.Cache.TTLSecs < 0 {
		return errors.New("cache TTL cannot be negative")
	}
	if c.Cache.TTLSecs > 0 && c.Cache.Path == "" {
		return errors.New("cache path cannot be empty when caching is enabled")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// ProviderTimeout returns the provider timeout as a duration
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSecs) * time.Second
}

// CacheTTL returns the cache TTL as a duration
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSecs) * time.Second
}

// MetadataSchema loads the configured schema file as a generic JSON object,
// or nil when no schema is set.
func (c *Config) MetadataSchema() (map[string]any, error) {
	if c.SchemaPath == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(c.SchemaPath)
	if err != nil {
		return nil, fmt.Errorf("read metadata schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse metadata schema %s: %w", c.SchemaPath, err)
	}
	return m, nil
}

// ConvertOptions returns the raster settings in conversion form
func (c *Config) ConvertOptions() raster.ConvertOptions {
	return raster.ConvertOptions{
		DPI:      c.Raster.DPI,
		Quality:  c.Raster.Quality,
		MaxPages: c.Raster.MaxPages,
	}.Clamped()
}

// String returns a string representation of the configuration; credentials
// are never included.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, Provider: %s, Model: %s, Dir: %s, LogLevel: %s}",
		c.Mode, c.Host, c.Port, c.Provider.ID, c.Provider.Model, c.DocumentDirectory, c.LogLevel)
}

// IsServerMode returns true if the server is running in HTTP server mode
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the server is running in stdio mode
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
