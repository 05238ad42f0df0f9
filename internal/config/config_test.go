package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/catalogai/doc-analyzer/internal/raster"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Test default values
	if cfg.Mode != "stdio" {
		t.Errorf("Expected default mode to be 'stdio', got '%s'", cfg.Mode)
	}

	if cfg.Host != "127.0.0.1" {
		t.Errorf("Expected default host to be '127.0.0.1', got '%s'", cfg.Host)
	}

	if cfg.Port != 8080 {
		t.Errorf("Expected default port to be 8080, got %d", cfg.Port)
	}

	if cfg.ServerName != "doc-analyzer" {
		t.Errorf("Expected default server name to be 'doc-analyzer', got '%s'", cfg.ServerName)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level to be 'info', got '%s'", cfg.LogLevel)
	}

	if cfg.MaxFileSize != 100*1024*1024 {
		t.Errorf("Expected default max file size to be 100MB, got %d", cfg.MaxFileSize)
	}

	if cfg.Provider.ID != "openai" {
		t.Errorf("Expected default provider to be 'openai', got '%s'", cfg.Provider.ID)
	}

	if cfg.Provider.TimeoutSecs != 30 {
		t.Errorf("Expected default provider timeout to be 30s, got %d", cfg.Provider.TimeoutSecs)
	}

	if cfg.Raster.DPI != 150 || cfg.Raster.Quality != 85 || cfg.Raster.MaxPages != 5 {
		t.Errorf("Expected default raster settings 150/85/5, got %d/%d/%d",
			cfg.Raster.DPI, cfg.Raster.Quality, cfg.Raster.MaxPages)
	}

	if cfg.TextThreshold != 100 {
		t.Errorf("Expected default text threshold to be 100, got %d", cfg.TextThreshold)
	}

	if cfg.Cache.TTLSecs != 24*60*60 {
		t.Errorf("Expected default cache TTL to be one day, got %d", cfg.Cache.TTLSecs)
	}

	// Test that document directory is set to current working directory by default
	currentDir, _ := os.Getwd()
	if cfg.DocumentDirectory != currentDir {
		t.Errorf("Expected default document directory to be '%s', got '%s'", currentDir, cfg.DocumentDirectory)
	}
}

func validTestConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DocumentDirectory = t.TempDir()
	cfg.Cache.Path = filepath.Join(cfg.DocumentDirectory, "cache.db")
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config - stdio mode",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name: "valid config - server mode",
			mutate: func(c *Config) {
				c.Mode = "server"
				c.Port = 8080
			},
			wantErr: false,
		},
		{
			name:    "invalid mode",
			mutate:  func(c *Config) { c.Mode = "invalid" },
			wantErr: true,
		},
		{
			name: "invalid port - too low",
			mutate: func(c *Config) {
				c.Mode = "server"
				c.Port = 0
			},
			wantErr: true,
		},
		{
			name: "invalid port - too high",
			mutate: func(c *Config) {
				c.Mode = "server"
				c.Port = 70000
			},
			wantErr: true,
		},
		{
			name: "port ignored in stdio mode",
			mutate: func(c *Config) {
				c.Mode = "stdio"
				c.Port = 0
			},
			wantErr: false,
		},
		{
			name:    "empty document directory",
			mutate:  func(c *Config) { c.DocumentDirectory = "" },
			wantErr: true,
		},
		{
			name:    "zero max file size",
			mutate:  func(c *Config) { c.MaxFileSize = 0 },
			wantErr: true,
		},
		{
			name:    "negative max file size",
			mutate:  func(c *Config) { c.MaxFileSize = -1 },
			wantErr: true,
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Provider.ID = "gemini" },
			wantErr: true,
		},
		{
			name:    "anthropic provider accepted",
			mutate:  func(c *Config) { c.Provider.ID = "anthropic" },
			wantErr: false,
		},
		{
			name:    "ollama provider accepted",
			mutate:  func(c *Config) { c.Provider.ID = "ollama" },
			wantErr: false,
		},
		{
			name:    "zero provider timeout",
			mutate:  func(c *Config) { c.Provider.TimeoutSecs = 0 },
			wantErr: true,
		},
		{
			name:    "negative text threshold",
			mutate:  func(c *Config) { c.TextThreshold = -1 },
			wantErr: true,
		},
		{
			name:    "zero text threshold allowed",
			mutate:  func(c *Config) { c.TextThreshold = 0 },
			wantErr: false,
		},
		{
			name:    "missing schema file",
			mutate:  func(c *Config) { c.SchemaPath = "/nonexistent/metadata-schema.json" },
			wantErr: true,
		},
		{
			name:    "negative cache TTL",
			mutate:  func(c *Config) { c.Cache.TTLSecs = -1 },
			wantErr: true,
		},
		{
			name: "cache disabled needs no path",
			mutate: func(c *Config) {
				c.Cache.TTLSecs = 0
				c.Cache.Path = ""
			},
			wantErr: false,
		},
		{
			name: "cache enabled needs a path",
			mutate: func(c *Config) {
				c.Cache.TTLSecs = 60
				c.Cache.Path = ""
			},
			wantErr: true,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigAddress(t *testing.T) {
	cfg := &Config{Host: "0.0.0.0", Port: 9090}
	if got := cfg.Address(); got != "0.0.0.0:9090" {
		t.Errorf("Config.Address() = %v, want %v", got, "0.0.0.0:9090")
	}
}

func TestConfigIsDebug(t *testing.T) {
	tests := []struct {
		logLevel string
		want     bool
	}{
		{"debug", true},
		{"info", false},
		{"warn", false},
		{"error", false},
	}

	for _, tt := range tests {
		t.Run(tt.logLevel, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}
			if got := cfg.IsDebug(); got != tt.want {
				t.Errorf("Config.IsDebug() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigDurations(t *testing.T) {
	cfg := &Config{
		Provider: ProviderConfig{TimeoutSecs: 45},
		Cache:    CacheConfig{TTLSecs: 3600},
	}
	if got := cfg.ProviderTimeout(); got != 45*time.Second {
		t.Errorf("Config.ProviderTimeout() = %v, want 45s", got)
	}
	if got := cfg.CacheTTL(); got != time.Hour {
		t.Errorf("Config.CacheTTL() = %v, want 1h", got)
	}
}

func TestConfigMetadataSchema(t *testing.T) {
	cfg := &Config{}
	if m, err := cfg.MetadataSchema(); err != nil || m != nil {
		t.Errorf("MetadataSchema() with no path = %v, %v, want nil, nil", m, err)
	}

	path := filepath.Join(t.TempDir(), "schema.json")
	if err := os.WriteFile(path, []byte(`{"type":"object","required":["title"]}`), 0o644); err != nil {
		t.Fatalf("failed to write schema: %v", err)
	}
	cfg.SchemaPath = path
	m, err := cfg.MetadataSchema()
	if err != nil {
		t.Fatalf("MetadataSchema() error: %v", err)
	}
	if m["type"] != "object" {
		t.Errorf("MetadataSchema() = %v, want type object", m)
	}

	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("failed to write schema: %v", err)
	}
	if _, err := cfg.MetadataSchema(); err == nil {
		t.Error("MetadataSchema() expected error for malformed schema file")
	}
}

func TestConfigConvertOptions(t *testing.T) {
	cfg := &Config{Raster: RasterConfig{DPI: 9000, Quality: 1, MaxPages: 50}}
	got := cfg.ConvertOptions()
	want := raster.ConvertOptions{DPI: 300, Quality: 50, MaxPages: 20}
	if got != want {
		t.Errorf("Config.ConvertOptions() = %+v, want %+v", got, want)
	}
}

func TestConfigStringOmitsCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider.APIKey = "sk-secret-value"
	if s := cfg.String(); strings.Contains(s, "sk-secret-value") {
		t.Errorf("Config.String() leaked the API key: %s", s)
	}
}

func TestConfigValidateDirectoryCreation(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.DocumentDirectory = filepath.Join(t.TempDir(), "nested", "docs")

	if err := cfg.Validate(); err != nil {
		t.Errorf("Config.Validate() should create missing directories, got error: %v", err)
	}
	if _, err := os.Stat(cfg.DocumentDirectory); err != nil {
		t.Errorf("Expected directory to be created: %v", err)
	}
}

func TestConfigIsServerMode(t *testing.T) {
	tests := []struct {
		mode string
		want bool
	}{
		{"server", true},
		{"stdio", false},
	}
	for _, tt := range tests {
		cfg := &Config{Mode: tt.mode}
		if got := cfg.IsServerMode(); got != tt.want {
			t.Errorf("Config{Mode: %q}.IsServerMode() = %v, want %v", tt.mode, got, tt.want)
		}
		if got := cfg.IsStdioMode(); got == tt.want {
			t.Errorf("Config{Mode: %q}.IsStdioMode() = %v, want %v", tt.mode, got, !tt.want)
		}
	}
}
