package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/ratemeter/internal/securestore"
	"github.com/florianilch/ratemeter/internal/tokensource"
	"github.com/florianilch/ratemeter/internal/usage"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// StorageType represents the backends supported for credentials and cached usage.
type StorageType string

const (
	StorageTypeFile    StorageType = "file"
	StorageTypeKeyring StorageType = "keyring"
	StorageTypeSQLite  StorageType = "sqlite"
)

// TelemetryExporter selects where logs are exported in addition to stderr.
type TelemetryExporter string

const (
	TelemetryExporterNone     TelemetryExporter = "none"
	TelemetryExporterStdout   TelemetryExporter = "stdout"
	TelemetryExporterOTLPHTTP TelemetryExporter = "otlp-http"
	TelemetryExporterOTLPGRPC TelemetryExporter = "otlp-grpc"
)

// Default configuration values
const (
	DefaultConfigLogFormat         = LogFormatText
	DefaultConfigServerHost        = "127.0.0.1"
	DefaultConfigServerPort        = 4100
	DefaultConfigShutdownTimeout   = 5 * time.Second
	DefaultConfigStorageType       = StorageTypeFile
	DefaultConfigKeyringService    = "ratemeter"
	DefaultConfigSQLiteFile        = "ratemeter.db"
	DefaultConfigAPIBaseURL        = usage.DefaultBaseURL
	DefaultConfigWatchInterval     = 15 * time.Minute
	DefaultConfigTelemetryExporter = TelemetryExporterNone

	// MinWatchInterval keeps the usage endpoint from being polled aggressively.
	MinWatchInterval = time.Minute
)

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// APIConfig holds the remote endpoints. Only tests and staging setups change these.
type APIConfig struct {
	BaseURL  string `json:"base_url" validate:"required,url"`
	AuthURL  string `json:"auth_url" validate:"required,url"`
	TokenURL string `json:"token_url" validate:"required,url"`
}

// StorageConfig describes where credentials and the cached snapshot live.
type StorageConfig struct {
	Type StorageType `json:"type" validate:"required,oneof=file keyring sqlite"`

	// Type-specific settings
	Dir            string `json:"dir,omitempty"`             // For file storage: directory holding one file per record
	KeyringService string `json:"keyring_service,omitempty"` // For keyring storage: service name
	SQLiteFile     string `json:"sqlite_file,omitempty"`     // For sqlite storage: database path
}

// NewStore creates the configured Store.
func (s *StorageConfig) NewStore(ctx context.Context) (securestore.Store, error) {
	switch s.Type {
	case StorageTypeFile:
		return securestore.NewFileStore(s.Dir)
	case StorageTypeKeyring:
		return securestore.NewKeyringStore(s.KeyringService)
	case StorageTypeSQLite:
		return securestore.NewSQLiteStore(ctx, s.SQLiteFile)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", s.Type)
	}
}

// WatchConfig holds the periodic refresh settings.
type WatchConfig struct {
	Interval time.Duration `json:"interval"`
}

// TelemetryConfig holds log export settings.
type TelemetryConfig struct {
	Exporter TelemetryExporter `json:"exporter" validate:"oneof=none stdout otlp-http otlp-grpc"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level      `json:"log_level"`
	LogFormat LogFormat       `json:"log_format" validate:"oneof=text json"`
	Storage   StorageConfig   `json:"storage"`
	API       APIConfig       `json:"api"`
	Watch     WatchConfig     `json:"watch"`
	Server    ServerConfig    `json:"server"`
	Shutdown  ShutdownConfig  `json:"shutdown"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultConfigAPIBaseURL
	}
	if c.API.AuthURL == "" {
		c.API.AuthURL = tokensource.Endpoint.AuthURL
	}
	if c.API.TokenURL == "" {
		c.API.TokenURL = tokensource.Endpoint.TokenURL
	}
	if c.Watch.Interval == 0 {
		c.Watch.Interval = DefaultConfigWatchInterval
	}
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = DefaultConfigTelemetryExporter
	}
	if c.Storage.Type == "" {
		c.Storage.Type = DefaultConfigStorageType
	}

	// Dynamic defaults based on storage type
	switch c.Storage.Type {
	case StorageTypeFile, StorageTypeSQLite:
		if c.Storage.Dir == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("storage.dir required (auto-detect failed: %w)", err)
			}
			c.Storage.Dir = filepath.Join(configDir, "ratemeter")
		}
		if c.Storage.Type == StorageTypeSQLite && c.Storage.SQLiteFile == "" {
			c.Storage.SQLiteFile = filepath.Join(c.Storage.Dir, DefaultConfigSQLiteFile)
		}
	case StorageTypeKeyring:
		if c.Storage.KeyringService == "" {
			c.Storage.KeyringService = DefaultConfigKeyringService
		}
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Storage.Type {
	case StorageTypeFile:
		if c.Storage.Dir == "" {
			return errors.New("storage.dir required for file storage")
		}
	case StorageTypeKeyring:
		if c.Storage.KeyringService == "" {
			return errors.New("storage.keyring_service required for keyring storage")
		}
	case StorageTypeSQLite:
		if c.Storage.SQLiteFile == "" {
			return errors.New("storage.sqlite_file required for sqlite storage")
		}
	}

	if c.Watch.Interval < MinWatchInterval {
		return fmt.Errorf("watch.interval must be at least %s", MinWatchInterval)
	}
	if c.Shutdown.Timeout < 0 {
		return errors.New("shutdown.timeout cannot be negative")
	}

	return nil
}
