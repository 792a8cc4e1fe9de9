// Package config provides configuration loading for counterpartyd.
//
// Configuration is layered: hardcoded defaults, then an optional YAML
// file, then environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// Config holds the complete counterpartyd configuration.
type Config struct {
	Store     StoreConfig     `koanf:"store"`
	Matcher   MatcherConfig   `koanf:"matcher"`
	Audit     AuditConfig     `koanf:"audit"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// StoreConfig locates the entity tier files.
type StoreConfig struct {
	// Dir is the project data directory.
	Dir string `koanf:"dir"`

	// ProjectFile is the project tier file name, resolved under Dir
	// unless absolute.
	ProjectFile string `koanf:"project_file"`

	// GlobalFile is the full path of the shared global tier. Empty
	// disables the global tier.
	GlobalFile string `koanf:"global_file"`

	// WatchGlobal reloads the global tier when the file changes on
	// disk. Requires GlobalFile.
	WatchGlobal bool `koanf:"watch_global"`
}

// ProjectPath returns the resolved project tier path.
func (s StoreConfig) ProjectPath() string {
	if filepath.IsAbs(s.ProjectFile) {
		return s.ProjectFile
	}
	return filepath.Join(s.Dir, s.ProjectFile)
}

// MatcherConfig tunes name resolution.
type MatcherConfig struct {
	// CacheTTL bounds lookup memoization. Zero means the default.
	CacheTTL Duration `koanf:"cache_ttl"`
}

// AuditConfig controls the mutation trail.
type AuditConfig struct {
	Enabled bool `koanf:"enabled"`

	// File is the JSONL trail path. Defaults to audit.jsonl under the
	// store directory.
	File string `koanf:"file"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	HTTPPort        int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.HTTPPort)
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry export configuration.
type TelemetryConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`

	// Protocol is grpc or http.
	Protocol    string `koanf:"protocol"`
	ServiceName string `koanf:"service_name"`

	// SampleRatio is the trace sampling fraction. Zero means sample
	// everything.
	SampleRatio float64 `koanf:"sample_ratio"`
	Insecure    bool    `koanf:"insecure"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Store.Dir == "" {
		cfg.Store.Dir = "."
	}
	if cfg.Store.ProjectFile == "" {
		cfg.Store.ProjectFile = "entities.json"
	}

	if cfg.Matcher.CacheTTL == 0 {
		cfg.Matcher.CacheTTL = Duration(5 * time.Minute)
	}

	if cfg.Audit.Enabled && cfg.Audit.File == "" {
		cfg.Audit.File = filepath.Join(cfg.Store.Dir, "audit.jsonl")
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 9091
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "counterpartyd"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.SampleRatio == 0 {
		cfg.Telemetry.SampleRatio = 1.0
	}
}

// Validate validates the configuration.
//
// Returns an error if:
//   - The project tier file is unset
//   - The global watcher is enabled without a global tier
//   - The server port is not between 1 and 65535
//   - The shutdown timeout is not positive
//   - The logging level or format is unknown
//   - Telemetry is enabled with an unknown protocol or a sample ratio
//     outside [0, 1]
func (c *Config) Validate() error {
	if c.Store.ProjectFile == "" {
		return errors.New("store project_file cannot be empty")
	}
	if c.Store.WatchGlobal && c.Store.GlobalFile == "" {
		return errors.New("store watch_global requires a global_file")
	}

	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.HTTPPort)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http" {
			return fmt.Errorf("invalid telemetry protocol: %q (must be grpc or http)", c.Telemetry.Protocol)
		}
		if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
			return fmt.Errorf("invalid telemetry sample ratio: %v (must be in [0, 1])", c.Telemetry.SampleRatio)
		}
		if c.Telemetry.ServiceName == "" {
			return errors.New("service name required when telemetry is enabled")
		}
	}

	return nil
}
