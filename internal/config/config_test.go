package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// missingPath returns a config path that does not exist, so Load runs
// on defaults plus environment only.
func missingPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.yaml")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(missingPath(t))
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.Store.Dir)
	assert.Equal(t, "entities.json", cfg.Store.ProjectFile)
	assert.Empty(t, cfg.Store.GlobalFile)
	assert.False(t, cfg.Store.WatchGlobal)

	assert.Equal(t, 5*time.Minute, cfg.Matcher.CacheTTL.Duration())

	assert.False(t, cfg.Audit.Enabled)
	assert.Empty(t, cfg.Audit.File)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9091, cfg.Server.HTTPPort)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "127.0.0.1:9091", cfg.Server.Addr())

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "counterpartyd", cfg.Telemetry.ServiceName)
	assert.Equal(t, "grpc", cfg.Telemetry.Protocol)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.Endpoint)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRatio)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
store:
  dir: /var/lib/counterpartyd
  project_file: project.json
  global_file: /srv/shared/global.json
  watch_global: true
matcher:
  cache_ttl: 90s
audit:
  enabled: true
server:
  host: 0.0.0.0
  http_port: 8080
  shutdown_timeout: 30s
logging:
  level: debug
  format: console
telemetry:
  enabled: true
  endpoint: collector:4318
  protocol: http
  sample_ratio: 0.25
  insecure: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/counterpartyd", cfg.Store.Dir)
	assert.Equal(t, "project.json", cfg.Store.ProjectFile)
	assert.Equal(t, "/srv/shared/global.json", cfg.Store.GlobalFile)
	assert.True(t, cfg.Store.WatchGlobal)
	assert.Equal(t, 90*time.Second, cfg.Matcher.CacheTTL.Duration())
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, "/var/lib/counterpartyd/audit.jsonl", cfg.Audit.File,
		"audit file defaults under the store directory")
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "collector:4318", cfg.Telemetry.Endpoint)
	assert.Equal(t, "http", cfg.Telemetry.Protocol)
	assert.Equal(t, 0.25, cfg.Telemetry.SampleRatio)
	assert.True(t, cfg.Telemetry.Insecure)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  http_port: 8000
store:
  dir: /from/file
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("SERVER_HTTP_PORT", "9999")
	t.Setenv("STORE_GLOBAL_FILE", "/from/env/global.json")
	t.Setenv("MATCHER_CACHE_TTL", "45s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort, "env beats file")
	assert.Equal(t, "/from/file", cfg.Store.Dir, "file value survives where env is silent")
	assert.Equal(t, "/from/env/global.json", cfg.Store.GlobalFile)
	assert.Equal(t, 45*time.Second, cfg.Matcher.CacheTTL.Duration())
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [not: a: mapping"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config file")
}

func TestLoad_FileTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("#"), maxConfigFileSize+1), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file too large")
}

func TestLoad_ValidationFailure(t *testing.T) {
	t.Setenv("LOGGING_LEVEL", "verbose")

	_, err := Load(missingPath(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func validConfig() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults pass",
			mutate: func(*Config) {},
		},
		{
			name:    "empty project file",
			mutate:  func(c *Config) { c.Store.ProjectFile = "" },
			wantErr: "project_file",
		},
		{
			name:    "watch without global tier",
			mutate:  func(c *Config) { c.Store.WatchGlobal = true },
			wantErr: "watch_global requires a global_file",
		},
		{
			name:    "port too large",
			mutate:  func(c *Config) { c.Server.HTTPPort = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "zero shutdown timeout",
			mutate:  func(c *Config) { c.Server.ShutdownTimeout = 0 },
			wantErr: "shutdown timeout",
		},
		{
			name:    "unknown logging level",
			mutate:  func(c *Config) { c.Logging.Level = "trace" },
			wantErr: "invalid logging level",
		},
		{
			name:    "unknown logging format",
			mutate:  func(c *Config) { c.Logging.Format = "logfmt" },
			wantErr: "invalid logging format",
		},
		{
			name: "bad telemetry protocol",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.Protocol = "udp"
			},
			wantErr: "invalid telemetry protocol",
		},
		{
			name: "sample ratio out of range",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.SampleRatio = 2.0
			},
			wantErr: "invalid telemetry sample ratio",
		},
		{
			name: "telemetry protocol ignored when disabled",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = false
				c.Telemetry.Protocol = "udp"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStoreConfig_ProjectPath(t *testing.T) {
	s := StoreConfig{Dir: "/data", ProjectFile: "entities.json"}
	assert.Equal(t, "/data/entities.json", s.ProjectPath())

	s.ProjectFile = "/elsewhere/entities.json"
	assert.Equal(t, "/elsewhere/entities.json", s.ProjectPath(), "absolute path wins over dir")
}

func TestDuration(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1h30m")))
	assert.Equal(t, 90*time.Minute, d.Duration())

	require.Error(t, d.UnmarshalText([]byte("-5s")), "negative durations rejected")
	require.Error(t, d.UnmarshalText([]byte("soon")))

	out, err := json.Marshal(Duration(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(out))
}
