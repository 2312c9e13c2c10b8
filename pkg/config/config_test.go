package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arazvan-ec/contentapi/pkg/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  admin_address: ":9100"
  data_address: ":9000"
  read_timeout: 2s

telemetry:
  otlp_endpoint: "localhost:4317"
  insecure: true

logging:
  level: DEBUG
  format: text

upstreams:
  timeout: 750ms
  editorial: "http://editorial.internal/"
  embedded: "http://embedded.internal"
  photos: "https://photos.internal"

pipeline:
  request_timeout: 4s
  batch_timeout: 1500ms
  max_concurrency: 8
  disabled_steps: [comments]
  disabled_enrichers: [membership]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendHTTP, cfg.Backend)
	assert.Equal(t, ":9100", cfg.Server.AdminAddress)
	assert.Equal(t, 2*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout, "defaults survive partial files")
	assert.True(t, cfg.Telemetry.Insecure)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 750*time.Millisecond, cfg.Upstreams.Timeout)
	assert.Equal(t, "http://editorial.internal", cfg.Upstreams.Editorial, "trailing slash is trimmed")
	assert.Equal(t, 1500*time.Millisecond, cfg.Pipeline.BatchTimeout)
	assert.Equal(t, 8, cfg.Pipeline.MaxConcurrency)
	assert.Equal(t, []string{"comments"}, cfg.Pipeline.DisabledSteps)
	assert.Equal(t, []string{"membership"}, cfg.Pipeline.DisabledEnrichers)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
upstreams:
  editorial: "http://editorial.internal"
  embedded: "http://embedded.internal"
`)
	t.Setenv("CONTENTAPI_LOG_LEVEL", "warn")
	t.Setenv("CONTENTAPI_UPSTREAM_COMMENTS_URL", "http://comments.internal")
	t.Setenv("CONTENTAPI_BATCH_TIMEOUT", "250ms")
	t.Setenv("CONTENTAPI_BATCH_MAX_CONCURRENCY", "3")
	t.Setenv("CONTENTAPI_DISABLED_STEPS", "comments, signatures")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "http://comments.internal", cfg.Upstreams.Comments)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.BatchTimeout)
	assert.Equal(t, 3, cfg.Pipeline.MaxConcurrency)
	assert.Equal(t, []string{"comments", "signatures"}, cfg.Pipeline.DisabledSteps)
}

func TestLoadMemoryBackendRequiresFixtures(t *testing.T) {
	t.Setenv("CONTENTAPI_BACKEND", "memory")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfigInvalid))

	t.Setenv("CONTENTAPI_FIXTURES", "testdata/fixtures.yaml")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Backend)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing editorial upstream", func(c *Config) { c.Upstreams.Embedded = "http://e" }},
		{"bad scheme", func(c *Config) {
			c.Upstreams.Editorial = "ftp://editorial"
			c.Upstreams.Embedded = "http://e"
		}},
		{"bad log level", func(c *Config) {
			c.Backend = BackendMemory
			c.Fixtures.Path = "f.yaml"
			c.Logging.Level = "verbose"
		}},
		{"negative batch timeout", func(c *Config) {
			c.Backend = BackendMemory
			c.Fixtures.Path = "f.yaml"
			c.Pipeline.BatchTimeout = -time.Second
		}},
		{"same addresses", func(c *Config) {
			c.Backend = BackendMemory
			c.Fixtures.Path = "f.yaml"
			c.Server.AdminAddress = ":8090"
		}},
		{"unknown backend", func(c *Config) { c.Backend = "grpc" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadInvalidEnvDuration(t *testing.T) {
	t.Setenv("CONTENTAPI_REQUEST_TIMEOUT", "soon")
	_, err := Load("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfigInvalid))
}

func TestLoadExampleConfig(t *testing.T) {
	cfg, err := Load("../../configs/contentapi.example.yaml")
	require.NoError(t, err)

	assert.Equal(t, BackendHTTP, cfg.Backend)
	assert.Equal(t, ":8090", cfg.Server.DataAddress)
	assert.Equal(t, 8, cfg.Pipeline.MaxConcurrency)
	assert.Equal(t, "http://media.internal:8080", cfg.Upstreams.Widgets)
}
