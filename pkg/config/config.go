// Package config provides configuration structures and loading logic for the
// content API.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arazvan-ec/contentapi/pkg/domain"
)

// Backends the content source can be built from.
const (
	BackendHTTP   = "http"
	BackendMemory = "memory"
)

// Config holds the global configuration for the content API.
type Config struct {
	Backend string `yaml:"backend"`

	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Upstreams UpstreamsConfig `yaml:"upstreams"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Fixtures  FixturesConfig  `yaml:"fixtures"`
}

// ServerConfig holds configuration for the HTTP servers.
type ServerConfig struct {
	AdminAddress    string        `yaml:"admin_address"`
	DataAddress     string        `yaml:"data_address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	ServiceName  string `yaml:"service_name"`
	Environment  string `yaml:"environment"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// UpstreamsConfig lists the base URLs of the backend services.
type UpstreamsConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	Editorial  string        `yaml:"editorial"`
	Embedded   string        `yaml:"embedded"`
	Comments   string        `yaml:"comments"`
	Signatures string        `yaml:"signatures"`
	Tags       string        `yaml:"tags"`
	Membership string        `yaml:"membership"`
	Photos     string        `yaml:"photos"`
	Videos     string        `yaml:"videos"`
	Widgets    string        `yaml:"widgets"`
}

// byName exposes the upstream URL fields for env overrides and validation.
func (u *UpstreamsConfig) byName() map[string]*string {
	return map[string]*string{
		"editorial":  &u.Editorial,
		"embedded":   &u.Embedded,
		"comments":   &u.Comments,
		"signatures": &u.Signatures,
		"tags":       &u.Tags,
		"membership": &u.Membership,
		"photos":     &u.Photos,
		"videos":     &u.Videos,
		"widgets":    &u.Widgets,
	}
}

// PipelineConfig controls which steps and enrichers run and the batch policy.
type PipelineConfig struct {
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	BatchTimeout       time.Duration `yaml:"batch_timeout"`
	MaxConcurrency     int           `yaml:"max_concurrency"`
	DisabledSteps      []string      `yaml:"disabled_steps"`
	DisabledEnrichers  []string      `yaml:"disabled_enrichers"`
	MembershipSections []string      `yaml:"membership_sections"`
}

// FixturesConfig points the in-memory backend at its data file.
type FixturesConfig struct {
	Path string `yaml:"path"`
}

// Default returns the configuration used when no file or env override says otherwise.
func Default() *Config {
	return &Config{
		Backend: BackendHTTP,
		Server: ServerConfig{
			AdminAddress:    ":19090",
			DataAddress:     ":8090",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "contentapi",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Upstreams: UpstreamsConfig{
			Timeout: 5 * time.Second,
		},
		Pipeline: PipelineConfig{
			RequestTimeout: 10 * time.Second,
			BatchTimeout:   3 * time.Second,
		},
	}
}

// Load reads configuration from a file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // Config file path is controlled by admin/operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfigInvalid, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: configuration validation failed: %w", domain.ErrConfigInvalid, err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv("CONTENTAPI_BACKEND"); val != "" {
		cfg.Backend = val
	}
	if val := os.Getenv("CONTENTAPI_ADMIN_ADDR"); val != "" {
		cfg.Server.AdminAddress = val
	}
	if val := os.Getenv("CONTENTAPI_DATA_ADDR"); val != "" {
		cfg.Server.DataAddress = val
	}

	if val := os.Getenv("CONTENTAPI_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("CONTENTAPI_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}
	if val := os.Getenv("CONTENTAPI_ENVIRONMENT"); val != "" {
		cfg.Telemetry.Environment = val
	}

	if val := os.Getenv("CONTENTAPI_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("CONTENTAPI_LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}

	for name, field := range cfg.Upstreams.byName() {
		if val := os.Getenv("CONTENTAPI_UPSTREAM_" + strings.ToUpper(name) + "_URL"); val != "" {
			*field = val
		}
	}

	durations := map[string]*time.Duration{
		"CONTENTAPI_UPSTREAM_TIMEOUT": &cfg.Upstreams.Timeout,
		"CONTENTAPI_REQUEST_TIMEOUT":  &cfg.Pipeline.RequestTimeout,
		"CONTENTAPI_BATCH_TIMEOUT":    &cfg.Pipeline.BatchTimeout,
	}
	for key, field := range durations {
		if val := os.Getenv(key); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*field = d
		}
	}

	if val := os.Getenv("CONTENTAPI_BATCH_MAX_CONCURRENCY"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("CONTENTAPI_BATCH_MAX_CONCURRENCY: %w", err)
		}
		cfg.Pipeline.MaxConcurrency = n
	}
	if val := os.Getenv("CONTENTAPI_DISABLED_STEPS"); val != "" {
		cfg.Pipeline.DisabledSteps = splitList(val)
	}
	if val := os.Getenv("CONTENTAPI_DISABLED_ENRICHERS"); val != "" {
		cfg.Pipeline.DisabledEnrichers = splitList(val)
	}

	if val := os.Getenv("CONTENTAPI_FIXTURES"); val != "" {
		cfg.Fixtures.Path = val
	}
	return nil
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate performs comprehensive validation of the entire configuration
func (c *Config) Validate() error {
	backend := strings.ToLower(strings.TrimSpace(c.Backend))
	if backend == "" {
		backend = BackendHTTP
	}
	c.Backend = backend

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}

	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline configuration: %w", err)
	}

	switch backend {
	case BackendHTTP:
		if err := c.Upstreams.Validate(); err != nil {
			return fmt.Errorf("upstreams configuration: %w", err)
		}
	case BackendMemory:
		if strings.TrimSpace(c.Fixtures.Path) == "" {
			return fmt.Errorf("fixtures configuration: path is required for the %s backend", BackendMemory)
		}
	default:
		return fmt.Errorf("unsupported backend %q, supported backends: %s, %s", c.Backend, BackendHTTP, BackendMemory)
	}

	return nil
}

// Validate performs validation of server configuration
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.AdminAddress) == "" {
		c.AdminAddress = ":19090"
	}
	if strings.TrimSpace(c.DataAddress) == "" {
		c.DataAddress = ":8090"
	}
	if c.AdminAddress == c.DataAddress {
		return fmt.Errorf("admin_address and data_address must differ, both are %q", c.DataAddress)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// Validate performs validation of logging configuration
func (c *LoggingConfig) Validate() error {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}
	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level
	default:
		return fmt.Errorf("invalid log level %q, supported levels: debug, info, warn, error", c.Level)
	}

	format := strings.TrimSpace(strings.ToLower(c.Format))
	switch format {
	case "", "json":
		c.Format = "json"
	case "text":
		c.Format = format
	default:
		return fmt.Errorf("invalid log format %q, supported formats: json, text", c.Format)
	}
	return nil
}

// Validate checks the batch policy and timeouts.
func (c *PipelineConfig) Validate() error {
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative")
	}
	if c.BatchTimeout < 0 {
		return fmt.Errorf("batch_timeout must not be negative")
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must not be negative")
	}
	return nil
}

// Validate requires the editorial and embedded upstreams and checks every URL set.
func (c *UpstreamsConfig) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if strings.TrimSpace(c.Editorial) == "" {
		return fmt.Errorf("editorial upstream URL is required")
	}
	if strings.TrimSpace(c.Embedded) == "" {
		return fmt.Errorf("embedded upstream URL is required")
	}
	for name, field := range c.byName() {
		raw := strings.TrimSpace(*field)
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%s upstream URL: %w", name, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("%s upstream URL %q must use http or https", name, raw)
		}
		*field = strings.TrimRight(raw, "/")
	}
	return nil
}
