// Package config provides configuration management for the service.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mnguyen-sec/threatlens/internal/analysis"
	"github.com/mnguyen-sec/threatlens/internal/cache"
	"github.com/mnguyen-sec/threatlens/internal/intel"
	"github.com/mnguyen-sec/threatlens/internal/observability"
)

// Config holds all service configuration. Sources without a base URL
// or API key are treated as not configured and skipped, which is not
// an error.
type Config struct {
	Server  ServerConfig                `yaml:"server"`
	Sources SourcesConfig               `yaml:"sources"`
	Scoring analysis.Policy             `yaml:"scoring"`
	Cache   cache.Config                `yaml:"cache"`
	Metrics MetricsConfig               `yaml:"metrics"`
	Logging observability.LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SourcesConfig holds the per-backend connection settings.
type SourcesConfig struct {
	MISP    intel.MISPConfig    `yaml:"misp"`
	OpenCTI intel.OpenCTIConfig `yaml:"opencti"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from a YAML file, applied over defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Sources: SourcesConfig{
			MISP:    intel.DefaultMISPConfig(),
			OpenCTI: intel.DefaultOpenCTIConfig(),
		},
		Scoring: analysis.DefaultPolicy(),
		Cache:   cache.DefaultConfig(),
		Metrics: MetricsConfig{Enabled: true},
		Logging: observability.LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
