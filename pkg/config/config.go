// Package config provides configuration loading and management for imglabeler.
// It handles loading configuration from YAML files, overlays environment
// variables (optionally from a .env file) and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"imglabeler/pkg/layers"
	"imglabeler/pkg/logging"
)

// EnvPrefix prefixes every environment override, e.g. LABELER_DATASET_PATH
const EnvPrefix = "LABELER"

// Config represents the application configuration loaded from YAML
type Config struct {
	// Dataset parameters
	Dataset struct {
		// Path is the pre-built dataset artifact to label
		Path string `yaml:"path"`

		// Username identifies the annotator in logs
		Username string `yaml:"username"`

		// Seed initializes both random generators before the first image is shown
		Seed uint64 `yaml:"seed"`
	} `yaml:"dataset"`

	// Session artifact parameters
	Session struct {
		// Dir is where session artifacts are saved by default
		Dir string `yaml:"dir"`

		// CompressionLevel is the zstd level for artifacts; 0 uses the default
		CompressionLevel int `yaml:"compressionLevel"`

		// MaxArtifactMB caps the decompressed size of dataset and session artifacts
		MaxArtifactMB int `yaml:"maxArtifactMB"`
	} `yaml:"session"`

	// Overlay layers
	Layers struct {
		Catalog []layers.Layer `yaml:"catalog"`
		Active  int            `yaml:"active"`
	} `yaml:"layers"`

	Logging logging.Config `yaml:"logging"`

	// Export parameters
	Export struct {
		// Enabled writes an overlay PNG every time a frame is rendered
		Enabled bool `yaml:"enabled"`

		// Dir receives overlays and exported masks
		Dir string `yaml:"dir"`
	} `yaml:"export"`

	// Preprocess parameters
	Preprocess struct {
		// NoiseSigma is the jitter applied to displayed images; 0 disables it
		NoiseSigma float64 `yaml:"noiseSigma"`
	} `yaml:"preprocess"`
}

// envOverrides lists the settings that can be overridden from the environment.
// Unset variables leave the pointer nil.
type envOverrides struct {
	DatasetPath      *string  `envconfig:"DATASET_PATH"`
	Annotator        *string  `envconfig:"ANNOTATOR"`
	Seed             *uint64  `envconfig:"SEED"`
	SessionDir       *string  `envconfig:"SESSION_DIR"`
	CompressionLevel *int     `envconfig:"COMPRESSION_LEVEL"`
	MaxArtifactMB    *int     `envconfig:"MAX_ARTIFACT_MB"`
	ActiveLayer      *int     `envconfig:"ACTIVE_LAYER"`
	LogLevel         *string  `envconfig:"LOG_LEVEL"`
	LogDevelopment   *bool    `envconfig:"LOG_DEVELOPMENT"`
	ExportEnabled    *bool    `envconfig:"EXPORT_ENABLED"`
	ExportDir        *string  `envconfig:"EXPORT_DIR"`
	NoiseSigma       *float64 `envconfig:"NOISE_SIGMA"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Dataset.Path = "fastdata.xrdl"
	cfg.Dataset.Seed = 0

	cfg.Session.Dir = "sessions"
	cfg.Session.CompressionLevel = 0
	cfg.Session.MaxArtifactMB = 1024

	cfg.Layers.Catalog = layers.DefaultLayers()
	cfg.Layers.Active = layers.Flaw

	cfg.Logging = logging.DefaultConfig()

	cfg.Export.Enabled = false
	cfg.Export.Dir = "export"

	cfg.Preprocess.NoiseSigma = 0

	return cfg
}

// Load reads .env (if present), then the YAML file at configPath (if present),
// then applies LABELER_* environment overrides, and validates the result
func Load(configPath string) (*Config, error) {
	// a missing .env file is not an error
	_ = godotenv.Load()

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overlays LABELER_* environment variables onto cfg
func (cfg *Config) ApplyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("error reading environment: %w", err)
	}

	if env.DatasetPath != nil {
		cfg.Dataset.Path = *env.DatasetPath
	}
	if env.Annotator != nil {
		cfg.Dataset.Username = *env.Annotator
	}
	if env.Seed != nil {
		cfg.Dataset.Seed = *env.Seed
	}
	if env.SessionDir != nil {
		cfg.Session.Dir = *env.SessionDir
	}
	if env.CompressionLevel != nil {
		cfg.Session.CompressionLevel = *env.CompressionLevel
	}
	if env.MaxArtifactMB != nil {
		cfg.Session.MaxArtifactMB = *env.MaxArtifactMB
	}
	if env.ActiveLayer != nil {
		cfg.Layers.Active = *env.ActiveLayer
	}
	if env.LogLevel != nil {
		cfg.Logging.Level = *env.LogLevel
	}
	if env.LogDevelopment != nil {
		cfg.Logging.Development = *env.LogDevelopment
	}
	if env.ExportEnabled != nil {
		cfg.Export.Enabled = *env.ExportEnabled
	}
	if env.ExportDir != nil {
		cfg.Export.Dir = *env.ExportDir
	}
	if env.NoiseSigma != nil {
		cfg.Preprocess.NoiseSigma = *env.NoiseSigma
	}
	return nil
}

// Validate checks values that would otherwise fail later, mid-session
func (cfg *Config) Validate() error {
	if cfg.Session.CompressionLevel < 0 || cfg.Session.CompressionLevel > 22 {
		return fmt.Errorf("compression level %d outside 0..22", cfg.Session.CompressionLevel)
	}
	if cfg.Session.MaxArtifactMB <= 0 {
		return fmt.Errorf("artifact size limit %d MB must be positive", cfg.Session.MaxArtifactMB)
	}
	if cfg.Preprocess.NoiseSigma < 0 {
		return fmt.Errorf("noise sigma %g must not be negative", cfg.Preprocess.NoiseSigma)
	}
	if _, err := cfg.Catalog(); err != nil {
		return fmt.Errorf("invalid layers: %w", err)
	}
	return nil
}

// MaxArtifactBytes is the artifact size limit in bytes
func (cfg *Config) MaxArtifactBytes() uint64 {
	return uint64(cfg.Session.MaxArtifactMB) << 20
}

// Catalog builds the layer catalog described by the configuration
func (cfg *Config) Catalog() (*layers.Catalog, error) {
	return layers.New(cfg.Layers.Catalog, cfg.Layers.Active)
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
