// Package daemon manages the classifier lifecycle and configuration.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tutu-network/classifier/internal/domain"
)

// Config holds all classifier configuration.
type Config struct {
	Classifier ClassifierConfig `toml:"classifier"`
	Model      ModelConfig      `toml:"model"`
	Fetch      FetchConfig      `toml:"fetch"`
	API        APIConfig        `toml:"api"`
	History    HistoryConfig    `toml:"history"`
	Logging    LoggingConfig    `toml:"logging"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
}

// ClassifierConfig controls batch dispatch.
type ClassifierConfig struct {
	TopResults int    `toml:"nm_top_results"`
	Threshold  int    `toml:"multiprocessing_threshold"`
	Workers    int    `toml:"workers"` // 0 = runtime.NumCPU()
	CacheDir   string `toml:"cache_dir"`
}

// ModelConfig names the model and its labels.
type ModelConfig struct {
	URL       string   `toml:"url_model"`
	LabelsURL string   `toml:"url_labels"`
	InputSize int      `toml:"input_size"`
	MaxPixels int      `toml:"max_pixels"` // decoded width×height limit per image
	Timeout   Duration `toml:"timeout"`
}

// FetchConfig controls content retrieval retries.
type FetchConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	RetryWait   Duration `toml:"retry_wait"`
	Timeout     Duration `toml:"timeout"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	MaxBatch    int      `toml:"max_batch"`
	CORSOrigins []string `toml:"cors_origins"`
}

// HistoryConfig controls batch history storage.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// TelemetryConfig controls metrics export.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// Duration is a time.Duration written as a string ("30s") in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	homeDir := classifierHome()
	return Config{
		Classifier: ClassifierConfig{
			TopResults: 5,
			Threshold:  10,
			Workers:    0,
			CacheDir:   filepath.Join(homeDir, "cache"),
		},
		Model: ModelConfig{
			InputSize: 224,
			MaxPixels: 40_000_000,
			Timeout:   Duration{30 * time.Second},
		},
		Fetch: FetchConfig{
			MaxAttempts: 5,
			RetryWait:   Duration{1 * time.Second},
			Timeout:     Duration{30 * time.Second},
		},
		API: APIConfig{
			Host:        "127.0.0.1",
			Port:        7860,
			MaxBatch:    1000,
			CORSOrigins: []string{"*"},
		},
		History: HistoryConfig{
			Enabled: true,
			Dir:     homeDir,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   filepath.Join(homeDir, "classifier.log"),
		},
	}
}

// LoadConfig reads config from path, or from ~/.classifier/config.toml
// when path is empty. A missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = ConfigPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet, use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path, or to ~/.classifier/config.toml when path
// is empty.
func SaveConfig(path string, cfg Config) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// Validate checks value ranges. Model URLs are checked by ValidateModel,
// since commands like history run without a model.
func (c Config) Validate() error {
	var errs []error
	if c.Classifier.Threshold < 0 {
		errs = append(errs, fmt.Errorf("multiprocessing_threshold must be >= 0, got %d", c.Classifier.Threshold))
	}
	if c.Classifier.TopResults < 1 {
		errs = append(errs, fmt.Errorf("nm_top_results must be >= 1, got %d", c.Classifier.TopResults))
	}
	if c.Classifier.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be >= 0, got %d", c.Classifier.Workers))
	}
	if c.Model.InputSize < 1 {
		errs = append(errs, fmt.Errorf("input_size must be >= 1, got %d", c.Model.InputSize))
	}
	if c.Model.MaxPixels < 1 {
		errs = append(errs, fmt.Errorf("max_pixels must be >= 1, got %d", c.Model.MaxPixels))
	}
	if c.Fetch.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_attempts must be >= 1, got %d", c.Fetch.MaxAttempts))
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.API.Port))
	}
	if c.API.MaxBatch < 1 {
		errs = append(errs, fmt.Errorf("max_batch must be >= 1, got %d", c.API.MaxBatch))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging format must be text or json, got %q", c.Logging.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ValidateModel checks that the model and label URLs are set.
func (c Config) ValidateModel() error {
	if strings.TrimSpace(c.Model.URL) == "" {
		return fmt.Errorf("%w: [model] url_model is not set", domain.ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Model.LabelsURL) == "" {
		return fmt.Errorf("%w: [model] url_labels is not set", domain.ErrInvalidConfig)
	}
	return nil
}

// classifierHome returns the classifier data directory.
func classifierHome() string {
	if env := os.Getenv("CLASSIFIER_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".classifier")
}

// Home is exported for use by other packages.
func Home() string {
	return classifierHome()
}

// ConfigPath returns the default config file location.
func ConfigPath() string {
	return filepath.Join(classifierHome(), "config.toml")
}
