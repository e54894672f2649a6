package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tutu-network/classifier/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("CLASSIFIER_HOME", "/tmp/classifier-home")
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 7860 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 7860)
	}
	if cfg.Classifier.TopResults != 5 || cfg.Classifier.Threshold != 10 {
		t.Errorf("Classifier = %+v, want top 5 threshold 10", cfg.Classifier)
	}
	if cfg.Fetch.MaxAttempts != 5 || cfg.Fetch.RetryWait.Duration != time.Second {
		t.Errorf("Fetch = %+v, want 5 attempts 1s apart", cfg.Fetch)
	}
	if cfg.Model.MaxPixels != 40_000_000 {
		t.Errorf("Model.MaxPixels = %d, want 40000000", cfg.Model.MaxPixels)
	}
	if cfg.Logging.File != filepath.Join("/tmp/classifier-home", "classifier.log") {
		t.Errorf("Logging.File = %q", cfg.Logging.File)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Classifier.TopResults != 5 {
		t.Errorf("missing file should give defaults, got %+v", cfg.Classifier)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[classifier]
nm_top_results = 3
multiprocessing_threshold = 50

[model]
url_model = "http://localhost:8501/v1/models/birds"
url_labels = "https://example.com/labels.csv"
timeout = "10s"

[fetch]
retry_wait = "250ms"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Classifier.TopResults != 3 || cfg.Classifier.Threshold != 50 {
		t.Errorf("Classifier = %+v", cfg.Classifier)
	}
	if cfg.Model.Timeout.Duration != 10*time.Second || cfg.Fetch.RetryWait.Duration != 250*time.Millisecond {
		t.Errorf("durations = %v, %v", cfg.Model.Timeout, cfg.Fetch.RetryWait)
	}
	if cfg.API.Port != 7860 {
		t.Errorf("unset keys should keep defaults, API.Port = %d", cfg.API.Port)
	}
	if err := cfg.ValidateModel(); err != nil {
		t.Errorf("ValidateModel() error: %v", err)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"syntax":   "[classifier\n",
		"duration": "[fetch]\nretry_wait = \"soon\"\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".toml")
			os.WriteFile(path, []byte(data), 0o600)
			if _, err := LoadConfig(path); err == nil {
				t.Error("LoadConfig() should fail")
			}
		})
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	cfg := DefaultConfig()
	cfg.Model.URL = "http://model"
	cfg.Fetch.Timeout = Duration{45 * time.Second}

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `timeout = "45s"`) {
		t.Errorf("durations should be written as strings:\n%s", data)
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if got.Model.URL != "http://model" || got.Fetch.Timeout.Duration != 45*time.Second {
		t.Errorf("LoadConfig() = %+v", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative threshold", func(c *Config) { c.Classifier.Threshold = -1 }},
		{"zero top", func(c *Config) { c.Classifier.TopResults = 0 }},
		{"negative workers", func(c *Config) { c.Classifier.Workers = -2 }},
		{"zero max pixels", func(c *Config) { c.Model.MaxPixels = 0 }},
		{"zero attempts", func(c *Config) { c.Fetch.MaxAttempts = 0 }},
		{"bad port", func(c *Config) { c.API.Port = 70000 }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestValidateModel_Missing(t *testing.T) {
	if err := DefaultConfig().ValidateModel(); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("ValidateModel() error = %v, want ErrInvalidConfig", err)
	}
}
