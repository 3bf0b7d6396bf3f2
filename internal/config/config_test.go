package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/YassChaai/SmartCare-Analytics/internal/models"
	"github.com/YassChaai/SmartCare-Analytics/internal/store"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected default config to be valid, got %v", err)
	}
	if cfg.Similarity.K != 10 {
		t.Errorf("Expected k 10, got %d", cfg.Similarity.K)
	}
	if cfg.Inference.SafetyMargin != 0.10 {
		t.Errorf("Expected safety margin 0.10, got %v", cfg.Inference.SafetyMargin)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "smartcare.json")
	body := `{
		"data": {"path": "/srv/history.csv"},
		"similarity": {"k": 7, "cache_ttl": "90s"},
		"store": {"backend": "file", "path": "/srv/predictions.json", "ttl": 3600},
		"server": {"port": "9000"}
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(FileEnv, path)
	t.Setenv("SMARTCARE_PORT", "9100")
	t.Setenv("SMARTCARE_MODELS", "random_forest, linear_regression")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Data.Path != "/srv/history.csv" {
		t.Errorf("Expected data path from file, got %s", cfg.Data.Path)
	}
	if cfg.Similarity.K != 7 {
		t.Errorf("Expected k 7, got %d", cfg.Similarity.K)
	}
	if cfg.Similarity.CacheTTL.Duration != 90*time.Second {
		t.Errorf("Expected cache ttl 90s, got %v", cfg.Similarity.CacheTTL)
	}
	if cfg.Store.TTL.Duration != time.Hour {
		t.Errorf("Expected store ttl 1h, got %v", cfg.Store.TTL)
	}
	if cfg.Server.Port != "9100" {
		t.Errorf("Expected env to override file port, got %s", cfg.Server.Port)
	}
	if len(cfg.Training.Models) != 2 || cfg.Training.Models[1] != models.LinearRegression {
		t.Errorf("Expected models from env, got %v", cfg.Training.Models)
	}
	// Untouched sections keep their defaults
	if cfg.Server.TokenRate != 100 {
		t.Errorf("Expected default token rate, got %d", cfg.Server.TokenRate)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
			t.Error("Expected error for missing file")
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		os.WriteFile(path, []byte("{"), 0o644)
		if _, err := Load(path); err == nil {
			t.Error("Expected error for malformed file")
		}
	})

	t.Run("bad env number", func(t *testing.T) {
		t.Setenv("SMARTCARE_K", "ten")
		_, err := Load("")
		if err == nil || !strings.Contains(err.Error(), "SMARTCARE_K") {
			t.Errorf("Expected SMARTCARE_K error, got %v", err)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"train ratio zero", func(c *Config) { c.Training.TrainRatio = 0 }},
		{"train ratio one", func(c *Config) { c.Training.TrainRatio = 1 }},
		{"unknown model", func(c *Config) { c.Training.Models = []string{"xgboost"} }},
		{"k zero", func(c *Config) { c.Similarity.K = 0 }},
		{"negative margin", func(c *Config) { c.Inference.SafetyMargin = -0.1 }},
		{"negative beds", func(c *Config) { c.Resources.BedsTotal = -1 }},
		{"unknown backend", func(c *Config) { c.Store.Backend = "mongo" }},
		{"file without path", func(c *Config) { c.Store.Backend = store.BackendFile }},
		{"redis without addr", func(c *Config) { c.Store.Backend = store.BackendRedis }},
		{"unknown source", func(c *Config) { c.Data.Source = "s3" }},
		{"postgres without url", func(c *Config) { c.Data.Source = SourcePostgres }},
		{"sampling above one", func(c *Config) { c.Telemetry.SamplingRate = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestDerivedConfigs(t *testing.T) {
	cfg := Default()
	cfg.Similarity.K = 5
	cfg.Inference.SafetyMargin = 0.2
	cfg.Training.Trees = 50
	cfg.Store.TTL = Dur(time.Minute)
	cfg.Telemetry.Endpoint = "collector:4317"

	if fc := cfg.ForecastConfig(); fc.K != 5 || fc.SafetyMargin != 0.2 {
		t.Errorf("Expected forecast config k 5 margin 0.2, got %d %v", fc.K, fc.SafetyMargin)
	}
	if tc := cfg.TrainingConfig(); tc.Params.Trees != 50 {
		t.Errorf("Expected 50 trees, got %d", tc.Params.Trees)
	}
	if sc := cfg.StoreConfig(); sc.TTL != time.Minute || sc.Backend != store.BackendMemory {
		t.Errorf("Unexpected store config %+v", sc)
	}
	oc := cfg.OtelConfig("2.0.0")
	if !oc.Enabled() || oc.ServiceVersion != "2.0.0" {
		t.Errorf("Expected enabled tracing with version 2.0.0, got %+v", oc)
	}
}

func TestDurationJSON(t *testing.T) {
	data, err := json.Marshal(Dur(90 * time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"1m30s"` {
		t.Errorf("Expected \"1m30s\", got %s", data)
	}

	var d Duration
	if err := json.Unmarshal([]byte(`"5m"`), &d); err != nil || d.Duration != 5*time.Minute {
		t.Errorf("Expected 5m, got %v (%v)", d, err)
	}
	if err := json.Unmarshal([]byte(`"soon"`), &d); err == nil {
		t.Error("Expected error for invalid duration")
	}
	if err := json.Unmarshal([]byte(`true`), &d); err == nil {
		t.Error("Expected error for non-string duration")
	}
}
