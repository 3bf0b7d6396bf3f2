// Package config loads the service and CLI configuration: defaults, then
// an optional JSON file, then SMARTCARE_* environment variables.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/YassChaai/SmartCare-Analytics/internal/features"
	"github.com/YassChaai/SmartCare-Analytics/internal/forecast"
	"github.com/YassChaai/SmartCare-Analytics/internal/inference"
	"github.com/YassChaai/SmartCare-Analytics/internal/models"
	"github.com/YassChaai/SmartCare-Analytics/internal/series"
	"github.com/YassChaai/SmartCare-Analytics/internal/similarity"
	"github.com/YassChaai/SmartCare-Analytics/internal/store"
	"github.com/YassChaai/SmartCare-Analytics/internal/training"
	"github.com/YassChaai/SmartCare-Analytics/internal/trend"
	"github.com/YassChaai/SmartCare-Analytics/pkg/otel"
)

// FileEnv names the variable pointing at a JSON configuration file.
const FileEnv = "SMARTCARE_CONFIG"

// Data sources.
const (
	SourceCSV      = "csv"
	SourcePostgres = "postgres"
)

// Config is the full configuration.
type Config struct {
	Data       DataConfig       `json:"data"`
	Artifacts  ArtifactsConfig  `json:"artifacts"`
	Training   TrainingConfig   `json:"training"`
	Inference  InferenceConfig  `json:"inference"`
	Similarity SimilarityConfig `json:"similarity"`
	Resources  ResourcesConfig  `json:"resources"`
	Store      StoreConfig      `json:"store"`
	Server     ServerConfig     `json:"server"`
	Telemetry  TelemetryConfig  `json:"telemetry"`
	Logging    LoggingConfig    `json:"logging"`
}

// DataConfig locates the daily history.
type DataConfig struct {
	Source      string `json:"source"`
	Path        string `json:"path"`
	PostgresURL string `json:"postgres_url"`
	Table       string `json:"table"`
}

// ArtifactsConfig locates the model store.
type ArtifactsConfig struct {
	Dir string `json:"dir"`
}

// TrainingConfig tunes the training pipeline.
type TrainingConfig struct {
	TrainRatio   float64  `json:"train_ratio"`
	Models       []string `json:"models"`
	DefaultModel string   `json:"default_model"`
	Trees        int      `json:"trees"`
	MaxDepth     int      `json:"max_depth"`
	LearningRate float64  `json:"learning_rate"`
	Seed         uint64   `json:"seed"` // 0 selects models.DefaultSeed
}

// InferenceConfig tunes single and multi-day predictions.
type InferenceConfig struct {
	SafetyMargin float64 `json:"safety_margin"`
	TrendYears   int     `json:"trend_years"`
	Model        string  `json:"model"`
}

// SimilarityConfig tunes the neighbour search and its cache.
type SimilarityConfig struct {
	K         int                `json:"k"`
	Weights   similarity.Weights `json:"weights"`
	CacheSize int                `json:"cache_size"`
	CacheTTL  Duration           `json:"cache_ttl"`
}

// ResourcesConfig overrides the capacity read from history.
type ResourcesConfig struct {
	BedsTotal int `json:"beds_total"` // 0 uses the latest lits_total
}

// StoreConfig selects the review store and the journal.
type StoreConfig struct {
	Backend       string   `json:"backend"`
	Path          string   `json:"path"`
	Limit         int      `json:"limit"`
	RedisAddr     string   `json:"redis_addr"`
	RedisPassword string   `json:"redis_password"`
	RedisDB       int      `json:"redis_db"`
	PostgresURL   string   `json:"postgres_url"`
	TTL           Duration `json:"ttl"`
	JournalDir    string   `json:"journal_dir"`
}

// ServerConfig tunes the HTTP server.
type ServerConfig struct {
	Port            string   `json:"port"`
	TokenRate       int      `json:"token_rate"`
	MetricsUser     string   `json:"metrics_user"`
	MetricsPassword string   `json:"metrics_password"`
	ReadTimeout     Duration `json:"read_timeout"`
	WriteTimeout    Duration `json:"write_timeout"`
	IdleTimeout     Duration `json:"idle_timeout"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`
}

// TelemetryConfig enables tracing when Endpoint is set.
type TelemetryConfig struct {
	ServiceName  string  `json:"service_name"`
	Environment  string  `json:"environment"`
	Endpoint     string  `json:"endpoint"`
	Insecure     bool    `json:"insecure"`
	SamplingRate float64 `json:"sampling_rate"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// Default returns the built-in configuration.
func Default() *Config {
	tc := training.DefaultConfig()
	return &Config{
		Data: DataConfig{
			Source: SourceCSV,
			Path:   "data/hospital_context.csv",
			Table:  "hospital_daily",
		},
		Artifacts: ArtifactsConfig{Dir: "models"},
		Training: TrainingConfig{
			TrainRatio:   tc.TrainRatio,
			Models:       tc.Models,
			DefaultModel: tc.DefaultModel,
		},
		Inference: InferenceConfig{
			SafetyMargin: inference.DefaultSafetyMargin,
			TrendYears:   trend.DefaultYears,
		},
		Similarity: SimilarityConfig{
			K:         similarity.DefaultK,
			Weights:   similarity.DefaultWeights(),
			CacheSize: 1024,
			CacheTTL:  Dur(10 * time.Minute),
		},
		Store: StoreConfig{
			Backend:    store.BackendMemory,
			Limit:      store.DefaultLimit,
			JournalDir: "data/journal",
		},
		Server: ServerConfig{
			Port:            "8080",
			TokenRate:       100,
			ReadTimeout:     Dur(10 * time.Second),
			WriteTimeout:    Dur(30 * time.Second),
			IdleTimeout:     Dur(60 * time.Second),
			ShutdownTimeout: Dur(10 * time.Second),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "smartcare",
			Environment:  "development",
			Insecure:     true,
			SamplingRate: 1.0,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, the file at path (or at
// $SMARTCARE_CONFIG when path is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays every SMARTCARE_* variable that is set.
func (c *Config) applyEnv() error {
	c.Data.Source = getEnv("SMARTCARE_DATA_SOURCE", c.Data.Source)
	c.Data.Path = getEnv("SMARTCARE_DATA_PATH", c.Data.Path)
	c.Data.PostgresURL = getEnv("SMARTCARE_DATA_POSTGRES_URL", c.Data.PostgresURL)
	c.Data.Table = getEnv("SMARTCARE_DATA_TABLE", c.Data.Table)
	c.Artifacts.Dir = getEnv("SMARTCARE_ARTIFACTS_DIR", c.Artifacts.Dir)
	c.Training.Models = getEnvList("SMARTCARE_MODELS", c.Training.Models)
	c.Training.DefaultModel = getEnv("SMARTCARE_DEFAULT_MODEL", c.Training.DefaultModel)
	c.Inference.Model = getEnv("SMARTCARE_MODEL", c.Inference.Model)
	c.Store.Backend = getEnv("SMARTCARE_STORE_BACKEND", c.Store.Backend)
	c.Store.Path = getEnv("SMARTCARE_STORE_PATH", c.Store.Path)
	c.Store.RedisAddr = getEnv("SMARTCARE_REDIS_ADDR", c.Store.RedisAddr)
	c.Store.RedisPassword = getEnv("SMARTCARE_REDIS_PASSWORD", c.Store.RedisPassword)
	c.Store.PostgresURL = getEnv("SMARTCARE_POSTGRES_URL", c.Store.PostgresURL)
	c.Store.JournalDir = getEnv("SMARTCARE_JOURNAL_DIR", c.Store.JournalDir)
	c.Server.Port = getEnv("SMARTCARE_PORT", c.Server.Port)
	c.Server.MetricsUser = getEnv("SMARTCARE_METRICS_USER", c.Server.MetricsUser)
	c.Server.MetricsPassword = getEnv("SMARTCARE_METRICS_PASSWORD", c.Server.MetricsPassword)
	c.Telemetry.Environment = getEnv("SMARTCARE_ENV", c.Telemetry.Environment)
	c.Telemetry.Endpoint = getEnv("SMARTCARE_OTEL_ENDPOINT", c.Telemetry.Endpoint)
	c.Logging.Level = getEnv("SMARTCARE_LOG_LEVEL", c.Logging.Level)

	var err error
	if c.Training.TrainRatio, err = getEnvFloat("SMARTCARE_TRAIN_RATIO", c.Training.TrainRatio); err != nil {
		return err
	}
	if c.Training.Trees, err = getEnvInt("SMARTCARE_TREES", c.Training.Trees); err != nil {
		return err
	}
	if c.Inference.SafetyMargin, err = getEnvFloat("SMARTCARE_SAFETY_MARGIN", c.Inference.SafetyMargin); err != nil {
		return err
	}
	if c.Inference.TrendYears, err = getEnvInt("SMARTCARE_TREND_YEARS", c.Inference.TrendYears); err != nil {
		return err
	}
	if c.Similarity.K, err = getEnvInt("SMARTCARE_K", c.Similarity.K); err != nil {
		return err
	}
	if c.Similarity.CacheSize, err = getEnvInt("SMARTCARE_CACHE_SIZE", c.Similarity.CacheSize); err != nil {
		return err
	}
	if c.Similarity.CacheTTL.Duration, err = getEnvDuration("SMARTCARE_CACHE_TTL", c.Similarity.CacheTTL.Duration); err != nil {
		return err
	}
	if c.Resources.BedsTotal, err = getEnvInt("SMARTCARE_BEDS_TOTAL", c.Resources.BedsTotal); err != nil {
		return err
	}
	if c.Store.Limit, err = getEnvInt("SMARTCARE_STORE_LIMIT", c.Store.Limit); err != nil {
		return err
	}
	if c.Store.RedisDB, err = getEnvInt("SMARTCARE_REDIS_DB", c.Store.RedisDB); err != nil {
		return err
	}
	if c.Store.TTL.Duration, err = getEnvDuration("SMARTCARE_STORE_TTL", c.Store.TTL.Duration); err != nil {
		return err
	}
	if c.Server.TokenRate, err = getEnvInt("SMARTCARE_TOKEN_RATE", c.Server.TokenRate); err != nil {
		return err
	}
	if c.Telemetry.SamplingRate, err = getEnvFloat("SMARTCARE_OTEL_SAMPLING", c.Telemetry.SamplingRate); err != nil {
		return err
	}
	if c.Telemetry.Insecure, err = getEnvBool("SMARTCARE_OTEL_INSECURE", c.Telemetry.Insecure); err != nil {
		return err
	}
	if c.Logging.Development, err = getEnvBool("SMARTCARE_LOG_DEV", c.Logging.Development); err != nil {
		return err
	}
	return nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	switch c.Data.Source {
	case SourceCSV:
		if c.Data.Path == "" {
			return fmt.Errorf("data path is required for the csv source")
		}
	case SourcePostgres:
		if c.Data.PostgresURL == "" {
			return fmt.Errorf("postgres url is required for the postgres source")
		}
	default:
		return fmt.Errorf("unknown data source %q", c.Data.Source)
	}
	if c.Artifacts.Dir == "" {
		return fmt.Errorf("artifacts directory is required")
	}
	if err := c.TrainingConfig().Validate(); err != nil {
		return err
	}
	if c.Inference.SafetyMargin < 0 {
		return fmt.Errorf("safety margin must be non-negative, got %v", c.Inference.SafetyMargin)
	}
	if c.Inference.TrendYears < 0 {
		return fmt.Errorf("trend years must be non-negative, got %d", c.Inference.TrendYears)
	}
	if c.Similarity.K < 1 {
		return fmt.Errorf("k must be at least 1, got %d", c.Similarity.K)
	}
	if c.Similarity.CacheSize < 0 {
		return fmt.Errorf("cache size must be non-negative, got %d", c.Similarity.CacheSize)
	}
	if c.Resources.BedsTotal < 0 {
		return fmt.Errorf("beds total must be non-negative, got %d", c.Resources.BedsTotal)
	}
	switch c.Store.Backend {
	case store.BackendMemory:
	case store.BackendFile:
		if c.Store.Path == "" {
			return fmt.Errorf("file store requires a path")
		}
	case store.BackendRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("redis store requires an address")
		}
	case store.BackendPostgres:
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("postgres store requires a url")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Server.TokenRate < 1 {
		return fmt.Errorf("token rate must be at least 1, got %d", c.Server.TokenRate)
	}
	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		return fmt.Errorf("sampling rate must be in [0, 1], got %v", c.Telemetry.SamplingRate)
	}
	return nil
}

// LoadSeries reads the history from the configured source.
func (c *Config) LoadSeries(ctx context.Context) (*series.Series, error) {
	switch c.Data.Source {
	case SourcePostgres:
		src, err := series.NewPostgresSource(ctx, c.Data.PostgresURL, c.Data.Table)
		if err != nil {
			return nil, err
		}
		defer src.Close()
		return src.Load(ctx)
	case SourceCSV:
		return series.NewCSVSource(c.Data.Path).Load(ctx)
	}
	return nil, fmt.Errorf("unknown data source %q", c.Data.Source)
}

// TrainingConfig returns the training pipeline configuration.
func (c *Config) TrainingConfig() *training.Config {
	return &training.Config{
		TrainRatio:   c.Training.TrainRatio,
		Models:       c.Training.Models,
		DefaultModel: c.Training.DefaultModel,
		Params: models.Params{
			Trees:        c.Training.Trees,
			MaxDepth:     c.Training.MaxDepth,
			LearningRate: c.Training.LearningRate,
			Seed:         c.Training.Seed,
		},
		Features: features.DefaultConfig(),
	}
}

// ForecastConfig returns the forecaster configuration.
func (c *Config) ForecastConfig() forecast.Config {
	fc := forecast.DefaultConfig()
	fc.K = c.Similarity.K
	fc.Weights = c.Similarity.Weights
	fc.SafetyMargin = c.Inference.SafetyMargin
	fc.TrendYears = c.Inference.TrendYears
	return fc
}

// StoreConfig returns the review store configuration.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Backend:       c.Store.Backend,
		Path:          c.Store.Path,
		Limit:         c.Store.Limit,
		RedisAddr:     c.Store.RedisAddr,
		RedisPassword: c.Store.RedisPassword,
		RedisDB:       c.Store.RedisDB,
		PostgresURL:   c.Store.PostgresURL,
		TTL:           c.Store.TTL.Duration,
	}
}

// OtelConfig returns the tracing configuration.
func (c *Config) OtelConfig(version string) *otel.Config {
	oc := otel.DefaultConfig(c.Telemetry.ServiceName)
	if version != "" {
		oc.ServiceVersion = version
	}
	oc.Environment = c.Telemetry.Environment
	oc.CollectorEndpoint = c.Telemetry.Endpoint
	oc.CollectorInsecure = c.Telemetry.Insecure
	oc.SamplingRate = c.Telemetry.SamplingRate
	return oc
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
