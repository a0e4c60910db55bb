// Package config loads the pipeline configuration from YAML with defaults,
// validation and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"social-volatility/internal/domain"
	"social-volatility/internal/features"
	"social-volatility/internal/normalization"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendDatabase = "database" // postgres for raw series, clickhouse for derived rows
)

// Config is the full pipeline configuration.
type Config struct {
	DataDir     string   `yaml:"data_dir" default:"data" validate:"required"`
	OutputDir   string   `yaml:"output_dir" default:"output" validate:"required"`
	Assets      []string `yaml:"assets" default:"[\"BTC\",\"ETH\",\"DOGE\",\"SOL\",\"AVAX\"]" validate:"min=1,dive,required"`
	Ranges      []string `yaml:"ranges" default:"[\"2022_03_05-2022_03_11\",\"2022_03_28-2022_04_04\"]" validate:"min=1"`
	Concurrency int      `yaml:"concurrency" default:"2" validate:"min=1,max=16"`
	MinSamples  int      `yaml:"min_samples" default:"10" validate:"min=1"`

	Loader     LoaderConfig     `yaml:"loader"`
	Alignment  AlignmentConfig  `yaml:"alignment"`
	Volatility VolatilityConfig `yaml:"volatility"`
	Features   FeaturesConfig   `yaml:"features"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Model      ModelConfig      `yaml:"model"`
	Storage    StorageConfig    `yaml:"storage"`
	Cache      CacheConfig      `yaml:"cache"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type LoaderConfig struct {
	MaxParseFailureRate float64 `yaml:"max_parse_failure_rate" default:"0.01" validate:"lte=1"`
	// SharedCorpus, when set, is split per asset by keyword instead of
	// reading one corpus file per asset.
	SharedCorpus string `yaml:"shared_corpus"`
}

type AlignmentConfig struct {
	Grain    string `yaml:"grain" default:"hour" validate:"oneof=minute hour"`
	Rounding string `yaml:"rounding" default:"floor" validate:"oneof=floor nearest"`
}

type VolatilityConfig struct {
	Window int `yaml:"window" default:"2" validate:"min=2"`
}

type FeaturesConfig struct {
	Lookback  int           `yaml:"lookback" default:"1" validate:"min=1"`
	Lookahead int           `yaml:"lookahead" default:"23" validate:"min=1"`
	Step      time.Duration `yaml:"step" default:"1h"`
	Policy    string        `yaml:"policy" default:"calendar" validate:"oneof=calendar row"`
	Target    string        `yaml:"target" default:"absolute" validate:"oneof=absolute relative"`
}

type EvaluationConfig struct {
	TrainRange string `yaml:"train_range" default:"2022_03_05-2022_03_11" validate:"required"`
	TestRange  string `yaml:"test_range" default:"2022_03_28-2022_04_04" validate:"required"`
	FeatureSet string `yaml:"feature_set" default:"sentiment_price" validate:"oneof=sentiment_price sentiment_only with_lookback"`
	// Baseline also scores the model on price-only windows.
	Baseline bool `yaml:"baseline"`
}

type ModelConfig struct {
	Kind    string        `yaml:"kind" default:"linear" validate:"oneof=linear mean http"`
	Ridge   float64       `yaml:"ridge" default:"0.000001" validate:"gte=0"`
	URL     string        `yaml:"url" validate:"omitempty,url"`
	Timeout time.Duration `yaml:"timeout" default:"30s"`
	Retries int           `yaml:"retries" default:"2" validate:"min=0,max=10"`
}

type StorageConfig struct {
	Backend       string `yaml:"backend" default:"memory" validate:"oneof=memory database"`
	PostgresDSN   string `yaml:"postgres_dsn" validate:"required_if=Backend database"`
	ClickHouseDSN string `yaml:"clickhouse_dsn" validate:"required_if=Backend database"`
	Migrate       bool   `yaml:"migrate"`
}

// CacheConfig enables the Redis prediction cache when RedisAddr is set.
type CacheConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db" default:"0" validate:"min=0"`
	TTL           time.Duration `yaml:"ttl" default:"24h"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr" default:":8080" validate:"required"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"30s"`
	// Interval between scheduled job runs. Zero runs only on demand.
	Interval time.Duration `yaml:"interval" default:"1h" validate:"min=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"console" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stderr"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

var validate = validator.New()

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SV_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("SV_POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("SV_CLICKHOUSE_DSN"); v != "" {
		c.Storage.ClickHouseDSN = v
	}
	if v := os.Getenv("SV_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SV_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("SV_ASSETS"); v != "" {
		c.Assets = strings.Split(v, ",")
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", e.Namespace(), e.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if c.Features.Step <= 0 {
		return errors.New("features.step must be positive")
	}
	if c.Model.Kind == "http" && c.Model.URL == "" {
		return errors.New("model.url is required for the http model")
	}
	if c.Alignment.Rounding == "nearest" && c.Alignment.Grain != "hour" {
		return errors.New("alignment.rounding nearest requires alignment.grain hour")
	}
	if _, err := c.AssetList(); err != nil {
		return err
	}
	if _, err := c.DateRanges(); err != nil {
		return err
	}
	if _, _, err := c.EvaluationRanges(); err != nil {
		return err
	}
	return c.FeatureConfig().Validate()
}

// AssetList parses the configured assets.
func (c *Config) AssetList() ([]domain.Asset, error) {
	out := make([]domain.Asset, 0, len(c.Assets))
	seen := make(map[domain.Asset]bool, len(c.Assets))
	for _, s := range c.Assets {
		a, err := domain.ParseAsset(s)
		if err != nil {
			return nil, fmt.Errorf("assets: %w", err)
		}
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out, nil
}

// DateRanges parses the configured collection ranges.
func (c *Config) DateRanges() ([]domain.DateRange, error) {
	out := make([]domain.DateRange, 0, len(c.Ranges))
	for _, s := range c.Ranges {
		r, err := domain.ParseDateRange(s)
		if err != nil {
			return nil, fmt.Errorf("ranges: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// AlignmentPolicy returns the timestamp policy for alignment.
func (c *Config) AlignmentPolicy() normalization.Policy {
	return normalization.Policy{
		Grain:    normalization.Grain(c.Alignment.Grain),
		Rounding: normalization.Rounding(c.Alignment.Rounding),
	}
}

// FeatureConfig returns the window builder configuration.
func (c *Config) FeatureConfig() features.Config {
	return features.Config{
		Lookback:  c.Features.Lookback,
		Lookahead: c.Features.Lookahead,
		Step:      c.Features.Step,
		Policy:    features.StepPolicy(c.Features.Policy),
		Target:    features.Target(c.Features.Target),
	}
}

// EvaluationRanges parses the train and test ranges.
func (c *Config) EvaluationRanges() (train, test domain.DateRange, err error) {
	if train, err = domain.ParseDateRange(c.Evaluation.TrainRange); err != nil {
		return train, test, fmt.Errorf("evaluation.train_range: %w", err)
	}
	if test, err = domain.ParseDateRange(c.Evaluation.TestRange); err != nil {
		return train, test, fmt.Errorf("evaluation.test_range: %w", err)
	}
	return train, test, nil
}
