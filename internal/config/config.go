package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Prefilter PrefilterConfig `yaml:"prefilter" mapstructure:"prefilter"`
	Classify  ClassifyConfig  `yaml:"classify" mapstructure:"classify"`
	Confirm   ConfirmConfig   `yaml:"confirm" mapstructure:"confirm"`
	Ollama    OllamaConfig    `yaml:"ollama" mapstructure:"ollama"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PrefilterConfig configures the candidate predicate.
type PrefilterConfig struct {
	MinViews     int64  `yaml:"min_views" mapstructure:"min_views"`
	DenylistPath string `yaml:"denylist_path" mapstructure:"denylist_path"`
}

// ClassifyConfig configures the rule classifier.
type ClassifyConfig struct {
	TaxonomyPath string `yaml:"taxonomy_path" mapstructure:"taxonomy_path"`
}

// ConfirmConfig configures the LLM batch confirmer.
type ConfirmConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"` // "ollama" or "anthropic"
	BatchSize     int    `yaml:"batch_size" mapstructure:"batch_size"`
	Workers       int    `yaml:"workers" mapstructure:"workers"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts   int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryDelayMs  int    `yaml:"retry_delay_ms" mapstructure:"retry_delay_ms"`
	RequeuePolicy string `yaml:"requeue_policy" mapstructure:"requeue_policy"` // "manual" or "auto"
}

// OllamaConfig holds local inference service settings.
type OllamaConfig struct {
	Host        string  `yaml:"host" mapstructure:"host"`
	Model       string  `yaml:"model" mapstructure:"model"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	RPS         float64 `yaml:"rps" mapstructure:"rps"`
}

// AnthropicConfig holds Anthropic API settings for the alternate confirm provider.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// IngestConfig configures raw warehouse loading.
type IngestConfig struct {
	ChunkSize int `yaml:"chunk_size" mapstructure:"chunk_size"`
}

// ServerConfig configures the rankings API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PAGEVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("prefilter.min_views", 100)
	v.SetDefault("confirm.provider", "ollama")
	v.SetDefault("confirm.batch_size", 50)
	v.SetDefault("confirm.workers", 3)
	v.SetDefault("confirm.timeout_secs", 120)
	v.SetDefault("confirm.max_attempts", 3)
	v.SetDefault("confirm.retry_delay_ms", 5000)
	v.SetDefault("confirm.requeue_policy", "manual")
	v.SetDefault("ollama.host", "http://localhost:11434")
	v.SetDefault("ollama.model", "llama3.2:1b")
	v.SetDefault("ollama.temperature", 0.1)
	v.SetDefault("ollama.max_tokens", 4000)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("ingest.chunk_size", 100000)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
