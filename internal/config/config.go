// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override, DATABASE_URL included)
//  2. Config file (~/.finsight/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: generation model, embedder model, temperature
//   - Research: loop bound, similarity threshold, top-k
//   - Chat: tool-round cap, history window
//   - Storage: PostgreSQL connection (see storage.go)
//
// Validation uses sentinel errors so callers can check with errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidThreshold indicates the similarity threshold is out of [0,1].
	ErrInvalidThreshold = errors.New("invalid similarity threshold")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid top k")

	// ErrInvalidResearchLoops indicates the research loop bound is invalid.
	ErrInvalidResearchLoops = errors.New("invalid max research loops")

	// ErrInvalidToolRounds indicates the chat tool-round cap is invalid.
	ErrInvalidToolRounds = errors.New("invalid max tool rounds")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

const (
	// DefaultModelName is the default generation model.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 supports truncation to 768 dimensions, which is
	// what the document_chunks.embedding column is declared as.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultMaxResearchLoops bounds the research refinement loop.
	DefaultMaxResearchLoops = 3

	// DefaultMaxToolRounds bounds the chat agent/tool ping-pong per turn.
	DefaultMaxToolRounds = 5

	// DefaultSimilarityThreshold is the minimum similarity for retrieval.
	DefaultSimilarityThreshold = 0.6

	// DefaultTopK is the default number of chunks retrieved per query.
	DefaultTopK = 5
)

// Config stores application configuration.
type Config struct {
	// AI model configuration
	ModelName     string  `mapstructure:"model_name"`
	EmbedderModel string  `mapstructure:"embedder_model"`
	Temperature   float32 `mapstructure:"temperature"`
	GeminiAPIKey  string  `mapstructure:"gemini_api_key"` // SENSITIVE: never logged

	// Research workflow configuration
	MaxResearchLoops    int     `mapstructure:"max_research_loops"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	TopK                int     `mapstructure:"top_k"`

	// Chat workflow configuration
	MaxToolRounds      int `mapstructure:"max_tool_rounds"`
	HistoryWindow      int `mapstructure:"history_window"`       // turns passed to the model
	MaxHistoryMessages int `mapstructure:"max_history_messages"` // messages loaded from storage

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE: never logged
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".finsight")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings when set.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("temperature", 0.1)

	viper.SetDefault("max_research_loops", DefaultMaxResearchLoops)
	viper.SetDefault("similarity_threshold", DefaultSimilarityThreshold)
	viper.SetDefault("top_k", DefaultTopK)

	viper.SetDefault("max_tool_rounds", DefaultMaxToolRounds)
	viper.SetDefault("history_window", 6)
	viper.SetDefault("max_history_messages", 10)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "finsight")
	viper.SetDefault("postgres_password", "finsight_dev_password")
	viper.SetDefault("postgres_db_name", "finsight")
	viper.SetDefault("postgres_ssl_mode", "disable")
}

// bindEnvVariables binds environment variables explicitly.
// Secrets are bound only here so they never end up in config files.
func bindEnvVariables() {
	viper.SetEnvPrefix("FINSIGHT")
	viper.AutomaticEnv()

	// Explicit bindings for secrets and common overrides.
	_ = viper.BindEnv("gemini_api_key", "FINSIGHT_GEMINI_API_KEY", "GEMINI_API_KEY")
	_ = viper.BindEnv("postgres_password", "FINSIGHT_POSTGRES_PASSWORD")
	_ = viper.BindEnv("model_name", "FINSIGHT_MODEL_NAME")
}
