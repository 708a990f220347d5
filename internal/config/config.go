// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.dossier/config.yaml or ./config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Storage: PostgreSQL connection (see storage.go)
//   - Providers: API credentials and endpoints for embedding/OCR/rerank/summary
//     providers (see providers.go)
//   - Retrieval: chunking and search tuning defaults
//   - Server: HTTP listen address, CORS, upload limits
//   - Observability: Datadog APM tracing
//
// Security: sensitive data (passwords, API keys) is never logged; Config
// masks sensitive fields in MarshalJSON.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
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

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidChunkSize indicates the chunk size is out of range.
	ErrInvalidChunkSize = errors.New("invalid chunk size")

	// ErrInvalidChunkOverlap indicates the chunk overlap is out of range.
	ErrInvalidChunkOverlap = errors.New("invalid chunk overlap")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top_k")

	// ErrInvalidSimilarityThreshold indicates the similarity threshold is out of range.
	ErrInvalidSimilarityThreshold = errors.New("invalid similarity threshold")

	// ErrInvalidMaxUploadSize indicates the upload size limit is out of range.
	ErrInvalidMaxUploadSize = errors.New("invalid max upload size")

	// ErrInvalidEmbeddingProvider indicates the embedding provider is not supported.
	ErrInvalidEmbeddingProvider = errors.New("invalid embedding provider")

	// ErrMissingAzureEndpoint indicates the Azure provider is selected without an endpoint.
	ErrMissingAzureEndpoint = errors.New("missing Azure OpenAI endpoint")
)

// Embedding provider identifiers used in Config.Providers.EmbeddingProvider.
const (
	EmbeddingProviderOpenAI = "openai"
	EmbeddingProviderAzure  = "azure"
)

const (
	// DefaultEmbeddingModel is the default embedding model identifier.
	// text-embedding-3-small outputs 1536 dimensions; the pgvector schema in
	// db/migrations matches this (see document.VectorDimension).
	DefaultEmbeddingModel = "text-embedding-3-small"

	// DefaultChunkSize is the default maximum chunk size in characters.
	DefaultChunkSize = 1500

	// DefaultChunkOverlap is the default overlap between adjacent chunks.
	DefaultChunkOverlap = 200

	// DefaultTopK is the default result budget for retrieval.
	DefaultTopK = 5

	// DefaultSimilarityThreshold is the minimum cosine similarity for
	// vector search candidates.
	DefaultSimilarityThreshold = 0.3

	// DefaultMaxUploadMB is the default upload size cap in megabytes.
	DefaultMaxUploadMB = 10
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// HTTP server configuration
	ListenAddr  string   `mapstructure:"listen_addr" json:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Provider credentials and endpoints (see providers.go)
	Providers ProvidersConfig `mapstructure:"providers" json:"providers"`

	// Retrieval tuning
	ChunkSize           int     `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap        int     `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	TopK                int     `mapstructure:"top_k" json:"top_k"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" json:"similarity_threshold"`
	MaxUploadMB         int     `mapstructure:"max_upload_mb" json:"max_upload_mb"`

	// Observability configuration (see observability package)
	Datadog DatadogConfig `mapstructure:"datadog" json:"datadog"`
}

// DatadogConfig holds Datadog APM tracing configuration.
type DatadogConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	AgentHost   string `mapstructure:"agent_host" json:"agent_host"`
	Environment string `mapstructure:"environment" json:"environment"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".dossier")

	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL has highest priority for PostgreSQL settings.
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
	// Server defaults
	viper.SetDefault("listen_addr", "127.0.0.1:8700")
	viper.SetDefault("cors_origins", []string{"http://localhost:5173"})
	viper.SetDefault("trust_proxy", false)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "dossier")
	viper.SetDefault("postgres_password", "dossier_dev_password")
	viper.SetDefault("postgres_db_name", "dossier")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Provider defaults
	viper.SetDefault("providers.embedding_provider", EmbeddingProviderOpenAI)
	viper.SetDefault("providers.embedding_model", DefaultEmbeddingModel)
	viper.SetDefault("providers.azure_api_version", "2025-04-01-preview")
	viper.SetDefault("providers.summary_model", "googleai/gemini-2.5-flash")
	viper.SetDefault("providers.rerank_model", "rerank-v3.5")

	// Retrieval defaults
	viper.SetDefault("chunk_size", DefaultChunkSize)
	viper.SetDefault("chunk_overlap", DefaultChunkOverlap)
	viper.SetDefault("top_k", DefaultTopK)
	viper.SetDefault("similarity_threshold", DefaultSimilarityThreshold)
	viper.SetDefault("max_upload_mb", DefaultMaxUploadMB)

	// Datadog defaults
	viper.SetDefault("datadog.enabled", false)
	viper.SetDefault("datadog.agent_host", "localhost:4318")
	viper.SetDefault("datadog.environment", "dev")
	viper.SetDefault("datadog.service_name", "dossier")
}

// bindEnvVariables binds sensitive environment variables explicitly.
// Secrets are only accepted from the environment, never from the config file,
// so they cannot end up committed in a YAML file.
func bindEnvVariables() {
	_ = viper.BindEnv("postgres_password", "DOSSIER_POSTGRES_PASSWORD")
	_ = viper.BindEnv("providers.openai_api_key", "OPENAI_API_KEY")
	_ = viper.BindEnv("providers.azure_api_key", "AZURE_OPENAI_API_KEY")
	_ = viper.BindEnv("providers.azure_endpoint", "AZURE_OPENAI_ENDPOINT")
	_ = viper.BindEnv("providers.mistral_api_key", "MISTRAL_API_KEY")
	_ = viper.BindEnv("providers.cohere_api_key", "COHERE_API_KEY")
	_ = viper.BindEnv("providers.gemini_api_key", "GEMINI_API_KEY")
}

// MarshalJSON masks sensitive fields when the configuration is serialized,
// e.g. for debug logging or a config-dump endpoint.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	masked := alias(*c)
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = "********"
	}
	masked.Providers = masked.Providers.masked()
	return json.Marshal(masked)
}
