package config

import (
	"fmt"
	"log/slog"
	"slices"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
//
// Provider API keys are deliberately NOT required here: the system must boot
// without them and surface a distinct not-configured error at call time, so
// an operator can tell a missing key apart from a failing provider.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// PostgreSQL configuration
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	validSSLModes := []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: must be one of %v, got %q", ErrInvalidPostgresSSLMode, validSSLModes, c.PostgresSSLMode)
	}

	if c.PostgresPassword == "dossier_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password for production deployments")
	}

	// Chunking configuration
	if c.ChunkSize < 100 || c.ChunkSize > 100_000 {
		return fmt.Errorf("%w: must be between 100 and 100000, got %d", ErrInvalidChunkSize, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: must be >= 0 and smaller than chunk_size (%d), got %d",
			ErrInvalidChunkOverlap, c.ChunkSize, c.ChunkOverlap)
	}

	// Retrieval configuration
	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: must be between 1 and 50, got %d", ErrInvalidTopK, c.TopK)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: must be between 0.0 and 1.0, got %.2f",
			ErrInvalidSimilarityThreshold, c.SimilarityThreshold)
	}
	if c.MaxUploadMB < 1 || c.MaxUploadMB > 500 {
		return fmt.Errorf("%w: must be between 1 and 500 MB, got %d", ErrInvalidMaxUploadSize, c.MaxUploadMB)
	}

	// Provider selection
	switch c.Providers.EmbeddingProvider {
	case EmbeddingProviderOpenAI:
	case EmbeddingProviderAzure:
		if c.Providers.AzureEndpoint == "" {
			return fmt.Errorf("%w: providers.azure_endpoint is required when embedding_provider is %q",
				ErrMissingAzureEndpoint, EmbeddingProviderAzure)
		}
	default:
		return fmt.Errorf("%w: must be %q or %q, got %q", ErrInvalidEmbeddingProvider,
			EmbeddingProviderOpenAI, EmbeddingProviderAzure, c.Providers.EmbeddingProvider)
	}

	return nil
}
