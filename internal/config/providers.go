package config

// ProvidersConfig holds credentials and endpoints for the external
// capabilities the retrieval core depends on: embeddings (OpenAI or Azure
// OpenAI), OCR (Mistral), re-ranking (Cohere) and summary generation
// (Google AI via genkit).
//
// A missing key does not fail Validate(): providers are optional at startup
// and each call site surfaces a distinct not-configured error, which is the
// single most common operator misconfiguration and must be diagnosable from
// the document's error message alone.
type ProvidersConfig struct {
	// EmbeddingProvider selects the embedding implementation: "openai" or "azure".
	// It is the startup default; the runtime retrieval settings record can
	// override it without a restart.
	EmbeddingProvider string `mapstructure:"embedding_provider" json:"embedding_provider"`

	// EmbeddingModel is the embedding model identifier (OpenAI) or the
	// deployment name default (Azure).
	EmbeddingModel string `mapstructure:"embedding_model" json:"embedding_model"`

	OpenAIAPIKey string `mapstructure:"openai_api_key" json:"openai_api_key"` // SENSITIVE

	AzureAPIKey     string `mapstructure:"azure_api_key" json:"azure_api_key"` // SENSITIVE
	AzureEndpoint   string `mapstructure:"azure_endpoint" json:"azure_endpoint"`
	AzureAPIVersion string `mapstructure:"azure_api_version" json:"azure_api_version"`

	MistralAPIKey string `mapstructure:"mistral_api_key" json:"mistral_api_key"` // SENSITIVE

	CohereAPIKey string `mapstructure:"cohere_api_key" json:"cohere_api_key"` // SENSITIVE
	RerankModel  string `mapstructure:"rerank_model" json:"rerank_model"`

	GeminiAPIKey string `mapstructure:"gemini_api_key" json:"gemini_api_key"` // SENSITIVE
	SummaryModel string `mapstructure:"summary_model" json:"summary_model"`
}

// masked returns a copy with sensitive values replaced for serialization.
func (p ProvidersConfig) masked() ProvidersConfig {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	p.OpenAIAPIKey = mask(p.OpenAIAPIKey)
	p.AzureAPIKey = mask(p.AzureAPIKey)
	p.MistralAPIKey = mask(p.MistralAPIKey)
	p.CohereAPIKey = mask(p.CohereAPIKey)
	p.GeminiAPIKey = mask(p.GeminiAPIKey)
	return p
}
