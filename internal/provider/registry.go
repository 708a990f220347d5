package provider

import (
	"errors"
	"fmt"
)

// ErrUnknownProvider indicates a runtime setting named an embedding provider
// this build does not implement.
var ErrUnknownProvider = errors.New("unknown embedding provider")

// Registry holds the constructed capability implementations and resolves the
// active embedder from runtime settings. Implementations are injected so the
// registry stays independent of any vendor package.
type Registry struct {
	// OpenAI is the OpenAI embedder, nil when not constructed.
	OpenAI Embedder

	// NewAzure builds an Azure embedder for a deployment name. The
	// deployment is a runtime setting, so construction is deferred.
	NewAzure func(deployment string) Embedder

	OCR        OCR
	Reranker   Reranker
	Summarizer Summarizer
}

// ActiveEmbedder resolves the embedder for the given provider selection.
func (r *Registry) ActiveEmbedder(providerName, deployment string) (Embedder, error) {
	switch providerName {
	case "openai":
		if r.OpenAI == nil {
			return nil, fmt.Errorf("%w: OpenAI embedder", ErrNoCredential)
		}
		return r.OpenAI, nil
	case "azure":
		if r.NewAzure == nil {
			return nil, fmt.Errorf("%w: Azure embedder", ErrNoCredential)
		}
		return r.NewAzure(deployment), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, providerName)
	}
}
