// Package azure implements the embedding capability against an Azure OpenAI
// deployment. The request and response shapes match the OpenAI API; routing
// and authentication differ: deployment-scoped URLs and an api-key header.
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dossier-ai/dossier/internal/provider"
)

const (
	defaultTimeout = 60 * time.Second
	maxBatchSize   = 128
)

// Embedder calls the embeddings endpoint of one Azure OpenAI deployment.
type Embedder struct {
	apiKey     string
	endpoint   string
	deployment string
	apiVersion string
	client     *http.Client
}

// NewEmbedder creates an Azure OpenAI embedder. The endpoint is the resource
// base URL (https://<resource>.openai.azure.com); deployment names the model
// deployment to route to.
func NewEmbedder(apiKey, endpoint, deployment, apiVersion string) *Embedder {
	return &Embedder{
		apiKey:     apiKey,
		endpoint:   strings.TrimRight(endpoint, "/"),
		deployment: deployment,
		apiVersion: apiVersion,
		client:     &http.Client{Timeout: defaultTimeout},
	}
}

// ModelID identifies the embedding space by deployment, not by model name:
// two deployments of the same model on different resources are still distinct
// spaces from the store's point of view.
func (e *Embedder) ModelID() string {
	return "azure:" + e.deployment
}

type embeddingRequest struct {
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one vector per input text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.apiKey == "" || e.endpoint == "" {
		return nil, fmt.Errorf("%w: Azure OpenAI key and endpoint", provider.ErrNoCredential)
	}
	if e.deployment == "" {
		return nil, fmt.Errorf("%w: Azure OpenAI embedding deployment", provider.ErrNoCredential)
	}
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := min(start+maxBatchSize, len(texts))
		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Input: texts})
	if err != nil {
		return nil, fmt.Errorf("encoding embeddings request: %w", err)
	}

	url := fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s",
		e.endpoint, e.deployment, e.apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrProviderCall, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: Azure embeddings API returned %d: %s",
			provider.ErrProviderCall, resp.StatusCode, detail)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrMalformedResponse, err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("%w: %d embeddings for %d inputs",
			provider.ErrMalformedResponse, len(parsed.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("%w: embedding index %d out of range",
				provider.ErrMalformedResponse, d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
