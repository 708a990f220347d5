// Package cohere implements the re-ranking capability against the Cohere
// rerank API.
package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dossier-ai/dossier/internal/provider"
)

const (
	defaultBaseURL = "https://api.cohere.com/v2"
	defaultTimeout = 30 * time.Second
)

// Reranker calls the Cohere v2 rerank endpoint.
type Reranker struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewReranker creates a Cohere reranker client.
func NewReranker(apiKey string) *Reranker {
	return &Reranker{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank returns at most topN passages ordered by descending model relevance.
// Returned indices refer to positions in the passages slice.
func (r *Reranker) Rerank(ctx context.Context, model, query string, passages []string, topN int) ([]provider.Ranked, error) {
	if r.apiKey == "" {
		return nil, fmt.Errorf("%w: Cohere API key", provider.ErrNoCredential)
	}
	if len(passages) == 0 || topN < 1 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{
		Model:     model,
		Query:     query,
		Documents: passages,
		TopN:      topN,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrProviderCall, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: rerank API returned %d: %s",
			provider.ErrProviderCall, resp.StatusCode, detail)
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrMalformedResponse, err)
	}

	ranked := make([]provider.Ranked, 0, len(parsed.Results))
	for _, res := range parsed.Results {
		if res.Index < 0 || res.Index >= len(passages) {
			return nil, fmt.Errorf("%w: rerank index %d out of range",
				provider.ErrMalformedResponse, res.Index)
		}
		ranked = append(ranked, provider.Ranked{Index: res.Index, Score: res.RelevanceScore})
	}
	return ranked, nil
}
