// Package mistral implements the OCR capability against the Mistral OCR API.
package mistral

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dossier-ai/dossier/internal/provider"
)

const (
	defaultBaseURL = "https://api.mistral.ai/v1"
	defaultModel   = "mistral-ocr-latest"

	// OCR of a large scanned PDF is slow; this is deliberately generous.
	defaultTimeout = 120 * time.Second
)

// OCR calls the Mistral OCR endpoint. Documents are sent inline as base64
// data URLs, so there is no upload step to clean up after.
type OCR struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewOCR creates a Mistral OCR client.
func NewOCR(apiKey string) *OCR {
	return &OCR{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

type ocrDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type ocrRequest struct {
	Model    string      `json:"model"`
	Document ocrDocument `json:"document"`
}

type ocrResponse struct {
	Pages []struct {
		Markdown string `json:"markdown"`
	} `json:"pages"`
}

// ExtractPages runs OCR over the given document and returns each page's
// recognized text as markdown. Blank pages come back as empty strings so the
// slice position still maps to the page number.
func (o *OCR) ExtractPages(ctx context.Context, mimeType string, data []byte) ([]string, error) {
	if o.apiKey == "" {
		return nil, fmt.Errorf("%w: Mistral API key", provider.ErrNoCredential)
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
	reqBody := ocrRequest{Model: o.model}
	if strings.HasPrefix(mimeType, "image/") {
		reqBody.Document = ocrDocument{Type: "image_url", ImageURL: dataURL}
	} else {
		reqBody.Document = ocrDocument{Type: "document_url", DocumentURL: dataURL}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encoding OCR request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/ocr", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building OCR request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrProviderCall, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: OCR API returned %d: %s",
			provider.ErrProviderCall, resp.StatusCode, detail)
	}

	var parsed ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrMalformedResponse, err)
	}

	pages := make([]string, len(parsed.Pages))
	for i, p := range parsed.Pages {
		pages[i] = strings.TrimSpace(p.Markdown)
	}
	return pages, nil
}
