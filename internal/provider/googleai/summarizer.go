// Package googleai implements the summarization capability on Genkit with
// the Google AI plugin.
package googleai

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/dossier-ai/dossier/internal/provider"
)

// summaryInputLimit caps how much document text goes into the prompt. A few
// opening pages are enough for a one-paragraph summary.
const summaryInputLimit = 6000

const summaryPrompt = `Summarize the following document in 2-3 sentences.
State what the document is and what it covers. Respond with the summary only.

Document: %s

%s`

// Summarizer produces document summaries through Genkit.
type Summarizer struct {
	g      *genkit.Genkit
	model  string
	hasKey bool
}

// NewSummarizer wraps an initialized Genkit instance. hasKey reports whether
// a Gemini credential is configured; without one Summarize fails fast with
// ErrNoCredential instead of a transport error.
func NewSummarizer(g *genkit.Genkit, model string, hasKey bool) *Summarizer {
	return &Summarizer{g: g, model: model, hasKey: hasKey}
}

// Summarize returns a short summary of the document text.
func (s *Summarizer) Summarize(ctx context.Context, filename, text string) (string, error) {
	if !s.hasKey {
		return "", fmt.Errorf("%w: Gemini API key", provider.ErrNoCredential)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if len(text) > summaryInputLimit {
		cut := summaryInputLimit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	resp, err := genkit.Generate(ctx, s.g,
		ai.WithModelName(s.model),
		ai.WithPrompt(summaryPrompt, filename, text),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", provider.ErrProviderCall, err)
	}
	return strings.TrimSpace(resp.Text()), nil
}
