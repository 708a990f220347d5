package provider

import (
	"context"
	"errors"
	"testing"
)

type stubEmbedder struct{ id string }

func (s stubEmbedder) Embed(context.Context, []string) ([][]float32, error) { return nil, nil }
func (s stubEmbedder) ModelID() string                                      { return s.id }

func TestActiveEmbedder(t *testing.T) {
	reg := &Registry{
		OpenAI: stubEmbedder{id: "openai:test"},
		NewAzure: func(deployment string) Embedder {
			return stubEmbedder{id: "azure:" + deployment}
		},
	}

	e, err := reg.ActiveEmbedder("openai", "")
	if err != nil {
		t.Fatalf("ActiveEmbedder(openai) error = %v", err)
	}
	if e.ModelID() != "openai:test" {
		t.Errorf("ModelID() = %q", e.ModelID())
	}

	e, err = reg.ActiveEmbedder("azure", "embed-prod")
	if err != nil {
		t.Fatalf("ActiveEmbedder(azure) error = %v", err)
	}
	if e.ModelID() != "azure:embed-prod" {
		t.Errorf("ModelID() = %q", e.ModelID())
	}
}

func TestActiveEmbedderUnknownProvider(t *testing.T) {
	reg := &Registry{}
	if _, err := reg.ActiveEmbedder("anthropic", ""); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("error = %v, want ErrUnknownProvider", err)
	}
}

func TestActiveEmbedderNotConstructed(t *testing.T) {
	reg := &Registry{}
	if _, err := reg.ActiveEmbedder("openai", ""); !errors.Is(err, ErrNoCredential) {
		t.Errorf("error = %v, want ErrNoCredential", err)
	}
}
