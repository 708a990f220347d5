package settings

import (
	"errors"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	got, err := parse(map[string]string{})
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	if got.RerankEnabled {
		t.Error("rerank should default to disabled")
	}
	if got.RerankCandidatePool != 20 || got.RerankTopN != 6 {
		t.Errorf("unexpected rerank defaults: pool=%d top_n=%d",
			got.RerankCandidatePool, got.RerankTopN)
	}
	if got.EmbeddingProvider != "openai" {
		t.Errorf("EmbeddingProvider = %q, want openai", got.EmbeddingProvider)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]string
		wantErr bool
		check   func(t *testing.T, r Retrieval)
	}{
		{
			name: "full valid snapshot",
			raw: map[string]string{
				KeyRerankEnabled:       "true",
				KeyRerankCandidatePool: "30",
				KeyRerankTopN:          "8",
				KeyRerankModel:         "rerank-v3.5",
				KeyEmbeddingProvider:   "azure",
				KeyEmbeddingDeployment: "embed-prod",
			},
			check: func(t *testing.T, r Retrieval) {
				if !r.RerankEnabled || r.RerankCandidatePool != 30 || r.RerankTopN != 8 {
					t.Errorf("unexpected rerank settings: %+v", r)
				}
				if r.EmbeddingProvider != "azure" || r.EmbeddingDeployment != "embed-prod" {
					t.Errorf("unexpected embedding settings: %+v", r)
				}
			},
		},
		{
			name:    "unparsable boolean",
			raw:     map[string]string{KeyRerankEnabled: "yes please"},
			wantErr: true,
		},
		{
			name:    "zero candidate pool",
			raw:     map[string]string{KeyRerankCandidatePool: "0"},
			wantErr: true,
		},
		{
			name:    "negative top n",
			raw:     map[string]string{KeyRerankTopN: "-1"},
			wantErr: true,
		},
		{
			name: "top n above candidate pool",
			raw: map[string]string{
				KeyRerankCandidatePool: "5",
				KeyRerankTopN:          "10",
			},
			wantErr: true,
		},
		{
			name:    "unknown embedding provider",
			raw:     map[string]string{KeyEmbeddingProvider: "cohere"},
			wantErr: true,
		},
		{
			name: "empty model falls back to default",
			raw:  map[string]string{KeyRerankModel: ""},
			check: func(t *testing.T, r Retrieval) {
				if r.RerankModel != "rerank-v3.5" {
					t.Errorf("RerankModel = %q, want default", r.RerankModel)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parse(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidValue) {
					t.Fatalf("parse() error = %v, want ErrInvalidValue", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse() error = %v", err)
			}
			if tt.check != nil {
				tt.check(t, got)
			}
		})
	}
}

func TestKnownKey(t *testing.T) {
	for _, key := range []string{
		KeyRerankEnabled, KeyRerankCandidatePool, KeyRerankTopN,
		KeyRerankModel, KeyEmbeddingProvider, KeyEmbeddingDeployment,
	} {
		if !knownKey(key) {
			t.Errorf("knownKey(%q) = false", key)
		}
	}
	if knownKey("chunk_size") {
		t.Error("chunk_size should not be a runtime setting")
	}
}
