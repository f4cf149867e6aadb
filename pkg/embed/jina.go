package embed

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Jina embedding models.
const (
	// ModelJinaV3 is the multilingual v3 model. Matryoshka dimensions
	// 32-1024, default 1024.
	ModelJinaV3 = "jina-embeddings-v3"

	// ModelJinaV2BaseEN is the English v2 base model (768 dims, fixed).
	ModelJinaV2BaseEN = "jina-embeddings-v2-base-en"
)

const (
	jinaBaseURL      = "https://api.jina.ai/v1"
	jinaMaxBatch     = 2048
	jinaDefaultDim   = 1024
	jinaDefaultModel = ModelJinaV3
)

// Jina implements [Embedder] using Jina AI's OpenAI-compatible
// embedding API.
type Jina struct {
	client *openai.Client
	model  string
	dim    int
}

var _ Embedder = (*Jina)(nil)

// NewJina creates a Jina embedder.
//
// The apiKey is required and can be obtained from:
// https://jina.ai/embeddings
func NewJina(apiKey string, opts ...Option) *Jina {
	cfg := config{
		model:      jinaDefaultModel,
		dim:        jinaDefaultDim,
		baseURL:    jinaBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(&cfg)
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(cfg.baseURL),
		option.WithHTTPClient(cfg.httpClient),
	)

	return &Jina{
		client: &client,
		model:  cfg.model,
		dim:    cfg.dim,
	}
}

// Embed returns the embedding for a single text.
func (j *Jina) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	vecs, err := j.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns embeddings for multiple texts.
func (j *Jina) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	result := make([][]float32, len(texts))
	for i := 0; i < len(texts); i += jinaMaxBatch {
		end := min(i+jinaMaxBatch, len(texts))
		batch := texts[i:end]

		vecs, err := embedCompat(ctx, j.client, j.model, j.dim, batch)
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", i, end, err)
		}
		copy(result[i:], vecs)
	}
	return result, nil
}

// Dimension returns the configured vector dimensionality.
func (j *Jina) Dimension() int {
	return j.dim
}

// Model returns the Jina model identifier (e.g., "jina-embeddings-v3").
func (j *Jina) Model() string {
	return j.model
}
