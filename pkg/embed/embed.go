// Package embed provides text embedding interfaces and implementations.
//
// An [Embedder] converts text into dense vector representations suitable
// for semantic search. A [SparseEncoder] converts text into sparse
// term-weight vectors for keyword (BM25) matching; dense and sparse signals
// are fused by the store layer at query time.
//
// # Implementations
//
// Three remote dense embedders are provided, all speaking the
// OpenAI-compatible HTTP API:
//
//   - [Jina] — Jina AI jina-embeddings-v3 (the default for memkit)
//   - [OpenAI] — OpenAI text-embedding-3-small / text-embedding-3-large
//   - [DashScope] — Aliyun DashScope text-embedding-v4 (and v1/v2/v3)
//
// The sparse encoder is purely local and needs no API key.
//
// # Quick Start
//
//	e := embed.NewOpenAI("sk-xxx", embed.WithDimension(1024))
//	vec, err := e.Embed(ctx, "hello world")
//
//	enc := embed.NewSparseEncoder()
//	sv := enc.Encode("prefers tabs over spaces")
package embed

import (
	"context"
	"errors"
)

// Embedder converts text into dense float32 vectors.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embedding vectors for multiple texts.
	// Implementations may split large batches into smaller API calls
	// transparently.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimensionality of the output vectors.
	Dimension() int
}

// Common errors.
var (
	// ErrEmptyInput is returned when the input text is empty.
	ErrEmptyInput = errors.New("embed: empty input")
)
