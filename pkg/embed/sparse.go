package embed

import (
	"hash/fnv"
	"sort"
	"strings"
	"unicode"
)

// SparseVector is a sparse term-weight representation of a text.
// Indices are stable hashes of tokens; Values are the corresponding weights.
// Indices are sorted ascending and contain no duplicates.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// BM25 parameters. AvgLen approximates the average document length in
// tokens; exact corpus statistics are not required for stable ranking.
const (
	bm25K1     = 1.2
	bm25B      = 0.75
	bm25AvgLen = 256.0
)

// minTokenLen drops single-character fragments during tokenization.
const minTokenLen = 2

// SparseEncoder converts text into BM25-weighted sparse vectors.
//
// Document vectors carry term-frequency weights normalized by document
// length; query vectors carry unit weights. Inverse document frequency is
// applied by the index at query time (the remote index does this
// server-side, the local index computes it from its posting lists), so the
// encoder itself is stateless and needs no corpus statistics.
type SparseEncoder struct{}

// NewSparseEncoder creates a sparse encoder with standard BM25 parameters.
func NewSparseEncoder() *SparseEncoder {
	return &SparseEncoder{}
}

// Encode returns the document-side sparse vector for text.
func (e *SparseEncoder) Encode(text string) SparseVector {
	terms := e.Terms(text)
	if len(terms) == 0 {
		return SparseVector{}
	}

	docLen := 0
	for _, tf := range terms {
		docLen += tf
	}
	norm := bm25K1 * (1 - bm25B + bm25B*float64(docLen)/bm25AvgLen)

	return buildSparse(terms, func(tf int) float32 {
		f := float64(tf)
		return float32(f * (bm25K1 + 1) / (f + norm))
	})
}

// EncodeQuery returns the query-side sparse vector for text. Each distinct
// token gets weight 1; the index supplies IDF and document weights.
func (e *SparseEncoder) EncodeQuery(text string) SparseVector {
	terms := e.Terms(text)
	if len(terms) == 0 {
		return SparseVector{}
	}
	return buildSparse(terms, func(int) float32 { return 1 })
}

// Terms tokenizes text and returns term frequencies.
func (e *SparseEncoder) Terms(text string) map[string]int {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	terms := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		terms[tok]++
	}
	return terms
}

// buildSparse maps term frequencies through weight and assembles a sorted
// SparseVector. Hash collisions between distinct tokens are resolved by
// keeping the larger weight.
func buildSparse(terms map[string]int, weight func(tf int) float32) SparseVector {
	byIndex := make(map[uint32]float32, len(terms))
	for term, tf := range terms {
		idx := TokenHash(term)
		w := weight(tf)
		if old, ok := byIndex[idx]; !ok || w > old {
			byIndex[idx] = w
		}
	}

	indices := make([]uint32, 0, len(byIndex))
	for idx := range byIndex {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, len(indices))
	for i, idx := range indices {
		values[i] = byIndex[idx]
	}
	return SparseVector{Indices: indices, Values: values}
}

// Tokenize splits text into lowercase word tokens: maximal runs of letters
// and digits, dropping tokens shorter than two characters. This matches the
// word tokenizer the remote index uses for its full-text payload index, so
// local and remote keyword matching agree.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= minTokenLen {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// TokenHash returns the stable sparse index for a token (FNV-1a, 32-bit).
func TokenHash(token string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(token))
	return h.Sum32()
}
