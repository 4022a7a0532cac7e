package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultHashingDimension is the vector size of the hashing provider.
const DefaultHashingDimension = 1024

// stopwords carry no retrieval signal for clinical questions.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "have": {}, "in": {}, "is": {},
	"it": {}, "of": {}, "on": {}, "or": {}, "that": {}, "the": {}, "to": {},
	"was": {}, "were": {}, "what": {}, "which": {}, "with": {},
}

// HashingProvider is an offline embedder. Each lowercase word is hashed into
// one of Dimension buckets with a hash-derived sign, and the resulting
// term-frequency vector is L2-normalized. Text without any non-stopword
// token is hashed whole. Vectors are deterministic, so equal inputs always
// produce equal vectors.
type HashingProvider struct {
	dimension int
}

// NewHashingProvider creates a hashing embedder. A non-positive dimension
// uses DefaultHashingDimension.
func NewHashingProvider(dimension int) *HashingProvider {
	if dimension <= 0 {
		dimension = DefaultHashingDimension
	}
	return &HashingProvider{dimension: dimension}
}

// EmbedDocuments embeds each text independently.
func (p *HashingProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}
	return out, nil
}

// EmbedQuery embeds a query the same way as a document.
func (p *HashingProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.vector(text), nil
}

func (p *HashingProvider) vector(text string) []float32 {
	vec := make([]float32, p.dimension)
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		// Keep every vector non-zero so cosine similarity is defined.
		tokens = []string{strings.ToLower(strings.TrimSpace(text))}
	}
	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := sum % uint64(p.dimension)
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// Tokenize lowercases text and splits it into letter/digit runs, dropping
// stopwords.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Dimension returns the vector size.
func (p *HashingProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op.
func (p *HashingProvider) Close() error {
	return nil
}
