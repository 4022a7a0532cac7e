// Package reranker re-orders retrieved chunks by lexical overlap with the
// question. It only permutes the retrieved set; it never adds or drops hits.
package reranker

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/medrag/internal/vectorstore"
)

// Reranker re-orders hits for a query.
type Reranker interface {
	Rerank(ctx context.Context, query string, hits []vectorstore.Hit) ([]vectorstore.Hit, error)
}

// LexicalReranker combines the retrieval similarity with the fraction of
// query terms that appear in each chunk.
type LexicalReranker struct {
	// SimilarityWeight is the weight of the cosine score; the overlap gets
	// the remainder. Default 0.5.
	SimilarityWeight float32
}

// NewLexicalReranker creates a reranker with equal weights.
func NewLexicalReranker() *LexicalReranker {
	return &LexicalReranker{SimilarityWeight: 0.5}
}

// Rerank returns hits sorted by the combined score. Hit scores keep the
// original similarity. With no usable query terms the input order is kept.
func (r *LexicalReranker) Rerank(ctx context.Context, query string, hits []vectorstore.Hit) ([]vectorstore.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]vectorstore.Hit, len(hits))
	copy(out, hits)

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 || len(out) < 2 {
		return out, nil
	}

	w := r.SimilarityWeight
	if w <= 0 || w > 1 {
		w = 0.5
	}

	combined := make(map[int]float32, len(out))
	for _, h := range out {
		overlap := termOverlap(queryTokens, tokenize(h.Chunk.Text))
		combined[h.Chunk.Index] = w*h.Score + (1-w)*overlap
	}

	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := combined[out[i].Chunk.Index], combined[out[j].Chunk.Index]
		if ci != cj {
			return ci > cj
		}
		return out[i].Chunk.Index < out[j].Chunk.Index
	})
	return out, nil
}

// tokenize splits text into lowercase terms longer than two characters,
// filtering out common stopwords.
func tokenize(text string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	filtered := tokens[:0]
	for _, tok := range tokens {
		if len(tok) > 2 && !stopwords[tok] {
			filtered = append(filtered, tok)
		}
	}
	return filtered
}

var stopwords = map[string]bool{
	"the": true, "and": true, "but": true, "for": true, "with": true,
	"from": true, "was": true, "are": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "does": true, "did": true,
	"will": true, "would": true, "could": true, "should": true, "may": true,
	"might": true, "can": true, "this": true, "that": true, "these": true,
	"those": true, "you": true, "she": true, "they": true, "what": true,
	"which": true, "who": true, "when": true, "where": true, "why": true,
	"how": true, "patient": true,
}

// termOverlap returns the fraction of unique query terms found in the chunk.
func termOverlap(queryTokens, docTokens []string) float32 {
	docSet := make(map[string]bool, len(docTokens))
	for _, tok := range docTokens {
		docSet[tok] = true
	}

	unique := make(map[string]bool, len(queryTokens))
	matches := 0
	for _, tok := range queryTokens {
		if unique[tok] {
			continue
		}
		unique[tok] = true
		if docSet[tok] {
			matches++
		}
	}
	return float32(matches) / float32(len(unique))
}
