package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/medrag/internal/config"
	"github.com/fyrsmithlabs/medrag/internal/vectorstore"
)

// ErrInvalidRequest indicates a request parameter is out of range.
var ErrInvalidRequest = errors.New("invalid request")

const (
	// EmptyNoteAnswer is returned when a note yields no chunks.
	EmptyNoteAnswer = "No content found in the clinical note."
	// EmptyLiteratureAnswer is returned when PubMed has no abstracts.
	EmptyLiteratureAnswer = "No relevant literature found on PubMed."
)

// ClinicalRequest asks a question about one clinical note.
type ClinicalRequest struct {
	NotePath   string `json:"note_path"`
	Query      string `json:"query"`
	TopK       int    `json:"top_k,omitempty"`
	MaxTokens  int    `json:"max_tokens,omitempty"`
	Rerank     bool   `json:"rerank,omitempty"`
	Deidentify bool   `json:"deidentify,omitempty"`
}

// ApplyDefaults fills zero-valued parameters from configuration. Surfaces
// call it before Clinical; the pipeline itself never defaults.
func (r *ClinicalRequest) ApplyDefaults(cfg config.PipelineConfig) {
	if r.TopK == 0 {
		r.TopK = cfg.TopK
	}
	if r.MaxTokens == 0 {
		r.MaxTokens = cfg.MaxTokens
	}
	r.Rerank = r.Rerank || cfg.Rerank
	r.Deidentify = r.Deidentify || cfg.Deidentify
}

// Validate checks the request.
func (r ClinicalRequest) Validate() error {
	var errs []error
	if strings.TrimSpace(r.NotePath) == "" {
		errs = append(errs, fmt.Errorf("%w: note path is required", ErrInvalidRequest))
	}
	if strings.TrimSpace(r.Query) == "" {
		errs = append(errs, fmt.Errorf("%w: query is required", ErrInvalidRequest))
	}
	if r.TopK < 1 {
		errs = append(errs, fmt.Errorf("%w: top_k must be >= 1, got %d", ErrInvalidRequest, r.TopK))
	}
	if r.MaxTokens < 1 {
		errs = append(errs, fmt.Errorf("%w: max_tokens must be >= 1, got %d", ErrInvalidRequest, r.MaxTokens))
	}
	return errors.Join(errs...)
}

// LiteratureRequest asks a question answered from PubMed abstracts.
type LiteratureRequest struct {
	Query      string `json:"query"`
	TopK       int    `json:"top_k,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
	// Email overrides the configured Entrez contact address.
	Email  string `json:"email,omitempty"`
	Rerank bool   `json:"rerank,omitempty"`
}

// ApplyDefaults fills zero-valued parameters from configuration.
func (r *LiteratureRequest) ApplyDefaults(cfg config.PipelineConfig) {
	if r.TopK == 0 {
		r.TopK = cfg.TopK
	}
	if r.MaxResults == 0 {
		r.MaxResults = cfg.MaxResults
	}
	r.Rerank = r.Rerank || cfg.Rerank
}

// Validate checks the request.
func (r LiteratureRequest) Validate() error {
	var errs []error
	if strings.TrimSpace(r.Query) == "" {
		errs = append(errs, fmt.Errorf("%w: query is required", ErrInvalidRequest))
	}
	if r.TopK < 1 {
		errs = append(errs, fmt.Errorf("%w: top_k must be >= 1, got %d", ErrInvalidRequest, r.TopK))
	}
	if r.MaxResults < 1 {
		errs = append(errs, fmt.Errorf("%w: max_results must be >= 1, got %d", ErrInvalidRequest, r.MaxResults))
	}
	return errors.Join(errs...)
}

// Result is the outcome of one run.
type Result struct {
	RunID  string            `json:"run_id"`
	Answer string            `json:"answer"`
	Hits   []vectorstore.Hit `json:"hits"`
	// Chunks is the number of chunks indexed.
	Chunks int  `json:"chunks"`
	Empty  bool `json:"empty"`
}

// Contexts returns the hit texts in retrieval order.
func (r *Result) Contexts() []string {
	out := make([]string, len(r.Hits))
	for i, h := range r.Hits {
		out[i] = h.Chunk.Text
	}
	return out
}
