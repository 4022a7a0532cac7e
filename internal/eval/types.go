// Package eval runs question suites through the pipeline and checks the
// answers and retrieved context against keyword expectations.
package eval

import (
	"errors"
	"time"
)

// ErrInvalidSuite indicates a suite file failed validation.
var ErrInvalidSuite = errors.New("invalid suite")

// Mode selects which pipeline a case runs.
type Mode string

const (
	ModeClinical   Mode = "clinical"
	ModeLiterature Mode = "literature"
)

// Suite is a named set of cases loaded from TOML.
type Suite struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`

	// Defaults apply to every case that leaves the field zero.
	Defaults Defaults `toml:"defaults"`

	Cases []Case `toml:"cases"`

	// dir resolves relative note paths.
	dir string
}

// Defaults hold suite-wide run parameters.
type Defaults struct {
	TopK       int    `toml:"top_k"`
	MaxTokens  int    `toml:"max_tokens"`
	MaxResults int    `toml:"max_results"`
	Rerank     bool   `toml:"rerank"`
	Email      string `toml:"email"`
}

// Case is one question with its expectations.
type Case struct {
	Name       string `toml:"name"`
	Mode       Mode   `toml:"mode"`
	Note       string `toml:"note"`
	Query      string `toml:"query"`
	TopK       int    `toml:"top_k"`
	MaxTokens  int    `toml:"max_tokens"`
	MaxResults int    `toml:"max_results"`
	Rerank     bool   `toml:"rerank"`
	Deidentify bool   `toml:"deidentify"`

	// ExpectKeywords must all appear in the answer, case-insensitively.
	ExpectKeywords []string `toml:"expect_keywords"`
	// ExpectContexts must each appear in at least one retrieved chunk.
	ExpectContexts []string `toml:"expect_contexts"`
	// ExpectEmpty asserts the run produced the defined empty answer.
	ExpectEmpty bool `toml:"expect_empty"`
	// ExpectError names the failure class the run must fail with.
	ExpectError string `toml:"expect_error"`
}

// CaseResult captures the outcome of one case.
type CaseResult struct {
	Case   string `json:"case"`
	Passed bool   `json:"passed"`
	Answer string `json:"answer,omitempty"`

	MissingKeywords []string `json:"missing_keywords,omitempty"`
	MissingContexts []string `json:"missing_contexts,omitempty"`

	Error    string        `json:"error,omitempty"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report summarizes a suite run.
type Report struct {
	Suite    string        `json:"suite"`
	Results  []CaseResult  `json:"results"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether every case passed.
func (r *Report) OK() bool {
	return r.Failed == 0
}
