package eval

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/fyrsmithlabs/medrag/internal/pipeline"
)

// LoadSuite reads and validates a TOML suite. Relative note paths resolve
// against the suite file's directory.
func LoadSuite(path string) (*Suite, error) {
	var s Suite
	md, err := toml.DecodeFile(path, &s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSuite, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown keys %v", ErrInvalidSuite, undecoded)
	}

	s.dir = filepath.Dir(path)
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the suite for errors.
func (s *Suite) Validate() error {
	if len(s.Cases) == 0 {
		return fmt.Errorf("%w: no cases", ErrInvalidSuite)
	}

	seen := make(map[string]bool, len(s.Cases))
	for i, c := range s.Cases {
		if c.Name == "" {
			return fmt.Errorf("%w: case %d has no name", ErrInvalidSuite, i)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate case %q", ErrInvalidSuite, c.Name)
		}
		seen[c.Name] = true

		switch c.Mode {
		case ModeClinical:
			if c.Note == "" {
				return fmt.Errorf("%w: case %q: clinical cases need a note", ErrInvalidSuite, c.Name)
			}
		case ModeLiterature:
		default:
			return fmt.Errorf("%w: case %q: unknown mode %q", ErrInvalidSuite, c.Name, c.Mode)
		}

		if c.ExpectError != "" && (len(c.ExpectKeywords) > 0 || c.ExpectEmpty) {
			return fmt.Errorf("%w: case %q: expect_error excludes answer expectations", ErrInvalidSuite, c.Name)
		}
	}
	return nil
}

// clinicalRequest builds the request for a clinical case.
func (s *Suite) clinicalRequest(c Case) pipeline.ClinicalRequest {
	note := c.Note
	if s.dir != "" && !filepath.IsAbs(note) && !strings.Contains(note, "://") {
		note = filepath.Join(s.dir, note)
	}
	return pipeline.ClinicalRequest{
		NotePath:   note,
		Query:      c.Query,
		TopK:       firstNonZero(c.TopK, s.Defaults.TopK),
		MaxTokens:  firstNonZero(c.MaxTokens, s.Defaults.MaxTokens),
		Rerank:     c.Rerank || s.Defaults.Rerank,
		Deidentify: c.Deidentify,
	}
}

// literatureRequest builds the request for a literature case.
func (s *Suite) literatureRequest(c Case) pipeline.LiteratureRequest {
	return pipeline.LiteratureRequest{
		Query:      c.Query,
		Email:      s.Defaults.Email,
		TopK:       firstNonZero(c.TopK, s.Defaults.TopK),
		MaxResults: firstNonZero(c.MaxResults, s.Defaults.MaxResults),
		Rerank:     c.Rerank || s.Defaults.Rerank,
	}
}

func firstNonZero(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
