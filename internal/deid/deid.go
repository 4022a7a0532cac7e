package deid

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Redactor removes PHI and credentials from text.
type Redactor interface {
	Redact(text string) *Result
}

// Deidentifier is the default Redactor.
type Deidentifier struct {
	config *Config

	// gitleaks detectors are not documented as safe for concurrent use.
	mu       sync.Mutex
	detector *detect.Detector
}

type span struct {
	start, end int
	ruleID     string
	source     string
}

// New creates a Deidentifier. A nil config uses DefaultConfig.
func New(cfg *Config) (*Deidentifier, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Deidentifier{config: cfg}
	if cfg.Credentials {
		detector, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return nil, fmt.Errorf("loading credential rules: %w", err)
		}
		d.detector = detector
	}
	return d, nil
}

// Redact replaces every detected span with the redaction string.
func (d *Deidentifier) Redact(text string) *Result {
	result := &Result{Text: text, ByRule: make(map[string]int)}
	if text == "" {
		return result
	}

	spans := d.phiSpans(text)
	spans = append(spans, d.credentialSpans(text)...)
	if len(spans) == 0 {
		return result
	}

	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})
	for _, s := range spans {
		result.Findings = append(result.Findings, Finding{
			RuleID: s.ruleID,
			Source: s.source,
			Start:  s.start,
			End:    s.end,
			Line:   strings.Count(text[:s.start], "\n") + 1,
		})
		result.ByRule[s.ruleID]++
	}

	var b strings.Builder
	last := 0
	for _, s := range mergeSpans(spans) {
		b.WriteString(text[last:s.start])
		b.WriteString(d.config.RedactionString)
		last = s.end
	}
	b.WriteString(text[last:])
	result.Text = b.String()
	return result
}

func (d *Deidentifier) phiSpans(text string) []span {
	var spans []span
	for _, rule := range d.config.compiledRules {
		for _, m := range rule.pattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[0], m[1]
			if len(m) >= 4 && m[2] >= 0 {
				start, end = m[2], m[3]
			}
			if start >= end || d.isAllowed(text[start:end]) {
				continue
			}
			spans = append(spans, span{start: start, end: end, ruleID: rule.ID, source: "phi"})
		}
	}
	return spans
}

// credentialSpans locates every occurrence of each gitleaks secret.
func (d *Deidentifier) credentialSpans(text string) []span {
	if d.detector == nil {
		return nil
	}

	d.mu.Lock()
	findings := d.detector.DetectString(text)
	d.mu.Unlock()

	seen := make(map[string]bool)
	var spans []span
	for _, f := range findings {
		secret := f.Secret
		if secret == "" || seen[secret] || d.isAllowed(secret) {
			continue
		}
		seen[secret] = true
		for offset := 0; ; {
			i := strings.Index(text[offset:], secret)
			if i < 0 {
				break
			}
			start := offset + i
			spans = append(spans, span{start: start, end: start + len(secret), ruleID: f.RuleID, source: "credential"})
			offset = start + len(secret)
		}
	}
	return spans
}

func (d *Deidentifier) isAllowed(match string) bool {
	for _, re := range d.config.compiledAllowList {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

// mergeSpans merges overlapping spans; input must be sorted by start.
func mergeSpans(spans []span) []span {
	merged := []span{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// Noop leaves text unchanged.
type Noop struct{}

// Redact returns text unchanged.
func (Noop) Redact(text string) *Result {
	return &Result{Text: text, ByRule: map[string]int{}}
}

var (
	_ Redactor = (*Deidentifier)(nil)
	_ Redactor = Noop{}
)
