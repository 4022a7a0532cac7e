package deid

// Result is the outcome of a de-identification pass.
type Result struct {
	// Text is the redacted content.
	Text string `json:"-"`

	Findings []Finding `json:"findings,omitempty"`

	// ByRule counts findings per rule ID.
	ByRule map[string]int `json:"by_rule,omitempty"`
}

// Finding locates a redacted span. The matched value is never stored.
type Finding struct {
	RuleID string `json:"rule_id"`
	Source string `json:"source"` // "phi" or "credential"
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Line   int    `json:"line"`
}

// HasFindings reports whether anything was redacted.
func (r *Result) HasFindings() bool {
	return len(r.Findings) > 0
}
