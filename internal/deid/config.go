package deid

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidConfig indicates a rule or allow list entry failed to compile.
var ErrInvalidConfig = errors.New("invalid deid configuration")

// Config configures the de-identifier.
type Config struct {
	// RedactionString replaces each detected span (default "[REDACTED]").
	RedactionString string

	// Rules are the PHI detection rules.
	Rules []Rule

	// Credentials enables the gitleaks credential scan.
	Credentials bool

	// AllowList holds patterns whose matches are never redacted.
	AllowList []string

	compiledRules     []*compiledRule
	compiledAllowList []*regexp.Regexp
}

// Rule is a PHI detection rule. When Pattern has a capture group only the
// first group is redacted, so labels such as "Patient:" survive.
type Rule struct {
	ID          string `toml:"id"`
	Description string `toml:"description"`
	Pattern     string `toml:"pattern"`
}

type compiledRule struct {
	Rule
	pattern *regexp.Regexp
}

// DefaultConfig returns the PHI rules with credential scanning on.
func DefaultConfig() *Config {
	return &Config{
		RedactionString: "[REDACTED]",
		Rules:           DefaultRules(),
		Credentials:     true,
	}
}

// Validate compiles rules and allow list patterns.
func (c *Config) Validate() error {
	if c.RedactionString == "" {
		c.RedactionString = "[REDACTED]"
	}

	c.compiledRules = make([]*compiledRule, 0, len(c.Rules))
	for i, rule := range c.Rules {
		if rule.ID == "" {
			return fmt.Errorf("%w: rule %d: ID is required", ErrInvalidConfig, i)
		}
		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil || rule.Pattern == "" {
			return fmt.Errorf("%w: rule %s: invalid pattern: %v", ErrInvalidConfig, rule.ID, err)
		}
		c.compiledRules = append(c.compiledRules, &compiledRule{Rule: rule, pattern: pattern})
	}

	c.compiledAllowList = make([]*regexp.Regexp, 0, len(c.AllowList))
	for i, pattern := range c.AllowList {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: allow_list %d: %v", ErrInvalidConfig, i, err)
		}
		c.compiledAllowList = append(c.compiledAllowList, re)
	}
	return nil
}
