package governance

import (
	"fmt"
	"regexp"
)

// RedactionRule replaces matches of Pattern with Replace.
type RedactionRule struct {
	Pattern string `yaml:"pattern"`
	Replace string `yaml:"replace"`
}

// Redactor applies compiled redaction rules to text recorded on incidents.
type Redactor struct {
	rules []compiledRedaction
}

type compiledRedaction struct {
	pattern *regexp.Regexp
	replace string
}

// NewRedactor compiles rules. A nil Redactor redacts nothing.
func NewRedactor(rules []RedactionRule) (*Redactor, error) {
	r := &Redactor{}
	for i, rule := range rules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("redaction rule %d: %w", i, err)
		}
		repl := rule.Replace
		if repl == "" {
			repl = "[REDACTED]"
		}
		r.rules = append(r.rules, compiledRedaction{pattern: re, replace: repl})
	}
	return r, nil
}

// Redact applies every rule to s.
func (r *Redactor) Redact(s string) string {
	if r == nil {
		return s
	}
	for _, rule := range r.rules {
		s = rule.pattern.ReplaceAllString(s, rule.replace)
	}
	return s
}
