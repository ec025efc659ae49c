// Package pattern evaluates ordered gitignore-style pattern lists against
// repository-relative paths.
package pattern

import (
	"fmt"
	"io"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Rule is one parsed pattern. Text keeps the pattern as written minus any
// leading "!"; Negate records whether it had one.
type Rule struct {
	Text   string
	Negate bool
	glob   string
}

// ParseRule splits a pattern into its negation marker and glob. A leading
// "/" only anchors the glob at the root, which every glob already is, so it
// is dropped.
func ParseRule(text string) Rule {
	rule := Rule{Text: text}
	if rest, ok := strings.CutPrefix(rule.Text, "!"); ok {
		rule.Negate = true
		rule.Text = rest
	}
	rule.glob = strings.TrimPrefix(rule.Text, "/")
	return rule
}

// Matcher holds an ordered pattern list. Later rules override earlier ones,
// matching gitignore precedence.
type Matcher struct {
	rules []Rule
}

// NewMatcher parses the pattern list. Invalid globs are kept (they can
// never match) and reported to warn.
func NewMatcher(patterns []string, warn io.Writer) *Matcher {
	if warn == nil {
		warn = io.Discard
	}
	matcher := &Matcher{rules: make([]Rule, 0, len(patterns))}
	for _, p := range patterns {
		rule := ParseRule(p)
		if !doublestar.ValidatePattern(rule.glob) {
			_, _ = fmt.Fprintf(warn, "WARNING: PatternError for pattern '%s': %s\n", p, doublestar.ErrBadPattern)
		}
		matcher.rules = append(matcher.rules, rule)
	}
	return matcher
}

// Decide returns whether path is selected by the pattern list and the index
// of the rule that decided it. Rules are tried last to first; a path no
// rule matches returns (false, -1).
func (m *Matcher) Decide(path string) (bool, int) {
	for i := len(m.rules) - 1; i >= 0; i-- {
		match, err := doublestar.Match(m.rules[i].glob, path)
		if err != nil || !match {
			continue
		}
		return !m.rules[i].Negate, i
	}
	return false, -1
}

// Match reports whether path is selected by the pattern list.
func (m *Matcher) Match(path string) bool {
	included, _ := m.Decide(path)
	return included
}

// Rules returns the parsed rules in declaration order.
func (m *Matcher) Rules() []Rule {
	return m.rules
}
