package ifchanged

import (
	"fmt"
	"path"
	"strings"
)

// MatchResult is one outcome of an Oracle Match call: either a changed path
// selected by the pattern set, or a pattern that selected nothing.
type MatchResult struct {
	Path    string
	Pattern string
}

// Unmatched reports whether the result is an unmatched pattern rather than
// a changed path.
func (m MatchResult) Unmatched() bool {
	return m.Pattern != ""
}

// Oracle answers change queries for the revision pair under check.
type Oracle interface {
	// Match returns the changed paths selected by the pattern set, plus an
	// unmatched result for every pattern that selected none. An empty set
	// selects every changed path.
	Match(patterns []string) []MatchResult
	// IsRangeModified reports whether the diff touches any line of path in
	// [start, end].
	IsRangeModified(path string, start, end int) bool
	// IsExempt reports whether violations in path are suppressed.
	IsExempt(path string) bool
	// Resolve maps a repository-relative path to an absolute one.
	Resolve(path string) string
	// TreeMatches reports whether any file in the target tree matches the
	// pattern, changed or not.
	TreeMatches(pattern string) bool
}

// Checker validates the if-changed contracts of a single changed file.
type Checker struct {
	oracle Oracle
	path   string
}

func NewChecker(oracle Oracle, path string) *Checker {
	return &Checker{oracle: oracle, path: path}
}

// Check parses the file and returns one message per unsatisfied obligation
// of every modified block. A parse failure aborts the check and returns the
// parser's errors instead. A nil return means the file is clean.
func (c *Checker) Check() []string {
	parser, err := Open(c.path, c.oracle.Resolve(c.path))
	if err != nil {
		return []string{fmt.Sprintf("Failed to read %q: %v.", c.path, err)}
	}
	defer func() { _ = parser.Close() }()

	var violations []string
	for parser.Scan() {
		block := parser.Block()
		if !c.oracle.IsRangeModified(c.path, block.Start, block.End) {
			continue
		}
		violations = append(violations, c.checkBlock(block)...)
	}
	if errs := parser.Errs(); len(errs) > 0 {
		return errs
	}
	return violations
}

func (c *Checker) checkBlock(block Block) []string {
	var violations []string
	var unnamed []Obligation
	patterns := make([]string, 0, len(block.Obligations))
	for _, obl := range block.Obligations {
		if obl.Named {
			continue
		}
		unnamed = append(unnamed, obl)
		patterns = append(patterns, c.resolvePattern(obl.Pattern))
	}
	if len(patterns) > 0 {
		unmatched := make(map[string]int)
		for _, result := range c.oracle.Match(patterns) {
			if result.Unmatched() {
				unmatched[result.Pattern]++
			}
		}
		for i, obl := range unnamed {
			if unmatched[patterns[i]] == 0 {
				continue
			}
			unmatched[patterns[i]]--
			violations = append(violations, c.unmatchedViolation(patterns[i], obl.Line))
		}
	}
	for _, obl := range block.Obligations {
		if !obl.Named {
			continue
		}
		violations = append(violations, c.checkNamed(obl)...)
	}
	return violations
}

// checkNamed verifies a pattern:name obligation: every changed file the
// pattern selects must contain a modified if-changed block with that name.
func (c *Checker) checkNamed(obl Obligation) []string {
	var violations []string
	for _, result := range c.oracle.Match([]string{c.resolvePattern(obl.Pattern)}) {
		if result.Unmatched() {
			violations = append(violations, c.unmatchedViolation(result.Pattern, obl.Line))
			continue
		}
		violations = append(violations, c.checkNamedTarget(obl, result.Path)...)
	}
	return violations
}

func (c *Checker) checkNamedTarget(obl Obligation, target string) []string {
	parser, err := Open(target, c.oracle.Resolve(target))
	if err != nil {
		return []string{fmt.Sprintf("Could not open %q for %q in %q at line %d: %v.", target, thenChangeMarker, c.path, obl.Line, err)}
	}
	defer func() { _ = parser.Close() }()
	for parser.Scan() {
		block := parser.Block()
		if !block.Named || block.Name != obl.Name {
			continue
		}
		if c.oracle.IsRangeModified(target, block.Start, block.End) {
			return nil
		}
		return []string{fmt.Sprintf("Expected %q to be modified because of %q in %q at line %d.", target, thenChangeMarker, c.path, obl.Line)}
	}
	if errs := parser.Errs(); len(errs) > 0 {
		return errs
	}
	return []string{fmt.Sprintf("Could not find %q with name %q in %q for %q in %q at line %d.", ifChangedMarker, obl.Name, target, thenChangeMarker, c.path, obl.Line)}
}

func (c *Checker) unmatchedViolation(pattern string, line int) string {
	if c.oracle.TreeMatches(pattern) {
		return fmt.Sprintf("Expected %q to be modified because of %q in %q at line %d.", pattern, thenChangeMarker, c.path, line)
	}
	return fmt.Sprintf("Could not find any file matching %q for %q in %q at line %d.", pattern, thenChangeMarker, c.path, line)
}

// resolvePattern turns a then-change entry into a root-relative pattern. An
// empty entry means the containing file, a leading slash anchors at the
// repository root, and anything else is relative to the file's directory.
func (c *Checker) resolvePattern(pattern string) string {
	switch {
	case pattern == "":
		return c.path
	case strings.HasPrefix(pattern, "/"):
		return strings.TrimPrefix(pattern, "/")
	default:
		return path.Join(path.Dir(c.path), pattern)
	}
}
