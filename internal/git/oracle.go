package git

import (
	"io"
	"path/filepath"
	"strings"

	f "github.com/multimediallc/if-changed/pkg/functional"
	"github.com/multimediallc/if-changed/pkg/ifchanged"
	"github.com/multimediallc/if-changed/pkg/pattern"
)

// exemptTrailer is the commit message trailer whose patterns suppress
// checking, e.g. "Ignore-If-Changed: generated/*, vendor/** -- rebuilt".
const exemptTrailer = "ignore-if-changed"

// Oracle answers change queries for one revision pair. Everything is
// computed at construction; queries are read-only after that, so an Oracle
// is safe to share.
type Oracle struct {
	repo      *Repo
	context   DiffContext
	changes   []FileChanges
	byPath    map[string]*FileChanges
	treeFiles []string
	exempt    *pattern.Matcher
	warn      io.Writer
}

// NewOracle builds an Oracle for the given revision pair. From defaults to
// HEAD; an empty To compares against the working tree and counts untracked
// files as added. Both refs must resolve. The ignore patterns are merged
// with the exemption trailer of the To commit, when there is one.
func NewOracle(repo *Repo, context DiffContext, ignore []string, warn io.Writer) (*Oracle, error) {
	if warn == nil {
		warn = io.Discard
	}
	if context.From == "" {
		context.From = "HEAD"
	}
	if err := repo.VerifyRef(context.From); err != nil {
		return nil, err
	}
	if context.To != "" {
		if err := repo.VerifyRef(context.To); err != nil {
			return nil, err
		}
	}

	changes, err := getGitDiff(repo.executor, context)
	if err != nil {
		return nil, err
	}
	if context.To == "" {
		untracked, err := repo.UntrackedFiles()
		if err != nil {
			return nil, err
		}
		seen := f.NewSet[string]()
		for _, fc := range changes {
			seen.Add(fc.Path)
		}
		for _, path := range untracked {
			if seen.Contains(path) {
				continue
			}
			changes = append(changes, FileChanges{Path: path, Added: true})
		}
	}

	treeFiles, err := repo.TreeFiles(context.To)
	if err != nil {
		return nil, err
	}

	exemptPatterns := make([]string, 0, len(ignore))
	exemptPatterns = append(exemptPatterns, ignore...)
	if context.To != "" {
		message, err := repo.CommitMessage(context.To)
		if err != nil {
			return nil, err
		}
		exemptPatterns = append(exemptPatterns, trailerPatterns(message)...)
	}

	oracle := &Oracle{
		repo:      repo,
		context:   context,
		changes:   changes,
		byPath:    make(map[string]*FileChanges, len(changes)),
		treeFiles: treeFiles,
		exempt:    pattern.NewMatcher(exemptPatterns, warn),
		warn:      warn,
	}
	for i := range oracle.changes {
		oracle.byPath[oracle.changes[i].Path] = &oracle.changes[i]
	}
	return oracle, nil
}

func (o *Oracle) Context() DiffContext {
	return o.context
}

// ChangedPaths returns every changed path in diff order, untracked files
// last.
func (o *Oracle) ChangedPaths() []string {
	return f.Map(o.changes, func(fc FileChanges) string { return fc.Path })
}

// Match returns the changed paths selected by the pattern set, then an
// unmatched result for every pattern that selected none. An empty set
// selects every changed path. Negated patterns exclude paths but are always
// reported unmatched themselves.
func (o *Oracle) Match(patterns []string) []ifchanged.MatchResult {
	results := make([]ifchanged.MatchResult, 0, len(o.changes))
	if len(patterns) == 0 {
		for _, fc := range o.changes {
			results = append(results, ifchanged.MatchResult{Path: fc.Path})
		}
		return results
	}
	matcher := pattern.NewMatcher(patterns, o.warn)
	rules := matcher.Rules()
	credited := make(map[string]bool, len(rules))
	for _, fc := range o.changes {
		included, rule := matcher.Decide(fc.Path)
		if !included {
			continue
		}
		credited[rules[rule].Text] = true
		results = append(results, ifchanged.MatchResult{Path: fc.Path})
	}
	for _, rule := range rules {
		if credited[rule.Text] {
			continue
		}
		results = append(results, ifchanged.MatchResult{Pattern: rule.Text})
	}
	return results
}

// IsRangeModified reports whether the diff touches any line of path in
// [start, end]. Added and untracked files count as modified everywhere.
func (o *Oracle) IsRangeModified(path string, start, end int) bool {
	fc, ok := o.byPath[path]
	if !ok {
		return false
	}
	if fc.Added {
		return true
	}
	return rangeTouchesHunks(fc.Hunks, start, end)
}

// IsExempt reports whether path is excluded from checking by the exemption
// trailer or the configured ignore patterns.
func (o *Oracle) IsExempt(path string) bool {
	return o.exempt.Match(path)
}

// Resolve joins a repository-relative path with the work tree root.
func (o *Oracle) Resolve(path string) string {
	return filepath.Join(o.repo.Root(), filepath.FromSlash(path))
}

// TreeMatches reports whether any file of the target tree matches the
// pattern, changed or not.
func (o *Oracle) TreeMatches(pat string) bool {
	matcher := pattern.NewMatcher([]string{pat}, o.warn)
	for _, file := range o.treeFiles {
		if matcher.Match(file) {
			return true
		}
	}
	return false
}

// trailerPatterns extracts the exemption patterns from a commit message.
// Only the final paragraph is considered, matching where git reads
// trailers. The trailer value is a comma-separated pattern list; a " -- "
// suffix holds a justification and is dropped.
func trailerPatterns(message string) []string {
	var patterns []string
	for _, line := range trailerLines(message) {
		key, value, found := strings.Cut(line, ":")
		if !found || !strings.EqualFold(strings.TrimSpace(key), exemptTrailer) {
			continue
		}
		value, _, _ = strings.Cut(value, "--")
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				patterns = append(patterns, p)
			}
		}
	}
	return patterns
}

// trailerLines returns the lines of the message's final paragraph, or
// nothing for a single-paragraph message, which has no trailer block.
func trailerLines(message string) []string {
	message = strings.ReplaceAll(message, "\r\n", "\n")
	paragraphs := strings.Split(strings.TrimSpace(message), "\n\n")
	if len(paragraphs) < 2 {
		return nil
	}
	return strings.Split(paragraphs[len(paragraphs)-1], "\n")
}
