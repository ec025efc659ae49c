package git

import (
	"bufio"
	"bytes"
	"fmt"

	"github.com/sourcegraph/go-diff/diff"
)

// DiffContext selects the revision pair for a comparison. An empty To
// compares From against the working tree, staged or not.
type DiffContext struct {
	From string
	To   string
}

// FileChanges holds the parsed -U0 hunks for one changed file. Added marks
// files with no old side: new in the diff or untracked in the working tree.
type FileChanges struct {
	Path  string
	Added bool
	Hunks []*diff.Hunk
}

const devNull = "/dev/null"

func getGitDiff(executor gitCommandExecutor, context DiffContext) ([]FileChanges, error) {
	args := []string{"diff", "-U0", context.From}
	if context.To != "" {
		args = append(args, context.To)
	}
	cmdOutput, err := executor.execute("git", args...)
	if err != nil {
		return nil, fmt.Errorf("diff error: %w", err)
	}
	fileDiffs, err := diff.ParseMultiFileDiff(cmdOutput)
	if err != nil {
		return nil, err
	}
	changes := make([]FileChanges, 0, len(fileDiffs))
	for _, d := range fileDiffs {
		changes = append(changes, FileChanges{
			Path:  diffFilePath(d),
			Added: d.OrigName == devNull,
			Hunks: d.Hunks,
		})
	}
	return changes, nil
}

// diffFilePath strips the a/ or b/ prefix from the diff header name. A
// deleted file has /dev/null on the new side, so fall back to the old name.
func diffFilePath(d *diff.FileDiff) string {
	name := d.NewName
	if name == devNull {
		name = d.OrigName
	}
	if len(name) > 2 && (name[:2] == "a/" || name[:2] == "b/") {
		return name[2:]
	}
	return name
}

// rangeTouchesHunks reports whether any changed line of the hunks falls in
// [start, end]. Added lines are located by their new line number, removed
// lines by their old one. Hunks come out of git sorted by position, so the
// walk stops once a hunk starts past end.
func rangeTouchesHunks(hunks []*diff.Hunk, start, end int) bool {
	for _, hunk := range hunks {
		if int(hunk.NewStartLine) > end {
			break
		}
		if int(hunk.NewStartLine+hunk.NewLines) < start {
			continue
		}
		oldLine := int(hunk.OrigStartLine)
		newLine := int(hunk.NewStartLine)
		scanner := bufio.NewScanner(bytes.NewReader(hunk.Body))
		for scanner.Scan() {
			line := scanner.Text()
			if len(line) == 0 {
				continue
			}
			switch line[0] {
			case '+':
				if newLine >= start && newLine <= end {
					return true
				}
				newLine++
			case '-':
				if oldLine >= start && oldLine <= end {
					return true
				}
				oldLine++
			case '\\':
				// "\ No newline at end of file" is not a content line.
			default:
				oldLine++
				newLine++
			}
		}
	}
	return false
}
