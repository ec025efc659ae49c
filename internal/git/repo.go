package git

import (
	"fmt"
	"strings"
)

// Repo is an opened git work tree. All git invocations for one repository
// go through its executor, rooted at the work tree's top level.
type Repo struct {
	root     string
	executor gitCommandExecutor
}

// OpenRepo resolves the work tree containing dir. A bare repository (or a
// dir outside any work tree) is an error.
func OpenRepo(dir string) (*Repo, error) {
	out, err := newRealGitExecutor(dir).execute("git", "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("could not open repository at %q: %w", dir, err)
	}
	root := strings.TrimSpace(string(out))
	if root == "" {
		return nil, fmt.Errorf("could not open repository at %q: no work tree", dir)
	}
	return &Repo{root: root, executor: newRealGitExecutor(root)}, nil
}

// NewRepoWithExecutor creates a Repo rooted at root that runs git through
// the given executor. Used by tests.
func NewRepoWithExecutor(root string, executor gitCommandExecutor) *Repo {
	return &Repo{root: root, executor: executor}
}

func (r *Repo) Root() string {
	return r.root
}

// VerifyRef checks that ref names a commit.
func (r *Repo) VerifyRef(ref string) error {
	if _, err := r.executor.execute("git", "rev-parse", "--verify", ref+"^{commit}"); err != nil {
		return fmt.Errorf("invalid revision %q: %w", ref, err)
	}
	return nil
}

// CommitMessage returns the full commit message of ref.
func (r *Repo) CommitMessage(ref string) (string, error) {
	out, err := r.executor.execute("git", "show", "-s", "--format=%B", ref)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// TreeFiles lists every path in the tree at ref. An empty ref means the
// working tree: tracked files plus untracked ones not ignored.
func (r *Repo) TreeFiles(ref string) ([]string, error) {
	if ref == "" {
		out, err := r.executor.execute("git", "ls-files", "--cached", "--others", "--exclude-standard")
		if err != nil {
			return nil, err
		}
		return splitLines(out), nil
	}
	out, err := r.executor.execute("git", "ls-tree", "-r", "--name-only", ref)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// UntrackedFiles lists files present in the working tree but unknown to
// the index, minus ignored ones.
func (r *Repo) UntrackedFiles() ([]string, error) {
	out, err := r.executor.execute("git", "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

func splitLines(out []byte) []string {
	trimmed := strings.TrimRight(string(out), "\n")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}
