package git

import (
	"fmt"
	"strings"
)

// RefFileReader reads file content from a committed tree, bypassing the
// working copy. It backs config reads in PR mode, where the checked-out
// branch must not be able to swap the config out from under the check.
type RefFileReader struct {
	ref  string
	repo *Repo
}

// FileReader returns a reader for the tree at ref.
func (r *Repo) FileReader(ref string) *RefFileReader {
	return &RefFileReader{ref: ref, repo: r}
}

// ReadFile returns the content of path at the ref. The path may be given
// relative to the repository root or as an absolute path beneath it.
func (r *RefFileReader) ReadFile(path string) ([]byte, error) {
	path = r.normalizeForGit(path)
	output, err := r.repo.executor.execute("git", "show", fmt.Sprintf("%s:%s", r.ref, path))
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s from ref %s: %w", path, r.ref, err)
	}
	return output, nil
}

// PathExists reports whether path is present in the tree at the ref.
func (r *RefFileReader) PathExists(path string) bool {
	path = r.normalizeForGit(path)
	_, err := r.repo.executor.execute("git", "cat-file", "-e", fmt.Sprintf("%s:%s", r.ref, path))
	return err == nil
}

// normalizeForGit makes path relative to the repository root so it can name
// a tree entry. An absolute path under the root has the root stripped; any
// other leading slash is dropped.
func (r *RefFileReader) normalizeForGit(path string) string {
	root := strings.TrimSuffix(r.repo.Root(), "/")
	if root != "" && root != "." {
		if rest, ok := strings.CutPrefix(path, root+"/"); ok {
			return rest
		}
	}
	path = strings.TrimPrefix(path, "./")
	return strings.TrimPrefix(path, "/")
}
