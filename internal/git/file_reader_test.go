package git

import (
	"errors"
	"testing"
)

func TestRefFileReaderReadFile(t *testing.T) {
	mockExec := &mockGitExecutor{
		outputs: map[string]string{
			"git show baseref123:ifchanged.toml": "ignore = [\"vendor/**\"]\n",
			"git show baseref123:docs/spec.md":   "# Spec\n",
		},
		errors: map[string]error{
			"git show baseref123:nonexistent": errors.New("file not found"),
		},
	}
	repo := NewRepoWithExecutor("/repo", mockExec)
	reader := repo.FileReader("baseref123")

	tt := []struct {
		name        string
		path        string
		expected    string
		expectError bool
	}{
		{
			name:     "read root config",
			path:     "ifchanged.toml",
			expected: "ignore = [\"vendor/**\"]\n",
		},
		{
			name:     "read subdirectory file",
			path:     "docs/spec.md",
			expected: "# Spec\n",
		},
		{
			name:        "read nonexistent file",
			path:        "nonexistent",
			expectError: true,
		},
		{
			name:     "leading slash is stripped",
			path:     "/ifchanged.toml",
			expected: "ignore = [\"vendor/**\"]\n",
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			content, err := reader.ReadFile(tc.path)

			if tc.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if string(content) != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, string(content))
			}
		})
	}
}

func TestRefFileReaderPathExists(t *testing.T) {
	mockExec := &mockGitExecutor{
		outputs: map[string]string{
			"git cat-file -e baseref123:ifchanged.toml": "",
		},
		errors: map[string]error{
			"git cat-file -e baseref123:nonexistent": errors.New("file not found"),
		},
	}
	repo := NewRepoWithExecutor("/repo", mockExec)
	reader := repo.FileReader("baseref123")

	tt := []struct {
		name     string
		path     string
		expected bool
	}{
		{
			name:     "existing file",
			path:     "ifchanged.toml",
			expected: true,
		},
		{
			name:     "nonexistent file",
			path:     "nonexistent",
			expected: false,
		},
		{
			name:     "existing file with leading slash",
			path:     "/ifchanged.toml",
			expected: true,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			exists := reader.PathExists(tc.path)
			if exists != tc.expected {
				t.Errorf("expected %v, got %v", tc.expected, exists)
			}
		})
	}
}
