package app

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-github/v63/github"
	"github.com/multimediallc/if-changed/pkg/ifchanged"
	"github.com/multimediallc/if-changed/pkg/pattern"
)

// Mock implementations
type fakeOracle struct {
	dir      string
	changed  []string
	modified map[string][][2]int
	tree     []string
	exempt   []string
}

func (o *fakeOracle) ChangedPaths() []string {
	return o.changed
}

func (o *fakeOracle) Match(patterns []string) []ifchanged.MatchResult {
	results := make([]ifchanged.MatchResult, 0)
	if len(patterns) == 0 {
		for _, path := range o.changed {
			results = append(results, ifchanged.MatchResult{Path: path})
		}
		return results
	}
	matcher := pattern.NewMatcher(patterns, nil)
	rules := matcher.Rules()
	credited := make(map[string]bool)
	for _, path := range o.changed {
		included, rule := matcher.Decide(path)
		if !included {
			continue
		}
		credited[rules[rule].Text] = true
		results = append(results, ifchanged.MatchResult{Path: path})
	}
	for _, rule := range rules {
		if credited[rule.Text] {
			continue
		}
		results = append(results, ifchanged.MatchResult{Pattern: rule.Text})
	}
	return results
}

func (o *fakeOracle) IsRangeModified(path string, start, end int) bool {
	for _, r := range o.modified[path] {
		if r[0] <= end && start <= r[1] {
			return true
		}
	}
	return false
}

func (o *fakeOracle) IsExempt(path string) bool {
	return pattern.NewMatcher(o.exempt, nil).Match(path)
}

func (o *fakeOracle) Resolve(path string) string {
	return filepath.Join(o.dir, filepath.FromSlash(path))
}

func (o *fakeOracle) TreeMatches(pat string) bool {
	matcher := pattern.NewMatcher([]string{pat}, nil)
	for _, file := range o.tree {
		if matcher.Match(file) {
			return true
		}
	}
	return false
}

type mockGitHubClient struct {
	pr                        *github.PullRequest
	initPRError               error
	findCommentID             int64
	findCommentFound          bool
	findCommentError          error
	addCommentError           error
	updateCommentError        error
	InitPRCalled              bool
	AddCommentCalled          bool
	AddCommentInput           string
	FindExistingCommentCalled bool
	FindExistingCommentInput  string
	UpdateCommentCalled       bool
	UpdateCommentID           int64
	UpdateCommentInput        string
}

func (m *mockGitHubClient) InitPR(prID int) error {
	m.InitPRCalled = true
	return m.initPRError
}

func (m *mockGitHubClient) PR() *github.PullRequest {
	return m.pr
}

func (m *mockGitHubClient) InitComments() error {
	return nil
}

func (m *mockGitHubClient) AddComment(comment string) error {
	m.AddCommentCalled = true
	m.AddCommentInput = comment
	return m.addCommentError
}

func (m *mockGitHubClient) FindExistingComment(prefix string, since *time.Time) (int64, bool, error) {
	m.FindExistingCommentCalled = true
	m.FindExistingCommentInput = prefix
	return m.findCommentID, m.findCommentFound, m.findCommentError
}

func (m *mockGitHubClient) UpdateComment(commentID int64, body string) error {
	m.UpdateCommentCalled = true
	m.UpdateCommentID = commentID
	m.UpdateCommentInput = body
	return m.updateCommentError
}

func setupAppFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for path, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("Failed to create directory for %s: %v", path, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to write file %s: %v", path, err)
		}
	}
	return dir
}

func testApp(cfg Config) *App {
	if cfg.InfoBuffer == nil {
		cfg.InfoBuffer = &bytes.Buffer{}
	}
	if cfg.WarningBuffer == nil {
		cfg.WarningBuffer = &bytes.Buffer{}
	}
	return &App{config: &cfg}
}

func TestNewAppValidation(t *testing.T) {
	tt := []struct {
		name       string
		cfg        Config
		wantErr    bool
		wantClient bool
	}{
		{
			name:       "no reporting fields",
			cfg:        Config{RepoDir: "."},
			wantErr:    false,
			wantClient: false,
		},
		{
			name:       "full reporting config",
			cfg:        Config{RepoDir: ".", Token: "t", Repo: "owner/repo", PR: 1},
			wantErr:    false,
			wantClient: true,
		},
		{
			name:    "partial reporting config",
			cfg:     Config{RepoDir: ".", Token: "t"},
			wantErr: true,
		},
		{
			name:    "invalid repo name",
			cfg:     Config{RepoDir: ".", Token: "t", Repo: "not-a-repo", PR: 1},
			wantErr: true,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			app, err := New(tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (app.client != nil) != tc.wantClient {
				t.Errorf("client presence = %t, want %t", app.client != nil, tc.wantClient)
			}
		})
	}
}

func TestCheckFilesClean(t *testing.T) {
	dir := setupAppFiles(t, map[string]string{
		"src/a.ts": "code\n",
		"src/b.ts": "code\n",
	})
	oracle := &fakeOracle{
		dir:     dir,
		changed: []string{"src/a.ts", "src/b.ts"},
		tree:    []string{"src/a.ts", "src/b.ts"},
	}
	app := testApp(Config{})

	output := app.checkFiles(oracle)
	if !output.Success {
		t.Errorf("expected success, got %+v", output)
	}
	if !slices.Equal(output.CheckedFiles, []string{"src/a.ts", "src/b.ts"}) {
		t.Errorf("CheckedFiles = %v", output.CheckedFiles)
	}
	if output.Message != "Checked 2 files with no violations" {
		t.Errorf("Message = %q", output.Message)
	}
}

func TestCheckFilesViolations(t *testing.T) {
	dir := setupAppFiles(t, map[string]string{
		"src/a.ts": "// if-changed\ncode\n// then-change(b.ts)\n",
	})
	oracle := &fakeOracle{
		dir:      dir,
		changed:  []string{"src/a.ts"},
		modified: map[string][][2]int{"src/a.ts": {{1, 3}}},
		tree:     []string{"src/a.ts", "src/b.ts"},
	}
	app := testApp(Config{})

	output := app.checkFiles(oracle)
	if output.Success {
		t.Errorf("expected failure, got %+v", output)
	}
	if output.Message != "Found 1 violations in 1 files" {
		t.Errorf("Message = %q", output.Message)
	}
	want := []string{`Expected "src/b.ts" to be modified because of "then-change" in "src/a.ts" at line 3.`}
	if !slices.Equal(output.Violations["src/a.ts"], want) {
		t.Errorf("Violations = %+v, want %+v", output.Violations, want)
	}
}

func TestCheckFilesSkipsExempt(t *testing.T) {
	dir := setupAppFiles(t, map[string]string{
		"vendor/lib.ts": "// if-changed\ncode\n// then-change(missing.ts)\n",
		"src/a.ts":      "code\n",
	})
	oracle := &fakeOracle{
		dir:      dir,
		changed:  []string{"vendor/lib.ts", "src/a.ts"},
		modified: map[string][][2]int{"vendor/lib.ts": {{1, 3}}},
		tree:     []string{"vendor/lib.ts", "src/a.ts"},
		exempt:   []string{"vendor/**"},
	}
	app := testApp(Config{})

	output := app.checkFiles(oracle)
	if !output.Success {
		t.Errorf("expected success, got %+v", output)
	}
	if !slices.Equal(output.CheckedFiles, []string{"src/a.ts"}) {
		t.Errorf("CheckedFiles = %v", output.CheckedFiles)
	}
}

func TestCheckFilesPatternsFilter(t *testing.T) {
	dir := setupAppFiles(t, map[string]string{
		"src/a.ts":  "code\n",
		"docs/d.md": "text\n",
	})
	oracle := &fakeOracle{
		dir:     dir,
		changed: []string{"src/a.ts", "docs/d.md"},
		tree:    []string{"src/a.ts", "docs/d.md"},
	}
	info := &bytes.Buffer{}
	app := testApp(Config{Patterns: []string{"src/**", "lib/**"}, Verbose: true, InfoBuffer: info})

	output := app.checkFiles(oracle)
	if !slices.Equal(output.CheckedFiles, []string{"src/a.ts"}) {
		t.Errorf("CheckedFiles = %v", output.CheckedFiles)
	}
	if !strings.Contains(info.String(), `No changed files match "lib/**"`) {
		t.Errorf("expected unmatched pattern debug output, got %q", info.String())
	}
}

func TestAllViolationsOrder(t *testing.T) {
	output := &OutputData{
		CheckedFiles: []string{"b.ts", "a.ts"},
		Violations: map[string][]string{
			"a.ts": {"violation a"},
			"b.ts": {"violation b1", "violation b2"},
		},
	}
	want := []string{"violation b1", "violation b2", "violation a"}
	if got := output.AllViolations(); !slices.Equal(got, want) {
		t.Errorf("AllViolations = %v, want %v", got, want)
	}
}

func TestReportToPR(t *testing.T) {
	failing := &OutputData{
		CheckedFiles: []string{"src/a.ts"},
		Violations:   map[string][]string{"src/a.ts": {"violation"}},
		Success:      false,
		Message:      "Found 1 violations in 1 files",
	}
	clean := &OutputData{
		CheckedFiles: []string{"src/a.ts"},
		Violations:   map[string][]string{},
		Success:      true,
		Message:      "Checked 1 files with no violations",
	}

	tt := []struct {
		name       string
		client     *mockGitHubClient
		output     *OutputData
		wantAdd    bool
		wantUpdate bool
		wantErr    bool
	}{
		{
			name:    "new comment on violations",
			client:  &mockGitHubClient{},
			output:  failing,
			wantAdd: true,
		},
		{
			name:       "update existing comment",
			client:     &mockGitHubClient{findCommentID: 42, findCommentFound: true},
			output:     failing,
			wantUpdate: true,
		},
		{
			name:   "no comment on clean run",
			client: &mockGitHubClient{},
			output: clean,
		},
		{
			name:       "clean run refreshes existing comment",
			client:     &mockGitHubClient{findCommentID: 42, findCommentFound: true},
			output:     clean,
			wantUpdate: true,
		},
		{
			name:    "find comment error",
			client:  &mockGitHubClient{findCommentError: &os.PathError{Op: "find", Path: "x", Err: os.ErrNotExist}},
			output:  failing,
			wantErr: true,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			app := testApp(Config{})
			app.client = tc.client

			err := app.reportToPR(tc.output)
			if tc.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.client.AddCommentCalled != tc.wantAdd {
				t.Errorf("AddCommentCalled = %t, want %t", tc.client.AddCommentCalled, tc.wantAdd)
			}
			if tc.client.UpdateCommentCalled != tc.wantUpdate {
				t.Errorf("UpdateCommentCalled = %t, want %t", tc.client.UpdateCommentCalled, tc.wantUpdate)
			}
			if tc.client.FindExistingCommentInput != reportMarker {
				t.Errorf("FindExistingCommentInput = %q, want %q", tc.client.FindExistingCommentInput, reportMarker)
			}
			if tc.wantUpdate && tc.client.UpdateCommentID != 42 {
				t.Errorf("UpdateCommentID = %d, want 42", tc.client.UpdateCommentID)
			}
		})
	}
}

func TestReportBody(t *testing.T) {
	output := &OutputData{
		CheckedFiles: []string{"src/a.ts"},
		Violations:   map[string][]string{"src/a.ts": {"first violation", "second violation"}},
		Success:      false,
		Message:      "Found 2 violations in 1 files",
	}

	body := reportBody(output)
	if !strings.HasPrefix(body, reportMarker) {
		t.Errorf("body missing marker prefix: %q", body)
	}
	for _, want := range []string{"Found 2 violations in 1 files", "- first violation\n", "- second violation\n"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q: %q", want, body)
		}
	}
}
