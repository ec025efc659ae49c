package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/multimediallc/if-changed/internal/config"
	"github.com/multimediallc/if-changed/internal/git"
	gh "github.com/multimediallc/if-changed/internal/github"
	"github.com/multimediallc/if-changed/pkg/ifchanged"
)

// reportMarker prefixes the PR comment so reruns update it in place.
const reportMarker = "<!-- if-changed-report -->"

// OutputData holds the data that will be written to GITHUB_OUTPUT
type OutputData struct {
	CheckedFiles []string            `json:"checked_files"`
	Violations   map[string][]string `json:"violations"`
	Success      bool                `json:"success"`
	Message      string              `json:"message"`
}

// AllViolations flattens the per-file violations in checked-file order.
func (od *OutputData) AllViolations() []string {
	violations := make([]string, 0)
	for _, file := range od.CheckedFiles {
		violations = append(violations, od.Violations[file]...)
	}
	return violations
}

// Config holds the application configuration
type Config struct {
	FromRef       string
	ToRef         string
	RepoDir       string
	Patterns      []string
	Token         string
	Repo          string
	PR            int
	Verbose       bool
	InfoBuffer    io.Writer
	WarningBuffer io.Writer
}

// App represents the application with its dependencies
type App struct {
	Conf   *config.Config
	config *Config
	client gh.Client
}

// New creates a new App instance with the given configuration. The GitHub
// reporting fields are optional but must be given together.
func New(cfg Config) (*App, error) {
	app := &App{config: &cfg}
	if cfg.Token == "" && cfg.Repo == "" && cfg.PR == 0 {
		return app, nil
	}
	if cfg.Token == "" || cfg.Repo == "" || cfg.PR == 0 {
		return nil, fmt.Errorf("PR reporting requires token, repo, and PR number together")
	}
	repoSplit := strings.Split(cfg.Repo, "/")
	if len(repoSplit) != 2 {
		return nil, fmt.Errorf("invalid repo name: %s", cfg.Repo)
	}
	app.client = gh.NewClient(repoSplit[0], repoSplit[1], cfg.Token)
	return app, nil
}

func (a *App) printDebug(format string, args ...interface{}) {
	if a.config.Verbose {
		_, _ = fmt.Fprintf(a.config.InfoBuffer, format, args...)
	}
}

func (a *App) printWarn(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(a.config.WarningBuffer, format, args...)
}

// changeOracle is the slice of the git oracle the check loop needs.
type changeOracle interface {
	ifchanged.Oracle
	ChangedPaths() []string
}

// Run executes the application logic
func (a *App) Run() (*OutputData, error) {
	repo, err := git.OpenRepo(a.config.RepoDir)
	if err != nil {
		return &OutputData{}, fmt.Errorf("OpenRepo Error: %v", err)
	}

	fromRef, toRef := a.config.FromRef, a.config.ToRef
	var reader config.FileReader
	if a.client != nil {
		if err := a.client.InitPR(a.config.PR); err != nil {
			return &OutputData{}, fmt.Errorf("InitPR Error: %v", err)
		}
		a.printDebug("PR: %d\n", a.client.PR().GetNumber())
		if fromRef == "" {
			fromRef = a.client.PR().Base.GetSHA()
		}
		if toRef == "" {
			toRef = a.client.PR().Head.GetSHA()
		}
		// Read config from the base ref, not the checkout, so the branch
		// under review cannot edit what gets enforced.
		reader = repo.FileReader(fromRef)
	}

	conf, err := config.ReadConfig(repo.Root(), reader)
	if err != nil {
		a.printWarn("WARNING: Error reading ifchanged.toml - using default config\n")
	}
	a.Conf = conf

	oracle, err := git.NewOracle(repo, git.DiffContext{From: fromRef, To: toRef}, conf.Ignore, a.config.WarningBuffer)
	if err != nil {
		return &OutputData{}, fmt.Errorf("NewOracle Error: %v", err)
	}
	a.printDebug("Diff %s...%s: %d changed files\n", oracle.Context().From, oracle.Context().To, len(oracle.ChangedPaths()))

	outputData := a.checkFiles(oracle)

	if a.client != nil {
		if err := a.reportToPR(outputData); err != nil {
			a.printWarn("WARNING: Failed to report to PR: %v\n", err)
		}
	}

	return outputData, nil
}

// checkFiles runs the checker over every changed file selected by the
// configured patterns and aggregates the result.
func (a *App) checkFiles(oracle changeOracle) *OutputData {
	output := &OutputData{
		CheckedFiles: make([]string, 0),
		Violations:   make(map[string][]string),
	}
	violationCount := 0
	for _, result := range oracle.Match(a.config.Patterns) {
		if result.Unmatched() {
			a.printDebug("No changed files match %q\n", result.Pattern)
			continue
		}
		if oracle.IsExempt(result.Path) {
			a.printDebug("Skipping exempt file %s\n", result.Path)
			continue
		}
		output.CheckedFiles = append(output.CheckedFiles, result.Path)
		violations := ifchanged.NewChecker(oracle, result.Path).Check()
		if len(violations) > 0 {
			output.Violations[result.Path] = violations
			violationCount += len(violations)
		}
	}
	if violationCount == 0 {
		output.Success = true
		output.Message = fmt.Sprintf("Checked %d files with no violations", len(output.CheckedFiles))
	} else {
		output.Success = false
		output.Message = fmt.Sprintf("Found %d violations in %d files", violationCount, len(output.Violations))
	}
	return output
}

// reportToPR upserts the violation comment. A clean run updates an existing
// comment but never posts a new one.
func (a *App) reportToPR(output *OutputData) error {
	commentID, found, err := a.client.FindExistingComment(reportMarker, nil)
	if err != nil {
		return err
	}
	if found {
		return a.client.UpdateComment(commentID, reportBody(output))
	}
	if output.Success {
		return nil
	}
	return a.client.AddComment(reportBody(output))
}

func reportBody(output *OutputData) string {
	var sb strings.Builder
	sb.WriteString(reportMarker)
	sb.WriteString("\n## if-changed\n")
	sb.WriteString(output.Message)
	sb.WriteString("\n")
	for _, violation := range output.AllViolations() {
		sb.WriteString(fmt.Sprintf("- %s\n", violation))
	}
	return sb.String()
}
