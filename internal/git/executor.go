package git

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// gitCommandExecutor runs a command and returns its stdout. The seam lets
// tests substitute canned git output.
type gitCommandExecutor interface {
	execute(command string, args ...string) ([]byte, error)
}

type realGitExecutor struct {
	dir string
}

func newRealGitExecutor(dir string) *realGitExecutor {
	return &realGitExecutor{dir: dir}
}

// execute captures stdout and stderr separately. Stdout may be file content
// handed back to a caller, so it must not be interleaved with diagnostics.
func (e *realGitExecutor) execute(command string, args ...string) ([]byte, error) {
	cmd := exec.Command(command, args...)
	cmd.Dir = e.dir
	stderr := bytes.NewBuffer([]byte{})
	cmd.Stderr = stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %s", command, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return output, nil
}
