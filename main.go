package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/multimediallc/if-changed/internal/app"
)

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func ignoreError[V any, E error](res V, _ E) V {
	return res
}

var (
	WarningBuffer = bytes.NewBuffer([]byte{})
	InfoBuffer    = bytes.NewBuffer([]byte{})
)

type Flags struct {
	FromRef *string
	ToRef   *string
	RepoDir *string
	Token   *string
	Repo    *string
	PR      *int
	Verbose *bool
}

var flags *Flags

var exitFunc = os.Exit

func registerFlags() *Flags {
	return &Flags{
		FromRef: flag.String("from-ref", getEnv("PRE_COMMIT_FROM_REF", getEnv("INPUT_FROM-REF", "")), "Revision the diff is taken from (default HEAD)"),
		ToRef:   flag.String("to-ref", getEnv("PRE_COMMIT_TO_REF", getEnv("INPUT_TO-REF", "")), "Revision the diff is taken to (default working tree)"),
		RepoDir: flag.String("dir", getEnv("GITHUB_WORKSPACE", "."), "Path to local Git repo"),
		Token:   flag.String("token", getEnv("INPUT_GITHUB-TOKEN", ""), "GitHub authentication token"),
		Repo:    flag.String("repo", getEnv("INPUT_REPOSITORY", ""), "GitHub repo name"),
		PR:      flag.Int("pr", ignoreError(strconv.Atoi(getEnv("INPUT_PR", ""))), "Pull Request number"),
		Verbose: flag.Bool("v", ignoreError(strconv.ParseBool(getEnv("INPUT_VERBOSE", "0"))), "Verbose output"),
	}
}

// initFlags validates the parsed flags. The PR reporting flags are optional
// but only work as a set.
func initFlags(fl *Flags) error {
	hasToken := *fl.Token != ""
	hasRepo := *fl.Repo != ""
	hasPR := *fl.PR != 0
	if !hasToken && !hasRepo && !hasPR {
		return nil
	}
	missing := make([]string, 0, 3)
	if !hasToken {
		missing = append(missing, "token")
	}
	if !hasRepo {
		missing = append(missing, "repo")
	}
	if !hasPR {
		missing = append(missing, "pr")
	}
	if len(missing) > 0 {
		return fmt.Errorf("PR reporting flags must be set together; missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

func flushBuffers(infoTarget io.Writer) {
	if _, err := WarningBuffer.WriteTo(os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing warning buffer: %v\n", err)
	}
	if *flags.Verbose {
		if _, err := InfoBuffer.WriteTo(infoTarget); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing info buffer: %v\n", err)
		}
	}
}

// shouldFail should always be true for errors that are not recoverable
func errorAndExit(shouldFail bool, format string, args ...interface{}) {
	flushBuffers(os.Stderr)
	fmt.Fprintf(os.Stderr, format, args...)
	if shouldFail {
		exitFunc(1)
	} else {
		exitFunc(0)
	}
}

func printDebug(format string, args ...interface{}) {
	if *flags.Verbose {
		fmt.Fprintf(InfoBuffer, format, args...)
	}
}

func printWarning(format string, args ...interface{}) {
	fmt.Fprintf(WarningBuffer, format, args...)
}

// writeGitHubOutput appends the run result to GITHUB_OUTPUT when set.
func writeGitHubOutput(output *app.OutputData) error {
	outputPath := os.Getenv("GITHUB_OUTPUT")
	if outputPath == "" || output == nil {
		return nil
	}
	data, err := json.Marshal(output)
	if err != nil {
		return err
	}
	file, err := os.OpenFile(outputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer func() {
		_ = file.Close()
	}()
	_, err = fmt.Fprintf(file, "json=%s\n", data)
	return err
}

func main() {
	flags = registerFlags()
	flag.Parse()
	if err := initFlags(flags); err != nil {
		errorAndExit(true, "%v\n", err)
	}

	application, err := app.New(app.Config{
		FromRef:       *flags.FromRef,
		ToRef:         *flags.ToRef,
		RepoDir:       *flags.RepoDir,
		Patterns:      flag.Args(),
		Token:         *flags.Token,
		Repo:          *flags.Repo,
		PR:            *flags.PR,
		Verbose:       *flags.Verbose,
		InfoBuffer:    InfoBuffer,
		WarningBuffer: WarningBuffer,
	})
	if err != nil {
		errorAndExit(true, "Setup Error: %v\n", err)
	}

	printDebug("Checking %s\n", *flags.RepoDir)
	output, err := application.Run()
	if outErr := writeGitHubOutput(output); outErr != nil {
		printWarning("WARNING: Failed to write GITHUB_OUTPUT: %v\n", outErr)
	}
	if err != nil {
		errorAndExit(true, "%v\n", err)
	}

	if !output.Success {
		failCheck := true
		if application.Conf != nil && application.Conf.Enforcement != nil {
			failCheck = application.Conf.Enforcement.FailCheck
		}
		errorAndExit(
			failCheck,
			"FAIL: %s\n - %s\n",
			output.Message,
			strings.Join(output.AllViolations(), "\n - "),
		)
	}

	flushBuffers(os.Stdout)
	fmt.Println(output.Message)
}
