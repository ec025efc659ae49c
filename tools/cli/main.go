package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/boyter/gocodewalker"
	"github.com/multimediallc/if-changed/internal/app"
	f "github.com/multimediallc/if-changed/pkg/functional"
	"github.com/multimediallc/if-changed/pkg/ifchanged"
	"github.com/urfave/cli/v2"
)

func stripRoot(root string, path string) string {
	if root == "." {
		return path
	}
	return strings.TrimPrefix(path, root+"/")
}

func main() {
	var root string
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "Print version",
	}
	cli.VersionPrinter = func(cCtx *cli.Context) {
		fmt.Println(cCtx.App.Version)
	}
	tool := &cli.App{
		Name:        "if-changed-cli",
		Usage:       "CLI tool for working with if-changed annotations",
		Version:     "v0.1.0.dev",
		Description: "",
		Commands: []*cli.Command{
			{
				Name:        "check",
				Aliases:     []string{"c"},
				Usage:       "Check then-change obligations against a diff",
				UsageText:   "if-changed-cli check [options] [pattern1] [pattern2]...",
				Description: "Check that every modified if-changed block had its then-change obligations met. Patterns restrict the check to matching changed files; they may also be piped on stdin, one per line.",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "root",
						Aliases:     []string{"r", "repo"},
						Value:       "./",
						Usage:       "Path to local Git repo",
						Destination: &root,
					},
					&cli.StringFlag{
						Name:  "from-ref",
						Value: "",
						Usage: "Base revision of the diff (defaults to HEAD)",
					},
					&cli.StringFlag{
						Name:  "to-ref",
						Value: "",
						Usage: "Head revision of the diff (defaults to the working tree)",
					},
					&cli.BoolFlag{
						Name:  "verbose",
						Value: false,
						Usage: "Print debug output",
					},
				},
				Action: func(cCtx *cli.Context) error {
					patterns := cCtx.Args().Slice()
					if isStdinPiped() {
						stdinPatterns, err := scanStdin()
						if err != nil {
							return err
						}
						patterns = append(patterns, stdinPatterns...)
					}
					patterns = f.RemoveDuplicates(patterns)
					return runCheck(root, cCtx.String("from-ref"), cCtx.String("to-ref"), patterns, cCtx.Bool("verbose"))
				},
			},
			{
				Name:        "blocks",
				Aliases:     []string{"b"},
				Usage:       "List if-changed blocks in the repository",
				UsageText:   "if-changed-cli blocks [options] [target-dir]",
				Description: "Walk the repository and print every if-changed block with its location and then-change obligations. If target-dir is specified, only files under that directory are scanned.",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "root",
						Aliases:     []string{"r", "repo"},
						Value:       "./",
						Usage:       "Path to local Git repo",
						Destination: &root,
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "default",
						Usage:   "Output format.  Allowed values are: default, one-line, and json",
					},
				},
				Action: func(cCtx *cli.Context) error {
					target := ""
					if cCtx.NArg() > 0 {
						target = cCtx.Args().First()
					}
					format, err := validateFormat(cCtx.String("format"))
					if err != nil {
						return err
					}
					return listBlocks(root, target, format)
				},
			},
		},
	}

	err := tool.Run(os.Args)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func runCheck(root string, fromRef string, toRef string, patterns []string, verbose bool) error {
	if repoStat, err := os.Lstat(root); err != nil || !repoStat.IsDir() {
		return fmt.Errorf("root is not a directory: %s", root)
	}
	if gitStat, err := os.Stat(filepath.Join(root, ".git")); err != nil || !gitStat.IsDir() {
		return fmt.Errorf("root is not a Git repository: %s", root)
	}

	checker, err := app.New(app.Config{
		FromRef:       fromRef,
		ToRef:         toRef,
		RepoDir:       root,
		Patterns:      patterns,
		Verbose:       verbose,
		InfoBuffer:    os.Stdout,
		WarningBuffer: os.Stderr,
	})
	if err != nil {
		return err
	}
	output, err := checker.Run()
	if err != nil {
		return err
	}
	if !output.Success {
		report := fmt.Sprintf("%s\n - %s", output.Message, strings.Join(output.AllViolations(), "\n - "))
		if checker.Conf.Enforcement.FailCheck {
			return errors.New(report)
		}
		fmt.Println(report)
		return nil
	}
	fmt.Println(output.Message)
	return nil
}

// BlockInfo is one if-changed block flattened for display.
type BlockInfo struct {
	File        string   `json:"file"`
	Name        string   `json:"name,omitempty"`
	Start       int      `json:"start"`
	End         int      `json:"end"`
	Obligations []string `json:"obligations"`
}

func listBlocks(root string, target string, format OutputFormat) error {
	root = filepath.Clean(root)
	if repoStat, err := os.Lstat(root); err != nil || !repoStat.IsDir() {
		return fmt.Errorf("root is not a directory: %s", root)
	}
	if gitStat, err := os.Stat(filepath.Join(root, ".git")); err != nil || !gitStat.IsDir() {
		return fmt.Errorf("root is not a Git repository: %s", root)
	}

	fileListQueue := make(chan *gocodewalker.File, 100)

	walker := gocodewalker.NewFileWalker(root, fileListQueue)
	walker.IncludeHidden = true
	walker.ExcludeDirectory = []string{".git"}

	errChan := make(chan error)

	go func() {
		err := walker.Start()
		errChan <- err
		close(errChan)
	}()

	files := make([]string, 0)
	for fw := range fileListQueue {
		files = append(files, stripRoot(root, fw.Location))
	}

	if err := <-errChan; err != nil {
		return fmt.Errorf("error walking repo: %s", err)
	}

	if target != "" {
		files = f.Filtered(files, func(path string) bool {
			return strings.HasPrefix(path, target)
		})
	}
	slices.Sort(files)

	blocks := make([]BlockInfo, 0)
	for _, file := range files {
		fileBlocks, warnings := scanFile(file, filepath.Join(root, file))
		for _, warning := range warnings {
			_, _ = fmt.Fprintf(os.Stderr, "WARNING: %s\n", warning)
		}
		blocks = append(blocks, fileBlocks...)
	}
	slices.SortFunc(blocks, func(a, b BlockInfo) int {
		if c := strings.Compare(a.File, b.File); c != 0 {
			return c
		}
		return a.Start - b.Start
	})

	switch format {
	case FormatJSON:
		jsonBlocks(blocks)
	case FormatOneLine:
		printBlocks(blocks, true)
	default:
		printBlocks(blocks, false)
	}
	return nil
}

// scanFile parses a single file and flattens its blocks. Parse problems come
// back as warnings so one bad file does not stop the listing.
func scanFile(path string, abs string) ([]BlockInfo, []string) {
	parser, err := ifchanged.Open(path, abs)
	if err != nil {
		return nil, []string{fmt.Sprintf("Failed to read %q: %v.", path, err)}
	}
	defer func() {
		_ = parser.Close()
	}()

	blocks := make([]BlockInfo, 0)
	for parser.Scan() {
		block := parser.Block()
		blocks = append(blocks, BlockInfo{
			File:        path,
			Name:        block.Name,
			Start:       block.Start,
			End:         block.End,
			Obligations: f.Map(block.Obligations, obligationString),
		})
	}
	return blocks, parser.Errs()
}

// obligationString renders an obligation the way it was written, with the
// ":name" suffix for named entries.
func obligationString(o ifchanged.Obligation) string {
	if o.Named {
		return o.Pattern + ":" + o.Name
	}
	return o.Pattern
}

func jsonBlocks(blocks []BlockInfo) {
	jsonString, _ := json.Marshal(blocks)
	fmt.Println(string(jsonString))
}

func printBlocks(blocks []BlockInfo, oneLine bool) {
	first := true
	for _, block := range blocks {
		if !first && !oneLine {
			fmt.Println()
		}
		first = false

		header := fmt.Sprintf("%s:%d-%d", block.File, block.Start, block.End)
		if block.Name != "" {
			header = fmt.Sprintf("%s (%s)", header, block.Name)
		}
		if oneLine {
			fmt.Printf("%s: %s\n", header, strings.Join(block.Obligations, ", "))
			continue
		}
		fmt.Println(header)
		for _, obligation := range block.Obligations {
			fmt.Printf("  %s\n", obligation)
		}
	}
}
