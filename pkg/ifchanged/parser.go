package ifchanged

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

const (
	ifChangedMarker  = "if-changed"
	thenChangeMarker = "then-change"
)

// commentStartChars are the characters that may begin a line comment in the
// languages we scan. A run of them after leading whitespace is stripped so
// markers are found inside //, #, --, ;, REM, ! and <!-- comments alike.
const commentStartChars = "/#-';REM!*<"

// maxLineSize bounds a single source line. Minified assets can exceed the
// bufio default.
const maxLineSize = 1024 * 1024

// Parser scans a source file for if-changed blocks. Blocks are yielded in
// closing order as Scan advances, so nested blocks come out innermost
// first. A marker the parser cannot make sense of stops the scan; Errs
// reports what went wrong.
type Parser struct {
	path    string
	file    *os.File
	scanner *bufio.Scanner
	lineNo  int
	line    string
	open    []Block
	block   Block
	errs    []string
	done    bool
}

// Open returns a Parser reading the file at abs. The path argument is the
// repository-relative name used in error messages.
func Open(path, abs string) (*Parser, error) {
	file, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineSize)
	return &Parser{path: path, file: file, scanner: scanner}, nil
}

func (p *Parser) Close() error {
	return p.file.Close()
}

// Block returns the block found by the last successful Scan.
func (p *Parser) Block() Block {
	return p.block
}

// Errs returns the errors that stopped the scan. It is only meaningful
// once Scan has returned false.
func (p *Parser) Errs() []string {
	return p.errs
}

// Scan advances to the next complete block. It returns false when the file
// is exhausted or the scan failed.
func (p *Parser) Scan() bool {
	if p.done {
		return false
	}
	for {
		ok, readErr := p.nextLine()
		if readErr != "" {
			return p.fail(readErr)
		}
		if !ok {
			break
		}
		p.stripComments()
		if p.eatPrefix(ifChangedMarker) {
			name, named, errs := p.parseBlockName()
			if errs != nil {
				return p.fail(errs...)
			}
			p.open = append(p.open, Block{Name: name, Named: named, Start: p.lineNo})
		}
		if !p.seek(thenChangeMarker) {
			continue
		}
		marker := p.lineNo
		obligations, errs := p.parseObligations(marker)
		if errs != nil {
			// The failed then-change still closes the innermost block.
			if len(p.open) > 0 {
				p.open = p.open[:len(p.open)-1]
			} else {
				errs = append([]string{p.missingIfChanged(marker)}, errs...)
			}
			return p.fail(errs...)
		}
		if len(p.open) == 0 {
			return p.fail(p.missingIfChanged(marker))
		}
		block := p.open[len(p.open)-1]
		p.open = p.open[:len(p.open)-1]
		block.End = marker
		block.Obligations = obligations
		p.block = block
		return true
	}
	p.done = true
	for _, block := range p.open {
		p.errs = append(p.errs, fmt.Sprintf("Missing %q for %q at line %d for %q.", thenChangeMarker, ifChangedMarker, block.Start, p.path))
	}
	p.open = nil
	return false
}

func (p *Parser) fail(errs ...string) bool {
	p.errs = append(p.errs, errs...)
	p.done = true
	return false
}

func (p *Parser) missingIfChanged(marker int) string {
	return fmt.Sprintf("Missing %q for %q at line %d for %q.", ifChangedMarker, thenChangeMarker, marker, p.path)
}

func (p *Parser) nextLine() (bool, string) {
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return false, fmt.Sprintf("Failed to read %q: %v.", p.path, err)
		}
		return false, ""
	}
	p.lineNo++
	p.line = p.scanner.Text()
	return true, ""
}

// stripComments drops leading whitespace and any run of comment-start
// characters, exposing a marker hiding inside a comment.
func (p *Parser) stripComments() {
	p.line = strings.TrimLeft(trimLeftSpace(p.line), commentStartChars)
}

// eatPrefix consumes leading whitespace, then value if the line starts
// with it. Whitespace is consumed either way.
func (p *Parser) eatPrefix(value string) bool {
	p.line = trimLeftSpace(p.line)
	rest, ok := strings.CutPrefix(p.line, value)
	if ok {
		p.line = rest
	}
	return ok
}

// seek advances the line past the first occurrence of value, if any.
func (p *Parser) seek(value string) bool {
	i := strings.Index(p.line, value)
	if i < 0 {
		return false
	}
	p.line = p.line[i+len(value):]
	return true
}

// parseBlockName reads the optional (name) group after an if-changed
// marker.
func (p *Parser) parseBlockName() (string, bool, []string) {
	if !p.eatPrefix("(") {
		return "", false, nil
	}
	end := strings.IndexByte(p.line, ')')
	if end < 0 {
		return "", false, []string{fmt.Sprintf("Could not find ')' for %q at line %d for %q.", ifChangedMarker, p.lineNo, p.path)}
	}
	name := strings.TrimSpace(p.line[:end])
	p.line = p.line[end+1:]
	return name, true, nil
}

// parseObligations reads the parenthesized path list after a then-change
// marker. Entries are committed at ',' or ')' and may span lines; text left
// at the end of a line accumulates into the current entry. A backslash
// keeps the character after it from acting as a delimiter.
func (p *Parser) parseObligations(marker int) ([]Obligation, []string) {
	if !p.eatPrefix("(") {
		return nil, []string{fmt.Sprintf("Could not find '(' for %q at line %d for %q.", thenChangeMarker, marker, p.path)}
	}
	var obligations []Obligation
	var buf strings.Builder
	entryLine := 0
	for {
		p.line = trimLeftSpace(p.line)
		if p.line == "" {
			ok, readErr := p.nextLine()
			if readErr != "" {
				return nil, []string{readErr}
			}
			if !ok {
				return nil, []string{fmt.Sprintf("Could not find ')' for %q at line %d for %q.", thenChangeMarker, marker, p.path)}
			}
			p.stripComments()
			continue
		}
		if entryLine == 0 {
			entryLine = p.lineNo
		}
		cut, size := len(p.line), 0
		closed, escape := false, false
		if i := strings.IndexByte(p.line, ','); i >= 0 {
			cut, size = i, 1
		}
		if i := strings.IndexByte(p.line, ')'); i >= 0 && i < cut {
			cut, size = i, 1
			closed = true
		}
		if i := strings.IndexByte(p.line, '\\'); i >= 0 && i < cut {
			cut, size = i, 1
			closed, escape = false, true
		}
		buf.WriteString(strings.TrimSpace(p.line[:cut]))
		p.line = p.line[cut+size:]
		if escape {
			if p.line != "" {
				buf.WriteByte(p.line[0])
				p.line = p.line[1:]
			}
			continue
		}
		if size == 0 {
			// No delimiter on this line; the entry continues on the next.
			continue
		}

		entry := buf.String()
		buf.Reset()
		if pattern, name, named := strings.Cut(entry, ":"); named {
			obligations = append(obligations, Obligation{
				Pattern: strings.TrimSpace(pattern),
				Name:    strings.TrimSpace(name),
				Named:   true,
				Line:    marker,
			})
		} else if entry != "" {
			obligations = append(obligations, Obligation{Pattern: entry, Line: marker})
		} else if !closed {
			return nil, []string{fmt.Sprintf("Unexpected empty path at line %d for %q at line %d for %q.", entryLine, thenChangeMarker, marker, p.path)}
		}
		if closed {
			return obligations, nil
		}
		entryLine = 0
	}
}

func trimLeftSpace(s string) string {
	return strings.TrimLeftFunc(s, unicode.IsSpace)
}
