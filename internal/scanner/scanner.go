// Package scanner finds return, break, and continue statements that sit
// directly inside a finally clause of Python source. Such a statement exits
// the finally clause early and unconditionally discards any exception in
// flight, so each occurrence is recorded as a finding.
package scanner

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Finding is one statement directly inside a finally clause.
// Line is 1-based; Col is a 0-based column.
type Finding struct {
	Kind    string // "return" | "break" | "continue"
	Line    int
	Col     int
	Context string // trimmed source line
}

// FileResult is the outcome of scanning one source unit.
type FileResult struct {
	Path       string
	Lines      int
	ParseError bool // syntax errors in the tree; no findings are reported
	Findings   []Finding
}

// Scanner scans Python sources. It owns a tree-sitter parser, which is not
// goroutine-safe: use one Scanner per worker.
type Scanner struct {
	parser *sitter.Parser
}

// New creates a Scanner for Python source files.
func New() *Scanner {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	return &Scanner{parser: parser}
}

// markers track which construct encloses the statement under inspection.
// A statement is "directly inside" a finally clause when the nearest
// relevant enclosing marker is markerFinally.
type marker uint8

const (
	markerFinally marker = iota
	markerLoop
	markerDef
)

// ScanSource parses content and reports findings. Files whose syntax tree
// contains errors are flagged as parse errors and yield no findings,
// mirroring the skip-on-syntax-error behavior of a strict parser.
func (s *Scanner) ScanSource(ctx context.Context, path string, content []byte) (*FileResult, error) {
	tree, err := s.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	res := &FileResult{
		Path:  path,
		Lines: bytes.Count(content, []byte{'\n'}) + 1,
	}

	root := tree.RootNode()
	if root.HasError() {
		res.ParseError = true
		return res, nil
	}

	lines := bytes.Split(content, []byte{'\n'})
	var state []marker
	walk(root, &state, lines, res)
	return res, nil
}

// walk descends the syntax tree maintaining the enclosing-marker stack.
//
// A finally clause pushes markerFinally over its children only; the try
// body, except handlers, and else clause push nothing, so a return inside a
// try nested in a finally still resolves to the outer finally. Loops push
// markerLoop over their whole statement, including the else clause.
// Function definitions (sync and async share the node type) push markerDef.
func walk(n *sitter.Node, state *[]marker, lines [][]byte, res *FileResult) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "function_definition":
			*state = append(*state, markerDef)
			walk(child, state, lines, res)
			*state = (*state)[:len(*state)-1]

		case "for_statement", "while_statement":
			*state = append(*state, markerLoop)
			walk(child, state, lines, res)
			*state = (*state)[:len(*state)-1]

		case "finally_clause":
			*state = append(*state, markerFinally)
			walk(child, state, lines, res)
			*state = (*state)[:len(*state)-1]

		case "return_statement":
			record(child, *state, markerDef, "return", lines, res)
			// A return expression cannot contain further statements.

		case "break_statement":
			record(child, *state, markerLoop, "break", lines, res)

		case "continue_statement":
			record(child, *state, markerLoop, "continue", lines, res)

		default:
			walk(child, state, lines, res)
		}
	}
}

// record applies the containment rule: walking outward from the statement,
// find the nearest enclosing marker that is either markerFinally or the
// marker that legitimately captures the statement (markerLoop for
// break/continue, markerDef for return). Only when markerFinally wins does
// the statement escape the finally clause, swallowing any exception.
func record(n *sitter.Node, state []marker, good marker, kind string, lines [][]byte, res *FileResult) {
	for i := len(state) - 1; i >= 0; i-- {
		m := state[i]
		if m != markerFinally && m != good {
			continue
		}
		if m == markerFinally {
			row := int(n.StartPoint().Row)
			res.Findings = append(res.Findings, Finding{
				Kind:    kind,
				Line:    row + 1,
				Col:     int(n.StartPoint().Column),
				Context: contextLine(lines, row),
			})
		}
		return
	}
}

// contextLine returns the trimmed source line at the 0-based row.
func contextLine(lines [][]byte, row int) string {
	if row < 0 || row >= len(lines) {
		return ""
	}
	return strings.TrimSpace(string(lines[row]))
}

// IsTestPath reports whether a source unit path looks like test code, using
// the layout conventions common on PyPI: test/tests directories, test_
// prefixed modules, _test suffixed modules, and pytest conftest files.
// Archive member paths ("dist.tar.gz!pkg/tests/x.py") are split on the
// member separator before inspection.
func IsTestPath(p string) bool {
	segs := strings.FieldsFunc(p, func(r rune) bool {
		return r == '/' || r == '\\' || r == '!'
	})
	if len(segs) == 0 {
		return false
	}
	base := segs[len(segs)-1]
	if strings.HasPrefix(base, "test_") || strings.HasSuffix(base, "_test.py") || base == "conftest.py" {
		return true
	}
	for _, seg := range segs[:len(segs)-1] {
		if seg == "test" || seg == "tests" || seg == "testing" {
			return true
		}
	}
	return false
}
