package scanner

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"strings"

	"github.com/nkarpov/codesentry/internal/digest"
	"github.com/nkarpov/codesentry/internal/model"
)

// Block marker syntax. Bit-exact textual contract with user source: the
// marker must appear inside a line comment.
const (
	BlockStart = "@LOCK: START"
	BlockEnd   = "@LOCK: END"
)

// commentBlocks scans line-by-line for paired lock markers. The hashed
// unit is every line strictly between the pair; the marker lines
// themselves are excluded. Nesting is not supported: a START while a block
// is open is ignored, and an END with no open START is ignored. An
// unterminated START is logged and skipped.
func commentBlocks(path, content string) []model.ProtectedEntity {
	lines := strings.Split(content, "\n")
	var out []model.ProtectedEntity

	openStart := 0 // 1-based line of the open START marker, 0 when none
	for i, line := range lines {
		lineno := i + 1
		switch {
		case markerOnLine(line, BlockStart):
			if openStart == 0 {
				openStart = lineno
			}
		case markerOnLine(line, BlockEnd):
			if openStart == 0 {
				continue
			}
			text := sliceLines(lines, openStart+1, lineno-1)
			out = append(out, model.ProtectedEntity{
				Kind:      model.KindBlock,
				FilePath:  path,
				StartLine: openStart,
				EndLine:   lineno,
				Digest:    digest.Hash(text),
				Origin:    model.OriginComment,
			})
			openStart = 0
		}
	}
	if openStart != 0 {
		fmt.Fprintf(os.Stderr, "scanner: unterminated %s at %s:%d, block skipped\n", BlockStart, path, openStart)
	}
	return out
}

// markerOnLine reports whether marker appears in the comment portion of
// the line.
func markerOnLine(line, marker string) bool {
	idx := strings.Index(line, "//")
	return idx >= 0 && strings.Contains(line[idx:], marker)
}

// BlockSource re-extracts the current text of a registered block: the
// lines strictly between the recorded marker lines. An out-of-range span
// is a hash error; the caller skips the entity for that cycle.
func BlockSource(path string, startLine, endLine int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("scanner: read %s: %w", path, err)
	}
	lines := strings.Split(string(data), "\n")
	if startLine < 1 || endLine > len(lines) || startLine+1 > endLine-1 {
		return "", fmt.Errorf("scanner: block L%d-L%d out of range in %s", startLine, endLine, path)
	}
	return sliceLines(lines, startLine+1, endLine-1), nil
}

// FunctionSource re-locates a function by qualified name and returns its
// current declaration text. Line numbers may have drifted since
// registration, so the lookup is by name, not by position.
func FunctionSource(path, name string) (string, error) {
	_, _, text, err := functionSpan(path, name)
	return text, err
}

// LocateFunction finds a function by qualified name and returns a
// protection entity for its current position and content. The caller sets
// the origin.
func LocateFunction(path, name string) (model.ProtectedEntity, error) {
	start, end, text, err := functionSpan(path, name)
	if err != nil {
		return model.ProtectedEntity{}, err
	}
	return model.ProtectedEntity{
		Kind:      model.KindFunction,
		FilePath:  path,
		Name:      name,
		StartLine: start,
		EndLine:   end,
		Digest:    digest.Hash(text),
	}, nil
}

func functionSpan(path, name string) (start, end int, text string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, "", fmt.Errorf("scanner: read %s: %w", path, err)
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, string(data), parser.ParseComments)
	if err != nil {
		return 0, 0, "", fmt.Errorf("scanner: parse %s: %w", path, err)
	}

	lines := strings.Split(string(data), "\n")
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || FuncName(fn) != name {
			continue
		}
		start = fset.Position(fn.Pos()).Line
		end = fset.Position(fn.End()).Line
		return start, end, sliceLines(lines, start, end), nil
	}
	return 0, 0, "", fmt.Errorf("scanner: function %s not found in %s", name, path)
}
