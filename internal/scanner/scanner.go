// Package scanner discovers protected code in Go source files. Two
// independent strategies run over the same content: functions carrying a
// protect directive on their declaration, and arbitrary line ranges
// bracketed by paired lock comments. Both register their findings through
// an idempotent upsert into the store.
package scanner

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nkarpov/codesentry/internal/digest"
	"github.com/nkarpov/codesentry/internal/model"
)

// Directive marks a function declaration as protected. Recognized bare or
// with an argument form (//codesentry:protect name).
const Directive = "//codesentry:protect"

// Sink receives discovered entities. *store.Session satisfies it.
type Sink interface {
	UpsertEntity(ctx context.Context, e model.ProtectedEntity) error
}

// Counts summarizes one directory scan.
type Counts struct {
	Files     int `json:"files"`
	Functions int `json:"functions"`
	Blocks    int `json:"blocks"`
}

// Scanner finds and registers protected entities. A nil sink discovers
// without registering.
type Scanner struct {
	sink Sink
}

// New creates a Scanner registering into sink.
func New(sink Sink) *Scanner {
	return &Scanner{sink: sink}
}

// ScanFile runs both discovery strategies over one Go source file and
// registers every finding. A parse failure skips the marker strategy but
// the comment strategy still runs over the raw lines.
func (s *Scanner) ScanFile(ctx context.Context, path string) ([]model.ProtectedEntity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scanner: read %s: %w", path, err)
	}
	content := string(data)

	var found []model.ProtectedEntity

	funcs, err := markerFunctions(path, content)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scanner: skipping marker scan of %s: %v\n", path, err)
	} else {
		found = append(found, funcs...)
	}

	found = append(found, commentBlocks(path, content)...)

	for i := range found {
		found[i].LastVerified = time.Now()
		if s.sink == nil {
			continue
		}
		if err := s.sink.UpsertEntity(ctx, found[i]); err != nil {
			return found, fmt.Errorf("scanner: register %s: %w", found[i].DisplayName(), err)
		}
	}
	return found, nil
}

// ScanDirectory walks root and scans every Go file, skipping vendor,
// testdata, and hidden or underscore-prefixed directories the way the
// toolchain does. Per-file failures are logged and do not abort the walk.
func (s *Scanner) ScanDirectory(ctx context.Context, root string) (Counts, error) {
	var counts Counts

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			fmt.Fprintf(os.Stderr, "scanner: walk %s: %v\n", path, err)
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (name == "vendor" || name == "testdata" ||
				strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}

		entities, err := s.ScanFile(ctx, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "scanner: %v\n", err)
			return nil
		}
		counts.Files++
		for _, e := range entities {
			if e.Kind == model.KindFunction {
				counts.Functions++
			} else {
				counts.Blocks++
			}
		}
		return nil
	})
	if err != nil {
		return counts, fmt.Errorf("scanner: walk %s: %w", root, err)
	}
	return counts, nil
}

// markerFunctions parses the file and returns every function declaration
// carrying the protect directive. The hashed unit is the declaration text
// from its first line through its last (doc comment excluded).
func markerFunctions(path, content string) ([]model.ProtectedEntity, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	lines := strings.Split(content, "\n")
	var out []model.ProtectedEntity

	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || !hasDirective(fn.Doc) {
			continue
		}
		start := fset.Position(fn.Pos()).Line
		end := fset.Position(fn.End()).Line
		text := sliceLines(lines, start, end)
		out = append(out, model.ProtectedEntity{
			Kind:     model.KindFunction,
			FilePath: path,
			Name:     FuncName(fn),
			Digest:   digest.Hash(text),
			Origin:   model.OriginMarker,
		})
	}
	return out, nil
}

// hasDirective reports whether a doc comment group contains the protect
// directive, bare or in argument form.
func hasDirective(doc *ast.CommentGroup) bool {
	if doc == nil {
		return false
	}
	for _, c := range doc.List {
		text := strings.TrimSpace(c.Text)
		if text == Directive || strings.HasPrefix(text, Directive+" ") || strings.HasPrefix(text, Directive+"(") {
			return true
		}
	}
	return false
}

// FuncName returns the qualified name of a declaration: methods as
// Type.Name, functions as their bare name.
func FuncName(fn *ast.FuncDecl) string {
	name := fn.Name.Name
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return name
	}
	switch t := fn.Recv.List[0].Type.(type) {
	case *ast.StarExpr:
		return exprName(t.X) + "." + name
	default:
		return exprName(t) + "." + name
	}
}

func exprName(e ast.Expr) string {
	switch t := e.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr:
		return exprName(t.X)
	case *ast.IndexListExpr:
		return exprName(t.X)
	case *ast.StarExpr:
		return exprName(t.X)
	default:
		return ""
	}
}

// sliceLines returns the 1-based inclusive line range joined by newlines.
func sliceLines(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}
