package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jptrs93/protohttp/internal/schema"

	"github.com/bufbuild/protocompile/ast"
	protoparser "github.com/bufbuild/protocompile/parser"
	"github.com/bufbuild/protocompile/reporter"
)

// importSet is the import closure of one group of inputs. Every import is
// looked up in the importing file's directory and then in the roots, and
// each import name maps to exactly one file on disk.
type importSet struct {
	roots []string
	paths map[string]string
}

// resolveImports walks the imports reachable from names, which live in
// dir. Files that fail to parse or imports that cannot be found are left
// out; the compiler reports them with their position.
func resolveImports(dir string, names, roots []string) (*importSet, error) {
	s := &importSet{roots: roots, paths: make(map[string]string)}
	for _, name := range names {
		if err := s.add(name, filepath.Join(dir, name), "", 0); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *importSet) add(name, abs, from string, line int) error {
	if prev, ok := s.paths[name]; ok {
		if prev == abs {
			return nil
		}
		if from == "" {
			from = abs
		}
		return &schema.ParseError{
			File: from,
			Line: line,
			Err:  fmt.Errorf("import %q resolves to %s but the name already refers to %s", name, abs, prev),
		}
	}
	s.paths[name] = abs
	for _, imp := range scanImports(abs) {
		if strings.HasPrefix(imp.name, schema.WellKnownPrefix) {
			continue
		}
		resolved, ok := findImport(filepath.Dir(abs), s.roots, imp.name)
		if !ok {
			continue
		}
		if err := s.add(imp.name, resolved, abs, imp.line); err != nil {
			return err
		}
	}
	return nil
}

// path returns the file an import name was resolved to, or "".
func (s *importSet) path(name string) string {
	return s.paths[name]
}

// materialize copies every resolved file to root at its import name.
func (s *importSet) materialize(root string) error {
	for name, abs := range s.paths {
		if !filepath.IsLocal(filepath.FromSlash(name)) {
			return &schema.ParseError{File: abs, Err: fmt.Errorf("import name %q leaves the import root", name)}
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return &schema.ParseError{File: abs, Err: err}
		}
		dst := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("lay out %s: %w", name, err)
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return fmt.Errorf("lay out %s: %w", name, err)
		}
	}
	return nil
}

type importDecl struct {
	name string
	line int
}

func scanImports(abs string) []importDecl {
	f, err := os.Open(abs)
	if err != nil {
		return nil
	}
	defer f.Close()
	node, err := protoparser.Parse(abs, f, reporter.NewHandler(nil))
	if err != nil {
		return nil
	}
	var out []importDecl
	for _, decl := range node.Decls {
		if imp, ok := decl.(*ast.ImportNode); ok {
			out = append(out, importDecl{
				name: imp.Name.AsString(),
				line: node.NodeInfo(imp).Start().Line,
			})
		}
	}
	return out
}

// findImport searches dir and then each root for name.
func findImport(dir string, roots []string, name string) (string, bool) {
	for _, base := range append([]string{dir}, roots...) {
		path := filepath.Join(base, filepath.FromSlash(name))
		if st, err := os.Stat(path); err == nil && !st.IsDir() {
			abs, err := filepath.Abs(path)
			if err != nil {
				return "", false
			}
			return abs, true
		}
	}
	return "", false
}
