package ir

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jptrs93/protohttp/internal/schema"

	"github.com/tidwall/btree"
)

type BuildOptions struct {
	// NamespaceOverride names the output namespace of files that declare
	// no package.
	NamespaceOverride string
	// Root is the directory output paths are made relative to.
	Root string
}

type symbol struct {
	kind  Kind
	index int
	file  int
}

type builder struct {
	prog    *Program
	set     *schema.Set
	symbols btree.Map[string, symbol]
	visible [][]bool
	raw     []*schema.File
}

// Build converts the raw schema set into a Program and resolves every field
// and method type.
func Build(set *schema.Set, opts BuildOptions) (*Program, error) {
	b := &builder{prog: &Program{}, set: set, raw: set.Files}
	for _, rf := range set.Files {
		b.prog.Files = append(b.prog.Files, &File{
			Path:      rf.Path,
			Name:      rf.Name,
			BaseName:  rf.BaseName(),
			RelDir:    relDir(opts.Root, rf.Path),
			Package:   rf.Package,
			Namespace: Namespace(rf.Package, opts.NamespaceOverride, rf.BaseName()),
			Input:     set.IsInput(rf.Path),
		})
	}
	for i, rf := range set.Files {
		for _, imp := range rf.Imports {
			if imp.Resolved == "" {
				continue
			}
			j, ok := set.Index(imp.Resolved)
			if !ok {
				return nil, &schema.ParseError{File: rf.Path, Err: fmt.Errorf("import %q was not loaded", imp.Path)}
			}
			b.prog.Files[i].Imports = append(b.prog.Files[i].Imports, j)
		}
	}
	b.computeVisibility()

	for i, rf := range set.Files {
		f := b.prog.Files[i]
		for _, m := range rf.Messages {
			idx, err := b.declareMessage(i, -1, rf.Package, m)
			if err != nil {
				return nil, err
			}
			f.Messages = append(f.Messages, idx)
		}
		for _, e := range rf.Enums {
			idx, err := b.declareEnum(i, -1, rf.Package, e)
			if err != nil {
				return nil, err
			}
			f.Enums = append(f.Enums, idx)
		}
	}

	for i, rf := range set.Files {
		for _, m := range rf.Messages {
			if err := b.resolveMessage(i, rf.Package, m); err != nil {
				return nil, err
			}
		}
		for _, s := range rf.Services {
			svc, err := b.resolveService(i, rf.Package, s)
			if err != nil {
				return nil, err
			}
			b.prog.Files[i].Services = append(b.prog.Files[i].Services, svc)
		}
	}
	return b.prog, nil
}

func relDir(root, path string) string {
	if root == "" {
		return ""
	}
	rel, err := filepath.Rel(root, filepath.Dir(path))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	return filepath.ToSlash(rel)
}

// computeVisibility marks, per file, the files whose declarations it may
// reference: itself, its direct imports, and whatever those re-export
// through import public.
func (b *builder) computeVisibility() {
	n := len(b.prog.Files)
	b.visible = make([][]bool, n)
	for i := range b.prog.Files {
		vis := make([]bool, n)
		vis[i] = true
		for _, j := range b.prog.Files[i].Imports {
			b.markPublic(j, vis)
		}
		b.visible[i] = vis
	}
}

func (b *builder) markPublic(file int, vis []bool) {
	if vis[file] {
		return
	}
	vis[file] = true
	rf := b.raw[file]
	for _, imp := range rf.Imports {
		if !imp.Public || imp.Resolved == "" {
			continue
		}
		if j, ok := b.set.Index(imp.Resolved); ok {
			b.markPublic(j, vis)
		}
	}
}

func join(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + "." + name
}

func (b *builder) declare(fullName string, sym symbol, line int) error {
	if prev, ok := b.symbols.Get(fullName); ok {
		return &schema.ParseError{
			File: b.raw[sym.file].Path,
			Line: line,
			Err:  fmt.Errorf("%s is already defined in %s", fullName, b.raw[prev.file].Path),
		}
	}
	b.symbols.Set(fullName, sym)
	return nil
}

func (b *builder) declareMessage(file, parent int, scope string, m *schema.Message) (int, error) {
	fullName := join(scope, m.Name)
	idx := len(b.prog.Messages)
	b.prog.Messages = append(b.prog.Messages, &Message{
		Name:     m.Name,
		FullName: fullName,
		File:     file,
		Parent:   parent,
	})
	if err := b.declare(fullName, symbol{kind: KindMessage, index: idx, file: file}, m.Line); err != nil {
		return 0, err
	}
	for _, nested := range m.Messages {
		child, err := b.declareMessage(file, idx, fullName, nested)
		if err != nil {
			return 0, err
		}
		b.prog.Messages[idx].Messages = append(b.prog.Messages[idx].Messages, child)
	}
	for _, e := range m.Enums {
		child, err := b.declareEnum(file, idx, fullName, e)
		if err != nil {
			return 0, err
		}
		b.prog.Messages[idx].Enums = append(b.prog.Messages[idx].Enums, child)
	}
	return idx, nil
}

func (b *builder) declareEnum(file, parent int, scope string, e *schema.Enum) (int, error) {
	fullName := join(scope, e.Name)
	idx := len(b.prog.Enums)
	values := make([]EnumValue, 0, len(e.Values))
	for _, v := range e.Values {
		values = append(values, EnumValue{Name: v.Name, Number: v.Number})
	}
	b.prog.Enums = append(b.prog.Enums, &Enum{
		Name:     e.Name,
		FullName: fullName,
		File:     file,
		Parent:   parent,
		Values:   values,
	})
	if err := b.declare(fullName, symbol{kind: KindEnum, index: idx, file: file}, e.Line); err != nil {
		return 0, err
	}
	return idx, nil
}

func (b *builder) resolveMessage(file int, scope string, m *schema.Message) error {
	fullName := join(scope, m.Name)
	sym, _ := b.symbols.Get(fullName)
	msg := b.prog.Messages[sym.index]
	path := b.raw[file].Path

	numbers := make(map[int]string, len(m.Fields))
	names := make(map[string]bool, len(m.Fields))
	for _, f := range m.Fields {
		if f.Map {
			return &schema.UnsupportedFeatureError{
				File:    path,
				Line:    f.Line,
				Feature: fmt.Sprintf("map field %s.%s", fullName, f.Name),
			}
		}
		if other, ok := numbers[f.Number]; ok {
			return &schema.ParseError{
				File: path,
				Line: f.Line,
				Err:  fmt.Errorf("%s: field %s reuses number %d of field %s", fullName, f.Name, f.Number, other),
			}
		}
		if names[f.Name] {
			return &schema.ParseError{
				File: path,
				Line: f.Line,
				Err:  fmt.Errorf("%s: duplicate field name %s", fullName, f.Name),
			}
		}
		numbers[f.Number] = f.Name
		names[f.Name] = true

		ref, err := b.resolve(file, fullName, f.Type)
		if err != nil {
			err.Message = fullName
			err.Member = f.Name
			return err
		}
		msg.Fields = append(msg.Fields, &Field{
			Name:     f.Name,
			JSONName: JSONName(m.Name, f.Name),
			Number:   f.Number,
			Repeated: f.Repeated,
			Type:     ref,
		})
	}
	for _, nested := range m.Messages {
		if err := b.resolveMessage(file, fullName, nested); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) resolveService(file int, scope string, s *schema.Service) (*Service, error) {
	svc := &Service{Name: s.Name}
	owner := join(scope, s.Name)
	for _, m := range s.Methods {
		in, err := b.resolve(file, scope, m.Input)
		if err != nil {
			err.Message = owner
			err.Member = m.Name
			return nil, err
		}
		out, err := b.resolve(file, scope, m.Output)
		if err != nil {
			err.Message = owner
			err.Member = m.Name
			return nil, err
		}
		if in.Kind != KindMessage && in.Kind != KindWellKnown || out.Kind != KindMessage && out.Kind != KindWellKnown {
			return nil, &schema.TypeResolutionError{
				File:    b.raw[file].Path,
				Message: owner,
				Member:  m.Name,
				Type:    m.Input + " -> " + m.Output,
				Hint:    "rpc request and response must be messages",
			}
		}
		svc.Methods = append(svc.Methods, &Method{
			Name:            m.Name,
			Input:           in,
			Output:          out,
			ClientStreaming: m.ClientStreaming,
			ServerStreaming: m.ServerStreaming,
		})
	}
	return svc, nil
}

// resolve finds the type named by ref as seen from scope, a dotted
// package-and-message path. Candidates are tried from the innermost scope
// outward; a candidate declared in a file that is not visible is skipped
// but remembered for the error hint.
func (b *builder) resolve(file int, scope, ref string) (TypeRef, *schema.TypeResolutionError) {
	if k, ok := ScalarKind(ref); ok {
		return TypeRef{Kind: k}, nil
	}
	fail := &schema.TypeResolutionError{File: b.raw[file].Path, Type: ref}

	var candidates []string
	if strings.HasPrefix(ref, ".") {
		candidates = []string{ref[1:]}
	} else {
		s := scope
		for {
			candidates = append(candidates, join(s, ref))
			if s == "" {
				break
			}
			if i := strings.LastIndexByte(s, '.'); i >= 0 {
				s = s[:i]
			} else {
				s = ""
			}
		}
	}

	for _, c := range candidates {
		if wk, ok := wellKnown[c]; ok {
			return TypeRef{Kind: KindWellKnown, WellKnown: wk}, nil
		}
		sym, ok := b.symbols.Get(c)
		if !ok {
			continue
		}
		if !b.visible[file][sym.file] {
			if fail.Hint == "" {
				fail.Hint = fmt.Sprintf("%s is defined in %s, which is not imported", c, b.raw[sym.file].Name)
			}
			continue
		}
		return TypeRef{Kind: sym.kind, Index: sym.index}, nil
	}
	if fail.Hint == "" {
		if pkg, ok := b.knownPackagePrefix(strings.TrimPrefix(ref, ".")); ok {
			fail.Hint = fmt.Sprintf("package %s has no such type", pkg)
		}
	}
	return TypeRef{}, fail
}

// knownPackagePrefix returns the longest dotted prefix of ref under which
// at least one symbol is declared.
func (b *builder) knownPackagePrefix(ref string) (string, bool) {
	parts := strings.Split(ref, ".")
	for n := len(parts) - 1; n > 0; n-- {
		prefix := strings.Join(parts[:n], ".")
		iter := b.symbols.Iter()
		if iter.Seek(prefix+".") && strings.HasPrefix(iter.Key(), prefix+".") {
			return prefix, true
		}
	}
	return "", false
}
