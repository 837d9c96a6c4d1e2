package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/scanner"

	"github.com/jptrs93/protohttp/internal/schema"
)

// TextParser recognizes the subset of proto syntax needed for code
// generation without a compiler. Options, comments, reserved ranges and
// extensions are skipped; types are left unresolved.
type TextParser struct {
	Roots []string
}

func (p *TextParser) Name() string { return StrategyText }

func (p *TextParser) Parse(ctx context.Context, paths []string) (*schema.Set, error) {
	inputs, err := absPaths(paths)
	if err != nil {
		return nil, err
	}
	l := &loader{
		roots:   p.Roots,
		files:   make(map[string]*schema.File),
		loading: make(map[string]bool),
	}
	sorted := append([]string(nil), inputs...)
	sort.Strings(sorted)
	for _, in := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := l.load(in, filepath.Base(in)); err != nil {
			return nil, err
		}
	}
	return newSet(l.files, inputs), nil
}

type loader struct {
	roots   []string
	files   map[string]*schema.File
	loading map[string]bool
}

func (l *loader) load(abs, name string) error {
	if _, ok := l.files[abs]; ok {
		return nil
	}
	if l.loading[abs] {
		return &schema.ParseError{File: abs, Err: errors.New("import cycle")}
	}
	l.loading[abs] = true
	defer delete(l.loading, abs)

	src, err := os.ReadFile(abs)
	if err != nil {
		return &schema.ParseError{File: abs, Err: err}
	}
	f, lines, err := parseText(abs, src)
	if err != nil {
		return err
	}
	f.Name = displayName(l.roots, abs, name)

	for i := range f.Imports {
		imp := &f.Imports[i]
		if strings.HasPrefix(imp.Path, schema.WellKnownPrefix) {
			continue
		}
		resolved, ok := findImport(filepath.Dir(abs), l.roots, imp.Path)
		if !ok {
			return &schema.ParseError{File: abs, Line: lines[i], Err: fmt.Errorf("import %q not found", imp.Path)}
		}
		imp.Resolved = resolved
		if err := l.load(resolved, imp.Path); err != nil {
			return err
		}
	}
	l.files[abs] = f
	return nil
}

type token struct {
	kind rune
	text string
	line int
}

func tokenize(path string, src []byte) ([]token, error) {
	var s scanner.Scanner
	s.Init(bytes.NewReader(src))
	s.Filename = path
	s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats |
		scanner.ScanStrings | scanner.ScanRawStrings | scanner.ScanComments | scanner.SkipComments
	var scanErr error
	s.Error = func(s *scanner.Scanner, msg string) {
		if scanErr == nil {
			scanErr = &schema.ParseError{File: path, Line: s.Position.Line, Err: errors.New(msg)}
		}
	}

	var toks []token
	for tok := s.Scan(); tok != scanner.EOF; tok = s.Scan() {
		line := s.Position.Line
		switch tok {
		case '\'':
			var b strings.Builder
			for r := s.Next(); r != '\''; r = s.Next() {
				if r == scanner.EOF || r == '\n' {
					return nil, &schema.ParseError{File: path, Line: line, Err: errors.New("unterminated string")}
				}
				if r == '\\' {
					r = s.Next()
				}
				b.WriteRune(r)
			}
			toks = append(toks, token{kind: scanner.String, text: b.String(), line: line})
		case scanner.String, scanner.RawString:
			text := s.TokenText()
			if v, err := strconv.Unquote(text); err == nil {
				text = v
			}
			toks = append(toks, token{kind: scanner.String, text: text, line: line})
		default:
			toks = append(toks, token{kind: tok, text: s.TokenText(), line: line})
		}
		if scanErr != nil {
			return nil, scanErr
		}
	}
	return toks, scanErr
}

type textParser struct {
	path string
	toks []token
	pos  int
}

// parseText parses one file. The returned lines hold the source line of
// each import, for error reporting once imports are resolved.
func parseText(path string, src []byte) (*schema.File, []int, error) {
	toks, err := tokenize(path, src)
	if err != nil {
		return nil, nil, err
	}
	p := &textParser{path: path, toks: toks}
	f := &schema.File{Path: path}
	var lines []int
	for !p.done() {
		t := p.peek()
		switch {
		case t.kind == ';':
			p.next()
		case p.isIdent("syntax"), p.isIdent("edition"), p.isIdent("option"):
			if err := p.skipStatement(); err != nil {
				return nil, nil, err
			}
		case p.isIdent("package"):
			p.next()
			name, err := p.fullIdent()
			if err != nil {
				return nil, nil, err
			}
			f.Package = name
			if err := p.expect(';'); err != nil {
				return nil, nil, err
			}
		case p.isIdent("import"):
			p.next()
			imp := schema.Import{}
			if p.isIdent("public") {
				imp.Public = true
				p.next()
			} else if p.isIdent("weak") {
				p.next()
			}
			s := p.next()
			if s.kind != scanner.String {
				return nil, nil, p.errorf(s, "expected import path, found %q", s.text)
			}
			imp.Path = s.text
			if err := p.expect(';'); err != nil {
				return nil, nil, err
			}
			f.Imports = append(f.Imports, imp)
			lines = append(lines, s.line)
		case p.isIdent("message"):
			m, err := p.message()
			if err != nil {
				return nil, nil, err
			}
			f.Messages = append(f.Messages, m)
		case p.isIdent("enum"):
			e, err := p.enum()
			if err != nil {
				return nil, nil, err
			}
			f.Enums = append(f.Enums, e)
		case p.isIdent("service"):
			s, err := p.service()
			if err != nil {
				return nil, nil, err
			}
			f.Services = append(f.Services, s)
		case p.isIdent("extend"):
			if err := p.skipStatement(); err != nil {
				return nil, nil, err
			}
		default:
			return nil, nil, p.errorf(t, "unexpected %q", t.text)
		}
	}
	return f, lines, nil
}

func (p *textParser) done() bool { return p.pos >= len(p.toks) }

func (p *textParser) peek() token {
	if p.done() {
		last := 0
		if len(p.toks) > 0 {
			last = p.toks[len(p.toks)-1].line
		}
		return token{kind: scanner.EOF, text: "end of file", line: last}
	}
	return p.toks[p.pos]
}

func (p *textParser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return token{kind: scanner.EOF, text: "end of file"}
	}
	return p.toks[p.pos+n]
}

func (p *textParser) next() token {
	t := p.peek()
	if !p.done() {
		p.pos++
	}
	return t
}

func (p *textParser) isIdent(word string) bool {
	t := p.peek()
	return t.kind == scanner.Ident && t.text == word
}

func (p *textParser) errorf(t token, format string, args ...any) error {
	return &schema.ParseError{File: p.path, Line: t.line, Err: fmt.Errorf(format, args...)}
}

func (p *textParser) expect(kind rune) error {
	t := p.next()
	if t.kind != kind {
		return p.errorf(t, "expected %q, found %q", string(kind), t.text)
	}
	return nil
}

func (p *textParser) ident() (token, error) {
	t := p.next()
	if t.kind != scanner.Ident {
		return t, p.errorf(t, "expected identifier, found %q", t.text)
	}
	return t, nil
}

// fullIdent reads a possibly dotted and possibly fully-qualified name.
func (p *textParser) fullIdent() (string, error) {
	var b strings.Builder
	if p.peek().kind == '.' {
		p.next()
		b.WriteByte('.')
	}
	t, err := p.ident()
	if err != nil {
		return "", err
	}
	b.WriteString(t.text)
	for p.peek().kind == '.' {
		p.next()
		t, err := p.ident()
		if err != nil {
			return "", err
		}
		b.WriteByte('.')
		b.WriteString(t.text)
	}
	return b.String(), nil
}

// skipStatement consumes tokens through the next ';' or balanced block at
// nesting depth zero.
func (p *textParser) skipStatement() error {
	depth := 0
	for {
		t := p.next()
		switch t.kind {
		case scanner.EOF:
			return p.errorf(t, "unexpected end of file")
		case '{', '[', '(':
			depth++
		case '}', ']', ')':
			depth--
			if depth == 0 && t.kind == '}' && p.peek().kind != ';' {
				return nil
			}
		case ';':
			if depth == 0 {
				return nil
			}
		}
	}
}

func (p *textParser) skipBracketOptions() error {
	if p.peek().kind != '[' {
		return nil
	}
	depth := 0
	for {
		t := p.next()
		switch t.kind {
		case scanner.EOF:
			return p.errorf(t, "unexpected end of file")
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return nil
			}
		}
	}
}

func (p *textParser) blockOpen() error { return p.expect('{') }

func (p *textParser) message() (*schema.Message, error) {
	p.next()
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	m := &schema.Message{Name: name.text, Line: name.line}
	if err := p.blockOpen(); err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		switch {
		case t.kind == '}':
			p.next()
			return m, nil
		case t.kind == scanner.EOF:
			return nil, p.errorf(t, "unterminated message %s", m.Name)
		case t.kind == ';':
			p.next()
		case p.isIdent("message"):
			nested, err := p.message()
			if err != nil {
				return nil, err
			}
			m.Messages = append(m.Messages, nested)
		case p.isIdent("enum"):
			e, err := p.enum()
			if err != nil {
				return nil, err
			}
			m.Enums = append(m.Enums, e)
		case p.isIdent("oneof"):
			fields, err := p.oneof()
			if err != nil {
				return nil, err
			}
			m.Fields = append(m.Fields, fields...)
		case p.isIdent("option"), p.isIdent("reserved"), p.isIdent("extensions"), p.isIdent("extend"):
			if err := p.skipStatement(); err != nil {
				return nil, err
			}
		default:
			f, err := p.field()
			if err != nil {
				return nil, err
			}
			m.Fields = append(m.Fields, f)
		}
	}
}

func (p *textParser) oneof() ([]*schema.Field, error) {
	p.next()
	if _, err := p.ident(); err != nil {
		return nil, err
	}
	if err := p.blockOpen(); err != nil {
		return nil, err
	}
	var fields []*schema.Field
	for {
		t := p.peek()
		switch {
		case t.kind == '}':
			p.next()
			return fields, nil
		case t.kind == scanner.EOF:
			return nil, p.errorf(t, "unterminated oneof")
		case t.kind == ';':
			p.next()
		case p.isIdent("option"):
			if err := p.skipStatement(); err != nil {
				return nil, err
			}
		default:
			f, err := p.field()
			if err != nil {
				return nil, err
			}
			fields = append(fields, f)
		}
	}
}

func (p *textParser) field() (*schema.Field, error) {
	start := p.peek()
	f := &schema.Field{Line: start.line}
	switch {
	case p.isIdent("repeated"):
		f.Repeated = true
		p.next()
	case p.isIdent("optional"), p.isIdent("required"):
		p.next()
	}
	switch {
	case p.isIdent("group"):
		return nil, &schema.UnsupportedFeatureError{File: p.path, Line: start.line, Feature: "group field"}
	case p.isIdent("map") && p.peekAt(1).kind == '<':
		p.next()
		p.next()
		if _, err := p.fullIdent(); err != nil {
			return nil, err
		}
		if err := p.expect(','); err != nil {
			return nil, err
		}
		value, err := p.fullIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expect('>'); err != nil {
			return nil, err
		}
		f.Map = true
		f.Type = value
	default:
		typ, err := p.fullIdent()
		if err != nil {
			return nil, err
		}
		f.Type = typ
	}
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	f.Name = name.text
	if err := p.expect('='); err != nil {
		return nil, err
	}
	num := p.next()
	if num.kind != scanner.Int {
		return nil, p.errorf(num, "expected field number, found %q", num.text)
	}
	n, err := strconv.ParseInt(num.text, 0, 32)
	if err != nil {
		return nil, p.errorf(num, "invalid field number %q", num.text)
	}
	f.Number = int(n)
	if err := p.skipBracketOptions(); err != nil {
		return nil, err
	}
	if err := p.expect(';'); err != nil {
		return nil, err
	}
	return f, nil
}

func (p *textParser) enum() (*schema.Enum, error) {
	p.next()
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	e := &schema.Enum{Name: name.text, Line: name.line}
	if err := p.blockOpen(); err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		switch {
		case t.kind == '}':
			p.next()
			return e, nil
		case t.kind == scanner.EOF:
			return nil, p.errorf(t, "unterminated enum %s", e.Name)
		case t.kind == ';':
			p.next()
		case p.isIdent("option"), p.isIdent("reserved"):
			if err := p.skipStatement(); err != nil {
				return nil, err
			}
		default:
			v, err := p.ident()
			if err != nil {
				return nil, err
			}
			if err := p.expect('='); err != nil {
				return nil, err
			}
			neg := false
			if p.peek().kind == '-' {
				neg = true
				p.next()
			}
			num := p.next()
			if num.kind != scanner.Int {
				return nil, p.errorf(num, "expected enum value, found %q", num.text)
			}
			n, err := strconv.ParseInt(num.text, 0, 64)
			if err != nil {
				return nil, p.errorf(num, "invalid enum value %q", num.text)
			}
			if neg {
				n = -n
			}
			if n < math.MinInt32 || n > math.MaxInt32 {
				return nil, p.errorf(num, "enum value %d out of range", n)
			}
			if err := p.skipBracketOptions(); err != nil {
				return nil, err
			}
			if err := p.expect(';'); err != nil {
				return nil, err
			}
			e.Values = append(e.Values, schema.EnumValue{Name: v.text, Number: int32(n)})
		}
	}
}

func (p *textParser) service() (*schema.Service, error) {
	p.next()
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	s := &schema.Service{Name: name.text, Line: name.line}
	if err := p.blockOpen(); err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		switch {
		case t.kind == '}':
			p.next()
			return s, nil
		case t.kind == scanner.EOF:
			return nil, p.errorf(t, "unterminated service %s", s.Name)
		case t.kind == ';':
			p.next()
		case p.isIdent("option"):
			if err := p.skipStatement(); err != nil {
				return nil, err
			}
		case p.isIdent("rpc"):
			m, err := p.rpc()
			if err != nil {
				return nil, err
			}
			s.Methods = append(s.Methods, m)
		default:
			return nil, p.errorf(t, "unexpected %q in service %s", t.text, s.Name)
		}
	}
}

func (p *textParser) rpc() (*schema.Method, error) {
	p.next()
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	m := &schema.Method{Name: name.text, Line: name.line}
	if m.ClientStreaming, m.Input, err = p.rpcType(); err != nil {
		return nil, err
	}
	if !p.isIdent("returns") {
		return nil, p.errorf(p.peek(), "expected returns, found %q", p.peek().text)
	}
	p.next()
	if m.ServerStreaming, m.Output, err = p.rpcType(); err != nil {
		return nil, err
	}
	switch p.peek().kind {
	case ';':
		p.next()
	case '{':
		p.next()
		for p.peek().kind != '}' {
			if p.done() {
				return nil, p.errorf(p.peek(), "unterminated rpc %s", m.Name)
			}
			if p.peek().kind == ';' {
				p.next()
				continue
			}
			if err := p.skipStatement(); err != nil {
				return nil, err
			}
		}
		p.next()
	default:
		return nil, p.errorf(p.peek(), "expected ';' or '{' after rpc %s", m.Name)
	}
	return m, nil
}

func (p *textParser) rpcType() (bool, string, error) {
	if err := p.expect('('); err != nil {
		return false, "", err
	}
	stream := false
	if p.isIdent("stream") && p.peekAt(1).kind != ')' {
		stream = true
		p.next()
	}
	typ, err := p.fullIdent()
	if err != nil {
		return false, "", err
	}
	if err := p.expect(')'); err != nil {
		return false, "", err
	}
	return stream, typ, nil
}
