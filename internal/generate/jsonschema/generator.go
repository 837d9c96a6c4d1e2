package jsonschema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"sort"

	"github.com/jptrs93/protohttp/internal/generate"
	"github.com/jptrs93/protohttp/internal/ir"
	"github.com/jptrs93/protohttp/internal/schema"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	draft = "https://json-schema.org/draft/2020-12/schema"
	// baseURL anchors relative $id values while documents are compiled in
	// memory; nothing is fetched from it.
	baseURL = "https://schemas.protohttp.invalid/"
)

// Generator writes one JSON Schema document per schema file describing the
// JSON form of its messages and enums. Files that are only imported get a
// document when an emitted document references them.
type Generator struct{}

func (g Generator) Name() string {
	return "jsonschema"
}

type document struct {
	Schema string           `json:"$schema"`
	ID     string           `json:"$id"`
	Title  string           `json:"title"`
	Defs   map[string]*node `json:"$defs,omitempty"`
}

type node struct {
	Ref             string           `json:"$ref,omitempty"`
	Title           string           `json:"title,omitempty"`
	Type            string           `json:"type,omitempty"`
	Format          string           `json:"format,omitempty"`
	ContentEncoding string           `json:"contentEncoding,omitempty"`
	Enum            []int32          `json:"enum,omitempty"`
	Items           *node            `json:"items,omitempty"`
	Properties      map[string]*node `json:"properties,omitempty"`
}

func (g Generator) Generate(prog *ir.Program, options generate.Options) ([]generate.OutputFile, error) {
	var queue []int
	queued := make(map[int]bool)
	enqueue := func(file int) {
		if !queued[file] {
			queued[file] = true
			queue = append(queue, file)
		}
	}
	for i, f := range prog.Files {
		if f.Input && (len(f.Messages) > 0 || len(f.Enums) > 0) {
			enqueue(i)
		}
	}

	docs := make(map[int]*document)
	for len(queue) > 0 {
		file := queue[0]
		queue = queue[1:]
		b := &builder{prog: prog, file: file, refs: make(map[int]bool)}
		docs[file] = b.document()
		for ref := range b.refs {
			enqueue(ref)
		}
	}

	files := make([]int, 0, len(docs))
	for file := range docs {
		files = append(files, file)
	}
	sort.Ints(files)

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	outputs := make([]generate.OutputFile, 0, len(files))
	urls := make([]string, 0, len(files))
	owners := make(map[string]string, len(files))
	for _, file := range files {
		f := prog.Files[file]
		rel := docPath(f)
		if other, ok := owners[rel]; ok {
			return nil, &schema.EmitError{File: f.Name, Err: fmt.Errorf("json schema %s is also generated for %s", rel, other)}
		}
		owners[rel] = f.Name
		content, err := json.MarshalIndent(docs[file], "", "  ")
		if err != nil {
			return nil, &schema.EmitError{File: f.Name, Err: err}
		}
		content = append(content, '\n')
		url := baseURL + rel
		if err := compiler.AddResource(url, bytes.NewReader(content)); err != nil {
			return nil, &schema.EmitError{File: f.Name, Err: fmt.Errorf("load json schema: %w", err)}
		}
		urls = append(urls, url)
		outputs = append(outputs, generate.OutputFile{
			Path:    filepath.Join(options.Out, "json", filepath.FromSlash(rel)),
			Content: content,
		})
	}
	for i, url := range urls {
		if _, err := compiler.Compile(url); err != nil {
			return nil, &schema.EmitError{File: prog.Files[files[i]].Name, Err: fmt.Errorf("invalid json schema: %w", err)}
		}
	}
	return outputs, nil
}

// docPath places input documents like their clients. Files that are only
// imported may live outside the proto directory, so they are placed by
// their import name.
func docPath(f *ir.File) string {
	if f.Input {
		return path.Join(f.RelDir, f.BaseName+".json")
	}
	dir := path.Dir(f.Name)
	if !filepath.IsLocal(filepath.FromSlash(dir)) {
		dir = ""
	}
	return path.Join(dir, f.BaseName+".json")
}

type builder struct {
	prog *ir.Program
	file int
	refs map[int]bool
}

func (b *builder) document() *document {
	f := b.prog.Files[b.file]
	doc := &document{
		Schema: draft,
		ID:     f.BaseName + ".json",
		Title:  f.Namespace,
		Defs:   make(map[string]*node),
	}
	var addMessage func(idx int)
	addEnum := func(idx int) {
		e := b.prog.Enums[idx]
		n := &node{Title: e.Name, Type: "integer"}
		for _, v := range e.Values {
			n.Enum = append(n.Enum, v.Number)
		}
		doc.Defs[b.prog.EnumPath(idx)] = n
	}
	addMessage = func(idx int) {
		m := b.prog.Messages[idx]
		n := &node{Title: m.Name, Type: "object"}
		for _, fd := range m.Fields {
			if n.Properties == nil {
				n.Properties = make(map[string]*node)
			}
			n.Properties[fd.JSONName] = b.field(fd)
		}
		doc.Defs[b.prog.MessagePath(idx)] = n
		for _, e := range m.Enums {
			addEnum(e)
		}
		for _, nested := range m.Messages {
			addMessage(nested)
		}
	}
	for _, e := range f.Enums {
		addEnum(e)
	}
	for _, m := range f.Messages {
		addMessage(m)
	}
	return doc
}

func (b *builder) field(f *ir.Field) *node {
	n := b.typeNode(f.Type)
	if f.Repeated {
		return &node{Type: "array", Items: n}
	}
	return n
}

func (b *builder) typeNode(ref ir.TypeRef) *node {
	switch ref.Kind {
	case ir.KindMessage:
		m := b.prog.Messages[ref.Index]
		return &node{Ref: b.ref(m.File, b.prog.MessagePath(ref.Index))}
	case ir.KindEnum:
		e := b.prog.Enums[ref.Index]
		return &node{Ref: b.ref(e.File, b.prog.EnumPath(ref.Index))}
	case ir.KindWellKnown:
		return wellKnownNode(ref.WellKnown)
	}
	return scalarNode(ref.Kind)
}

// ref points at a definition, through a path relative to this document
// when the definition lives in another file.
func (b *builder) ref(file int, def string) string {
	if file == b.file {
		return "#/$defs/" + def
	}
	b.refs[file] = true
	from := path.Dir(docPath(b.prog.Files[b.file]))
	to := b.prog.Files[file]
	rel, err := filepath.Rel(filepath.FromSlash("/"+from), filepath.FromSlash("/"+docPath(to)))
	if err != nil {
		rel = docPath(to)
	}
	return filepath.ToSlash(rel) + "#/$defs/" + def
}

func scalarNode(kind ir.Kind) *node {
	switch kind {
	case ir.KindBool:
		return &node{Type: "boolean"}
	case ir.KindString:
		return &node{Type: "string"}
	case ir.KindBytes:
		return &node{Type: "string", ContentEncoding: "base64"}
	case ir.KindFloat:
		return &node{Type: "number", Format: "float"}
	case ir.KindDouble:
		return &node{Type: "number", Format: "double"}
	case ir.KindInt32, ir.KindSint32, ir.KindSfixed32:
		return &node{Type: "integer", Format: "int32"}
	case ir.KindUint32, ir.KindFixed32:
		return &node{Type: "integer", Format: "uint32"}
	case ir.KindInt64, ir.KindSint64, ir.KindSfixed64:
		return &node{Type: "integer", Format: "int64"}
	case ir.KindUint64, ir.KindFixed64:
		return &node{Type: "integer", Format: "uint64"}
	}
	return &node{}
}

func wellKnownNode(name string) *node {
	switch name {
	case "Timestamp":
		return &node{Type: "string", Format: "date-time"}
	case "Duration", "FieldMask":
		return &node{Type: "string"}
	case "Empty", "Struct", "Any":
		return &node{Type: "object"}
	case "ListValue":
		return &node{Type: "array"}
	case "Value":
		return &node{}
	}
	if kind, ok := ir.WrapperKind(name); ok {
		return scalarNode(kind)
	}
	return &node{}
}
