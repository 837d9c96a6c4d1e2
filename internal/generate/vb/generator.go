package vb

import (
	"bytes"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/jptrs93/protohttp/internal/generate"
	"github.com/jptrs93/protohttp/internal/generate/templates"
	"github.com/jptrs93/protohttp/internal/ir"
	"github.com/jptrs93/protohttp/internal/schema"
)

const indent = "    "

// Backend renders VB.NET DTOs and HTTP clients. Its templates are parsed
// once; Emit and Render are safe to call from several goroutines.
type Backend struct {
	options generate.Options
	tmpl    *template.Template
}

func New(options generate.Options) (*Backend, error) {
	if !options.Profile.Valid() {
		return nil, fmt.Errorf("unknown profile %q", options.Profile)
	}
	tmpl, err := template.New("vb").
		Funcs(template.FuncMap{"join": strings.Join}).
		ParseFS(templates.FS, "vb_*.tmpl")
	if err != nil {
		return nil, err
	}
	return &Backend{options: options, tmpl: tmpl}, nil
}

func (b *Backend) Name() string {
	return "vb"
}

type unitData struct {
	Source    string
	Namespace string
	Imports   []string
	Blocks    []string
	Clients   []clientData
}

type clientData struct {
	Name string
	// Utility is the shared utility type; empty when the helper is inline.
	Utility string
	// Call prefixes helper calls: "_http." with a utility, else empty.
	Call    string
	Helper  string
	Methods []methodData
}

type methodData struct {
	Name     string
	Request  string
	Response string
	Route    string
}

type fileData struct {
	Source    string
	Namespace string
	Imports   []string
	Blocks    []string
}

type utilityData struct {
	Name      string
	Namespace string
	Profile   string
	Helper    string
	Imports   []string
	Users     []string
}

func (b *Backend) Emit(prog *ir.Program, file int) (*generate.Unit, error) {
	f := prog.Files[file]
	if f.Empty() {
		return nil, nil
	}
	e := &emitter{prog: prog, file: file}
	data := &unitData{
		Source:    f.Name,
		Namespace: escapePath(f.Namespace),
	}
	for _, idx := range f.Enums {
		data.Blocks = append(data.Blocks, e.enumBlock(idx, indent))
	}
	for _, idx := range f.Messages {
		block, err := e.messageBlock(idx, indent)
		if err != nil {
			return nil, err
		}
		data.Blocks = append(data.Blocks, block)
	}
	for _, s := range f.Services {
		c, err := e.client(s, b.options.Profile, f.BaseName)
		if err != nil {
			return nil, err
		}
		data.Clients = append(data.Clients, c)
	}
	data.Imports = imports(b.options.Profile, e.linq)

	helper, err := b.helper("Private")
	if err != nil {
		return nil, &schema.EmitError{File: f.Name, Err: err}
	}
	return &generate.Unit{
		Path:      path.Join(f.RelDir, f.BaseName+".vb"),
		Dir:       f.RelDir,
		Namespace: f.Namespace,
		Source:    f.Name,
		Clients:   len(f.Services),
		Helper:    helper,
		Data:      data,
	}, nil
}

func (b *Backend) Render(u *generate.Unit) (generate.OutputFile, error) {
	data, ok := u.Data.(*unitData)
	if !ok {
		return generate.OutputFile{}, &schema.EmitError{File: u.Path, Err: fmt.Errorf("unit was not emitted by the vb backend")}
	}
	blocks := append([]string(nil), data.Blocks...)
	for _, c := range data.Clients {
		if u.Shared != nil {
			c.Utility = rooted(u.Shared.QualifiedName(u.Namespace))
			c.Call = "_http."
		} else {
			c.Helper = u.Helper
		}
		var buf bytes.Buffer
		if err := b.tmpl.ExecuteTemplate(&buf, "client_"+b.options.Profile.String(), c); err != nil {
			return generate.OutputFile{}, &schema.EmitError{File: u.Path, Err: err}
		}
		blocks = append(blocks, buf.String())
	}

	var buf bytes.Buffer
	err := b.tmpl.ExecuteTemplate(&buf, "vb_file.tmpl", fileData{
		Source:    data.Source,
		Namespace: data.Namespace,
		Imports:   data.Imports,
		Blocks:    blocks,
	})
	if err != nil {
		return generate.OutputFile{}, &schema.EmitError{File: u.Path, Err: err}
	}
	return generate.OutputFile{
		Path:    filepath.Join(b.options.Out, filepath.FromSlash(u.Path)),
		Content: buf.Bytes(),
	}, nil
}

func (b *Backend) RenderUtility(s *generate.SharedUtility) (generate.OutputFile, error) {
	helper, err := b.helper("Public")
	if err != nil {
		return generate.OutputFile{}, &schema.EmitError{File: s.Path, Err: err}
	}
	var buf bytes.Buffer
	err = b.tmpl.ExecuteTemplate(&buf, "vb_utility.tmpl", utilityData{
		Name:      s.Name,
		Namespace: escapePath(s.Namespace),
		Profile:   s.Profile.String(),
		Helper:    helper,
		Imports:   imports(s.Profile, false),
		Users:     s.Users,
	})
	if err != nil {
		return generate.OutputFile{}, &schema.EmitError{File: s.Path, Err: err}
	}
	return generate.OutputFile{
		Path:    filepath.Join(b.options.Out, filepath.FromSlash(s.Path)),
		Content: buf.Bytes(),
	}, nil
}

// helper renders the POST-and-deserialize member with the given access
// modifier.
func (b *Backend) helper(access string) (string, error) {
	var buf bytes.Buffer
	if err := b.tmpl.ExecuteTemplate(&buf, "helper_"+b.options.Profile.String(), access); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func imports(profile generate.Profile, linq bool) []string {
	var out []string
	switch profile {
	case generate.ProfileSync:
		out = []string{"System", "System.Collections.Generic", "System.IO", "System.Net", "System.Text", "Newtonsoft.Json"}
	default:
		out = []string{"System", "System.Collections.Generic", "System.Net.Http", "System.Text", "System.Threading", "System.Threading.Tasks", "Newtonsoft.Json"}
	}
	if linq {
		out = append(out, "Newtonsoft.Json.Linq")
	}
	return out
}

// emitter builds the declaration blocks of one file.
type emitter struct {
	prog *ir.Program
	file int
	linq bool
}

func (e *emitter) fileName() string {
	return e.prog.Files[e.file].Name
}

func (e *emitter) enumBlock(idx int, prefix string) string {
	en := e.prog.Enums[idx]
	var b strings.Builder
	fmt.Fprintf(&b, "%sPublic Enum %s\n", prefix, escape(en.Name))
	for _, v := range en.Values {
		fmt.Fprintf(&b, "%s%s%s = %d\n", prefix, indent, escape(v.Name), v.Number)
	}
	fmt.Fprintf(&b, "%sEnd Enum", prefix)
	return b.String()
}

func (e *emitter) messageBlock(idx int, prefix string) (string, error) {
	m := e.prog.Messages[idx]
	inner := prefix + indent

	// A property may not share its name with the class or a nested type.
	taken := map[string]bool{strings.ToLower(m.Name): true}
	for _, n := range m.Messages {
		taken[strings.ToLower(e.prog.Messages[n].Name)] = true
	}
	for _, n := range m.Enums {
		taken[strings.ToLower(e.prog.Enums[n].Name)] = true
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%sPublic Class %s\n", prefix, escape(m.Name))
	seen := map[string]string{}
	for i, f := range m.Fields {
		name := ir.PascalCase(f.Name)
		if taken[strings.ToLower(name)] {
			name += "Value"
		}
		key := strings.ToLower(name)
		if prev, ok := seen[key]; ok {
			return "", &schema.UnsupportedFeatureError{
				File:    e.fileName(),
				Feature: fmt.Sprintf("fields %q and %q of %s both map to property %s", prev, f.Name, m.FullName, name),
			}
		}
		seen[key] = f.Name

		typ, err := e.typeName(f.Type, idx)
		if err != nil {
			return "", err
		}
		if f.Repeated {
			typ = "List(Of " + typ + ")"
		}
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s<JsonProperty(\"%s\")>\n", inner, f.JSONName)
		fmt.Fprintf(&b, "%sPublic Property %s As %s\n", inner, escape(name), typ)
	}

	written := len(m.Fields) > 0
	for _, n := range m.Enums {
		if written {
			b.WriteString("\n")
		}
		b.WriteString(e.enumBlock(n, inner))
		b.WriteString("\n")
		written = true
	}
	for _, n := range m.Messages {
		if written {
			b.WriteString("\n")
		}
		block, err := e.messageBlock(n, inner)
		if err != nil {
			return "", err
		}
		b.WriteString(block)
		b.WriteString("\n")
		written = true
	}
	fmt.Fprintf(&b, "%sEnd Class", prefix)
	return b.String(), nil
}

// typeName is the VB type of ref as written inside message fromMsg, or at
// file level when fromMsg is -1.
func (e *emitter) typeName(ref ir.TypeRef, fromMsg int) (string, error) {
	switch {
	case ref.Kind.IsScalar():
		return scalarTypes[ref.Kind], nil
	case ref.Kind == ir.KindWellKnown:
		typ, linq, err := wellKnownType(ref.WellKnown)
		if err != nil {
			return "", &schema.EmitError{File: e.fileName(), Err: err}
		}
		e.linq = e.linq || linq
		return typ, nil
	}
	q, global := e.prog.Qualify(ref, e.file, fromMsg)
	if q == "" {
		return "", &schema.EmitError{File: e.fileName(), Err: fmt.Errorf("unresolved type reference of kind %d", ref.Kind)}
	}
	return rooted(q, global), nil
}

func (e *emitter) client(s *ir.Service, profile generate.Profile, base string) (clientData, error) {
	c := clientData{Name: escape(s.Name + "Client")}
	for _, m := range s.UnaryMethods() {
		req, err := e.typeName(m.Input, -1)
		if err != nil {
			return clientData{}, err
		}
		resp, err := e.typeName(m.Output, -1)
		if err != nil {
			return clientData{}, err
		}
		name := escape(m.Name)
		if profile == generate.ProfileAsync {
			name = m.Name + "Async"
		}
		c.Methods = append(c.Methods, methodData{
			Name:     name,
			Request:  req,
			Response: resp,
			Route:    ir.Route(base, m.Name),
		})
	}
	return c, nil
}
