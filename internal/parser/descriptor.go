package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jptrs93/protohttp/internal/schema"

	"github.com/bufbuild/protocompile"
	"github.com/bufbuild/protocompile/reporter"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// DescriptorParser compiles sources in process with protocompile and walks
// the linked descriptors.
type DescriptorParser struct {
	Roots   []string
	Timeout time.Duration
	Jobs    int
	Logger  *slog.Logger
}

func (p *DescriptorParser) Name() string { return StrategyDescriptor }

func (p *DescriptorParser) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// Parse compiles the inputs grouped by directory so that each file's own
// directory is searched before the configured roots.
func (p *DescriptorParser) Parse(ctx context.Context, paths []string) (*schema.Set, error) {
	inputs, err := absPaths(paths)
	if err != nil {
		return nil, err
	}
	groups := make(map[string][]string)
	var dirs []string
	for _, in := range inputs {
		dir := filepath.Dir(in)
		if _, ok := groups[dir]; !ok {
			dirs = append(dirs, dir)
		}
		groups[dir] = append(groups[dir], filepath.Base(in))
	}
	sort.Strings(dirs)

	jobs := p.Jobs
	if jobs < 1 {
		jobs = 1
	}
	sem := semaphore.NewWeighted(int64(jobs))
	results := make([][]*schema.File, len(dirs))
	g, gctx := errgroup.WithContext(ctx)
	for i, dir := range dirs {
		i, dir := i, dir
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			files, err := p.compileGroup(gctx, dir, groups[dir])
			if err != nil {
				return err
			}
			results[i] = files
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]*schema.File)
	for _, files := range results {
		for _, f := range files {
			if _, ok := merged[f.Path]; !ok {
				merged[f.Path] = f
			}
		}
	}
	return newSet(merged, inputs), nil
}

func (p *DescriptorParser) compileGroup(ctx context.Context, dir string, names []string) ([]*schema.File, error) {
	imports, err := resolveImports(dir, names, p.Roots)
	if err != nil {
		return nil, err
	}
	resolver := &protocompile.SourceResolver{
		Accessor: func(name string) (io.ReadCloser, error) {
			path := imports.path(name)
			if path == "" {
				return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
			}
			return os.Open(path)
		},
	}

	var first error
	rep := reporter.NewReporter(
		func(err reporter.ErrorWithPos) error {
			if first == nil {
				first = err
			}
			return err
		},
		func(err reporter.ErrorWithPos) {
			pos := err.GetPosition()
			p.logger().Warn("proto warning", "file", pos.Filename, "line", pos.Line, "warning", err.Unwrap())
		},
	)
	compiler := protocompile.Compiler{
		Resolver:       protocompile.WithStandardImports(resolver),
		MaxParallelism: p.Jobs,
		Reporter:       rep,
		SourceInfoMode: protocompile.SourceInfoStandard,
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	files, err := compiler.Compile(ctx, names...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, timeoutError(filepath.Join(dir, names[0]), p.Timeout, err)
		}
		var withPos reporter.ErrorWithPos
		if errors.As(err, &withPos) {
			pos := withPos.GetPosition()
			file := pos.Filename
			if abs := imports.path(file); abs != "" {
				file = abs
			}
			return nil, &schema.ParseError{File: file, Line: pos.Line, Err: withPos.Unwrap()}
		}
		if first != nil {
			return nil, &schema.ParseError{File: dir, Err: first}
		}
		return nil, &schema.ParseError{File: dir, Err: err}
	}

	w := &walker{
		roots: p.Roots,
		absOf: imports.path,
		seen:  make(map[string]*schema.File),
	}
	for _, fd := range files {
		if err := w.visit(fd); err != nil {
			return nil, err
		}
	}
	return w.files(), nil
}

func newSet(files map[string]*schema.File, inputs []string) *schema.Set {
	set := &schema.Set{Inputs: inputs}
	for _, f := range files {
		set.Files = append(set.Files, f)
	}
	sort.Slice(set.Files, func(i, j int) bool {
		return set.Files[i].Path < set.Files[j].Path
	})
	return set
}

// walker converts linked file descriptors and their imports into the raw
// model. Bundled google/protobuf files are not converted.
type walker struct {
	roots []string
	absOf func(name string) string
	seen  map[string]*schema.File
}

func (w *walker) files() []*schema.File {
	out := make([]*schema.File, 0, len(w.seen))
	for _, f := range w.seen {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (w *walker) visit(fd protoreflect.FileDescriptor) error {
	if strings.HasPrefix(fd.Path(), schema.WellKnownPrefix) {
		return nil
	}
	abs := w.absOf(fd.Path())
	if abs == "" {
		return &schema.ParseError{File: fd.Path(), Err: errors.New("compiled file was not read from disk")}
	}
	if _, ok := w.seen[abs]; ok {
		return nil
	}
	out := &schema.File{
		Path:    abs,
		Name:    displayName(w.roots, abs, fd.Path()),
		Package: string(fd.Package()),
	}
	w.seen[abs] = out

	imports := fd.Imports()
	for i := 0; i < imports.Len(); i++ {
		imp := imports.Get(i)
		resolved := ""
		if !strings.HasPrefix(imp.Path(), schema.WellKnownPrefix) {
			resolved = w.absOf(imp.Path())
		}
		out.Imports = append(out.Imports, schema.Import{
			Path:     imp.Path(),
			Resolved: resolved,
			Public:   imp.IsPublic,
		})
		if err := w.visit(imp.FileDescriptor); err != nil {
			return err
		}
	}

	msgs, err := collectMessages(abs, fd.Messages())
	if err != nil {
		return err
	}
	out.Messages = msgs
	out.Enums = collectEnums(fd.Enums())
	out.Services = collectServices(fd.Services())
	return nil
}

func collectMessages(file string, messages protoreflect.MessageDescriptors) ([]*schema.Message, error) {
	var result []*schema.Message
	for i := 0; i < messages.Len(); i++ {
		msg := messages.Get(i)
		if msg.IsMapEntry() {
			continue
		}
		fields, err := collectFields(file, msg.Fields())
		if err != nil {
			return nil, err
		}
		nested, err := collectMessages(file, msg.Messages())
		if err != nil {
			return nil, err
		}
		result = append(result, &schema.Message{
			Name:     string(msg.Name()),
			Line:     lineOf(msg),
			Fields:   fields,
			Messages: nested,
			Enums:    collectEnums(msg.Enums()),
		})
	}
	return result, nil
}

func collectFields(file string, fields protoreflect.FieldDescriptors) ([]*schema.Field, error) {
	var result []*schema.Field
	for i := 0; i < fields.Len(); i++ {
		field := fields.Get(i)
		out := &schema.Field{
			Name:     string(field.Name()),
			Line:     lineOf(field),
			Number:   int(field.Number()),
			Repeated: field.IsList(),
		}
		switch {
		case field.IsMap():
			out.Map = true
			out.Type = typeName(field.MapValue())
		case field.Kind() == protoreflect.GroupKind:
			return nil, &schema.UnsupportedFeatureError{
				File:    file,
				Line:    out.Line,
				Feature: fmt.Sprintf("group field %s", field.FullName()),
			}
		default:
			out.Type = typeName(field)
		}
		result = append(result, out)
	}
	return result, nil
}

func typeName(field protoreflect.FieldDescriptor) string {
	switch field.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return "." + string(field.Message().FullName())
	case protoreflect.EnumKind:
		return "." + string(field.Enum().FullName())
	default:
		return field.Kind().String()
	}
}

func collectEnums(enums protoreflect.EnumDescriptors) []*schema.Enum {
	var result []*schema.Enum
	for i := 0; i < enums.Len(); i++ {
		e := enums.Get(i)
		out := &schema.Enum{Name: string(e.Name()), Line: lineOf(e)}
		values := e.Values()
		for j := 0; j < values.Len(); j++ {
			v := values.Get(j)
			out.Values = append(out.Values, schema.EnumValue{Name: string(v.Name()), Number: int32(v.Number())})
		}
		result = append(result, out)
	}
	return result
}

func collectServices(services protoreflect.ServiceDescriptors) []*schema.Service {
	var result []*schema.Service
	for i := 0; i < services.Len(); i++ {
		s := services.Get(i)
		out := &schema.Service{Name: string(s.Name()), Line: lineOf(s)}
		methods := s.Methods()
		for j := 0; j < methods.Len(); j++ {
			m := methods.Get(j)
			out.Methods = append(out.Methods, &schema.Method{
				Name:            string(m.Name()),
				Line:            lineOf(m),
				Input:           "." + string(m.Input().FullName()),
				Output:          "." + string(m.Output().FullName()),
				ClientStreaming: m.IsStreamingClient(),
				ServerStreaming: m.IsStreamingServer(),
			})
		}
		result = append(result, out)
	}
	return result
}

// lineOf returns the 1-based declaration line of d, or 0 when the
// descriptor carries no source info.
func lineOf(d protoreflect.Descriptor) int {
	loc := d.ParentFile().SourceLocations().ByDescriptor(d)
	if loc.Path == nil {
		return 0
	}
	return loc.StartLine + 1
}
