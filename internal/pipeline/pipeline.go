package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/jptrs93/protohttp/internal/generate"
	"github.com/jptrs93/protohttp/internal/generate/jsonschema"
	"github.com/jptrs93/protohttp/internal/generate/vb"
	"github.com/jptrs93/protohttp/internal/ir"
	"github.com/jptrs93/protohttp/internal/parser"

	"golang.org/x/sync/errgroup"
)

type Options struct {
	// Proto is a .proto file or a directory searched recursively.
	Proto      string
	Out        string
	Namespace  string
	Profile    generate.Profile
	ProtoPaths []string
	Parser     string
	Protoc     string
	Timeout    time.Duration
	Jobs       int
	JSONSchema bool
	Exclude    []string
	Logger     *slog.Logger
}

// Result lists the files a run wrote, in write order.
type Result struct {
	Files []string
}

// Run generates clients for every proto file under opts.Proto. Nothing is
// written unless parsing, resolution and rendering all succeed.
func Run(ctx context.Context, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	inputs, err := parser.Discover(opts.Proto, opts.Exclude)
	if err != nil {
		return nil, err
	}
	root, err := protoRoot(opts.Proto)
	if err != nil {
		return nil, err
	}
	logger.Debug("discovered proto files", "dir", root, "count", len(inputs))

	strategy, err := parser.Select(opts.Parser, parser.Options{
		Roots:   append([]string{root}, opts.ProtoPaths...),
		Timeout: opts.Timeout,
		Jobs:    jobs,
		Protoc:  opts.Protoc,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	set, err := strategy.Parse(ctx, inputs)
	if err != nil {
		return nil, err
	}
	logger.Info("parsed schema", "strategy", strategy.Name(), "count", len(set.Files))

	prog, err := ir.Build(set, ir.BuildOptions{NamespaceOverride: opts.Namespace, Root: root})
	if err != nil {
		return nil, err
	}

	options := generate.Options{Out: opts.Out, Profile: opts.Profile}
	backend, err := vb.New(options)
	if err != nil {
		return nil, err
	}
	outputs, err := Generate(ctx, prog, backend, options, jobs)
	if err != nil {
		return nil, err
	}
	if opts.JSONSchema {
		var gen generate.Generator = jsonschema.Generator{}
		extra, err := gen.Generate(prog, options)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", gen.Name(), err)
		}
		outputs = append(outputs, extra...)
	}

	if err := generate.WriteFiles(outputs, logger); err != nil {
		return nil, err
	}
	res := &Result{}
	for _, out := range outputs {
		res.Files = append(res.Files, out.Path)
	}
	logger.Info("generated files", "dir", opts.Out, "count", len(res.Files))
	return res, nil
}

// Generate emits every input file of prog through backend, then decides on
// shared utilities and renders the final sources. Emission runs on up to
// jobs goroutines; extraction waits for all of it.
func Generate(ctx context.Context, prog *ir.Program, backend generate.Backend, options generate.Options, jobs int) ([]generate.OutputFile, error) {
	emitted := make([]*generate.Unit, len(prog.Files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(jobs, 1))
	for i, f := range prog.Files {
		if !f.Input {
			continue
		}
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			u, err := backend.Emit(prog, i)
			if err != nil {
				return err
			}
			emitted[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var units []*generate.Unit
	for _, u := range emitted {
		if u != nil {
			units = append(units, u)
		}
	}
	shared, err := generate.Extract(units, generate.ExtractOptions{
		RootName: rootName(options.Out),
		Profile:  options.Profile,
		Ext:      ".vb",
	})
	if err != nil {
		return nil, err
	}

	outputs := make([]generate.OutputFile, 0, len(units)+len(shared))
	for _, u := range units {
		out, err := backend.Render(u)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}
	for _, s := range shared {
		out, err := backend.RenderUtility(s)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

// protoRoot is the first import root: the proto directory itself, or the
// directory holding a single proto file.
func protoRoot(proto string) (string, error) {
	abs, err := filepath.Abs(proto)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return abs, nil
	}
	return filepath.Dir(abs), nil
}

func rootName(out string) string {
	abs, err := filepath.Abs(out)
	if err != nil {
		return filepath.Base(out)
	}
	return filepath.Base(abs)
}
