package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jptrs93/protohttp/internal/schema"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/types/descriptorpb"
)

// ProtocParser runs an external protoc to produce a descriptor set and
// walks it the same way as DescriptorParser.
type ProtocParser struct {
	Protoc  string
	Roots   []string
	Timeout time.Duration
}

func (p *ProtocParser) Name() string { return StrategyProtoc }

func (p *ProtocParser) Parse(ctx context.Context, paths []string) (*schema.Set, error) {
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

	merged := make(map[string]*schema.File)
	for _, dir := range dirs {
		files, err := p.runGroup(ctx, dir, groups[dir])
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if _, ok := merged[f.Path]; !ok {
				merged[f.Path] = f
			}
		}
	}
	return newSet(merged, inputs), nil
}

func (p *ProtocParser) runGroup(ctx context.Context, dir string, names []string) ([]*schema.File, error) {
	imports, err := resolveImports(dir, names, p.Roots)
	if err != nil {
		return nil, err
	}
	// protoc searches its -I list in order for every import, so the resolved
	// closure is laid out under a root of its own at the names it is
	// imported by. The roots stay behind it for bundled imports.
	root, err := os.MkdirTemp("", "protohttp-*")
	if err != nil {
		return nil, fmt.Errorf("create import root: %w", err)
	}
	defer os.RemoveAll(root)
	if err := imports.materialize(root); err != nil {
		return nil, err
	}
	out := filepath.Join(root, ".descriptor_set.pb")

	args := make([]string, 0, len(names)+len(p.Roots)+4)
	args = append(args, "-I"+root)
	for _, r := range p.Roots {
		args = append(args, "-I"+r)
	}
	args = append(args, "--include_imports", "--include_source_info", "--descriptor_set_out="+out)
	args = append(args, names...)

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Protoc, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, timeoutError(filepath.Join(dir, names[0]), p.Timeout, ctx.Err())
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return nil, &schema.ToolchainUnavailableError{Tool: p.Protoc, Err: err}
		}
		return nil, protocError(imports, root, dir, stderr.String(), err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read descriptor set: %w", err)
	}
	var fds descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(data, &fds); err != nil {
		return nil, fmt.Errorf("decode descriptor set: %w", err)
	}
	registry, err := protodesc.NewFiles(&fds)
	if err != nil {
		return nil, fmt.Errorf("link descriptor set: %w", err)
	}

	w := &walker{
		roots: p.Roots,
		absOf: imports.path,
		seen:  make(map[string]*schema.File),
	}
	for _, name := range names {
		fd, err := registry.FindFileByPath(name)
		if err != nil {
			return nil, &schema.ParseError{File: filepath.Join(dir, name), Err: err}
		}
		if err := w.visit(fd); err != nil {
			return nil, err
		}
	}
	return w.files(), nil
}

// protocError turns protoc's first "file:line:col: message" diagnostic into
// a ParseError. File names are import names under root and are mapped back
// to the files they were resolved to.
func protocError(imports *importSet, root, dir, stderr string, runErr error) error {
	first, _, _ := strings.Cut(strings.TrimSpace(stderr), "\n")
	if first == "" {
		return &schema.ParseError{File: dir, Err: fmt.Errorf("protoc: %w", runErr)}
	}
	parts := strings.SplitN(first, ":", 4)
	if len(parts) == 4 {
		if line, err := strconv.Atoi(parts[1]); err == nil {
			return &schema.ParseError{
				File: protocFile(imports, root, dir, parts[0]),
				Line: line,
				Err:  errors.New(strings.TrimSpace(parts[3])),
			}
		}
	}
	return &schema.ParseError{File: dir, Err: errors.New(first)}
}

func protocFile(imports *importSet, root, dir, name string) string {
	if filepath.IsAbs(name) {
		rel, err := filepath.Rel(root, name)
		if err != nil || strings.HasPrefix(rel, "..") {
			return name
		}
		name = rel
	}
	if abs := imports.path(filepath.ToSlash(name)); abs != "" {
		return abs
	}
	return filepath.Join(dir, name)
}
