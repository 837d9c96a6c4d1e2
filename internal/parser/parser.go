package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/jptrs93/protohttp/internal/schema"
)

const (
	StrategyDescriptor = "descriptor"
	StrategyProtoc     = "protoc"
	StrategyText       = "text"
)

// Strategy turns proto files into the raw schema model. Implementations
// follow imports and return every file reached, inputs included.
type Strategy interface {
	Name() string
	Parse(ctx context.Context, paths []string) (*schema.Set, error)
}

type Options struct {
	// Roots are import search directories, tried after the directory of
	// the importing file.
	Roots   []string
	Timeout time.Duration
	Jobs    int
	Protoc  string
	Logger  *slog.Logger
}

// Select picks the ingestion strategy for a run. An unavailable protoc
// degrades to the text strategy with a warning; the choice is logged once.
func Select(name string, opts Options) (Strategy, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var s Strategy
	switch name {
	case "", StrategyDescriptor:
		s = &DescriptorParser{Roots: opts.Roots, Timeout: opts.Timeout, Jobs: opts.Jobs, Logger: logger}
	case StrategyProtoc:
		bin := opts.Protoc
		if bin == "" {
			bin = "protoc"
		}
		path, err := exec.LookPath(bin)
		if err != nil {
			unavailable := &schema.ToolchainUnavailableError{Tool: bin, Err: err}
			logger.Warn("falling back to text parser with reduced fidelity",
				"error", unavailable,
				"missing", "cross-file descriptor validation")
			s = &TextParser{Roots: opts.Roots}
			break
		}
		s = &ProtocParser{Protoc: path, Roots: opts.Roots, Timeout: opts.Timeout}
	case StrategyText:
		s = &TextParser{Roots: opts.Roots}
	default:
		return nil, fmt.Errorf("unknown parser strategy %q", name)
	}
	logger.Info("selected parser strategy", "strategy", s.Name())
	return s, nil
}

func absPaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		out = append(out, abs)
	}
	return out, nil
}

// displayName is the import-style name of a file: its slash path relative
// to the first root containing it, or fallback.
func displayName(roots []string, abs, fallback string) string {
	for _, root := range roots {
		r, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(r, abs)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		return filepath.ToSlash(rel)
	}
	return fallback
}

func timeoutError(file string, timeout time.Duration, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &schema.ParseError{File: file, Err: fmt.Errorf("timed out after %s: %w", timeout, err)}
	}
	return err
}
