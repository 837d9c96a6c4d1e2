package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Discover lists the proto files named by path: the file itself, or every
// .proto file below a directory that no exclude pattern matches. Patterns
// are doublestar globs relative to the directory.
func Discover(path string, excludes []string) ([]string, error) {
	for _, pattern := range excludes {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	st, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return []string{abs}, nil
	}

	matches, err := doublestar.Glob(os.DirFS(abs), "**/*.proto")
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", abs, err)
	}
	var out []string
	for _, rel := range matches {
		excluded, err := isExcluded(rel, excludes)
		if err != nil {
			return nil, err
		}
		if !excluded {
			out = append(out, filepath.Join(abs, filepath.FromSlash(rel)))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no .proto files found under %s", abs)
	}
	sort.Strings(out)
	return out, nil
}

func isExcluded(rel string, excludes []string) (bool, error) {
	for _, pattern := range excludes {
		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			return false, fmt.Errorf("match exclude pattern %q: %w", pattern, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
