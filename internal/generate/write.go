package generate

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// WriteFiles writes outputs in path order. Each file is written to a
// temporary sibling and renamed into place, so a failed run never leaves a
// truncated file; files already written by then are not removed.
func WriteFiles(outputs []OutputFile, logger *slog.Logger) error {
	sorted := append([]OutputFile(nil), outputs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	for _, file := range sorted {
		dir := filepath.Dir(file.Path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
		tmp, err := os.CreateTemp(dir, "."+filepath.Base(file.Path)+".*")
		if err != nil {
			return fmt.Errorf("write file %s: %w", file.Path, err)
		}
		_, werr := tmp.Write(file.Content)
		cerr := tmp.Close()
		if werr == nil {
			werr = cerr
		}
		if werr == nil {
			werr = os.Chmod(tmp.Name(), 0o644)
		}
		if werr == nil {
			werr = os.Rename(tmp.Name(), file.Path)
		}
		if werr != nil {
			os.Remove(tmp.Name())
			return fmt.Errorf("write file %s: %w", file.Path, werr)
		}
		if logger != nil {
			logger.Debug("wrote file", "file", file.Path, "bytes", len(file.Content))
		}
	}
	return nil
}
