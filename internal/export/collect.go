package export

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Collect copies result files for a tag from a data tree into a flat
// results directory. Files qualify when their name contains the tag and
// one of the requested artifact names (e.g. "canvas", "annotations");
// empty names means any file carrying the tag. Copies are prefixed with
// their parent directory so results from different images do not clash.
// Returns the number of files copied.
func Collect(dataDir, resultsDir, tag string, names []string) (int, error) {
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return 0, fmt.Errorf("export: create results dir: %w", err)
	}

	copied := 0
	err := filepath.WalkDir(dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		base := d.Name()
		if !strings.Contains(base, "_"+tag+".") {
			return nil
		}
		if len(names) > 0 && !containsAny(base, names) {
			return nil
		}

		dst := filepath.Join(resultsDir, filepath.Base(filepath.Dir(path))+"_"+base)
		if err := copyFile(path, dst); err != nil {
			return err
		}
		copied++
		return nil
	})
	if err != nil {
		return copied, fmt.Errorf("export: collect: %w", err)
	}
	log.Info("collected results", "dir", resultsDir, "files", copied)
	return copied, nil
}

func containsAny(name string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(name, n) {
			return true
		}
	}
	return false
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("export: open %q: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("export: create %q: %w", dst, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("export: copy %q: %w", dst, err)
	}
	return out.Close()
}
