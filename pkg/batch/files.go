package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// listTraces returns the files in dir with extension ext, sorted by name.
func listTraces(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreadableDir, dir, err)
	}

	var out []string

	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}

		out = append(out, filepath.Join(dir, e.Name()))
	}

	slices.Sort(out)

	return out, nil
}

// devicePrefix returns the first two underscore fields of the first file,
// or its whole stem when it has fewer.
func devicePrefix(files []string) string {
	if len(files) == 0 {
		return ""
	}

	base := filepath.Base(files[0])
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	parts := strings.Split(stem, "_")
	if len(parts) < 2 {
		return stem
	}

	return parts[0] + "_" + parts[1]
}
