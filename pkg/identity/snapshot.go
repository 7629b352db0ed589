package identity

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// ErrNoSnapshotText is returned when a snapshot holds no .txt file.
var ErrNoSnapshotText = errors.New("snapshot holds no text report")

const (
	snapshotMarker = "bugreport"
	zipExt         = ".zip"
	textExt        = ".txt"
)

var groupToken = regexp.MustCompile(`(?i)(\d+)part|part(\d+)`)

// SnapshotGroup returns the app group named by a snapshot's "<N>part" or
// "part<N>" token, or 0 when there is none in 1..maxGroup.
func SnapshotGroup(name string, maxGroup int) int {
	m := groupToken.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0
	}

	n, err := strconv.Atoi(m[1] + m[2])
	if err != nil || n < 1 || n > maxGroup {
		return 0
	}

	return n
}

// Discover lists the snapshots in dir: bugreport zip archives and extracted
// bugreport folders. Paths are returned sorted.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}

	var out []string

	for _, e := range entries {
		name := strings.ToLower(e.Name())
		if !strings.Contains(name, snapshotMarker) {
			continue
		}

		if e.IsDir() || strings.HasSuffix(name, zipExt) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}

	slices.Sort(out)

	return out, nil
}

// ReadSnapshot returns the largest .txt report inside a snapshot archive or
// folder.
func ReadSnapshot(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat snapshot: %w", err)
	}

	if info.IsDir() {
		return readLargestFile(path)
	}

	return readLargestEntry(path)
}

func readLargestFile(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+textExt))
	if err != nil {
		return "", fmt.Errorf("glob %s: %w", dir, err)
	}

	var (
		best     string
		bestSize int64 = -1
	)

	for _, m := range matches {
		st, statErr := os.Stat(m)
		if statErr != nil || st.IsDir() {
			continue
		}

		if st.Size() > bestSize {
			best, bestSize = m, st.Size()
		}
	}

	if best == "" {
		return "", fmt.Errorf("%s: %w", dir, ErrNoSnapshotText)
	}

	data, err := os.ReadFile(best)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", best, err)
	}

	return string(data), nil
}

func readLargestEntry(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer zr.Close()

	var best *zip.File

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.EqualFold(filepath.Ext(f.Name), textExt) {
			continue
		}

		if best == nil || f.UncompressedSize64 > best.UncompressedSize64 {
			best = f
		}
	}

	if best == nil {
		return "", fmt.Errorf("%s: %w", path, ErrNoSnapshotText)
	}

	rc, err := best.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", best.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", best.Name, err)
	}

	return string(data), nil
}

// LoadTable reads and parses one snapshot.
func LoadTable(path string) (Table, error) {
	text, err := ReadSnapshot(path)
	if err != nil {
		return nil, err
	}

	return ParsePSS(text), nil
}
