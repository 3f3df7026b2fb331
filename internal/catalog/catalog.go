// Package catalog lists video files and reports file timestamps from the
// local filesystem.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"
)

// DefaultExtensions are matched when a listing asks for none.
var DefaultExtensions = []string{".mp4", ".MP4"}

// FS is the filesystem-backed catalog.
type FS struct{}

// New returns a filesystem catalog.
func New() *FS {
	return &FS{}
}

// ListVideos returns the absolute paths of the regular files in folder whose
// extension is one of exts, compared case-sensitively, in lexicographic order.
// Subdirectories are not descended into.
func (c *FS) ListVideos(folder string, exts []string) ([]string, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	abs, err := filepath.Abs(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve folder %s: %w", folder, err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", abs, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !slices.Contains(exts, filepath.Ext(e.Name())) {
			continue
		}
		paths = append(paths, filepath.Join(abs, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// MtimeUTC returns the last-modified time of path in UTC.
func (c *FS) MtimeUTC(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime().UTC(), nil
}
