// Package logconvert splits tokenized session logs into per-component files
// and folds the scanner's multi-line scan records into compact lines.
package logconvert

import (
	"bufio"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/banshee-data/scanlog/internal/fsutil"
	"github.com/banshee-data/scanlog/internal/logparse"
)

// SplitPath returns the per-component output path for a raw log:
// <outRoot>/<raw dir relative to rootPrefix>/<component>/<base name>, where
// the base name loses only its final extension.
func SplitPath(rawPath, rootPrefix, outRoot, component string) (string, error) {
	dir := filepath.Dir(filepath.Clean(rawPath))
	rel := dir
	if rootPrefix != "" {
		var err error
		rel, err = filepath.Rel(filepath.Clean(rootPrefix), dir)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%s is not under %s", rawPath, rootPrefix)
		}
	}
	base := filepath.Base(rawPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outRoot, rel, component, base), nil
}

// Splitter writes one file per component.
type Splitter struct {
	FS         fsutil.FileSystem
	RootPrefix string
	OutRoot    string
}

// Split partitions sess by component. It returns the written path for each
// component.
func (s *Splitter) Split(ctx context.Context, sess *logparse.Session, rawPath string) (map[string]string, error) {
	paths := make(map[string]string, len(sess.Components))
	writers := make(map[string]*bufio.Writer, len(sess.Components))
	var closers []func() error

	closeAll := func() error {
		var first error
		for _, c := range closers {
			if err := c(); err != nil && first == nil {
				first = err
			}
		}
		closers = nil
		return first
	}

	for _, name := range sess.Components {
		path, err := SplitPath(rawPath, s.RootPrefix, s.OutRoot, name)
		if err != nil {
			closeAll()
			return nil, err
		}
		if err := s.FS.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			closeAll()
			return nil, fmt.Errorf("create %s: %w", filepath.Dir(path), err)
		}
		f, err := s.FS.Create(path)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("create %s: %w", path, err)
		}
		w := bufio.NewWriter(f)
		writers[name] = w
		paths[name] = path
		closers = append(closers, func() error {
			ferr := w.Flush()
			if cerr := f.Close(); ferr == nil {
				ferr = cerr
			}
			return ferr
		})
	}

	for i, rec := range sess.Records {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				closeAll()
				return nil, err
			}
		}
		if _, err := writers[rec.Component].WriteString(rec.Canonical() + "\n"); err != nil {
			closeAll()
			return nil, fmt.Errorf("write %s: %w", paths[rec.Component], err)
		}
	}
	if err := closeAll(); err != nil {
		return nil, fmt.Errorf("close split files: %w", err)
	}
	return paths, nil
}

// SortedPaths returns the values of paths ordered by component name.
func SortedPaths(paths map[string]string) []string {
	names := make([]string, 0, len(paths))
	for name := range paths {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = paths[name]
	}
	return out
}
