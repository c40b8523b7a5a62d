package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FSEnumerator walks local source paths, skipping excluded globs. Globs are
// matched against both the base name and the full path.
type FSEnumerator struct {
	Sources  []string
	Excludes []string
}

func (e FSEnumerator) Enumerate(ctx context.Context) (Manifest, error) {
	if len(e.Sources) == 0 {
		return Manifest{}, errors.New("no backup sources configured")
	}
	for _, pattern := range e.Excludes {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return Manifest{}, fmt.Errorf("bad exclude pattern %q: %w", pattern, err)
		}
	}

	m := Manifest{Sources: e.Sources}
	seen := make(map[string]struct{})

	for _, src := range e.Sources {
		root, err := filepath.Abs(src)
		if err != nil {
			return Manifest{}, err
		}
		if _, err := os.Stat(root); err != nil {
			return Manifest{}, fmt.Errorf("source %s: %w", src, err)
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if e.excluded(path) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if _, dup := seen[path]; dup {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}

			seen[path] = struct{}{}
			m.Files = append(m.Files, FileEntry{
				Path: path,
				Name: strings.TrimPrefix(filepath.ToSlash(path), "/"),
				Size: info.Size(),
			})
			m.TotalBytes += info.Size()
			return nil
		})
		if err != nil {
			return Manifest{}, fmt.Errorf("walk %s: %w", src, err)
		}
	}

	if len(m.Files) == 0 {
		return Manifest{}, errors.New("sources contain no files")
	}
	return m, nil
}

func (e FSEnumerator) excluded(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range e.Excludes {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, path); ok {
			return true
		}
	}
	return false
}
