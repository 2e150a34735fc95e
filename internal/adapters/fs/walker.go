// Package fs provides file system adapters for walking and hashing files.
package fs

import (
	"io/fs"
	"iter"
	"path/filepath"
)

// Walker provides file walking functionality.
type Walker struct{}

// NewWalker creates a new Walker.
func NewWalker() *Walker {
	return &Walker{}
}

// WalkFiles yields the path of every regular file below root, skipping
// VCS metadata and entries whose base name matches one of ignores.
func (w *Walker) WalkFiles(root string, ignores []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for path, d := range w.WalkTree(root, ignores) {
			if !d.Type().IsRegular() {
				continue
			}
			if !yield(path) {
				return
			}
		}
	}
}

// WalkTree yields every entry below root, root included. Paths start with root.
func (w *Walker) WalkTree(root string, ignores []string) iter.Seq2[string, fs.DirEntry] {
	return func(yield func(string, fs.DirEntry) bool) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if path != root && w.skip(d, ignores) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if !yield(path, d) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

// skip reports whether an entry is excluded from the walk.
func (w *Walker) skip(d fs.DirEntry, ignores []string) bool {
	name := d.Name()

	if d.IsDir() && (name == ".git" || name == ".jj" || name == "__pycache__") {
		return true
	}

	for _, ignore := range ignores {
		if matched, _ := filepath.Match(ignore, name); matched {
			return true
		}
	}
	return false
}
