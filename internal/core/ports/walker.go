package ports

import (
	"io/fs"
	"iter"
)

// Walker enumerates a directory tree.
//
//go:generate mockgen -source=walker.go -destination=mocks/mock_walker.go -package=mocks
type Walker interface {
	// WalkFiles yields every regular file below root in lexical order.
	WalkFiles(root string, ignores []string) iter.Seq[string]

	// WalkTree yields every entry below root, root included, in lexical order.
	WalkTree(root string, ignores []string) iter.Seq2[string, fs.DirEntry]
}
