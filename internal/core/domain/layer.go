package domain

import (
	"path"
	"slices"
	"strconv"
	"strings"

	"go.trai.ch/zerr"
)

// EntryType is the kind of a layer entry.
type EntryType string

const (
	// EntryDir is a directory.
	EntryDir EntryType = "dir"
	// EntryFile is a regular file.
	EntryFile EntryType = "file"
	// EntrySymlink is a symbolic link.
	EntrySymlink EntryType = "symlink"
)

// LayerEntry records one entry written to an image layer.
type LayerEntry struct {
	// Path is the slash-separated absolute path inside the image.
	Path string

	// Type is the entry kind.
	Type EntryType

	// Mode holds the permission bits.
	Mode int64

	UID int
	GID int

	// Size is the content length of a regular file.
	Size int64

	// Digest is the "sha256:<hex>" digest of a regular file's content.
	Digest string

	// Linkname is the target of a symlink.
	Linkname string
}

// Layer is a written image layer.
type Layer struct {
	// Digest is the digest of the compressed blob.
	Digest string

	// DiffID is the digest of the uncompressed tar stream.
	DiffID string

	// Size is the compressed blob size.
	Size int64

	// MediaType is the OCI media type of the blob.
	MediaType string

	// Entries lists every entry written, in write order.
	Entries []LayerEntry
}

// ParentDirs returns the directories between "/" and p, outermost first, excluding both.
func ParentDirs(p string) []string {
	var out []string
	for dir := path.Dir(path.Clean(p)); dir != "/" && dir != "."; dir = path.Dir(dir) {
		out = append(out, dir)
	}
	slices.Reverse(out)
	return out
}

// VerifyOwnership checks that every entry at or below root is owned by id and carries no group or other write bit.
func VerifyOwnership(root string, id Identity, entries []LayerEntry) error {
	root = path.Clean(root)
	found := false
	for _, e := range entries {
		p := path.Clean(e.Path)
		if p != root && !strings.HasPrefix(p, root+"/") {
			continue
		}
		found = true
		if e.UID != id.UID || e.GID != id.GID {
			err := zerr.With(ErrOwnershipViolation, "path", p)
			return zerr.With(err, "owner", strconv.Itoa(e.UID)+":"+strconv.Itoa(e.GID))
		}
		if e.Type != EntrySymlink && e.Mode&0o022 != 0 {
			err := zerr.With(ErrOwnershipViolation, "path", p)
			return zerr.With(err, "mode", "0"+strconv.FormatInt(e.Mode, 8))
		}
	}
	if !found {
		return zerr.With(ErrOwnershipViolation, "path", root)
	}
	return nil
}
