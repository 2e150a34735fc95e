// Package stager copies host trees into image layers with fixed ownership.
package stager

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// writableByOthers are the permission bits stripped from every staged entry.
const writableByOthers = 0o022

// Owner is the numeric ownership recorded in layer headers.
type Owner struct {
	UID int
	GID int
}

// RootOwner owns system content such as the Python environment.
var RootOwner = Owner{UID: domain.RootID, GID: domain.RootID}

// OwnerOf returns the ownership of an identity.
func OwnerOf(id domain.Identity) Owner {
	return Owner{UID: id.UID, GID: id.GID}
}

// Request describes the application assets to stage.
type Request struct {
	// Root is the project directory the asset paths are relative to.
	Root string

	// Entrypoint is the entry-point source file, relative to Root.
	Entrypoint string

	// Resources is the static resources directory, relative to Root.
	Resources string

	// InstallRoot is the destination directory inside the image.
	InstallRoot string

	// Identity owns every staged entry.
	Identity domain.Identity
}

// Stager writes host files into layers.
type Stager struct {
	logger ports.Logger
	walker ports.Walker
}

// New creates a Stager.
func New(logger ports.Logger, walker ports.Walker) *Stager {
	return &Stager{logger: logger, walker: walker}
}

// Stage copies the entry point and the resources tree below the install root.
// Every entry is owned by the identity from the moment it is written.
// It returns the number of entries written.
func (s *Stager) Stage(w ports.LayerWriter, req Request) (int, error) {
	entrySrc, entryRel, err := assetPath(req.Root, req.Entrypoint)
	if err != nil {
		return 0, err
	}
	resSrc, resRel, err := assetPath(req.Root, req.Resources)
	if err != nil {
		return 0, err
	}

	entryInfo, err := os.Lstat(entrySrc)
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrStageCopy.Error()), "entrypoint", entrySrc)
	}
	if !entryInfo.Mode().IsRegular() {
		return 0, zerr.With(zerr.With(domain.ErrStageCopy, "entrypoint", entrySrc), "reason", "not a regular file")
	}
	resInfo, err := os.Lstat(resSrc)
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrStageCopy.Error()), "resources", resSrc)
	}
	if !resInfo.IsDir() {
		return 0, zerr.With(zerr.With(domain.ErrStageCopy, "resources", resSrc), "reason", "not a directory")
	}

	owner := OwnerOf(req.Identity)
	root := path.Clean(req.InstallRoot)
	c := newCopier(w)

	for _, p := range domain.ParentDirs(root) {
		if err := c.dir(p, RootOwner, domain.ImageDirMode); err != nil {
			return c.n, err
		}
	}
	if err := c.dir(root, owner, domain.ImageDirMode); err != nil {
		return c.n, err
	}

	entryDst := path.Join(root, entryRel)
	if err := c.branch(root, path.Dir(entryDst), owner); err != nil {
		return c.n, err
	}
	if err := c.file(entrySrc, entryDst, entryInfo, owner); err != nil {
		return c.n, err
	}

	resDst := path.Join(root, resRel)
	if err := c.branch(root, path.Dir(resDst), owner); err != nil {
		return c.n, err
	}
	if err := c.tree(s.walker, resSrc, resDst, owner); err != nil {
		return c.n, err
	}

	s.logger.Info(fmt.Sprintf("staged %s and %s/ into %s as %s", entryRel, resRel, root, req.Identity.Owner()))
	return c.n, nil
}

// CopyTree copies the host directory src to dst inside the layer. The parents of dst are
// written root-owned; dst and everything below it carry owner. Modes are normalized with
// ReadableMode so every user can read the tree and run its executables.
func (s *Stager) CopyTree(w ports.LayerWriter, src, dst string, owner Owner) (int, error) {
	info, err := os.Lstat(src)
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrStageCopy.Error()), "path", src)
	}
	if !info.IsDir() {
		return 0, zerr.With(zerr.With(domain.ErrStageCopy, "path", src), "reason", "not a directory")
	}

	dst = path.Clean(dst)
	c := newCopier(w)
	c.mode = ReadableMode
	for _, p := range domain.ParentDirs(dst) {
		if err := c.dir(p, RootOwner, domain.ImageDirMode); err != nil {
			return c.n, err
		}
	}
	if err := c.tree(s.walker, src, dst, owner); err != nil {
		return c.n, err
	}
	return c.n, nil
}

// assetPath resolves a project-relative asset and returns its host path and its slash-separated relative form.
func assetPath(root, rel string) (string, string, error) {
	clean := path.Clean(filepath.ToSlash(rel))
	if rel == "" || path.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", "", zerr.With(zerr.With(domain.ErrStageCopy, "path", rel), "reason", "asset must be relative to the project")
	}
	return filepath.Join(root, filepath.FromSlash(clean)), clean, nil
}

// copier writes entries once and counts them.
type copier struct {
	w       ports.LayerWriter
	mode    func(fs.FileMode) int64
	written map[string]bool
	n       int
}

func newCopier(w ports.LayerWriter) *copier {
	return &copier{w: w, mode: sanitize, written: make(map[string]bool)}
}

func (c *copier) dir(p string, owner Owner, mode int64) error {
	if c.written[p] {
		return nil
	}
	entry := domain.LayerEntry{Path: p, Type: domain.EntryDir, Mode: mode, UID: owner.UID, GID: owner.GID}
	if err := c.w.AddDir(entry); err != nil {
		return zerr.Wrap(err, domain.ErrStageCopy.Error())
	}
	c.written[p] = true
	c.n++
	return nil
}

// branch writes the directories between root (exclusive) and dir (inclusive).
func (c *copier) branch(root, dir string, owner Owner) error {
	if dir == root {
		return nil
	}
	rel := strings.TrimPrefix(dir, root+"/")
	cur := root
	for _, part := range strings.Split(rel, "/") {
		cur = path.Join(cur, part)
		if err := c.dir(cur, owner, domain.ImageDirMode); err != nil {
			return err
		}
	}
	return nil
}

func (c *copier) file(src, dst string, info fs.FileInfo, owner Owner) error {
	f, err := os.Open(src) //nolint:gosec // src is below a validated asset root
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStageCopy.Error()), "path", src)
	}
	defer func() { _ = f.Close() }()

	entry := domain.LayerEntry{
		Path: dst,
		Type: domain.EntryFile,
		Mode: c.mode(info.Mode()),
		UID:  owner.UID,
		GID:  owner.GID,
		Size: info.Size(),
	}
	if err := c.w.AddFile(entry, f); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStageCopy.Error()), "path", src)
	}
	c.written[dst] = true
	c.n++
	return nil
}

// tree copies src to dst. Symlinks must stay inside src and must not resolve through another symlink.
func (c *copier) tree(walker ports.Walker, src, dst string, owner Owner) error {
	for p, d := range walker.WalkTree(src, nil) {
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrStageCopy.Error()), "path", p)
		}
		rel = filepath.ToSlash(rel)
		target := path.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrStageCopy.Error()), "path", p)
		}

		switch {
		case info.Mode()&fs.ModeSymlink != 0:
			if err := c.symlink(src, p, rel, target, owner); err != nil {
				return err
			}
		case info.IsDir():
			if err := c.dir(target, owner, c.mode(info.Mode())); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if err := c.file(p, target, info, owner); err != nil {
				return err
			}
		default:
			return zerr.With(zerr.With(domain.ErrStageCopy, "path", p), "reason", "unsupported file type "+info.Mode().Type().String())
		}
	}
	return nil
}

func (c *copier) symlink(root, src, rel, dst string, owner Owner) error {
	link, err := os.Readlink(src)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStageCopy.Error()), "path", src)
	}
	target := filepath.ToSlash(link)
	resolved := path.Join(path.Dir(rel), target)
	if path.IsAbs(target) || resolved == ".." || strings.HasPrefix(resolved, "../") {
		err := zerr.With(zerr.With(domain.ErrStageCopy, "path", src), "target", link)
		return zerr.With(err, "reason", "symlink points outside the copied tree")
	}
	if err := linkFree(root, path.Dir(rel), target); err != nil {
		return zerr.With(zerr.With(err, "path", src), "target", link)
	}

	entry := domain.LayerEntry{
		Path:     dst,
		Type:     domain.EntrySymlink,
		Mode:     0o777,
		UID:      owner.UID,
		GID:      owner.GID,
		Linkname: target,
	}
	if err := c.w.AddSymlink(entry); err != nil {
		return zerr.Wrap(err, domain.ErrStageCopy.Error())
	}
	c.written[dst] = true
	c.n++
	return nil
}

// linkFree walks target from dir below root one component at a time. Every directory the
// walk passes through must be a real directory inside root.
func linkFree(root, dir, target string) error {
	parts := strings.Split(target, "/")
	for i, part := range parts[:len(parts)-1] {
		switch part {
		case "", ".":
			continue
		case "..":
			if dir == "." {
				return zerr.With(domain.ErrStageCopy, "reason", "symlink points outside the copied tree")
			}
			dir = path.Dir(dir)
			continue
		}
		dir = path.Join(dir, part)
		info, err := os.Lstat(filepath.Join(root, filepath.FromSlash(dir)))
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return zerr.Wrap(err, domain.ErrStageCopy.Error())
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			err := zerr.With(domain.ErrStageCopy, "via", strings.Join(parts[:i+1], "/"))
			return zerr.With(err, "reason", "symlink target passes through another symlink")
		}
	}
	return nil
}

// sanitize keeps the permission bits of mode without group or other write.
func sanitize(mode fs.FileMode) int64 {
	return int64(mode.Perm() &^ writableByOthers)
}

// ReadableMode returns 0755 for directories and executables and 0644 for other files.
func ReadableMode(mode fs.FileMode) int64 {
	if mode.IsDir() || mode.Perm()&0o111 != 0 {
		return domain.ImageDirMode
	}
	return domain.ImageFileMode
}
