package oci

import (
	"archive/tar"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.LayerWriter = (*layerWriter)(nil)

// countingWriter counts the bytes written through it.
type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

// layerWriter streams a gzip-compressed tar into a temporary blob file.
// Digests of the compressed blob and of the uncompressed stream are computed
// while writing.
type layerWriter struct {
	builder *Builder
	name    string
	mtime   time.Time

	tmp  *os.File
	gz   *gzip.Writer
	tw   *tar.Writer
	blob digest.Digester
	diff digest.Digester
	size countingWriter

	entries []domain.LayerEntry
	seen    map[string]bool
	closed  bool
}

func newLayerWriter(b *Builder, name string) (*layerWriter, error) {
	tmp, err := os.CreateTemp(b.blobDir(), ".layer-*")
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrLayerWriteFailed.Error()), "layer", name)
	}

	w := &layerWriter{
		builder: b,
		name:    name,
		mtime:   b.epoch,
		tmp:     tmp,
		blob:    digest.SHA256.Digester(),
		diff:    digest.SHA256.Digester(),
		seen:    make(map[string]bool),
	}
	w.gz = gzip.NewWriter(io.MultiWriter(tmp, w.blob.Hash(), &w.size))
	w.tw = tar.NewWriter(io.MultiWriter(w.diff.Hash(), w.gz))
	return w, nil
}

// AddDir writes a directory entry.
func (w *layerWriter) AddDir(entry domain.LayerEntry) error {
	entry.Type = domain.EntryDir
	hdr, err := w.header(entry, tar.TypeDir)
	if err != nil {
		return err
	}
	hdr.Name += "/"
	return w.write(entry, hdr, nil)
}

// AddFile writes a regular file whose content is read from r. entry.Size must be exact.
func (w *layerWriter) AddFile(entry domain.LayerEntry, r io.Reader) error {
	entry.Type = domain.EntryFile
	hdr, err := w.header(entry, tar.TypeReg)
	if err != nil {
		return err
	}
	hdr.Size = entry.Size
	return w.write(entry, hdr, r)
}

// AddSymlink writes a symbolic link to entry.Linkname.
func (w *layerWriter) AddSymlink(entry domain.LayerEntry) error {
	entry.Type = domain.EntrySymlink
	if entry.Linkname == "" {
		return w.fail(entry, "symlink without target")
	}
	hdr, err := w.header(entry, tar.TypeSymlink)
	if err != nil {
		return err
	}
	hdr.Linkname = entry.Linkname
	return w.write(entry, hdr, nil)
}

func (w *layerWriter) header(entry domain.LayerEntry, typ byte) (*tar.Header, error) {
	if w.closed {
		return nil, w.fail(entry, "layer closed")
	}
	if !path.IsAbs(entry.Path) || path.Clean(entry.Path) == "/" {
		return nil, w.fail(entry, "path must be absolute and below /")
	}
	name := strings.TrimPrefix(path.Clean(entry.Path), "/")
	if w.seen[name] {
		return nil, w.fail(entry, "duplicate entry")
	}
	return &tar.Header{
		Typeflag: typ,
		Name:     name,
		Mode:     entry.Mode,
		Uid:      entry.UID,
		Gid:      entry.GID,
		ModTime:  w.mtime,
		Format:   tar.FormatPAX,
	}, nil
}

func (w *layerWriter) write(entry domain.LayerEntry, hdr *tar.Header, r io.Reader) error {
	if err := w.tw.WriteHeader(hdr); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrLayerWriteFailed.Error()), "path", entry.Path)
	}
	if r != nil {
		content := digest.SHA256.Digester()
		n, err := io.Copy(w.tw, io.TeeReader(r, content.Hash()))
		if err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrLayerWriteFailed.Error()), "path", entry.Path)
		}
		if n != entry.Size {
			return w.fail(entry, "content shorter than declared size")
		}
		entry.Digest = content.Digest().String()
	}
	entry.Path = path.Clean(entry.Path)
	w.seen[hdr.Name] = true
	w.entries = append(w.entries, entry)
	return nil
}

func (w *layerWriter) fail(entry domain.LayerEntry, reason string) error {
	err := zerr.With(domain.ErrLayerWriteFailed, "path", entry.Path)
	return zerr.With(err, "reason", reason)
}

// Close finalizes the blob and registers the layer with the builder.
func (w *layerWriter) Close() (domain.Layer, error) {
	if w.closed {
		return domain.Layer{}, zerr.With(domain.ErrLayerWriteFailed, "layer", w.name)
	}
	w.closed = true

	tmpName := w.tmp.Name()
	err := w.tw.Close()
	if err == nil {
		err = w.gz.Close()
	}
	if closeErr := w.tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return domain.Layer{}, zerr.With(zerr.Wrap(err, domain.ErrLayerWriteFailed.Error()), "layer", w.name)
	}

	blob := w.blob.Digest()
	if err := os.Rename(tmpName, filepath.Join(w.builder.blobDir(), blob.Encoded())); err != nil {
		_ = os.Remove(tmpName)
		return domain.Layer{}, zerr.With(zerr.Wrap(err, domain.ErrLayerWriteFailed.Error()), "layer", w.name)
	}

	layer := domain.Layer{
		Digest:    blob.String(),
		DiffID:    w.diff.Digest().String(),
		Size:      w.size.n,
		MediaType: v1.MediaTypeImageLayerGzip,
		Entries:   w.entries,
	}
	w.builder.layers = append(w.builder.layers, builtLayer{name: w.name, layer: layer})
	return layer, nil
}
