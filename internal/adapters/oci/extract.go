package oci

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

const (
	whiteoutPrefix = ".wh."
	whiteoutOpaque = ".wh..wh..opq"
)

// extractFiles returns the content of the wanted files as seen from the top-most layer,
// honoring whiteouts. Keys are the names as passed in wanted.
func extractFiles(ctx context.Context, dir string, layers []v1.Descriptor, wanted []string) (map[string][]byte, error) {
	if len(wanted) == 0 {
		return nil, nil
	}
	byName := make(map[string]string, len(wanted))
	for _, w := range wanted {
		byName[layerName(w)] = w
	}

	found := make(map[string][]byte)
	for _, l := range layers {
		if err := ctx.Err(); err != nil {
			return nil, errors.Join(domain.ErrBaseImageReadFailed, err)
		}
		if err := scanLayer(dir, l, byName, found); err != nil {
			return nil, zerr.With(err, "layer", l.Digest.String())
		}
	}

	files := make(map[string][]byte, len(found))
	for name, data := range found {
		files[byName[name]] = data
	}
	return files, nil
}

func scanLayer(dir string, desc v1.Descriptor, wanted map[string]string, found map[string][]byte) error {
	if err := desc.Digest.Validate(); err != nil {
		return zerr.Wrap(err, domain.ErrBaseImageReadFailed.Error())
	}
	f, err := os.Open(blobPath(dir, desc.Digest)) //nolint:gosec // Path is derived from a validated digest
	if err != nil {
		return zerr.Wrap(err, domain.ErrBaseImageReadFailed.Error())
	}
	defer f.Close() //nolint:errcheck // Read-only file

	r, closeFn, err := decompress(f, desc.MediaType)
	if err != nil {
		return err
	}
	defer closeFn()

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return zerr.Wrap(err, domain.ErrBaseImageReadFailed.Error())
		}

		name := layerName(hdr.Name)
		parent, base := path.Split(name)
		parent = strings.TrimSuffix(parent, "/")

		switch {
		case base == whiteoutOpaque:
			for k := range found {
				if parent == "" || strings.HasPrefix(k, parent+"/") {
					delete(found, k)
				}
			}
			continue
		case strings.HasPrefix(base, whiteoutPrefix):
			removed := path.Join(parent, strings.TrimPrefix(base, whiteoutPrefix))
			for k := range found {
				if k == removed || strings.HasPrefix(k, removed+"/") {
					delete(found, k)
				}
			}
			continue
		}

		if _, ok := wanted[name]; !ok {
			continue
		}
		if hdr.Typeflag != tar.TypeReg {
			delete(found, name)
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrBaseImageReadFailed.Error()), "file", name)
		}
		found[name] = data
	}
}

func decompress(r io.Reader, mediaType string) (io.Reader, func(), error) {
	switch mediaType {
	case v1.MediaTypeImageLayerGzip, "application/vnd.docker.image.rootfs.diff.tar.gzip":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, zerr.Wrap(err, domain.ErrBaseImageReadFailed.Error())
		}
		return gz, func() { _ = gz.Close() }, nil
	case v1.MediaTypeImageLayerZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, zerr.Wrap(err, domain.ErrBaseImageReadFailed.Error())
		}
		return zr, zr.Close, nil
	case v1.MediaTypeImageLayer:
		return r, func() {}, nil
	default:
		return nil, nil, zerr.With(domain.ErrBaseImageReadFailed, "media_type", mediaType)
	}
}

// layerName normalizes "/etc/passwd" and "./etc/passwd" to "etc/passwd".
func layerName(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}

func unmarshal(data []byte, v any, path string, sentinel error) error {
	if err := json.Unmarshal(data, v); err != nil {
		return zerr.With(zerr.Wrap(err, sentinel.Error()), "path", path)
	}
	return nil
}
