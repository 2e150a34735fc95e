package oci

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/containerd/platforms"
	"github.com/distribution/reference"
	"github.com/google/renameio"
	"github.com/opencontainers/go-digest"
	"github.com/opencontainers/image-spec/specs-go"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// FingerprintAnnotation carries the fingerprint of the build inputs.
const FingerprintAnnotation = "dev.kiln.fingerprint"

var _ ports.ImageBuilder = (*Builder)(nil)

type builtLayer struct {
	name  string
	layer domain.Layer
}

// Builder assembles one OCI image layout in a staging directory.
type Builder struct {
	dir    string
	epoch  time.Time
	logger ports.Logger

	base   *domain.BaseImage
	layers []builtLayer
}

func (b *Builder) blobDir() string {
	return filepath.Join(b.dir, v1.ImageBlobsDir, digest.SHA256.String())
}

// InheritBase links or copies the base layer blobs into the layout.
func (b *Builder) InheritBase(base *domain.BaseImage) error {
	if b.base != nil {
		return zerr.With(domain.ErrImageWriteFailed, "reason", "base image already inherited")
	}
	for _, l := range base.Layers {
		d, err := digest.Parse(l.Digest)
		if err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrImageWriteFailed.Error()), "layer", l.Digest)
		}
		src := blobPath(base.Layout, d)
		dst := blobPath(b.dir, d)
		if err := os.MkdirAll(filepath.Dir(dst), domain.DirPerm); err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrImageWriteFailed.Error()), "dir", filepath.Dir(dst))
		}
		if err := linkOrCopy(src, dst); err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrImageWriteFailed.Error()), "layer", l.Digest)
		}
	}
	b.base = base
	return nil
}

// NewLayer opens a layer writer.
func (b *Builder) NewLayer(name string) (ports.LayerWriter, error) {
	return newLayerWriter(b, name)
}

// Commit writes config, manifest, index and oci-layout, then moves the layout to out.
func (b *Builder) Commit(ctx context.Context, meta domain.ImageMeta, out string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Join(domain.ErrImageWriteFailed, err)
	}

	platform, err := b.platform(meta.Platform)
	if err != nil {
		return "", err
	}
	if meta.Ref != "" {
		if _, err := reference.ParseNormalizedNamed(meta.Ref); err != nil {
			return "", zerr.With(zerr.Wrap(err, domain.ErrImageWriteFailed.Error()), "ref", meta.Ref)
		}
	}

	created := meta.Created
	if created.IsZero() {
		created = b.epoch
	}
	created = created.UTC()

	var layers []domain.Layer
	if b.base != nil {
		layers = append(layers, b.base.Layers...)
	}
	history := make([]v1.History, 0, len(b.layers))
	for _, l := range b.layers {
		layers = append(layers, l.layer)
		history = append(history, v1.History{Created: &created, CreatedBy: "kiln " + l.name})
	}

	config := v1.Image{
		Created:  &created,
		Platform: platform,
		Config: v1.ImageConfig{
			User:       meta.Launch.User,
			Env:        meta.Launch.Env,
			Cmd:        meta.Launch.Cmd,
			WorkingDir: meta.Launch.WorkingDir,
		},
		RootFS: v1.RootFS{Type: "layers"},
	}
	if b.base == nil {
		config.History = history
	}

	manifest := v1.Manifest{
		Versioned: specs.Versioned{SchemaVersion: 2},
		MediaType: v1.MediaTypeImageManifest,
		Annotations: annotations(map[string]string{
			v1.AnnotationVersion:  meta.Version,
			v1.AnnotationRefName:  meta.Ref,
			v1.AnnotationCreated:  created.Format(time.RFC3339),
			FingerprintAnnotation: meta.Fingerprint,
		}),
	}
	for _, l := range layers {
		config.RootFS.DiffIDs = append(config.RootFS.DiffIDs, digest.Digest(l.DiffID))
		manifest.Layers = append(manifest.Layers, v1.Descriptor{
			MediaType: l.MediaType,
			Digest:    digest.Digest(l.Digest),
			Size:      l.Size,
		})
	}

	manifest.Config, err = b.writeJSONBlob(v1.MediaTypeImageConfig, config)
	if err != nil {
		return "", err
	}
	manifestDesc, err := b.writeJSONBlob(v1.MediaTypeImageManifest, manifest)
	if err != nil {
		return "", err
	}
	manifestDesc.Platform = &platform
	manifestDesc.Annotations = annotations(map[string]string{v1.AnnotationRefName: meta.Ref})

	index := v1.Index{
		Versioned: specs.Versioned{SchemaVersion: 2},
		MediaType: v1.MediaTypeImageIndex,
		Manifests: []v1.Descriptor{manifestDesc},
	}
	if err := b.writeJSON(v1.ImageIndexFile, index); err != nil {
		return "", err
	}
	if err := b.writeJSON(v1.ImageLayoutFile, v1.ImageLayout{Version: v1.ImageLayoutVersion}); err != nil {
		return "", err
	}

	if err := replaceDir(b.dir, out); err != nil {
		return "", zerr.With(zerr.Wrap(err, domain.ErrImageWriteFailed.Error()), "output", out)
	}
	return manifestDesc.Digest.String(), nil
}

// platform resolves the configured platform, falling back to the base image.
func (b *Builder) platform(configured string) (v1.Platform, error) {
	if configured == "" && b.base != nil && b.base.OS != "" {
		configured = b.base.OS + "/" + b.base.Architecture
	}
	if configured == "" {
		configured = domain.DefaultPlatform
	}
	p, err := platforms.Parse(configured)
	if err != nil {
		return v1.Platform{}, zerr.With(zerr.Wrap(err, domain.ErrImageWriteFailed.Error()), "platform", configured)
	}
	p = platforms.Normalize(p)
	if b.base != nil && b.base.OS != "" && (b.base.OS != p.OS || b.base.Architecture != p.Architecture) {
		b.logger.Warn("base image platform " + b.base.OS + "/" + b.base.Architecture +
			" differs from " + platforms.Format(p))
	}
	return v1.Platform{OS: p.OS, Architecture: p.Architecture, Variant: p.Variant}, nil
}

func (b *Builder) writeJSONBlob(mediaType string, v any) (v1.Descriptor, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return v1.Descriptor{}, zerr.With(zerr.Wrap(err, domain.ErrImageWriteFailed.Error()), "media_type", mediaType)
	}
	d := digest.FromBytes(data)
	if err := renameio.WriteFile(blobPath(b.dir, d), data, domain.FilePerm); err != nil {
		return v1.Descriptor{}, zerr.With(zerr.Wrap(err, domain.ErrImageWriteFailed.Error()), "blob", d.String())
	}
	return v1.Descriptor{MediaType: mediaType, Digest: d, Size: int64(len(data))}, nil
}

func (b *Builder) writeJSON(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrImageWriteFailed.Error()), "file", name)
	}
	if err := renameio.WriteFile(filepath.Join(b.dir, name), data, domain.FilePerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrImageWriteFailed.Error()), "file", name)
	}
	return nil
}

// annotations drops empty values.
func annotations(m map[string]string) map[string]string {
	for k, v := range m {
		if v == "" {
			delete(m, k)
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func blobPath(dir string, d digest.Digest) string {
	return filepath.Join(dir, v1.ImageBlobsDir, d.Algorithm().String(), d.Encoded())
}

func linkOrCopy(src, dst string) error {
	if err := os.Link(src, dst); err == nil || os.IsExist(err) {
		return nil
	}
	in, err := os.Open(src) //nolint:gosec // Path is derived from a validated digest
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck // Read-only file

	f, err := renameio.TempFile(filepath.Dir(dst), dst)
	if err != nil {
		return err
	}
	defer f.Cleanup() //nolint:errcheck // No-op after CloseAtomicallyReplace
	if _, err := io.Copy(f, in); err != nil {
		return err
	}
	return f.CloseAtomicallyReplace()
}

// replaceDir moves src to dst, replacing a previous layout at dst.
func replaceDir(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), domain.DirPerm); err != nil {
		return err
	}

	var old string
	if _, err := os.Lstat(dst); err == nil {
		old = strings.TrimSuffix(dst, string(filepath.Separator)) + ".old"
		_ = os.RemoveAll(old)
		if err := os.Rename(dst, old); err != nil {
			return err
		}
	}
	if err := os.Rename(src, dst); err != nil {
		if old != "" {
			_ = os.Rename(old, dst)
		}
		return err
	}
	if old != "" {
		_ = os.RemoveAll(old)
	}
	return nil
}
