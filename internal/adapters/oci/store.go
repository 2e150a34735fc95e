// Package oci reads and writes OCI image layouts on the local filesystem.
package oci

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.ImageStore = (*Store)(nil)

// Store implements ports.ImageStore.
type Store struct {
	logger ports.Logger
	epoch  time.Time
}

// NewStore creates a Store. Every layer entry and the image config carry epoch as their timestamp.
func NewStore(logger ports.Logger, epoch time.Time) *Store {
	return &Store{logger: logger, epoch: epoch.UTC()}
}

// ParseSourceDateEpoch parses a SOURCE_DATE_EPOCH value. An empty value yields the Unix epoch.
func ParseSourceDateEpoch(value string) (time.Time, error) {
	if value == "" {
		return time.Unix(0, 0).UTC(), nil
	}
	secs, err := strconv.ParseInt(value, 10, 64)
	if err != nil || secs < 0 {
		return time.Time{}, zerr.With(domain.ErrInvalidConfig, domain.SourceDateEpochEnvVar, value)
	}
	return time.Unix(secs, 0).UTC(), nil
}

// Begin starts a layout in dir.
func (s *Store) Begin(dir string) (ports.ImageBuilder, error) {
	b := &Builder{dir: dir, epoch: s.epoch, logger: s.logger}
	if err := os.MkdirAll(b.blobDir(), domain.DirPerm); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrImageWriteFailed.Error()), "dir", dir)
	}
	return b, nil
}

// ReadBase parses the base layout at dir and extracts the requested files from its layers.
func (s *Store) ReadBase(ctx context.Context, dir string, files ...string) (*domain.BaseImage, error) {
	manifest, config, err := readImage(dir, domain.ErrBaseImageReadFailed)
	if err != nil {
		return nil, err
	}
	if len(manifest.Layers) != len(config.RootFS.DiffIDs) {
		return nil, zerr.With(domain.ErrBaseImageReadFailed, "reason", "layer and diff id count differ")
	}

	base := &domain.BaseImage{
		Layout:       dir,
		Env:          config.Config.Env,
		OS:           config.OS,
		Architecture: config.Architecture,
	}
	for i, l := range manifest.Layers {
		base.Layers = append(base.Layers, domain.Layer{
			Digest:    l.Digest.String(),
			DiffID:    config.RootFS.DiffIDs[i].String(),
			Size:      l.Size,
			MediaType: l.MediaType,
		})
	}

	base.Files, err = extractFiles(ctx, dir, manifest.Layers, files)
	if err != nil {
		return nil, err
	}
	return base, nil
}

// ReadLaunchSpec reads the process invocation from the image config of the layout at dir.
func (s *Store) ReadLaunchSpec(dir string) (domain.LaunchSpec, error) {
	_, config, err := readImage(dir, domain.ErrImageReadFailed)
	if err != nil {
		return domain.LaunchSpec{}, err
	}
	return domain.LaunchSpec{
		User:       config.Config.User,
		Env:        config.Config.Env,
		Cmd:        config.Config.Cmd,
		WorkingDir: config.Config.WorkingDir,
	}, nil
}

// readImage follows index.json to the first image manifest and its config.
func readImage(dir string, sentinel error) (v1.Manifest, v1.Image, error) {
	var index v1.Index
	if err := readJSON(filepath.Join(dir, v1.ImageIndexFile), &index, sentinel); err != nil {
		return v1.Manifest{}, v1.Image{}, err
	}

	var desc *v1.Descriptor
	for i := range index.Manifests {
		if index.Manifests[i].MediaType == v1.MediaTypeImageManifest {
			desc = &index.Manifests[i]
			break
		}
	}
	if desc == nil {
		return v1.Manifest{}, v1.Image{}, zerr.With(sentinel, "reason", "index has no image manifest")
	}

	var manifest v1.Manifest
	if err := readBlobJSON(dir, desc.Digest, &manifest, sentinel); err != nil {
		return v1.Manifest{}, v1.Image{}, err
	}
	var config v1.Image
	if err := readBlobJSON(dir, manifest.Config.Digest, &config, sentinel); err != nil {
		return v1.Manifest{}, v1.Image{}, err
	}
	return manifest, config, nil
}

func readBlobJSON(dir string, d digest.Digest, v any, sentinel error) error {
	if err := d.Validate(); err != nil {
		return zerr.With(zerr.Wrap(err, sentinel.Error()), "digest", d.String())
	}
	path := blobPath(dir, d)
	data, err := os.ReadFile(path) //nolint:gosec // Path is derived from a validated digest
	if err != nil {
		return zerr.With(zerr.Wrap(err, sentinel.Error()), "path", path)
	}
	if digest.FromBytes(data) != d {
		return zerr.With(zerr.With(sentinel, "reason", "blob digest mismatch"), "digest", d.String())
	}
	return unmarshal(data, v, path, sentinel)
}

func readJSON(path string, v any, sentinel error) error {
	data, err := os.ReadFile(path) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return zerr.With(zerr.Wrap(err, sentinel.Error()), "path", path)
	}
	return unmarshal(data, v, path, sentinel)
}
