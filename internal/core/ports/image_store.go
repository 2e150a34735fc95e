package ports

import (
	"context"
	"io"

	"go.trai.ch/kiln/internal/core/domain"
)

// ImageStore reads and writes OCI image layouts.
//
//go:generate mockgen -source=image_store.go -destination=mocks/mock_image_store.go -package=mocks
type ImageStore interface {
	// Begin starts an image layout in the staging directory dir.
	Begin(dir string) (ImageBuilder, error)

	// ReadBase parses the base image layout at dir and extracts the named files.
	ReadBase(ctx context.Context, dir string, files ...string) (*domain.BaseImage, error)

	// ReadLaunchSpec reads the process invocation from a built image layout.
	ReadLaunchSpec(dir string) (domain.LaunchSpec, error)
}

// ImageBuilder accumulates layers of one image.
type ImageBuilder interface {
	// InheritBase copies the base image layers into the layout.
	InheritBase(base *domain.BaseImage) error

	// NewLayer opens a layer; the layer becomes part of the image when closed without error.
	NewLayer(name string) (LayerWriter, error)

	// Commit writes config, manifest and index, then moves the layout to out.
	// It returns the manifest digest.
	Commit(ctx context.Context, meta domain.ImageMeta, out string) (string, error)
}

// LayerWriter writes entries to one image layer. Ownership and mode come from the entry.
type LayerWriter interface {
	AddDir(entry domain.LayerEntry) error
	AddFile(entry domain.LayerEntry, r io.Reader) error
	AddSymlink(entry domain.LayerEntry) error
	// Close finalizes the layer and returns it with every recorded entry.
	Close() (domain.Layer, error)
}
