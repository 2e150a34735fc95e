package ports

import (
	"context"
	"io"

	"go.trai.ch/kiln/internal/core/domain"
)

//go:generate mockgen -source=package_index.go -destination=mocks/mock_package_index.go -package=mocks

// IndexFactory opens a package index for the sources of one build.
type IndexFactory interface {
	// Open returns an index over cfg. Relative find-links resolve against root.
	Open(cfg domain.IndexConfig, root string) (PackageIndex, error)
}

// PackageIndex locates and downloads distributions for exact pins.
type PackageIndex interface {
	// Find returns every distribution of name at exactly version. It never returns other versions.
	Find(ctx context.Context, name domain.InternedString, version domain.Version) ([]domain.Distribution, error)

	// Fetch streams the distribution content into w.
	Fetch(ctx context.Context, dist domain.Distribution, w io.Writer) error
}
