package ports

import "go.trai.ch/kiln/internal/core/domain"

// ProjectLoader reads the dependency manifest and its lockfile.
//
//go:generate mockgen -source=project_loader.go -destination=mocks/mock_project_loader.go -package=mocks
type ProjectLoader interface {
	// LoadManifest parses the manifest at path and computes its lock content hash.
	LoadManifest(path string) (*domain.Manifest, error)

	// LoadLockfile parses the lockfile at path.
	LoadLockfile(path string) (*domain.Lockfile, error)
}
