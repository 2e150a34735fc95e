package ports

// Hasher defines the interface for computing fingerprints.
//
//go:generate mockgen -destination=mocks/hasher_mock.go -package=mocks -source=hasher.go
type Hasher interface {
	// ComputeFileHash computes the hash of a file's content.
	ComputeFileHash(path string) (uint64, error)

	// Fingerprint computes a single hash over the given files or directories and build parameters.
	Fingerprint(paths []string, params map[string]string) (string, error)
}
