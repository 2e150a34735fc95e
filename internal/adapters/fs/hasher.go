package fs

import (
	"encoding/binary"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Hasher = (*Hasher)(nil)

// Hasher computes content fingerprints of build inputs.
type Hasher struct {
	walker *Walker
}

// NewHasher creates a new Hasher.
func NewHasher(walker *Walker) *Hasher {
	return &Hasher{walker: walker}
}

// ComputeFileHash computes the XXHash of a file's content.
func (h *Hasher) ComputeFileHash(path string) (uint64, error) {
	f, err := os.Open(path) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, "failed to open file"), "path", path)
	}
	defer f.Close() //nolint:errcheck // Best effort close in defer

	hasher := xxhash.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return 0, zerr.With(zerr.Wrap(err, "failed to hash file content"), "path", path)
	}

	return hasher.Sum64(), nil
}

// Fingerprint computes a single hash over the build parameters and the content of
// the given paths. Directories are hashed recursively. Files are keyed by their
// name relative to the given path so the fingerprint does not depend on where the
// project is checked out. A missing path contributes a marker instead of content.
func (h *Hasher) Fingerprint(paths []string, params map[string]string) (string, error) {
	hasher := xxhash.New()

	h.hashParams(params, hasher)

	for _, path := range paths {
		if err := h.hashPath(path, hasher); err != nil {
			return "", err
		}
	}

	return fmt.Sprintf("%016x", hasher.Sum64()), nil
}

// hashParams hashes parameters in a deterministic order.
func (h *Hasher) hashParams(params map[string]string, hasher *xxhash.Digest) {
	for _, k := range slices.Sorted(maps.Keys(params)) {
		_, _ = hasher.WriteString(k)
		_, _ = hasher.Write([]byte{'='})
		_, _ = hasher.WriteString(params[k])
		_, _ = hasher.Write([]byte{0})
	}
	_, _ = hasher.Write([]byte{0}) // Section separator
}

func (h *Hasher) hashPath(path string, hasher io.Writer) error {
	name := filepath.Base(path)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		_, _ = fmt.Fprintf(hasher, "%s\x00missing\x00", name)
		return nil
	}
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to stat path"), "path", path)
	}

	if !info.IsDir() {
		return h.hashFile(name, path, hasher)
	}

	for filePath := range h.walker.WalkFiles(path, nil) {
		rel, err := filepath.Rel(path, filePath)
		if err != nil {
			return zerr.With(zerr.Wrap(err, "failed to relativize path"), "path", filePath)
		}
		if err := h.hashFile(filepath.ToSlash(filepath.Join(name, rel)), filePath, hasher); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hasher) hashFile(key, path string, mainHasher io.Writer) error {
	_, _ = mainHasher.Write([]byte(key))
	_, _ = mainHasher.Write([]byte{0})

	hash, err := h.ComputeFileHash(path)
	if err != nil {
		return err
	}

	if err := binary.Write(mainHasher, binary.LittleEndian, hash); err != nil {
		return zerr.Wrap(err, "failed to write hash to digest")
	}
	return nil
}
