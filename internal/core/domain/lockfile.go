package domain

import (
	"slices"
	"strings"
)

// LockedFile is a distribution file recorded for a locked package.
type LockedFile struct {
	// Name is the distribution filename (e.g. "requests-2.31.0-py3-none-any.whl").
	Name string

	// Hash is the integrity hash in "algorithm:hex" form.
	Hash string
}

// LockedDependency is a dependency edge recorded in the lockfile.
type LockedDependency struct {
	// Name is the normalized distribution name of the dependency.
	Name InternedString

	// Constraint is the version range the parent requires.
	Constraint Constraint

	// Markers restricts the edge to matching environments.
	Markers Marker

	// Optional marks an edge that is only followed when an extra of the parent enables it.
	Optional bool

	// Extras lists the extras of the dependency requested by the parent.
	Extras []string
}

// LockedPackage is one pinned package of the lockfile.
type LockedPackage struct {
	// Name is the normalized distribution name.
	Name InternedString

	// Version is the exact pinned version.
	Version Version

	// Files lists the distribution files and their hashes.
	Files []LockedFile

	// Dependencies lists the outgoing dependency edges.
	Dependencies []LockedDependency

	// Extras maps an extra of this package to the dependency names it enables.
	Extras map[string][]InternedString
}

// Lockfile is the parsed lockfile (poetry.lock).
type Lockfile struct {
	// LockVersion is the lockfile format version (e.g. "2.0").
	LockVersion string

	// ContentHash is the manifest content hash recorded when the lock was generated.
	ContentHash string

	// Python is the interpreter range the lock was generated for.
	Python string

	// Packages maps a normalized name to every locked version of that package.
	Packages map[string][]LockedPackage
}

// Lookup returns the locked package for name whose version satisfies c.
func (l *Lockfile) Lookup(name InternedString, c Constraint) (LockedPackage, bool) {
	for _, pkg := range l.Packages[name.String()] {
		if c.Contains(pkg.Version) {
			return pkg, true
		}
	}
	return LockedPackage{}, false
}

// Has reports whether the lock has any entry for name.
func (l *Lockfile) Has(name InternedString) bool {
	return len(l.Packages[name.String()]) > 0
}

// Hashes returns the sorted, de-duplicated sha256 file hashes of the package.
func (p LockedPackage) Hashes() []string {
	seen := make(map[string]bool, len(p.Files))
	out := make([]string, 0, len(p.Files))
	for _, f := range p.Files {
		if f.Hash == "" || seen[f.Hash] {
			continue
		}
		if !strings.HasPrefix(f.Hash, HashPrefix) {
			continue
		}
		seen[f.Hash] = true
		out = append(out, f.Hash)
	}
	slices.Sort(out)
	return out
}
