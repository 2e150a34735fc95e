// Package resolver projects a lockfile into the flat, exactly pinned requirement list.
package resolver

import (
	"fmt"
	"slices"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// pythonPseudoPackage is the interpreter constraint Poetry records among the dependencies.
const pythonPseudoPackage = "python"

// projectRequirer names the manifest as the origin of a direct dependency.
const projectRequirer = "<project>"

// Options selects what part of the lock is projected.
type Options struct {
	// Groups lists the dependency groups to include. Empty selects the main group.
	Groups []string

	// Extras lists the project extras to enable.
	Extras []string

	// VerifyContentHash rejects a lock whose content hash differs from the manifest's.
	VerifyContentHash bool
}

// Resolver flattens a lock dependency graph. It never contacts an index and never solves.
type Resolver struct {
	logger ports.Logger
}

// New creates a Resolver.
func New(logger ports.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// visit is one path reaching a locked package.
type visit struct {
	pkg      domain.LockedPackage
	extras   []string
	marker   domain.Marker
	requirer string
}

func (v visit) key() string {
	return v.pkg.Name.String() + "@" + v.pkg.Version.String() +
		"[" + strings.Join(v.extras, ",") + "];" + v.marker.String()
}

// pinned collects every path marker of one selected package.
type pinned struct {
	pkg      domain.LockedPackage
	requirer string
	paths    []domain.Marker
}

// Resolve returns the flat requirement list for the selected groups and extras.
func (r *Resolver) Resolve(manifest *domain.Manifest, lock *domain.Lockfile, opts Options) (*domain.RequirementList, error) {
	if err := r.verifyContentHash(manifest, lock, opts.VerifyContentHash); err != nil {
		return nil, err
	}
	if err := checkSelection(manifest, opts); err != nil {
		return nil, err
	}

	queue, err := r.directVisits(manifest, lock, opts)
	if err != nil {
		return nil, err
	}

	selected := make(map[string]*pinned)
	seen := make(map[string]bool)

	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]

		if seen[v.key()] {
			continue
		}
		seen[v.key()] = true

		name := v.pkg.Name.String()
		p, ok := selected[name]
		if !ok {
			p = &pinned{pkg: v.pkg, requirer: v.requirer}
			selected[name] = p
		} else if p.pkg.Version.Compare(v.pkg.Version) != 0 {
			err := zerr.With(zerr.With(domain.ErrConflict, "package", name), "pinned", p.pkg.Version.String()+" (required by "+p.requirer+")")
			return nil, zerr.With(err, "requested", v.pkg.Version.String()+" (required by "+v.requirer+")")
		}
		p.paths = append(p.paths, v.marker)

		children, err := edges(lock, v)
		if err != nil {
			return nil, err
		}
		queue = append(queue, children...)
	}

	reqs := make([]domain.Requirement, 0, len(selected))
	for _, p := range selected {
		reqs = append(reqs, domain.Requirement{
			Name:    p.pkg.Name,
			Version: p.pkg.Version,
			Marker:  domain.AnyOf(p.paths...),
			Hashes:  p.pkg.Hashes(),
		})
	}

	list, err := domain.NewRequirementList(reqs)
	if err != nil {
		return nil, err
	}
	r.logger.Info(fmt.Sprintf("resolved %d requirement(s) from %d locked package(s)", list.Len(), countLocked(lock)))
	return list, nil
}

func (r *Resolver) verifyContentHash(manifest *domain.Manifest, lock *domain.Lockfile, enabled bool) error {
	if !enabled {
		return nil
	}
	if manifest.ContentHash == "" {
		r.logger.Warn("manifest declares no poetry dependency tables, skipping lock content hash check")
		return nil
	}
	if lock.ContentHash != manifest.ContentHash {
		err := zerr.With(domain.ErrResolutionMismatch, "expected_content_hash", manifest.ContentHash)
		return zerr.With(err, "lock_content_hash", lock.ContentHash)
	}
	return nil
}

func checkSelection(manifest *domain.Manifest, opts Options) error {
	for _, g := range opts.Groups {
		if _, ok := manifest.Groups[g]; !ok && g != domain.DefaultGroup {
			return zerr.With(zerr.With(domain.ErrInvalidConfig, "field", "python.groups"), "unknown_group", g)
		}
	}
	for _, e := range opts.Extras {
		if _, ok := manifest.Extras[domain.NormalizeName(e)]; !ok {
			return zerr.With(zerr.With(domain.ErrInvalidConfig, "field", "python.extras"), "unknown_extra", e)
		}
	}
	return nil
}

func (r *Resolver) directVisits(manifest *domain.Manifest, lock *domain.Lockfile, opts Options) ([]visit, error) {
	var out []visit
	for _, dep := range manifest.Direct(opts.Groups, opts.Extras) {
		if dep.Name.String() == pythonPseudoPackage {
			continue
		}

		marker := dep.Markers.ResolveExtras(opts.Extras)
		if marker.IsNever() {
			continue
		}

		pkg, ok := lock.Lookup(dep.Name, dep.Constraint)
		if !ok {
			return nil, missingPin(lock, dep.Name, dep.Constraint, domain.ErrResolutionMismatch)
		}

		out = append(out, visit{
			pkg:      pkg,
			extras:   normalizeExtras(dep.Extras),
			marker:   marker,
			requirer: projectRequirer,
		})
	}
	return out, nil
}

// edges returns the visits reached from v over the outgoing lock edges that v activates.
func edges(lock *domain.Lockfile, v visit) ([]visit, error) {
	enabled := make(map[string]bool)
	for _, extra := range v.extras {
		for _, name := range v.pkg.Extras[extra] {
			enabled[name.String()] = true
		}
	}

	requirer := v.pkg.Name.String() + "==" + v.pkg.Version.String()

	var out []visit
	for _, edge := range v.pkg.Dependencies {
		if edge.Name.String() == pythonPseudoPackage {
			continue
		}
		if edge.Optional && !enabled[edge.Name.String()] {
			continue
		}

		marker := domain.AllOf(v.marker, edge.Markers.ResolveExtras(v.extras))
		if marker.IsNever() {
			continue
		}

		child, ok := lock.Lookup(edge.Name, edge.Constraint)
		if !ok {
			return nil, zerr.With(missingPin(lock, edge.Name, edge.Constraint, domain.ErrConflict), "required_by", requirer)
		}

		out = append(out, visit{
			pkg:      child,
			extras:   normalizeExtras(edge.Extras),
			marker:   marker,
			requirer: requirer,
		})
	}
	return out, nil
}

// missingPin builds the error for a constraint no locked version satisfies.
// A name absent from the lock is unresolvable; a locked name at the wrong version is reported as mismatch.
func missingPin(lock *domain.Lockfile, name domain.InternedString, c domain.Constraint, mismatch error) error {
	if !lock.Has(name) {
		err := zerr.With(domain.ErrUnresolvableDependency, "package", name.String())
		return zerr.With(err, "constraint", c.String())
	}

	locked := make([]string, 0, len(lock.Packages[name.String()]))
	for _, pkg := range lock.Packages[name.String()] {
		locked = append(locked, pkg.Version.String())
	}
	err := zerr.With(zerr.With(mismatch, "package", name.String()), "constraint", c.String())
	return zerr.With(err, "locked", strings.Join(locked, ", "))
}

func normalizeExtras(extras []string) []string {
	out := make([]string, 0, len(extras))
	for _, e := range extras {
		out = append(out, domain.NormalizeName(e))
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func countLocked(lock *domain.Lockfile) int {
	n := 0
	for _, pkgs := range lock.Packages {
		n += len(pkgs)
	}
	return n
}
