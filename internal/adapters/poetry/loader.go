// Package poetry reads Poetry project manifests and lockfiles.
package poetry

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"github.com/pelletier/go-toml/v2"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// Loader implements ports.ProjectLoader for pyproject.toml and poetry.lock.
type Loader struct {
	Logger ports.Logger
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

// LoadManifest parses pyproject.toml. Poetry tables take precedence over the PEP 621 [project] table.
func (l *Loader) LoadManifest(path string) (*domain.Manifest, error) {
	var doc pyprojectFile
	if err := decodeTOML(path, &doc, domain.ErrManifestReadFailed, domain.ErrManifestParseFailed); err != nil {
		return nil, err
	}

	m := &domain.Manifest{
		Python: domain.AnyConstraint(),
		Groups: make(map[string][]domain.Dependency),
		Extras: make(map[string][]domain.InternedString),
	}

	if doc.Project != nil {
		if err := l.applyProject(m, doc.Project); err != nil {
			return nil, zerr.With(err, "path", path)
		}
	}
	if doc.Tool.Poetry != nil {
		if err := l.applyPoetry(m, doc.Tool.Poetry); err != nil {
			return nil, zerr.With(err, "path", path)
		}
		m.ContentHash = ContentHash(doc.Tool.Poetry)
	}

	return m, nil
}

func (l *Loader) applyProject(m *domain.Manifest, p *projectTable) error {
	m.Name = p.Name
	m.Version = p.Version
	if p.RequiresPython != "" {
		c, err := domain.ParseConstraint(p.RequiresPython)
		if err != nil {
			return err
		}
		m.Python = c
	}

	for _, spec := range p.Dependencies {
		dep, err := domain.ParseDependencySpec(spec)
		if err != nil {
			return err
		}
		m.Groups[domain.DefaultGroup] = append(m.Groups[domain.DefaultGroup], dep)
	}

	for _, extra := range sortedKeys(p.OptionalDependencies) {
		name := domain.NormalizeName(extra)
		for _, spec := range p.OptionalDependencies[extra] {
			dep, err := domain.ParseDependencySpec(spec)
			if err != nil {
				return err
			}
			dep.Optional = true
			m.Groups[domain.DefaultGroup] = append(m.Groups[domain.DefaultGroup], dep)
			m.Extras[name] = append(m.Extras[name], dep.Name)
		}
	}
	return nil
}

func (l *Loader) applyPoetry(m *domain.Manifest, poetry map[string]any) error {
	if s, ok := poetry["name"].(string); ok {
		m.Name = s
	}
	if s, ok := poetry["version"].(string); ok {
		m.Version = s
	}

	if deps, ok := poetry["dependencies"].(map[string]any); ok {
		if s, ok := deps["python"].(string); ok {
			c, err := domain.ParseConstraint(s)
			if err != nil {
				return zerr.With(err, "dependency", "python")
			}
			m.Python = c
		}
		// Poetry tables replace PEP 621 dependencies rather than adding to them.
		delete(m.Groups, domain.DefaultGroup)
		if err := l.addGroup(m, domain.DefaultGroup, deps); err != nil {
			return err
		}
	}

	if deps, ok := poetry["dev-dependencies"].(map[string]any); ok {
		if err := l.addGroup(m, "dev", deps); err != nil {
			return err
		}
	}

	if groups, ok := poetry["group"].(map[string]any); ok {
		for _, name := range sortedKeys(groups) {
			table, _ := groups[name].(map[string]any)
			deps, _ := table["dependencies"].(map[string]any)
			if err := l.addGroup(m, name, deps); err != nil {
				return err
			}
		}
	}

	if extras, ok := poetry["extras"].(map[string]any); ok {
		for _, extra := range sortedKeys(extras) {
			name := domain.NormalizeName(extra)
			m.Extras[name] = nil
			items, _ := extras[extra].([]any)
			for _, item := range items {
				if s, ok := item.(string); ok {
					m.Extras[name] = append(m.Extras[name], domain.PackageName(s))
				}
			}
		}
	}
	return nil
}

func (l *Loader) addGroup(m *domain.Manifest, group string, deps map[string]any) error {
	for _, raw := range sortedKeys(deps) {
		if raw == "python" {
			continue
		}
		specs, err := parseDependencyValue(deps[raw])
		if err != nil {
			return zerr.With(zerr.With(err, "dependency", raw), "group", group)
		}
		for _, spec := range specs {
			if spec.source != "" {
				l.Logger.Warn(fmt.Sprintf("dependency %s in group %s uses a %s source; only the lock pin is checked", raw, group, spec.source))
			}
			m.Groups[group] = append(m.Groups[group], domain.Dependency{
				Name:       domain.PackageName(raw),
				Constraint: spec.constraint,
				Extras:     spec.extras,
				Markers:    spec.markers,
				Optional:   spec.optional,
			})
		}
	}
	return nil
}

// LoadLockfile parses poetry.lock in either the 1.x or the 2.x layout.
func (l *Loader) LoadLockfile(path string) (*domain.Lockfile, error) {
	var doc lockFile
	if err := decodeTOML(path, &doc, domain.ErrLockfileReadFailed, domain.ErrLockfileParseFailed); err != nil {
		return nil, err
	}

	lock := &domain.Lockfile{
		LockVersion: doc.Metadata.LockVersion,
		ContentHash: doc.Metadata.ContentHash,
		Python:      doc.Metadata.PythonVersions,
		Packages:    make(map[string][]domain.LockedPackage, len(doc.Package)),
	}

	for _, p := range doc.Package {
		pkg, err := lockedPackage(p, doc.Metadata.Files)
		if err != nil {
			return nil, zerr.With(zerr.With(err, "package", p.Name), "path", path)
		}
		name := pkg.Name.String()
		lock.Packages[name] = append(lock.Packages[name], pkg)
	}

	return lock, nil
}

func lockedPackage(p lockPackage, legacyFiles map[string][]lockFileEntry) (domain.LockedPackage, error) {
	if p.Name == "" {
		return domain.LockedPackage{}, zerr.With(domain.ErrLockfileParseFailed, "reason", "package without name")
	}
	v, err := domain.ParseVersion(p.Version)
	if err != nil {
		return domain.LockedPackage{}, err
	}

	pkg := domain.LockedPackage{
		Name:    domain.PackageName(p.Name),
		Version: v,
		Extras:  make(map[string][]domain.InternedString, len(p.Extras)),
	}

	files := p.Files
	if len(files) == 0 {
		files = legacyFiles[p.Name]
	}
	for _, f := range files {
		pkg.Files = append(pkg.Files, domain.LockedFile{Name: f.File, Hash: f.Hash})
	}

	for _, raw := range sortedKeys(p.Dependencies) {
		specs, err := parseDependencyValue(p.Dependencies[raw])
		if err != nil {
			return domain.LockedPackage{}, zerr.With(err, "dependency", raw)
		}
		for _, spec := range specs {
			pkg.Dependencies = append(pkg.Dependencies, domain.LockedDependency{
				Name:       domain.PackageName(raw),
				Constraint: spec.constraint,
				Markers:    spec.markers,
				Optional:   spec.optional,
				Extras:     spec.extras,
			})
		}
	}

	for _, extra := range sortedKeys(p.Extras) {
		name := domain.NormalizeName(extra)
		pkg.Extras[name] = nil
		for _, spec := range p.Extras[extra] {
			dep, err := domain.ParseDependencySpec(spec)
			if err != nil {
				return domain.LockedPackage{}, zerr.With(err, "extra", extra)
			}
			pkg.Extras[name] = append(pkg.Extras[name], dep.Name)
		}
	}

	return pkg, nil
}

func decodeTOML(path string, target any, readErr, parseErr error) error {
	// #nosec G304 -- path comes from the build configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return zerr.With(zerr.Wrap(err, readErr.Error()), "path", path)
	}
	if err := toml.NewDecoder(bytes.NewReader(data)).Decode(target); err != nil {
		return zerr.With(zerr.Wrap(err, parseErr.Error()), "path", path)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
