package domain

// DefaultGroup is the dependency group installed when no groups are selected.
const DefaultGroup = "main"

// Dependency is a direct dependency declared in the project manifest.
type Dependency struct {
	// Name is the normalized distribution name.
	Name InternedString

	// Constraint is the declared version range.
	Constraint Constraint

	// Extras lists the extras requested from the dependency.
	Extras []string

	// Markers restricts the dependency to matching environments.
	Markers Marker

	// Optional marks a dependency that is only installed through a project extra.
	Optional bool
}

// Manifest is the parsed project manifest (pyproject.toml).
type Manifest struct {
	// Name is the project name.
	Name string

	// Version is the project version, if declared.
	Version string

	// Python is the supported interpreter range.
	Python Constraint

	// Groups maps a dependency group name to its direct dependencies.
	// The main group holds the runtime dependencies.
	Groups map[string][]Dependency

	// Extras maps a project extra to the names of the optional dependencies it enables.
	Extras map[string][]InternedString

	// ContentHash is the lock content hash computed from the manifest.
	// Empty when the manifest carries no Poetry dependency tables.
	ContentHash string
}

// Direct returns the direct dependencies for the selected groups and extras, in group order.
// An optional dependency is included only when one of the selected extras enables it.
func (m *Manifest) Direct(groups, extras []string) []Dependency {
	if len(groups) == 0 {
		groups = []string{DefaultGroup}
	}

	enabled := make(map[string]bool)
	for _, extra := range extras {
		for _, name := range m.Extras[NormalizeName(extra)] {
			enabled[name.String()] = true
		}
	}

	var out []Dependency
	seen := make(map[string]bool)
	for _, group := range groups {
		for _, dep := range m.Groups[group] {
			if dep.Optional && !enabled[dep.Name.String()] {
				continue
			}
			key := group + "\x00" + dep.Name.String() + "\x00" + dep.Markers.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, dep)
		}
	}
	return out
}
