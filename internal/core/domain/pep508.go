package domain

import (
	"regexp"
	"strings"

	"go.trai.ch/zerr"
)

var requirementPattern = regexp.MustCompile(`^\s*([A-Za-z0-9][A-Za-z0-9._-]*)\s*(?:\[([^\]]*)\])?\s*(.*)$`)

// ParseDependencySpec parses a PEP 508 requirement such as
// "urllib3[socks] (>=1.21.1,<3) ; extra == 'socks'". Direct URL references admit any version.
func ParseDependencySpec(s string) (Dependency, error) {
	spec, markerText, _ := strings.Cut(s, ";")

	m := requirementPattern.FindStringSubmatch(spec)
	if m == nil {
		return Dependency{}, zerr.With(ErrInvalidRequirement, "requirement", s)
	}

	dep := Dependency{Name: PackageName(m[1])}
	for _, extra := range strings.Split(m[2], ",") {
		if extra = strings.TrimSpace(extra); extra != "" {
			dep.Extras = append(dep.Extras, NormalizeName(extra))
		}
	}

	rest := strings.TrimSpace(m[3])
	if strings.HasPrefix(rest, "@") {
		dep.Constraint = AnyConstraint()
	} else {
		rest = strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")")
		c, err := ParseConstraint(rest)
		if err != nil {
			return Dependency{}, zerr.With(err, "requirement", s)
		}
		dep.Constraint = c
	}

	marker, err := ParseMarker(markerText)
	if err != nil {
		return Dependency{}, zerr.With(err, "requirement", s)
	}
	dep.Markers = marker

	return dep, nil
}
