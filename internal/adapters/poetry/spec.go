package poetry

import (
	"fmt"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

// depSpec is one constraint entry of a Poetry dependency value.
type depSpec struct {
	constraint domain.Constraint
	markers    domain.Marker
	optional   bool
	extras     []string
	source     string
}

// sourceKeys mark dependencies that are not fetched from an index by version.
var sourceKeys = []string{"git", "path", "url"}

// parseDependencyValue accepts the three Poetry spellings of a dependency:
// a constraint string, an inline table, or an array of inline tables.
func parseDependencyValue(v any) ([]depSpec, error) {
	switch val := v.(type) {
	case string:
		c, err := domain.ParseConstraint(val)
		if err != nil {
			return nil, err
		}
		return []depSpec{{constraint: c}}, nil
	case map[string]any:
		spec, err := parseDependencyTable(val)
		if err != nil {
			return nil, err
		}
		return []depSpec{spec}, nil
	case []any:
		specs := make([]depSpec, 0, len(val))
		for _, item := range val {
			table, ok := item.(map[string]any)
			if !ok {
				return nil, zerr.With(domain.ErrInvalidConstraint, "value", fmt.Sprint(item))
			}
			spec, err := parseDependencyTable(table)
			if err != nil {
				return nil, err
			}
			specs = append(specs, spec)
		}
		return specs, nil
	}
	return nil, zerr.With(domain.ErrInvalidConstraint, "value", fmt.Sprint(v))
}

func parseDependencyTable(t map[string]any) (depSpec, error) {
	var spec depSpec

	for _, key := range sourceKeys {
		if s, ok := t[key].(string); ok {
			spec.source = key + "+" + s
		}
	}

	version, _ := t["version"].(string)
	c, err := domain.ParseConstraint(version)
	if err != nil {
		return depSpec{}, err
	}
	spec.constraint = c

	markers := make([]domain.Marker, 0, 3)
	if s, ok := t["markers"].(string); ok {
		m, err := domain.ParseMarker(s)
		if err != nil {
			return depSpec{}, err
		}
		markers = append(markers, m)
	}
	if s, ok := t["python"].(string); ok {
		pc, err := domain.ParseConstraint(s)
		if err != nil {
			return depSpec{}, err
		}
		markers = append(markers, pc.Marker("python_version"))
	}
	if s, ok := t["platform"].(string); ok {
		m, err := domain.ParseMarker(`sys_platform == "` + s + `"`)
		if err != nil {
			return depSpec{}, err
		}
		markers = append(markers, m)
	}
	spec.markers = domain.AllOf(markers...)

	spec.optional, _ = t["optional"].(bool)
	if extras, ok := t["extras"].([]any); ok {
		for _, e := range extras {
			if s, ok := e.(string); ok {
				spec.extras = append(spec.extras, domain.NormalizeName(s))
			}
		}
	}
	return spec, nil
}
