package domain

import (
	"regexp"
	"strings"

	"go.trai.ch/zerr"
)

// Constraint is a version constraint in PEP 440 or Poetry syntax.
// It is a disjunction of conjunctions of single-operator clauses.
type Constraint struct {
	raw string
	any [][]clause
}

type clause struct {
	op      string
	version Version
	prefix  bool
	raw     string
}

var clausePattern = regexp.MustCompile(`(===|==|!=|<=|>=|~=|<|>|\^|~|=)?\s*([^\s,<>=!~^|]+)`)

// AnyConstraint returns a constraint that every version satisfies.
func AnyConstraint() Constraint {
	return Constraint{raw: "*"}
}

// ParseConstraint parses a constraint such as ">=2.0,<3", "^1.2", "~=3.1" or "1.0 || 2.0".
func ParseConstraint(s string) (Constraint, error) {
	raw := strings.TrimSpace(s)
	c := Constraint{raw: raw}
	if raw == "" || raw == "*" {
		c.raw = "*"
		return c, nil
	}

	for _, alt := range strings.Split(raw, "||") {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			return Constraint{}, zerr.With(ErrInvalidConstraint, "constraint", s)
		}
		if alt == "*" {
			return Constraint{raw: raw}, nil
		}

		var conj []clause
		for _, part := range strings.Split(alt, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				return Constraint{}, zerr.With(ErrInvalidConstraint, "constraint", s)
			}
			matches := clausePattern.FindAllStringSubmatchIndex(part, -1)
			if len(matches) == 0 || !coversAll(part, matches) {
				return Constraint{}, zerr.With(ErrInvalidConstraint, "constraint", s)
			}
			for _, m := range matches {
				op := ""
				if m[2] >= 0 {
					op = part[m[2]:m[3]]
				}
				clauses, err := expandClause(op, part[m[4]:m[5]])
				if err != nil {
					return Constraint{}, zerr.With(err, "constraint", s)
				}
				conj = append(conj, clauses...)
			}
		}
		c.any = append(c.any, conj)
	}

	return c, nil
}

// MustParseConstraint parses a constraint and panics on failure.
func MustParseConstraint(s string) Constraint {
	c, err := ParseConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

func coversAll(s string, matches [][]int) bool {
	pos := 0
	for _, m := range matches {
		if strings.TrimSpace(s[pos:m[0]]) != "" {
			return false
		}
		pos = m[1]
	}
	return strings.TrimSpace(s[pos:]) == ""
}

func expandClause(op, ver string) ([]clause, error) {
	if ver == "*" {
		return nil, nil
	}

	if op == "===" {
		return []clause{{op: op, raw: ver}}, nil
	}

	prefix := false
	if strings.HasSuffix(ver, ".*") {
		if op != "" && op != "==" && op != "!=" && op != "=" {
			return nil, zerr.With(ErrInvalidConstraint, "clause", op+ver)
		}
		prefix = true
		ver = strings.TrimSuffix(ver, ".*")
	}

	v, err := ParseVersion(ver)
	if err != nil {
		return nil, zerr.With(ErrInvalidConstraint, "clause", op+ver)
	}

	switch op {
	case "", "=", "==":
		return []clause{{op: "==", version: v, prefix: prefix}}, nil
	case "!=":
		return []clause{{op: "!=", version: v, prefix: prefix}}, nil
	case "<", "<=", ">", ">=":
		return []clause{{op: op, version: v}}, nil
	case "~=":
		if len(v.Release) < 2 {
			return nil, zerr.With(ErrInvalidConstraint, "clause", op+ver)
		}
		upper := Version{Release: v.Release[:len(v.Release)-1], Epoch: v.Epoch, Post: -1, Dev: -1}
		return []clause{{op: ">=", version: v}, {op: "==", version: upper, prefix: true}}, nil
	case "^":
		return []clause{{op: ">=", version: v}, {op: "<", version: caretUpper(v)}}, nil
	case "~":
		return []clause{{op: ">=", version: v}, {op: "<", version: tildeUpper(v)}}, nil
	}
	return nil, zerr.With(ErrInvalidConstraint, "clause", op+ver)
}

// caretUpper bumps the left-most non-zero release component.
func caretUpper(v Version) Version {
	idx := len(v.Release) - 1
	for i, n := range v.Release {
		if n != 0 {
			idx = i
			break
		}
	}
	return bump(v, idx)
}

// tildeUpper bumps the minor component, or the major when only a major is given.
func tildeUpper(v Version) Version {
	if len(v.Release) == 1 {
		return bump(v, 0)
	}
	return bump(v, 1)
}

func bump(v Version, idx int) Version {
	release := make([]int, idx+1)
	copy(release, v.Release[:idx+1])
	release[idx]++
	return Version{Epoch: v.Epoch, Release: release, Post: -1, Dev: -1}
}

// String returns the constraint as it was written.
func (c Constraint) String() string {
	return c.raw
}

// IsAny reports whether the constraint admits every version.
func (c Constraint) IsAny() bool {
	return len(c.any) == 0
}

// Contains reports whether v satisfies the constraint.
func (c Constraint) Contains(v Version) bool {
	if c.IsAny() {
		return true
	}
	for _, conj := range c.any {
		if allHold(conj, v) {
			return true
		}
	}
	return false
}

func allHold(conj []clause, v Version) bool {
	for _, cl := range conj {
		if !cl.holds(v) {
			return false
		}
	}
	return true
}

func (cl clause) holds(v Version) bool {
	switch cl.op {
	case "===":
		return strings.EqualFold(v.String(), cl.raw)
	case "==":
		if cl.prefix {
			return prefixMatch(v, cl.version)
		}
		if cl.version.Local == "" {
			return v.Public().Compare(cl.version) == 0
		}
		return v.Compare(cl.version) == 0
	case "!=":
		return !clause{op: "==", version: cl.version, prefix: cl.prefix}.holds(v)
	case "<":
		return v.Public().Compare(cl.version) < 0
	case "<=":
		return v.Public().Compare(cl.version) <= 0
	case ">":
		return v.Public().Compare(cl.version) > 0
	case ">=":
		return v.Public().Compare(cl.version) >= 0
	}
	return false
}

func prefixMatch(v, prefix Version) bool {
	if v.Epoch != prefix.Epoch {
		return false
	}
	for i, n := range prefix.Release {
		got := 0
		if i < len(v.Release) {
			got = v.Release[i]
		}
		if got != n {
			return false
		}
	}
	return true
}

// Marker converts the constraint into a marker over the named version variable,
// as Poetry does for the python and platform keys of a dependency.
func (c Constraint) Marker(variable string) Marker {
	if c.IsAny() {
		return Marker{}
	}
	alts := make([]Marker, 0, len(c.any))
	for _, conj := range c.any {
		terms := make([]Marker, 0, len(conj))
		for _, cl := range conj {
			right := cl.raw
			if cl.op != "===" {
				right = cl.version.String()
				if cl.prefix {
					right += ".*"
				}
			}
			terms = append(terms, Marker{expr: markerCompare{left: variable, op: cl.op, right: right, leftVar: true}})
		}
		alts = append(alts, AllOf(terms...))
	}
	return AnyOf(alts...)
}
