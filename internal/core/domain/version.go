package domain

import (
	"regexp"
	"strconv"
	"strings"

	"go.trai.ch/zerr"
)

var versionPattern = regexp.MustCompile(`(?i)^\s*v?` +
	`(?:(?P<epoch>[0-9]+)!)?` +
	`(?P<release>[0-9]+(?:\.[0-9]+)*)` +
	`(?P<pre>[-_.]?(?P<pre_l>alpha|beta|preview|pre|rc|a|b|c)[-_.]?(?P<pre_n>[0-9]+)?)?` +
	`(?P<post>(?:-(?P<post_n1>[0-9]+))|(?:[-_.]?(?P<post_l>post|rev|r)[-_.]?(?P<post_n2>[0-9]+)?))?` +
	`(?P<dev>[-_.]?(?P<dev_l>dev)[-_.]?(?P<dev_n>[0-9]+)?)?` +
	`(?:\+(?P<local>[a-z0-9]+(?:[-_.][a-z0-9]+)*))?\s*$`)

// Version is a parsed PEP 440 version.
type Version struct {
	Epoch   int
	Release []int
	PreKind string // "a", "b" or "rc"; empty when not a pre-release.
	PreNum  int
	Post    int // -1 when not a post-release.
	Dev     int // -1 when not a dev release.
	Local   string
}

// ParseVersion parses a PEP 440 version string.
func ParseVersion(s string) (Version, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}, zerr.With(ErrInvalidVersion, "version", s)
	}
	group := func(name string) string {
		return m[versionPattern.SubexpIndex(name)]
	}

	v := Version{Post: -1, Dev: -1}

	if e := group("epoch"); e != "" {
		v.Epoch, _ = strconv.Atoi(e)
	}

	for _, part := range strings.Split(group("release"), ".") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return Version{}, zerr.With(ErrInvalidVersion, "version", s)
		}
		v.Release = append(v.Release, n)
	}

	if group("pre") != "" {
		switch strings.ToLower(group("pre_l")) {
		case "a", "alpha":
			v.PreKind = "a"
		case "b", "beta":
			v.PreKind = "b"
		default:
			v.PreKind = "rc"
		}
		v.PreNum = atoiOrZero(group("pre_n"))
	}

	if group("post") != "" {
		n := group("post_n1")
		if n == "" {
			n = group("post_n2")
		}
		v.Post = atoiOrZero(n)
	}

	if group("dev") != "" {
		v.Dev = atoiOrZero(group("dev_n"))
	}

	if l := group("local"); l != "" {
		v.Local = nameSeparators.ReplaceAllString(strings.ToLower(l), ".")
	}

	return v, nil
}

// MustParseVersion parses a version and panics on failure. Intended for constants and tests.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func atoiOrZero(s string) int {
	if s == "" {
		return 0
	}
	n, _ := strconv.Atoi(s)
	return n
}

// String returns the normalized form of the version.
func (v Version) String() string {
	var b strings.Builder
	if v.Epoch != 0 {
		b.WriteString(strconv.Itoa(v.Epoch))
		b.WriteByte('!')
	}
	for i, n := range v.Release {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(n))
	}
	if v.PreKind != "" {
		b.WriteString(v.PreKind)
		b.WriteString(strconv.Itoa(v.PreNum))
	}
	if v.Post >= 0 {
		b.WriteString(".post")
		b.WriteString(strconv.Itoa(v.Post))
	}
	if v.Dev >= 0 {
		b.WriteString(".dev")
		b.WriteString(strconv.Itoa(v.Dev))
	}
	if v.Local != "" {
		b.WriteByte('+')
		b.WriteString(v.Local)
	}
	return b.String()
}

// Public returns the version without its local segment.
func (v Version) Public() Version {
	v.Local = ""
	return v
}

// IsPrerelease reports whether the version is a pre- or dev release.
func (v Version) IsPrerelease() bool {
	return v.PreKind != "" || v.Dev >= 0
}

// Compare returns -1, 0 or 1 following PEP 440 ordering.
func (v Version) Compare(o Version) int {
	if c := cmpInt(v.Epoch, o.Epoch); c != 0 {
		return c
	}
	if c := compareRelease(v.Release, o.Release); c != 0 {
		return c
	}
	if c := cmpInt(v.preKey(), o.preKey()); c != 0 {
		return c
	}
	if v.PreKind != "" && o.PreKind != "" {
		if c := cmpInt(v.PreNum, o.PreNum); c != 0 {
			return c
		}
	}
	if c := cmpInt(v.Post, o.Post); c != 0 {
		return c
	}
	if c := cmpInt(v.devKey(), o.devKey()); c != 0 {
		return c
	}
	return compareLocal(v.Local, o.Local)
}

// preKey orders the pre-release phase. A dev release without a pre or post segment sorts before any pre-release.
func (v Version) preKey() int {
	switch {
	case v.PreKind == "" && v.Post < 0 && v.Dev >= 0:
		return -1
	case v.PreKind == "a":
		return 0
	case v.PreKind == "b":
		return 1
	case v.PreKind == "rc":
		return 2
	default:
		return 3
	}
}

func (v Version) devKey() int {
	if v.Dev < 0 {
		return int(^uint(0) >> 1)
	}
	return v.Dev
}

func compareRelease(a, b []int) int {
	n := max(len(a), len(b))
	for i := range n {
		var x, y int
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if c := cmpInt(x, y); c != 0 {
			return c
		}
	}
	return 0
}

func compareLocal(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return -1
	case b == "":
		return 1
	}
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := range min(len(as), len(bs)) {
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])
		switch {
		case aerr == nil && berr == nil:
			if c := cmpInt(an, bn); c != 0 {
				return c
			}
		case aerr == nil:
			return 1
		case berr == nil:
			return -1
		default:
			if c := strings.Compare(as[i], bs[i]); c != 0 {
				return c
			}
		}
	}
	return cmpInt(len(as), len(bs))
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
