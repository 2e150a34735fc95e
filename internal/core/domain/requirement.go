package domain

import (
	"bufio"
	"bytes"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

// HashPrefix is the only hash algorithm carried in a requirement list.
const HashPrefix = "sha256:"

// Requirement is one exactly pinned entry of the flat requirement list.
type Requirement struct {
	// Name is the normalized distribution name.
	Name InternedString

	// Version is the exact version to install.
	Version Version

	// Marker restricts the entry to matching environments.
	Marker Marker

	// Hashes lists the accepted "sha256:<hex>" digests, sorted.
	Hashes []string
}

// Pin returns the "name==version" form of the requirement.
func (r Requirement) Pin() string {
	return r.Name.String() + "==" + r.Version.String()
}

// RequirementList is the flat, exactly pinned, name-sorted output of resolution.
type RequirementList struct {
	entries []Requirement
	index   map[string]int
}

// NewRequirementList sorts reqs by name and rejects duplicate names.
func NewRequirementList(reqs []Requirement) (*RequirementList, error) {
	entries := slices.Clone(reqs)
	slices.SortFunc(entries, func(a, b Requirement) int {
		return strings.Compare(a.Name.String(), b.Name.String())
	})

	index := make(map[string]int, len(entries))
	for i, r := range entries {
		name := r.Name.String()
		if name == "" {
			return nil, zerr.With(ErrInvalidRequirement, "reason", "empty name")
		}
		if _, dup := index[name]; dup {
			return nil, zerr.With(ErrInvalidRequirement, "duplicate", name)
		}
		index[name] = i
	}

	return &RequirementList{entries: entries, index: index}, nil
}

// Entries returns the requirements in name order.
func (l *RequirementList) Entries() []Requirement {
	return slices.Clone(l.entries)
}

// Len returns the number of requirements.
func (l *RequirementList) Len() int {
	return len(l.entries)
}

// Lookup returns the requirement for a distribution name in any spelling.
func (l *RequirementList) Lookup(name string) (Requirement, bool) {
	i, ok := l.index[NormalizeName(name)]
	if !ok {
		return Requirement{}, false
	}
	return l.entries[i], true
}

// Render writes the list in requirements.txt format. Output depends only on the entries.
func (l *RequirementList) Render() []byte {
	var buf bytes.Buffer
	for _, r := range l.entries {
		buf.WriteString(r.Pin())
		if m := r.Marker.String(); m != "" {
			buf.WriteString(" ; ")
			buf.WriteString(m)
		}
		for _, h := range r.Hashes {
			buf.WriteString(" \\\n    --hash=")
			buf.WriteString(h)
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// ParseRequirementList parses the requirements.txt format written by Render.
// Every entry must be pinned with "=="; ranges, wildcards and options other than --hash are rejected.
func ParseRequirementList(data []byte) (*RequirementList, error) {
	var reqs []Requirement

	for _, line := range logicalLines(data) {
		if line.text == "" {
			continue
		}
		req, err := parseRequirementLine(line.text)
		if err != nil {
			return nil, zerr.With(err, "line", line.number)
		}
		reqs = append(reqs, req)
	}

	return NewRequirementList(reqs)
}

type logicalLine struct {
	number int // physical line where the logical line starts
	text   string
}

// logicalLines joins backslash continuations and strips comments.
func logicalLines(data []byte) []logicalLine {
	var out []logicalLine
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var cur strings.Builder
	start, n := 0, 0
	for scanner.Scan() {
		n++
		text := scanner.Text()
		if i := strings.Index(text, " #"); i >= 0 {
			text = text[:i]
		}
		if strings.HasPrefix(strings.TrimSpace(text), "#") {
			text = ""
		}
		if cur.Len() == 0 {
			start = n
		}
		trimmed := strings.TrimRight(text, " \t")
		if strings.HasSuffix(trimmed, "\\") {
			cur.WriteString(strings.TrimSuffix(trimmed, "\\"))
			cur.WriteByte(' ')
			continue
		}
		cur.WriteString(trimmed)
		out = append(out, logicalLine{number: start, text: strings.TrimSpace(cur.String())})
		cur.Reset()
	}
	if cur.Len() > 0 {
		out = append(out, logicalLine{number: start, text: strings.TrimSpace(cur.String())})
	}
	return out
}

func parseRequirementLine(line string) (Requirement, error) {
	spec, opts := line, ""
	if i := strings.Index(line, "--"); i >= 0 {
		spec, opts = strings.TrimSpace(line[:i]), line[i:]
	}

	pin, markerText, _ := strings.Cut(spec, ";")
	name, version, ok := strings.Cut(strings.TrimSpace(pin), "==")
	name = strings.TrimSpace(name)
	if !ok || name == "" || strings.HasPrefix(version, "=") || strings.ContainsAny(name, "<>!~=[ ") {
		return Requirement{}, zerr.With(ErrInvalidRequirement, "requirement", pin)
	}
	version = strings.TrimSpace(version)
	if strings.Contains(version, "*") || strings.ContainsAny(version, ",<>!~") {
		return Requirement{}, zerr.With(ErrInvalidRequirement, "requirement", pin)
	}

	v, err := ParseVersion(version)
	if err != nil {
		return Requirement{}, zerr.With(zerr.Wrap(err, ErrInvalidRequirement.Error()), "requirement", pin)
	}

	marker, err := ParseMarker(markerText)
	if err != nil {
		return Requirement{}, zerr.With(zerr.Wrap(err, ErrInvalidRequirement.Error()), "requirement", pin)
	}

	var hashes []string
	for _, opt := range strings.Fields(opts) {
		h, ok := strings.CutPrefix(opt, "--hash=")
		if !ok {
			return Requirement{}, zerr.With(ErrInvalidRequirement, "option", opt)
		}
		if strings.HasPrefix(h, HashPrefix) {
			hashes = append(hashes, h)
		}
	}
	slices.Sort(hashes)

	return Requirement{
		Name:    PackageName(name),
		Version: v,
		Marker:  marker,
		Hashes:  slices.Compact(hashes),
	}, nil
}
