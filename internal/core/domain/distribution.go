package domain

import (
	"strings"

	"go.trai.ch/zerr"
)

// Distribution is a downloadable file of a pinned package.
type Distribution struct {
	// Filename is the distribution filename.
	Filename string

	// URL is an http(s) URL or a local file path.
	URL string

	// Hashes lists the digests advertised by the source in "algorithm:hex" form.
	Hashes []string

	// Source names where the distribution was found.
	Source string
}

// WheelTag is one python-abi-platform compatibility tag.
type WheelTag struct {
	Python   string
	ABI      string
	Platform string
}

// String returns the tag in "python-abi-platform" form.
func (t WheelTag) String() string {
	return t.Python + "-" + t.ABI + "-" + t.Platform
}

// WheelName is a parsed wheel filename.
type WheelName struct {
	Name    InternedString
	Version Version
	Build   string
	Tags    []WheelTag
}

// ParseWheelFilename parses "{name}-{version}(-{build})?-{python}-{abi}-{platform}.whl".
func ParseWheelFilename(filename string) (WheelName, error) {
	stem, ok := strings.CutSuffix(filename, ".whl")
	if !ok {
		return WheelName{}, zerr.With(ErrUnresolvableDependency, "not_a_wheel", filename)
	}
	parts := strings.Split(stem, "-")
	if len(parts) != 5 && len(parts) != 6 {
		return WheelName{}, zerr.With(ErrUnresolvableDependency, "invalid_wheel_name", filename)
	}

	v, err := ParseVersion(parts[1])
	if err != nil {
		return WheelName{}, zerr.With(err, "wheel", filename)
	}

	w := WheelName{Name: PackageName(parts[0]), Version: v}
	if len(parts) == 6 {
		w.Build = parts[2]
	}
	n := len(parts)
	w.Tags = ExpandTag(parts[n-3] + "-" + parts[n-2] + "-" + parts[n-1])
	return w, nil
}

// ExpandTag expands a compressed tag set such as "py2.py3-none-any" into single tags.
func ExpandTag(tag string) []WheelTag {
	fields := strings.Split(tag, "-")
	if len(fields) != 3 {
		return nil
	}
	var out []WheelTag
	for _, py := range strings.Split(fields[0], ".") {
		for _, abi := range strings.Split(fields[1], ".") {
			for _, plat := range strings.Split(fields[2], ".") {
				out = append(out, WheelTag{Python: py, ABI: abi, Platform: plat})
			}
		}
	}
	return out
}

// ParseTags expands a list of supported tags, keeping priority order.
func ParseTags(tags []string) []WheelTag {
	var out []WheelTag
	for _, t := range tags {
		out = append(out, ExpandTag(t)...)
	}
	return out
}

// Priority returns the index of the best supported tag the wheel matches, or -1 when incompatible.
func (w WheelName) Priority(supported []WheelTag) int {
	for i, s := range supported {
		for _, t := range w.Tags {
			if t == s {
				return i
			}
		}
	}
	return -1
}
