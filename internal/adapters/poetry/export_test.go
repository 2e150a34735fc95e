package poetry

import "strings"

// PyJSON exposes the Python-compatible JSON encoder for tests.
func PyJSON(v any) string {
	var b strings.Builder
	writePyJSON(&b, v)
	return b.String()
}
