package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/core/domain"
)

func TestParseWheelFilename(t *testing.T) {
	w, err := domain.ParseWheelFilename("typing_extensions-4.9.0-py3-none-any.whl")
	require.NoError(t, err)
	assert.Equal(t, "typing-extensions", w.Name.String())
	assert.Equal(t, "4.9.0", w.Version.String())
	assert.Equal(t, []domain.WheelTag{{Python: "py3", ABI: "none", Platform: "any"}}, w.Tags)

	w, err = domain.ParseWheelFilename("six-1.16.0-1-py2.py3-none-any.whl")
	require.NoError(t, err)
	assert.Equal(t, "1", w.Build)
	assert.Len(t, w.Tags, 2)

	for _, bad := range []string{"requests-2.31.0.tar.gz", "broken-py3-none-any.whl"} {
		_, err := domain.ParseWheelFilename(bad)
		assert.Error(t, err, bad)
	}
}

func TestWheelName_Priority(t *testing.T) {
	supported := domain.ParseTags([]string{"cp312-cp312-manylinux_2_17_x86_64", "py3-none-any"})

	native, err := domain.ParseWheelFilename("orjson-3.9.15-cp312-cp312-manylinux_2_17_x86_64.manylinux2014_x86_64.whl")
	require.NoError(t, err)
	pure, err := domain.ParseWheelFilename("idna-3.6-py3-none-any.whl")
	require.NoError(t, err)
	mac, err := domain.ParseWheelFilename("orjson-3.9.15-cp312-cp312-macosx_11_0_arm64.whl")
	require.NoError(t, err)

	assert.Equal(t, 0, native.Priority(supported))
	assert.Equal(t, 1, pure.Priority(supported))
	assert.Equal(t, -1, mac.Priority(supported))
}

func TestParseDependencySpec(t *testing.T) {
	tests := []struct {
		in         string
		name       string
		extras     []string
		constraint string
		marker     string
	}{
		{in: "idna<4,>=2.5", name: "idna", constraint: "<4,>=2.5"},
		{in: "charset-normalizer (<4,>=2)", name: "charset-normalizer", constraint: "<4,>=2"},
		{in: "PySocks (!=1.5.7,>=1.5.6) ; extra == 'socks'", name: "pysocks", constraint: "!=1.5.7,>=1.5.6", marker: `extra == "socks"`},
		{in: "urllib3[socks]>=1.21.1", name: "urllib3", extras: []string{"socks"}, constraint: ">=1.21.1"},
		{in: "fastapi", name: "fastapi", constraint: "*"},
		{in: "pkg @ https://example.com/pkg-1.0-py3-none-any.whl", name: "pkg", constraint: "*"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			dep, err := domain.ParseDependencySpec(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.name, dep.Name.String())
			assert.Equal(t, tt.extras, dep.Extras)
			assert.Equal(t, tt.constraint, dep.Constraint.String())
			assert.Equal(t, tt.marker, dep.Markers.String())
		})
	}

	_, err := domain.ParseDependencySpec("requests >=")
	require.Error(t, err)
}
