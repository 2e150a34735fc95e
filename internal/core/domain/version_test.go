package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/core/domain"
)

func TestParseVersion_Normalizes(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "2.31.0", want: "2.31.0"},
		{in: "v2.1", want: "2.1"},
		{in: "1.0.0-RC1", want: "1.0.0rc1"},
		{in: "1.0c1", want: "1.0rc1"},
		{in: "1.0-1", want: "1.0.post1"},
		{in: "1.0.post", want: "1.0.post0"},
		{in: "1.0.dev", want: "1.0.dev0"},
		{in: "2014!1.0alpha", want: "2014!1.0a0"},
		{in: "1.0+Ubuntu-1", want: "1.0+ubuntu.1"},
		{in: " 0.4.6 ", want: "0.4.6"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := domain.ParseVersion(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.String())
		})
	}
}

func TestParseVersion_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "1..0", "1.0+", ">=1.0"} {
		t.Run(in, func(t *testing.T) {
			_, err := domain.ParseVersion(in)
			require.Error(t, err)
			assert.ErrorContains(t, err, domain.ErrInvalidVersion.Error())
		})
	}
}

func TestVersion_Ordering(t *testing.T) {
	ordered := []string{
		"1.0.dev1",
		"1.0a1",
		"1.0a1.post1",
		"1.0a2.dev1",
		"1.0a2",
		"1.0b1",
		"1.0rc1",
		"1.0",
		"1.0+abc",
		"1.0.post1.dev0",
		"1.0.post1",
		"1.1",
		"1!0.1",
	}

	for i := 0; i < len(ordered)-1; i++ {
		a := domain.MustParseVersion(ordered[i])
		b := domain.MustParseVersion(ordered[i+1])
		assert.Equal(t, -1, a.Compare(b), "%s < %s", ordered[i], ordered[i+1])
		assert.Equal(t, 1, b.Compare(a), "%s > %s", ordered[i+1], ordered[i])
	}
}

func TestVersion_TrailingZerosAreEqual(t *testing.T) {
	assert.Equal(t, 0, domain.MustParseVersion("1.0").Compare(domain.MustParseVersion("1.0.0")))
	assert.True(t, domain.MustParseVersion("1.0rc1").IsPrerelease())
	assert.False(t, domain.MustParseVersion("1.0.post1").IsPrerelease())
}
