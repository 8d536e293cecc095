package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolmarket/core"
)

func TestParseAmount(t *testing.T) {
	cases := map[string]uint64{
		"1":          100_000_000,
		"0.01":       1_000_000,
		"0.00000001": 1,
		"8":          800_000_000,
		"0":          0,
	}
	for in, want := range cases {
		got, err := core.ParseAmount(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"-1", "0.000000001", "x", "999999999999999999999"} {
		_, err := core.ParseAmount(bad)
		assert.ErrorIs(t, err, core.ErrValidation, bad)
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0.99", core.FormatAmount(99_000_000))
	assert.Equal(t, "1", core.FormatAmount(100_000_000))
	assert.Equal(t, "0", core.FormatAmount(0))
}
