package units

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEther(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1", "1000000000000000000"},
		{"0.01", "10000000000000000"},
		{".5", "500000000000000000"},
		{"5.", "5000000000000000000"},
		{" 2.25 ", "2250000000000000000"},
		{"0", "0"},
		{"-0.1", "-100000000000000000"},
		{"0.000000000000000001", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEther(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseEtherRejects(t *testing.T) {
	for _, in := range []string{"", "   ", ".", "-", "abc", "1e18", "1.2.3", "+1", "0x10", "1,5", "0.0000000000000000001"} {
		_, err := ParseEther(in)
		assert.Error(t, err, "input %q", in)
	}

	_, err := ParseEther("0.0000000000000000001")
	assert.ErrorIs(t, err, ErrTooPrecise)
	_, err = ParseEther("")
	assert.ErrorIs(t, err, ErrEmptyAmount)
	_, err = ParseEther("ten")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestFormatEther(t *testing.T) {
	tests := []struct {
		wei  string
		want string
	}{
		{"0", "0.0"},
		{"1", "0.000000000000000001"},
		{"10000000000000000", "0.01"},
		{"1000000000000000000", "1.0"},
		{"1234500000000000000000", "1234.5"},
		{"-500000000000000000", "-0.5"},
	}

	for _, tt := range tests {
		wei, ok := new(big.Int).SetString(tt.wei, 10)
		require.True(t, ok)
		assert.Equal(t, tt.want, FormatEther(wei))
	}

	assert.Equal(t, "0.0", FormatEther(nil))
	assert.Equal(t, "42.0", FormatUnits(big.NewInt(42), 0))
}

func TestRoundTrip(t *testing.T) {
	for _, in := range []string{"0.01", "1.0", "3.14159", "1000.000001"} {
		wei, err := ParseEther(in)
		require.NoError(t, err)
		assert.Equal(t, in, FormatEther(wei))
	}
}
