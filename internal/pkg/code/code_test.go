package code

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValid(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"six digits", "123456", true},
		{"all zeros", "000000", true},
		{"all nines", "999999", true},
		{"too short", "12345", false},
		{"too long", "1234567", false},
		{"empty", "", false},
		{"letters", "12a456", false},
		{"unicode digit lookalike", "12345٦", false},
		{"whitespace", "123 56", false},
		{"negative sign", "-12345", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValid(tt.in))
		})
	}
}

func TestGenerate_FormatAlwaysValid(t *testing.T) {
	for i := 0; i < 1000; i++ {
		c, err := Generate()
		require.NoError(t, err)
		assert.True(t, IsValid(c), "generated code %q is not valid", c)
	}
}

func TestGenerate_NotPredictable(t *testing.T) {
	// Two consecutive equal codes have probability 1e-6 per pair; over
	// 10,000 trials more than a couple of collisions means the source is
	// broken.
	prev := ""
	collisions := 0
	for i := 0; i < 10000; i++ {
		c, err := Generate()
		require.NoError(t, err)
		if c == prev {
			collisions++
		}
		prev = c
	}
	assert.LessOrEqual(t, collisions, 2)
}

func TestGenerate_DigitsRoughlyUniform(t *testing.T) {
	counts := make(map[byte]int)
	const samples = 10000
	for i := 0; i < samples; i++ {
		c, err := Generate()
		require.NoError(t, err)
		for j := 0; j < len(c); j++ {
			counts[c[j]]++
		}
	}
	// 60,000 digits, expected 6,000 per value. A 25% band is far wider
	// than any plausible statistical wobble.
	total := samples * Length
	expected := total / 10
	for d := byte('0'); d <= '9'; d++ {
		assert.InDelta(t, expected, counts[d], float64(expected)*0.25, "digit %c", d)
	}
}
