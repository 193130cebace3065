package code

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Length is the number of digits in a verification code.
const Length = 6

var codeSpace = big.NewInt(1_000_000) // 10^Length

// Generate returns a verification code of exactly Length digits drawn
// uniformly from [0, 10^Length) using a cryptographically secure source.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", Length, n.Int64()), nil
}

// IsValid reports whether s is a well-formed code: exactly Length ASCII
// digits, nothing else. Format is checked before any store lookup so a
// malformed submission never burns an attempt.
func IsValid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
