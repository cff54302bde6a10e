// Package joincode generates and validates class join codes.
package joincode

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// Length is the fixed join-code length.
const Length = 6

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var codePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// Generate draws a fresh 6-character code uniformly over A-Z and 0-9.
// Uniqueness is not guaranteed here; the registry retries on collision
// against the unique index.
func Generate() (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, Length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("draw join code symbol: %w", err)
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}

// Normalize canonicalizes user input: surrounding whitespace is stripped and
// letters are uppercased. Codes are matched case-insensitively.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Valid reports whether a canonicalized code is well-formed.
func Valid(code string) bool {
	return codePattern.MatchString(code)
}
