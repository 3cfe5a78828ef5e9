package staking

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// DefaultCodeAlphabet drops 0/O and 1/I so codes survive being read aloud or
// scribbled on a whiteboard.
const DefaultCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// DefaultCodeGrace is how long after the meeting ends a code stays valid.
const DefaultCodeGrace = 15 * time.Minute

// CodePolicy holds the attendance code parameters: alphabet, length and the
// post-meeting grace window. Kept separate from the lifecycle manager so the
// constants are testable in isolation.
//
// A 6-character draw from a 32-glyph alphabet gives ~10^9 combinations over a
// validity window of minutes. That deters guessing; it is not a cryptographic
// guarantee and is not meant to be.
type CodePolicy struct {
	Length   int
	Alphabet string
	Grace    time.Duration
}

// DefaultCodePolicy returns the production policy: 6 characters, unambiguous
// uppercase alphabet, 15 minute grace.
func DefaultCodePolicy() CodePolicy {
	return CodePolicy{
		Length:   6,
		Alphabet: DefaultCodeAlphabet,
		Grace:    DefaultCodeGrace,
	}
}

// Generate draws a uniform random code from the policy alphabet.
func (p CodePolicy) Generate() (string, error) {
	alphabetLen := big.NewInt(int64(len(p.Alphabet)))
	code := make([]byte, p.Length)
	for i := range code {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("failed to generate attendance code: %w", err)
		}
		code[i] = p.Alphabet[n.Int64()]
	}
	return string(code), nil
}

// Verify reports whether a submitted code matches the generated one.
// Comparison is case-insensitive: codes are drawn from an uppercase alphabet
// and typed by humans.
func (p CodePolicy) Verify(code, submitted string) bool {
	return code != "" && strings.EqualFold(code, submitted)
}

// ValidUntil computes the code expiry for a meeting ending at endTime.
func (p CodePolicy) ValidUntil(endTime time.Time) time.Time {
	return endTime.Add(p.Grace)
}
