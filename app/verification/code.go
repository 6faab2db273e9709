// Package verification generates the 6-digit email confirmation codes.
//
// Codes are not unique by construction; the caller checks the store and retries.
package verification

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"
)

const (
	CodeLength = 6

	codeSpace = 1_000_000
)

type Generator struct {
	ttl    time.Duration
	random io.Reader
}

func NewGenerator(ttl time.Duration) *Generator {
	return &Generator{ttl: ttl, random: rand.Reader}
}

// NewGeneratorWithReader is used by tests that need a deterministic source.
func NewGeneratorWithReader(ttl time.Duration, random io.Reader) *Generator {
	return &Generator{ttl: ttl, random: random}
}

// Generate returns a zero-padded code drawn uniformly from [0, 1_000_000).
func (g *Generator) Generate() (string, error) {
	n, err := rand.Int(g.random, big.NewInt(codeSpace))
	if err != nil {
		return "", fmt.Errorf("read random code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

func (g *Generator) ExpiresAt(now time.Time) time.Time {
	return now.Add(g.ttl)
}

func (g *Generator) TTL() time.Duration {
	return g.ttl
}

// IsWellFormed reports whether code has the shape Generate produces.
func IsWellFormed(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
