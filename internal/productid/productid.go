// Package productid derives product identifiers from a random token and a
// seller supplied product code.
//
// An identifier is the hex rendering of int(token) + int(hex(code)), where
// token is a fresh 128-bit random value. Identifiers are opaque, have no
// fixed width and carry no leading zeros.
package productid

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidInput is returned for an empty product code or a malformed token.
var ErrInvalidInput = errors.New("invalid input")

// TokenSource yields 128-bit random tokens as 32 hex digits.
// Implementations must be safe for concurrent use.
type TokenSource interface {
	Token() (string, error)
}

// UUIDSource draws tokens from random (v4) UUIDs.
type UUIDSource struct{}

func (UUIDSource) Token() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(u[:]), nil
}

// Generator produces identifiers using its token source.
type Generator struct {
	source TokenSource
}

// NewGenerator returns a Generator; a nil source falls back to UUIDSource.
func NewGenerator(source TokenSource) *Generator {
	if source == nil {
		source = UUIDSource{}
	}
	return &Generator{source: source}
}

var defaultGenerator = NewGenerator(nil)

// Generate returns a new identifier for productCode using the default generator.
func Generate(productCode string) (string, error) {
	return defaultGenerator.Generate(productCode)
}

// Generate returns a new identifier for productCode.
func (g *Generator) Generate(productCode string) (string, error) {
	if strings.TrimSpace(productCode) == "" {
		return "", fmt.Errorf("%w: product code is empty", ErrInvalidInput)
	}
	token, err := g.source.Token()
	if err != nil {
		return "", fmt.Errorf("random token: %w", err)
	}
	return GenerateWithToken(token, productCode)
}

// GenerateWithToken combines token and productCode deterministically.
func GenerateWithToken(token, productCode string) (string, error) {
	if strings.TrimSpace(productCode) == "" {
		return "", fmt.Errorf("%w: product code is empty", ErrInvalidInput)
	}
	t, ok := new(big.Int).SetString(token, 16)
	if !ok || t.Sign() < 0 {
		return "", fmt.Errorf("%w: token %q is not hex", ErrInvalidInput, token)
	}
	code, _ := new(big.Int).SetString(hex.EncodeToString([]byte(productCode)), 16)
	return new(big.Int).Add(t, code).Text(16), nil
}

// Valid reports whether s looks like an identifier: a non-empty run of
// lowercase hex digits.
func Valid(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
