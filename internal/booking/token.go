package booking

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// TokenIssuer produces opaque reservation tokens. Tokens must be drawn from
// a space large enough that a collision is a storage-level event to retry,
// never something a caller sees.
type TokenIssuer interface {
	Issue() (string, error)
}

type randomTokenIssuer struct{}

// NewTokenIssuer returns an issuer backed by crypto/rand with 128 bits of
// entropy per token.
func NewTokenIssuer() TokenIssuer {
	return randomTokenIssuer{}
}

func (randomTokenIssuer) Issue() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("read random token bytes: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
