package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const tokenBytes = 32

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// NewToken returns an opaque bearer token. The token carries no claims; the
// session store maps its hash to a principal.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashToken is the form a token is persisted under.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}

// CheckFormat rejects values that NewToken could not have produced, so
// obviously bogus tokens never reach the session store.
func CheckFormat(token string) error {
	token = strings.TrimSpace(token)
	if len(token) != tokenBytes*2 {
		return ErrInvalidToken
	}
	if _, err := hex.DecodeString(token); err != nil {
		return ErrInvalidToken
	}
	return nil
}

// CheckExpiry reports ErrExpiredToken once now reaches expiresAt.
func CheckExpiry(expiresAt, now time.Time) error {
	if !now.Before(expiresAt) {
		return ErrExpiredToken
	}
	return nil
}
