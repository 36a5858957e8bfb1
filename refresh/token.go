package refresh

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

const tokenBytes = 32

var (
	// ErrNotFound is returned by stores for unknown hashes.
	ErrNotFound = errors.New("refresh token not found")
	// ErrAlreadyRotated is returned by [Store.Rotate] when the parent already has
	// a child.
	ErrAlreadyRotated = errors.New("refresh token already rotated")

	ErrInvalid       = errors.New("refresh token invalid")
	ErrExpired       = errors.New("refresh token expired")
	ErrRevoked       = errors.New("refresh token revoked")
	ErrReuseDetected = errors.New("refresh token reuse detected")
	ErrUnavailable   = errors.New("refresh store unavailable")
)

// ReuseError reports a replayed token. The whole family has been revoked when it
// is returned.
type ReuseError struct {
	AccountID  string
	Family     string
	SessionIDs []string
}

func (e *ReuseError) Error() string {
	return fmt.Sprintf("refresh token reuse detected in family %s", e.Family)
}

func (e *ReuseError) Is(target error) bool {
	return target == ErrReuseDetected
}

// Token is the stored form of a refresh token.
type Token struct {
	ID            string
	AccountID     string
	SessionID     string
	Hash          string
	Family        string
	ParentHash    string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	RotatedAt     *time.Time
	Revoked       bool
	ReuseDetected bool
}

// Active reports whether the entry can still be exchanged at now.
func (t Token) Active(now time.Time) bool {
	return !t.Revoked && !t.ReuseDetected && t.RotatedAt == nil && now.Before(t.ExpiresAt)
}

// Issued pairs the plaintext token with its stored record.
type Issued struct {
	Token  string
	Record Token
}

// Hash returns the hex SHA-256 digest stores key tokens by.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newOpaqueToken() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// wellFormed rejects input that could never have been produced by this package
// before it reaches the store.
func wellFormed(token string) bool {
	token = strings.TrimSpace(token)
	raw, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil && len(raw) == tokenBytes
}
