package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math/big"
	"strings"
)

// RecoveryAlphabet omits characters that are easy to misread.
const RecoveryAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	DefaultRecoveryCount  = 10
	DefaultRecoveryLength = 10
)

// GenerateRecoveryCodes returns count display codes and their digests for
// accountID, index-aligned.
func GenerateRecoveryCodes(accountID string, count, length int) ([]string, []string, error) {
	if count <= 0 {
		count = DefaultRecoveryCount
	}
	if length <= 0 {
		length = DefaultRecoveryLength
	}
	codes := make([]string, 0, count)
	hashes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		raw, err := randomCode(length)
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, formatRecoveryCode(raw))
		hashes = append(hashes, HashRecoveryCode(accountID, raw))
	}
	return codes, hashes, nil
}

// HashRecoveryCode binds a code to its account so digests are not portable.
func HashRecoveryCode(accountID, code string) string {
	canonical := CanonicalRecoveryCode(code)
	h := sha256.New()
	h.Write([]byte(accountID))
	h.Write([]byte{0})
	h.Write([]byte(canonical))
	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalRecoveryCode strips separators and case from user input.
func CanonicalRecoveryCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, " ", "")
}

// MatchRecoveryCode returns the index of the digest matching code, or -1. Every
// digest is compared so the position of a match does not affect timing.
func MatchRecoveryCode(accountID, code string, hashes []string) int {
	if CanonicalRecoveryCode(code) == "" {
		return -1
	}
	want := []byte(HashRecoveryCode(accountID, code))
	found := -1
	for i, h := range hashes {
		if subtle.ConstantTimeCompare(want, []byte(h)) == 1 && found < 0 {
			found = i
		}
	}
	return found
}

// RemoveAt returns hashes without index i.
func RemoveAt(hashes []string, i int) []string {
	if i < 0 || i >= len(hashes) {
		return hashes
	}
	out := make([]string, 0, len(hashes)-1)
	out = append(out, hashes[:i]...)
	return append(out, hashes[i+1:]...)
}

func randomCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	max := big.NewInt(int64(len(RecoveryAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(RecoveryAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func formatRecoveryCode(code string) string {
	if len(code) < 8 {
		return code
	}
	mid := len(code) / 2
	return code[:mid] + "-" + code[mid:]
}
