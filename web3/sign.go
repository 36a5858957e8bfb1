package web3

import (
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

const (
	signatureLen   = 65
	addressHexLen  = 40
	personalPrefix = "\x19Ethereum Signed Message:\n"
)

var (
	ErrInvalidAddress   = errors.New("invalid wallet address")
	ErrInvalidSignature = errors.New("invalid wallet signature")
)

// NormalizeAddress validates a 0x-prefixed hex address and lowercases it.
func NormalizeAddress(address string) (string, error) {
	a := strings.TrimSpace(address)
	if len(a) != addressHexLen+2 || (a[:2] != "0x" && a[:2] != "0X") {
		return "", ErrInvalidAddress
	}
	a = strings.ToLower(a[2:])
	if _, err := hex.DecodeString(a); err != nil {
		return "", ErrInvalidAddress
	}
	return "0x" + a, nil
}

// HashMessage returns the EIP-191 personal_sign digest of message.
func HashMessage(message string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(personalPrefix))
	h.Write([]byte(strconv.Itoa(len(message))))
	h.Write([]byte(message))
	return h.Sum(nil)
}

// PublicKeyAddress derives the lowercase 0x address of pub.
func PublicKeyAddress(pub *secp256k1.PublicKey) string {
	raw := pub.SerializeUncompressed()
	h := sha3.NewLegacyKeccak256()
	h.Write(raw[1:])
	return "0x" + hex.EncodeToString(h.Sum(nil)[12:])
}

// RecoverAddress returns the address whose key produced signature over
// message. signature is hex r||s||v with v in {0,1,27,28}.
func RecoverAddress(message, signature string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "0x"))
	if err != nil || len(raw) != signatureLen {
		return "", ErrInvalidSignature
	}
	v := raw[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return "", ErrInvalidSignature
	}

	// Reorder to the compact form <27+v><r><s>.
	compact := make([]byte, signatureLen)
	compact[0] = 27 + v
	copy(compact[1:], raw[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, HashMessage(message))
	if err != nil {
		return "", ErrInvalidSignature
	}
	return PublicKeyAddress(pub), nil
}

// SignMessage produces an r||s||v hex signature with v in {27,28}, the form
// wallets return from personal_sign.
func SignMessage(key *secp256k1.PrivateKey, message string) string {
	compact := ecdsa.SignCompact(key, HashMessage(message), false)
	out := make([]byte, signatureLen)
	copy(out, compact[1:])
	out[64] = compact[0]
	return "0x" + hex.EncodeToString(out)
}
