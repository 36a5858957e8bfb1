package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	argon2Prefix          = "$argon2id$"
)

// Argon2Params are the argon2id cost parameters.
type Argon2Params struct {
	Memory      uint32 `toml:"memory"`
	Time        uint32 `toml:"time"`
	Parallelism uint8  `toml:"parallelism"`
	SaltLength  uint32 `toml:"salt_length"`
	KeyLength   uint32 `toml:"key_length"`
}

// DefaultArgon2Params matches the OWASP baseline for argon2id.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{Memory: 64 * 1024, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32}
}

// Argon2 hashes with argon2id and encodes the result in PHC form.
type Argon2 struct {
	params Argon2Params
}

type phc struct {
	params Argon2Params
	salt   []byte
	hash   []byte
}

// NewArgon2 validates p and returns an argon2id hasher.
func NewArgon2(p Argon2Params) (*Argon2, error) {
	switch {
	case p.Memory < minMemoryKB:
		return nil, errors.New("argon2 memory must be >= 8192 KB")
	case p.Time < minTimeCost:
		return nil, errors.New("argon2 time must be >= 1")
	case p.Parallelism < minParallelism:
		return nil, errors.New("argon2 parallelism must be >= 1")
	case p.SaltLength < minSaltLength:
		return nil, errors.New("argon2 salt length must be >= 16")
	case p.KeyLength < minKeyLength:
		return nil, errors.New("argon2 key length must be >= 16")
	}
	return &Argon2{params: p}, nil
}

func (a *Argon2) Hash(password string) (string, error) {
	salt := make([]byte, a.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, a.params.Time, a.params.Memory, a.params.Parallelism, a.params.KeyLength)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix, argon2.Version,
		a.params.Memory, a.params.Time, a.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (a *Argon2) Verify(password, encoded string) (bool, error) {
	parsed, err := parseArgon2(encoded)
	if err != nil {
		return false, err
	}
	p := parsed.params
	computed := argon2.IDKey([]byte(password), parsed.salt, p.Time, p.Memory, p.Parallelism, p.KeyLength)
	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	parsed, err := parseArgon2(encoded)
	if err != nil {
		return false, err
	}
	p := parsed.params
	return a.params.Memory > p.Memory ||
		a.params.Time > p.Time ||
		a.params.Parallelism > p.Parallelism ||
		a.params.KeyLength != p.KeyLength, nil
}

func isArgon2(encoded string) bool {
	return strings.HasPrefix(encoded, argon2Prefix)
}

func parseArgon2(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, ErrUnknownFormat
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") || version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	out := &phc{}
	seen := 0
	for _, pair := range strings.Split(parts[3], ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, errors.New("invalid argon2 parameter entry")
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid argon2 parameter %q", name)
		}
		switch name {
		case "m":
			if n < uint64(minMemoryKB) {
				return nil, errors.New("invalid argon2 memory parameter")
			}
			out.params.Memory = uint32(n)
		case "t":
			if n < uint64(minTimeCost) {
				return nil, errors.New("invalid argon2 time parameter")
			}
			out.params.Time = uint32(n)
		case "p":
			if n < uint64(minParallelism) || n > 255 {
				return nil, errors.New("invalid argon2 parallelism parameter")
			}
			out.params.Parallelism = uint8(n)
		default:
			return nil, errors.New("unsupported argon2 parameter")
		}
		seen++
	}
	if seen != 3 || out.params.Memory == 0 || out.params.Time == 0 || out.params.Parallelism == 0 {
		return nil, errors.New("missing argon2 parameters")
	}

	if out.salt, err = decodeB64(parts[4]); err != nil || len(out.salt) < int(minSaltLength) {
		return nil, errors.New("invalid argon2 salt")
	}
	if out.hash, err = decodeB64(parts[5]); err != nil || len(out.hash) == 0 {
		return nil, errors.New("invalid argon2 hash")
	}
	out.params.SaltLength = uint32(len(out.salt))
	out.params.KeyLength = uint32(len(out.hash))
	return out, nil
}

// decodeB64 accepts both the unpadded PHC alphabet and padded legacy encodings.
func decodeB64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
