package password

import "sync"

// Hasher produces and checks one hash format.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
	NeedsUpgrade(encoded string) (bool, error)
}

// Algorithm names the primary hasher.
type Algorithm string

const (
	AlgorithmBcrypt Algorithm = "bcrypt"
	AlgorithmArgon2 Algorithm = "argon2id"
)

// Config selects the primary algorithm and its cost.
type Config struct {
	Algorithm  Algorithm    `toml:"algorithm"`
	BcryptCost int          `toml:"bcrypt_cost"`
	Argon2     Argon2Params `toml:"argon2"`
	MinLength  int          `toml:"min_length"`
}

// Verifier is the credential verifier. It hashes new passwords with the
// primary algorithm and checks stored hashes of either supported format.
type Verifier struct {
	primary   Algorithm
	bcrypt    *Bcrypt
	argon     *Argon2
	minLength int

	dummyOnce sync.Once
	dummy     string
}

// NewVerifier builds a [Verifier] from cfg.
func NewVerifier(cfg Config) (*Verifier, error) {
	params := cfg.Argon2
	if params == (Argon2Params{}) {
		params = DefaultArgon2Params()
	}
	argon, err := NewArgon2(params)
	if err != nil {
		return nil, err
	}
	primary := cfg.Algorithm
	if primary == "" {
		primary = AlgorithmBcrypt
	}
	if primary != AlgorithmBcrypt && primary != AlgorithmArgon2 {
		return nil, ErrUnknownFormat
	}
	return &Verifier{
		primary:   primary,
		bcrypt:    NewBcrypt(cfg.BcryptCost),
		argon:     argon,
		minLength: cfg.MinLength,
	}, nil
}

func (v *Verifier) hasher() Hasher {
	if v.primary == AlgorithmArgon2 {
		return v.argon
	}
	return v.bcrypt
}

// Hash validates strength and hashes password with the primary algorithm.
func (v *Verifier) Hash(password string) (string, error) {
	if err := ValidateStrength(password, v.minLength); err != nil {
		return "", err
	}
	return v.hasher().Hash(password)
}

// Check compares password with stored. Sentinel accounts are rejected without
// hashing.
func (v *Verifier) Check(stored, password string) error {
	if IsSentinel(stored) {
		return ErrSentinelCredential
	}
	var (
		ok  bool
		err error
	)
	switch {
	case isBcrypt(stored):
		ok, err = v.bcrypt.Verify(password, stored)
	case isArgon2(stored):
		ok, err = v.argon.Verify(password, stored)
	default:
		return ErrUnknownFormat
	}
	if err != nil {
		return err
	}
	if !ok {
		return ErrMismatch
	}
	return nil
}

// CheckMissing burns one comparison against a throwaway hash so a lookup miss
// costs the same as a wrong password. It always returns ErrMismatch.
func (v *Verifier) CheckMissing(password string) error {
	v.dummyOnce.Do(func() {
		v.dummy, _ = v.hasher().Hash("authcore-dummy-credential")
	})
	if v.dummy != "" {
		_ = v.Check(v.dummy, password)
	}
	return ErrMismatch
}

// NeedsUpgrade reports whether stored should be re-hashed with the primary
// algorithm.
func (v *Verifier) NeedsUpgrade(stored string) bool {
	if IsSentinel(stored) {
		return false
	}
	switch {
	case isBcrypt(stored):
		if v.primary != AlgorithmBcrypt {
			return true
		}
		up, err := v.bcrypt.NeedsUpgrade(stored)
		return err == nil && up
	case isArgon2(stored):
		if v.primary != AlgorithmArgon2 {
			return true
		}
		up, err := v.argon.NeedsUpgrade(stored)
		return err == nil && up
	}
	return false
}

// ValidateStrength enforces the length bounds shared by every hasher.
func ValidateStrength(password string, minLength int) error {
	if minLength <= 0 {
		minLength = 8
	}
	if len(password) < minLength {
		return ErrTooShort
	}
	if len(password) > bcryptMaxBytes {
		return ErrTooLong
	}
	return nil
}
