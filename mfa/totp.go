package mfa

import (
	"crypto/subtle"
	"encoding/base32"
	"errors"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// DefaultPeriod is the TOTP time step.
	DefaultPeriod = 30 * time.Second
	// DefaultSkew is the tolerated number of steps on either side of now.
	DefaultSkew = 1
	// SecretBytes is the size of generated secrets before base32 encoding.
	SecretBytes = 20
)

var (
	// ErrInvalidSecret is returned for secrets that are not unpadded base32.
	ErrInvalidSecret = errors.New("invalid totp secret")
	// ErrMissingAccount is returned when a provisioning label cannot be built.
	ErrMissingAccount = errors.New("totp account name required")
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Config shapes the TOTP parameters shown to authenticator apps.
type Config struct {
	Issuer string        `toml:"issuer"`
	Period time.Duration `toml:"period"`
	Skew   uint          `toml:"skew"`
}

// Setup is a freshly issued secret and the URI encoding it for QR enrolment.
type Setup struct {
	Secret string
	URI    string
}

// TOTP generates and checks time-based codes.
type TOTP struct {
	issuer string
	period uint
	skew   uint
	now    func() time.Time
}

// NewTOTP returns a TOTP helper. Zero fields take the package defaults.
func NewTOTP(cfg Config) *TOTP {
	period := cfg.Period
	if period <= 0 {
		period = DefaultPeriod
	}
	skew := cfg.Skew
	if skew == 0 {
		skew = DefaultSkew
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "MyApp"
	}
	return &TOTP{
		issuer: issuer,
		period: uint(period / time.Second),
		skew:   skew,
		now:    time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (t *TOTP) WithClock(now func() time.Time) *TOTP {
	if now != nil {
		t.now = now
	}
	return t
}

func (t *TOTP) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    t.period,
		Skew:      0,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// Generate creates a new secret for account.
func (t *TOTP) Generate(account string) (Setup, error) {
	return t.provision(account, nil)
}

// Provision rebuilds the setup for an existing secret, used when an unconfirmed
// secret is handed out again.
func (t *TOTP) Provision(account, secret string) (Setup, error) {
	raw, err := decodeSecret(secret)
	if err != nil {
		return Setup{}, err
	}
	return t.provision(account, raw)
}

func (t *TOTP) provision(account string, raw []byte) (Setup, error) {
	if strings.TrimSpace(account) == "" {
		return Setup{}, ErrMissingAccount
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      t.issuer,
		AccountName: account,
		Period:      t.period,
		SecretSize:  SecretBytes,
		Secret:      raw,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Setup{}, err
	}
	return Setup{Secret: key.Secret(), URI: key.URL()}, nil
}

// Verify checks code against secret at the current time. On success it returns
// the matched time step.
func (t *TOTP) Verify(secret, code string) (int64, bool, error) {
	return t.VerifyAt(secret, code, t.now())
}

// VerifyAt is Verify at an explicit instant.
func (t *TOTP) VerifyAt(secret, code string, at time.Time) (int64, bool, error) {
	if _, err := decodeSecret(secret); err != nil {
		return 0, false, err
	}
	code = strings.TrimSpace(code)
	if len(code) != otp.DigitsSix.Length() || !numeric(code) {
		return 0, false, nil
	}

	opts := t.opts()
	period := time.Duration(t.period) * time.Second
	base := at.Unix() / int64(t.period)
	skew := int64(t.skew)
	for d := -skew; d <= skew; d++ {
		step := base + d
		if step < 0 {
			continue
		}
		want, err := totp.GenerateCodeCustom(secret, time.Unix(step*int64(t.period), 0).Add(period/2), opts)
		if err != nil {
			return 0, false, err
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return step, true, nil
		}
	}
	return 0, false, nil
}

// Code returns the code for secret at an instant.
func (t *TOTP) Code(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, t.opts())
}

// StepTTL is how long a matched step stays acceptable, used for replay markers.
func (t *TOTP) StepTTL() time.Duration {
	return time.Duration(int64(t.period)*(2*int64(t.skew)+1)) * time.Second
}

func decodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.TrimSpace(secret))
	s = strings.TrimRight(s, "=")
	raw, err := secretEncoding.DecodeString(s)
	if err != nil || len(raw) == 0 {
		return nil, ErrInvalidSecret
	}
	return raw, nil
}

func numeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
