package web3

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// DefaultChallengeTTL is how long a challenge can be answered.
const DefaultChallengeTTL = 5 * time.Minute

const nonceMarker = "\n\nChallenge: "

var (
	ErrNotFound         = errors.New("wallet challenge not found")
	ErrInvalidChallenge = errors.New("invalid or expired wallet challenge")
	ErrAddressMismatch  = errors.New("signature does not match wallet address")
	ErrUnavailable      = errors.New("wallet challenge store unavailable")
)

// Challenge is an issued sign-in request.
type Challenge struct {
	Address   string
	Nonce     string
	Message   string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Store persists challenges keyed by address and nonce.
type Store interface {
	Insert(ctx context.Context, c Challenge) error
	// Consume marks an unused challenge that is still valid at at as used and
	// returns it. Anything else is ErrNotFound.
	Consume(ctx context.Context, address, nonce string, at time.Time) (Challenge, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Config controls challenge wording and lifetime.
type Config struct {
	AppName      string        `toml:"app_name"`
	ChallengeTTL time.Duration `toml:"challenge_ttl"`
}

// Service issues and checks challenges.
type Service struct {
	store   Store
	appName string
	ttl     time.Duration
	now     func() time.Time
}

func NewService(store Store, cfg Config) *Service {
	if cfg.AppName == "" {
		cfg.AppName = "MyApp"
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = DefaultChallengeTTL
	}
	return &Service{store: store, appName: cfg.AppName, ttl: cfg.ChallengeTTL, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Issue creates a challenge for address.
func (s *Service) Issue(ctx context.Context, address string) (Challenge, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return Challenge{}, err
	}
	raw := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return Challenge{}, err
	}
	now := s.now()
	c := Challenge{
		Address:   addr,
		Nonce:     hex.EncodeToString(raw),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	c.Message = s.message(addr, c.Nonce, now)
	if err := s.store.Insert(ctx, c); err != nil {
		return Challenge{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return c, nil
}

func (s *Service) message(address, nonce string, at time.Time) string {
	return "Welcome to " + s.appName + "!\n\n" +
		"Please sign this message to authenticate with your wallet.\n\n" +
		"Address: " + address + nonceMarker + nonce + "\n\n" +
		"Timestamp: " + strconv.FormatInt(at.Unix(), 10)
}

// Verify consumes the challenge and checks that signature over its message was
// made by address. challenge may be the full message or the bare nonce. It
// returns the normalized address.
func (s *Service) Verify(ctx context.Context, address, signature, challenge string) (string, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return "", err
	}
	nonce := ParseNonce(challenge)
	if nonce == "" {
		return "", ErrInvalidChallenge
	}
	c, err := s.store.Consume(ctx, addr, nonce, s.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrInvalidChallenge
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	recovered, err := RecoverAddress(c.Message, signature)
	if err != nil {
		return "", err
	}
	if recovered != addr {
		return "", ErrAddressMismatch
	}
	return addr, nil
}

// Purge deletes challenges that expired before now.
func (s *Service) Purge(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// ParseNonce extracts the nonce from a challenge message, or returns the input
// when it already is a bare 64-char hex nonce.
func ParseNonce(challenge string) string {
	c := strings.TrimSpace(challenge)
	if i := strings.Index(c, nonceMarker); i >= 0 {
		c = c[i+len(nonceMarker):]
		if j := strings.IndexByte(c, '\n'); j >= 0 {
			c = c[:j]
		}
	}
	c = strings.ToLower(strings.TrimSpace(c))
	if len(c) != 64 {
		return ""
	}
	if _, err := hex.DecodeString(c); err != nil {
		return ""
	}
	return c
}

// DefaultUsername names a wallet-created account after its address.
func DefaultUsername(address string) string {
	return "user_" + addressTail(address, 8)
}

// Username is the name tried on the given attempt to create a wallet
// account. Attempt 0 is [DefaultUsername], attempt 1 uses a longer tail of the
// address and later attempts add a random suffix.
func Username(address string, attempt int) string {
	switch attempt {
	case 0:
		return DefaultUsername(address)
	case 1:
		return "user_" + addressTail(address, 16)
	}
	var b [4]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		return "user_" + addressTail(address, 8) + "_" + strconv.Itoa(attempt)
	}
	return "user_" + addressTail(address, 8) + "_" + hex.EncodeToString(b[:])
}

func addressTail(address string, n int) string {
	a := strings.ToLower(address)
	if len(a) > n {
		a = a[len(a)-n:]
	}
	return a
}
