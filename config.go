package authcore

import (
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/lockout"
	"github.com/MrEthical07/authcore/password"
)

// Rate-limited endpoints. Each keeps its own counters per client IP.
const (
	EndpointLogin         = "login"
	EndpointVerifyMFA     = "verify_mfa"
	EndpointRegister      = "register"
	EndpointPasswordReset = "password_reset"
	EndpointResetConfirm  = "password_reset_confirm"
	EndpointWeb3Challenge = "web3_challenge"
	EndpointWeb3Verify    = "web3_verify"
	EndpointRefresh       = "refresh"
	EndpointEmailCode     = "email_code"
	EndpointEmailVerify   = "email_verify"
)

// RatePolicy is the budget of one endpoint: at most Max calls per Window.
type RatePolicy = rate.Policy

// Config is the full engine configuration. Start from [DefaultConfig].
type Config struct {
	AppName    string          `toml:"app_name"`
	JWT        JWTConfig       `toml:"jwt"`
	Password   password.Config `toml:"password"`
	Lockout    lockout.Policy  `toml:"lockout"`
	RateLimits RateLimitConfig `toml:"rate_limits"`
	MFA        MFAConfig       `toml:"mfa"`
	Refresh    RefreshConfig   `toml:"refresh"`
	Session    SessionConfig   `toml:"session"`
	Web3       Web3Config      `toml:"web3"`
	Accounts   AccountsConfig  `toml:"accounts"`
	Reaper     ReaperConfig    `toml:"reaper"`
	Audit      AuditConfig     `toml:"audit"`
	Metrics    MetricsConfig   `toml:"metrics"`
	Stores     StoresConfig    `toml:"stores"`
}

// JWTConfig configures bearer and MFA challenge tokens. Secret is never read
// from a config file.
type JWTConfig struct {
	Secret        string        `toml:"-"`
	SigningMethod string        `toml:"signing_method"`
	PrivateKey    []byte        `toml:"-"`
	PublicKey     []byte        `toml:"-"`
	AccessTTL     time.Duration `toml:"access_ttl"`
	ChallengeTTL  time.Duration `toml:"challenge_ttl"`
	Issuer        string        `toml:"issuer"`
	Audience      string        `toml:"audience"`
	Leeway        time.Duration `toml:"leeway"`
}

// RateLimitConfig holds one policy per endpoint.
type RateLimitConfig struct {
	Login         RatePolicy `toml:"login"`
	VerifyMFA     RatePolicy `toml:"verify_mfa"`
	Register      RatePolicy `toml:"register"`
	PasswordReset RatePolicy `toml:"password_reset"`
	Web3Challenge RatePolicy `toml:"web3_challenge"`
	Web3Verify    RatePolicy `toml:"web3_verify"`
	Refresh       RatePolicy `toml:"refresh"`
	EmailCode     RatePolicy `toml:"email_code"`
	EmailVerify   RatePolicy `toml:"email_verify"`
}

func (c RateLimitConfig) policy(endpoint string) RatePolicy {
	switch endpoint {
	case EndpointLogin:
		return c.Login
	case EndpointVerifyMFA:
		return c.VerifyMFA
	case EndpointRegister:
		return c.Register
	case EndpointPasswordReset, EndpointResetConfirm:
		return c.PasswordReset
	case EndpointWeb3Challenge:
		return c.Web3Challenge
	case EndpointWeb3Verify:
		return c.Web3Verify
	case EndpointRefresh:
		return c.Refresh
	case EndpointEmailCode:
		return c.EmailCode
	case EndpointEmailVerify:
		return c.EmailVerify
	}
	return RatePolicy{}
}

// MFAConfig configures TOTP, email codes and recovery codes.
type MFAConfig struct {
	Issuer               string        `toml:"issuer"`
	Skew                 uint          `toml:"skew"`
	EmailCodeTTL         time.Duration `toml:"email_code_ttl"`
	EmailCodeMaxAttempts int           `toml:"email_code_max_attempts"`
	RecoveryCodeCount    int           `toml:"recovery_code_count"`
	RecoveryCodeLength   int           `toml:"recovery_code_length"`
	// ProactiveEmail sends an email code as soon as a challenge is issued.
	ProactiveEmail bool `toml:"proactive_email"`
}

type RefreshConfig struct {
	TTL          time.Duration `toml:"ttl"`
	CleanupGrace time.Duration `toml:"cleanup_grace"`
}

type SessionConfig struct {
	Window     time.Duration `toml:"window"`
	PurgeGrace time.Duration `toml:"purge_grace"`
}

type Web3Config struct {
	ChallengeTTL time.Duration `toml:"challenge_ttl"`
}

// AccountsConfig covers registration, email verification and password reset.
type AccountsConfig struct {
	DefaultRole              string        `toml:"default_role"`
	Roles                    []string      `toml:"roles"`
	RequireEmailVerification bool          `toml:"require_email_verification"`
	VerificationCodeTTL      time.Duration `toml:"verification_code_ttl"`
	ResetCodeTTL             time.Duration `toml:"reset_code_ttl"`
	// UnverifiedRetention is how long an unverified password account is kept.
	// Zero disables the cleanup.
	UnverifiedRetention time.Duration `toml:"unverified_retention"`
}

type ReaperConfig struct {
	Enabled     bool          `toml:"enabled"`
	Interval    time.Duration `toml:"interval"`
	TaskTimeout time.Duration `toml:"task_timeout"`
	RunOnStart  bool          `toml:"run_on_start"`
}

type AuditConfig struct {
	Enabled     bool          `toml:"enabled"`
	BufferSize  int           `toml:"buffer_size"`
	DropIfFull  bool          `toml:"drop_if_full"`
	EmitTimeout time.Duration `toml:"emit_timeout"`
}

type MetricsConfig struct {
	Enabled                 bool `toml:"enabled"`
	EnableLatencyHistograms bool `toml:"enable_latency_histograms"`
}

// StoresConfig bounds every call to the backing stores.
type StoresConfig struct {
	CacheTimeout time.Duration `toml:"cache_timeout"`
	DBTimeout    time.Duration `toml:"db_timeout"`
}

// DefaultConfig returns the production defaults. JWT.Secret still has to be
// set.
func DefaultConfig() Config {
	return Config{
		AppName: "MyApp",
		JWT: JWTConfig{
			SigningMethod: "hs256",
			AccessTTL:     24 * time.Hour,
			ChallengeTTL:  5 * time.Minute,
		},
		Password: password.Config{
			Algorithm:  password.AlgorithmBcrypt,
			BcryptCost: 12,
			Argon2:     password.DefaultArgon2Params(),
			MinLength:  8,
		},
		Lockout: lockout.DefaultPolicy(),
		RateLimits: RateLimitConfig{
			Login:         RatePolicy{Max: 10, Window: 3 * time.Minute},
			VerifyMFA:     RatePolicy{Max: 10, Window: 5 * time.Minute},
			Register:      RatePolicy{Max: 5, Window: 10 * time.Minute},
			PasswordReset: RatePolicy{Max: 3, Window: time.Minute},
			Web3Challenge: RatePolicy{Max: 5, Window: time.Hour},
			Web3Verify:    RatePolicy{Max: 10, Window: time.Hour},
			Refresh:       RatePolicy{Max: 30, Window: time.Minute},
			EmailCode:     RatePolicy{Max: 3, Window: 5 * time.Minute},
			EmailVerify:   RatePolicy{Max: 10, Window: 10 * time.Minute},
		},
		MFA: MFAConfig{
			Issuer:               "MyApp",
			Skew:                 1,
			EmailCodeTTL:         10 * time.Minute,
			EmailCodeMaxAttempts: 5,
			RecoveryCodeCount:    10,
			RecoveryCodeLength:   10,
			ProactiveEmail:       true,
		},
		Refresh: RefreshConfig{
			TTL:          7 * 24 * time.Hour,
			CleanupGrace: 24 * time.Hour,
		},
		Session: SessionConfig{
			Window:     24 * time.Hour,
			PurgeGrace: 7 * 24 * time.Hour,
		},
		Web3: Web3Config{
			ChallengeTTL: 5 * time.Minute,
		},
		Accounts: AccountsConfig{
			DefaultRole:              RoleUser,
			Roles:                    []string{RoleUser, RoleModerator, RoleAdmin},
			RequireEmailVerification: true,
			VerificationCodeTTL:      15 * time.Minute,
			ResetCodeTTL:             15 * time.Minute,
			UnverifiedRetention:      7 * 24 * time.Hour,
		},
		Reaper: ReaperConfig{
			Enabled:     true,
			Interval:    10 * time.Minute,
			TaskTimeout: time.Minute,
		},
		Audit: AuditConfig{
			Enabled:     true,
			BufferSize:  1024,
			DropIfFull:  true,
			EmitTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Stores: StoresConfig{
			CacheTimeout: 500 * time.Millisecond,
			DBTimeout:    3 * time.Second,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.Accounts.Roles != nil {
		out.Accounts.Roles = append([]string(nil), cfg.Accounts.Roles...)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.Secret) < 32 {
			return invalid("JWT secret must be at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return invalid("ed25519 requires PrivateKey and PublicKey")
		}
	default:
		return invalid("unsupported JWT signing method %q", c.JWT.SigningMethod)
	}
	if c.JWT.AccessTTL <= 0 {
		return invalid("JWT AccessTTL must be > 0")
	}
	if c.JWT.ChallengeTTL <= 0 || c.JWT.ChallengeTTL > 30*time.Minute {
		return invalid("JWT ChallengeTTL must be in (0, 30m]")
	}

	if c.Password.MinLength < 8 {
		return invalid("Password MinLength must be >= 8")
	}
	if c.Password.Algorithm == password.AlgorithmBcrypt && c.Password.BcryptCost != 0 && (c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31) {
		return invalid("Password BcryptCost must be between 4 and 31")
	}

	if c.Lockout.Threshold <= 0 {
		return invalid("Lockout Threshold must be > 0")
	}
	if c.Lockout.Base <= 0 || c.Lockout.Cap < c.Lockout.Base {
		return invalid("Lockout Base must be > 0 and <= Cap")
	}

	for _, p := range []RatePolicy{
		c.RateLimits.Login, c.RateLimits.VerifyMFA, c.RateLimits.Register,
		c.RateLimits.PasswordReset, c.RateLimits.Web3Challenge, c.RateLimits.Web3Verify,
		c.RateLimits.Refresh, c.RateLimits.EmailCode, c.RateLimits.EmailVerify,
	} {
		if p.Max < 0 || p.Window < 0 {
			return invalid("rate limit policies must not be negative")
		}
	}

	if c.MFA.EmailCodeTTL <= 0 {
		return invalid("MFA EmailCodeTTL must be > 0")
	}
	if c.MFA.RecoveryCodeCount <= 0 || c.MFA.RecoveryCodeLength < 8 {
		return invalid("MFA recovery codes need count > 0 and length >= 8")
	}
	if c.MFA.Skew > 3 {
		return invalid("MFA Skew must be <= 3")
	}

	if c.Refresh.TTL <= 0 {
		return invalid("Refresh TTL must be > 0")
	}
	if c.Session.Window <= 0 {
		return invalid("Session Window must be > 0")
	}
	if c.Web3.ChallengeTTL <= 0 {
		return invalid("Web3 ChallengeTTL must be > 0")
	}

	if c.Accounts.DefaultRole == "" || !c.roleKnown(c.Accounts.DefaultRole) {
		return invalid("Accounts DefaultRole must be one of Roles")
	}
	if c.Accounts.VerificationCodeTTL <= 0 || c.Accounts.ResetCodeTTL <= 0 {
		return invalid("Accounts code TTLs must be > 0")
	}
	if c.Accounts.UnverifiedRetention < 0 {
		return invalid("Accounts UnverifiedRetention must be >= 0")
	}

	if c.Reaper.Enabled && c.Reaper.Interval < time.Second {
		return invalid("Reaper Interval must be >= 1s")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return invalid("Audit BufferSize must be > 0")
	}
	if c.Stores.CacheTimeout < 0 || c.Stores.DBTimeout < 0 {
		return invalid("store timeouts must be >= 0")
	}
	return nil
}

func (c *Config) roleKnown(role string) bool {
	for _, r := range c.Accounts.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}
