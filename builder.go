package authcore

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/kv"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/lockout"
	"github.com/MrEthical07/authcore/mfa"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/revocation"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/web3"
)

// Builder assembles an [Engine]. Every store defaults to an in-memory
// implementation, which suits tests and single-process deployments.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts   AccountStore
	sessions   session.Store
	refresh    refresh.Store
	lockout    lockout.Store
	revocation revocation.Durable
	challenges web3.Store

	mailer    Mailer
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New starts a builder with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis puts rate limits, one-time codes, the TOTP replay guard and the
// fast revocation tier in Redis.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithAccounts(store AccountStore) *Builder {
	b.accounts = store
	return b
}

func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.sessions = store
	return b
}

func (b *Builder) WithRefreshStore(store refresh.Store) *Builder {
	b.refresh = store
	return b
}

func (b *Builder) WithLockoutStore(store lockout.Store) *Builder {
	b.lockout = store
	return b
}

// WithRevocationStore sets the durable blacklist tier.
func (b *Builder) WithRevocationStore(store revocation.Durable) *Builder {
	b.revocation = store
	return b
}

func (b *Builder) WithChallengeStore(store web3.Store) *Builder {
	b.challenges = store
	return b
}

// WithMailer sets the delivery of verification, reset and MFA codes. Without
// one, codes are generated and dropped.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock replaces the time source of every component. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the engine. A builder can be
// used once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- FAST TIER --------
	var cache kv.Store
	var sweep *kv.Memory
	fastTier := "memory"
	if b.redis != nil {
		cache = kv.NewRedis(b.redis)
		fastTier = "redis"
	} else {
		sweep = kv.NewMemory().WithClock(now)
		cache = sweep
	}
	cache = kv.WithTimeout(cache, cfg.Stores.CacheTimeout)

	// -------- DURABLE TIER --------
	accounts := b.accounts
	if accounts == nil {
		accounts = NewMemoryAccountStore()
	}
	sessionStore := b.sessions
	if sessionStore == nil {
		sessionStore = session.NewMemoryStore()
	}
	refreshStore := b.refresh
	if refreshStore == nil {
		refreshStore = refresh.NewMemoryStore()
	}
	lockoutStore := b.lockout
	if lockoutStore == nil {
		lockoutStore = lockout.NewMemoryStore()
	}
	durable := b.revocation
	if durable == nil {
		durable = revocation.NewMemoryDurable()
	}
	challenges := b.challenges
	if challenges == nil {
		challenges = web3.NewMemoryStore()
	}

	verifier, err := password.NewVerifier(cfg.Password)
	if err != nil {
		return nil, err
	}

	jwtCfg := jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		ChallengeTTL:  cfg.JWT.ChallengeTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
	}
	if jwtCfg.SigningMethod == jwt.MethodHS256 {
		jwtCfg.PrivateKey = []byte(cfg.JWT.Secret)
	}
	jm, err := jwt.NewManager(jwtCfg)
	if err != nil {
		return nil, err
	}

	mailer := b.mailer
	if mailer == nil {
		mailer = noopMailer{}
	}

	e := &Engine{
		config:   cfg,
		accounts: accounts,
		mailer:   mailer,
		now:      now,

		verifier:    verifier,
		jwt:         jm.WithClock(now),
		limiter:     rate.New(cache),
		lockout:     lockout.New(lockoutStore, cfg.Lockout).WithClock(now),
		totp:        mfa.NewTOTP(mfa.Config{Issuer: cfg.MFA.Issuer, Skew: cfg.MFA.Skew}).WithClock(now),
		replay:      stores.NewTOTPReplay(cache),
		mfaCodes:    stores.NewCodeStore(cache, "mfa_email", cfg.MFA.EmailCodeMaxAttempts).WithClock(now),
		verifyCodes: stores.NewEmailVerificationCodes(cache).WithClock(now),
		resetCodes:  stores.NewPasswordResetCodes(cache).WithClock(now),
		refresh:     refresh.NewService(refreshStore, cfg.Refresh.TTL).WithClock(now),
		revocation:  revocation.New(cache, durable).WithClock(now),
		sessions:    session.NewRegistry(sessionStore, cfg.Session.Window).WithClock(now),
		web3: web3.NewService(challenges, web3.Config{
			AppName:      cfg.AppName,
			ChallengeTTL: cfg.Web3.ChallengeTTL,
		}).WithClock(now),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:     cfg.Audit.Enabled,
			BufferSize:  cfg.Audit.BufferSize,
			DropIfFull:  cfg.Audit.DropIfFull,
			EmitTimeout: cfg.Audit.EmitTimeout,
		}, b.auditSink),
		metrics:  NewMetrics(cfg.Metrics),
		fastTier: fastTier,
	}
	e.reaper = e.newReaper(sweep)

	b.built = true
	return e, nil
}
