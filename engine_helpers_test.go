package authcore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/password"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type mailbox struct {
	mu   sync.Mutex
	sent []Mail
}

func (m *mailbox) Send(_ context.Context, mail Mail) error {
	m.mu.Lock()
	m.sent = append(m.sent, mail)
	m.mu.Unlock()
	return nil
}

// last returns the most recent mail of kind sent to to.
func (m *mailbox) last(t *testing.T, to, kind string) Mail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == to && m.sent[i].Kind == kind {
			return m.sent[i]
		}
	}
	t.Fatalf("no %s mail sent to %s", kind, to)
	return Mail{}
}

func (m *mailbox) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = testSecret
	cfg.Password.BcryptCost = 4
	cfg.Audit.Enabled = false
	cfg.Reaper.Enabled = false
	return cfg
}

type testEnv struct {
	engine   *Engine
	accounts *MemoryAccountStore
	clock    *testClock
	mail     *mailbox
}

func newTestEngine(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	env := &testEnv{
		accounts: NewMemoryAccountStore(),
		clock:    newTestClock(),
		mail:     &mailbox{},
	}
	engine, err := New().
		WithConfig(cfg).
		WithAccounts(env.accounts).
		WithMailer(env.mail).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) seedAccount(t *testing.T, username, plain string, edit func(*Account)) *Account {
	t.Helper()
	hash, err := password.NewBcrypt(4).Hash(plain)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	acct := &Account{
		ID:            "id-" + username,
		Username:      username,
		Email:         username + "@example.com",
		PasswordHash:  hash,
		Role:          RoleUser,
		EmailVerified: true,
		CreatedAt:     env.clock.Now(),
		UpdatedAt:     env.clock.Now(),
	}
	if edit != nil {
		edit(acct)
	}
	if err := env.accounts.Create(context.Background(), acct); err != nil {
		t.Fatalf("seed %s failed: %v", username, err)
	}
	return acct
}

func (env *testEnv) account(t *testing.T, id string) *Account {
	t.Helper()
	acct, err := env.accounts.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s) failed: %v", id, err)
	}
	return acct
}

// totpCode returns the code for secret at the engine clock.
func (env *testEnv) totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := env.engine.totp.Code(secret, env.clock.Now())
	if err != nil {
		t.Fatalf("totp code failed: %v", err)
	}
	return code
}

func ipContext(ip string) context.Context {
	return WithClientIP(context.Background(), ip)
}
