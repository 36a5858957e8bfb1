package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	authcore "github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/mfa"
	"github.com/MrEthical07/authcore/password"
)

const testPassword = "Secret123"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type outbox struct {
	mu   sync.Mutex
	sent []authcore.Mail
}

func (o *outbox) Send(_ context.Context, m authcore.Mail) error {
	o.mu.Lock()
	o.sent = append(o.sent, m)
	o.mu.Unlock()
	return nil
}

func (o *outbox) code(t *testing.T, to, kind string) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.sent) - 1; i >= 0; i-- {
		if o.sent[i].To == to && o.sent[i].Kind == kind {
			return o.sent[i].Code
		}
	}
	t.Fatalf("no %s mail sent to %s", kind, to)
	return ""
}

type testServer struct {
	t        *testing.T
	handler  http.Handler
	engine   *authcore.Engine
	accounts *authcore.MemoryAccountStore
	clock    *clock
	mail     *outbox
}

func newTestServer(t *testing.T, mutate func(*authcore.Config), opts Options) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := authcore.DefaultConfig()
	cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Password.BcryptCost = 4
	cfg.Audit.Enabled = false
	cfg.Reaper.Enabled = false
	if mutate != nil {
		mutate(&cfg)
	}

	ts := &testServer{
		t:        t,
		accounts: authcore.NewMemoryAccountStore(),
		clock:    &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		mail:     &outbox{},
	}
	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccounts(ts.accounts).
		WithMailer(ts.mail).
		WithClock(ts.clock.Now).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	ts.engine = engine
	ts.handler = NewRouter(engine, opts)
	return ts
}

func (ts *testServer) seed(username, role string, edit func(*authcore.Account)) *authcore.Account {
	ts.t.Helper()
	hash, err := password.NewBcrypt(4).Hash(testPassword)
	require.NoError(ts.t, err)
	acct := &authcore.Account{
		ID:            "id-" + username,
		Username:      username,
		Email:         username + "@example.com",
		PasswordHash:  hash,
		Role:          role,
		EmailVerified: true,
		CreatedAt:     ts.clock.Now(),
		UpdatedAt:     ts.clock.Now(),
	}
	if edit != nil {
		edit(acct)
	}
	require.NoError(ts.t, ts.accounts.Create(context.Background(), acct))
	return acct
}

// do sends a request from a fixed client address and decodes the JSON
// answer into a map when there is one.
func (ts *testServer) do(method, path, bearer string, body any) (*httptest.ResponseRecorder, map[string]any) {
	ts.t.Helper()
	return ts.doFrom("192.0.2.10:40000", method, path, bearer, body)
}

func (ts *testServer) doFrom(remote, method, path, bearer string, body any) (*httptest.ResponseRecorder, map[string]any) {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = remote
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) Firefox/125.0")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(ts.t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	}
	return rec, out
}

func (ts *testServer) login(identifier string) map[string]any {
	ts.t.Helper()
	rec, body := ts.do(http.MethodPost, "/login", "", map[string]string{
		"identifier": identifier,
		"password":   testPassword,
	})
	require.Equal(ts.t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	return body
}

func (ts *testServer) totpCode(secret string) string {
	ts.t.Helper()
	code, err := mfa.NewTOTP(mfa.Config{}).Code(secret, ts.clock.Now())
	require.NoError(ts.t, err)
	return code
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
