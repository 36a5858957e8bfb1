package authcore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/MrEthical07/authcore/web3"
)

func newWallet(t *testing.T) (*secp256k1.PrivateKey, string) {
	t.Helper()
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey failed: %v", err)
	}
	return key, web3.PublicKeyAddress(key.PubKey())
}

func signedChallenge(t *testing.T, env *testEnv, key *secp256k1.PrivateKey, address string) (string, string) {
	t.Helper()
	c, err := env.engine.Web3Challenge(context.Background(), address)
	if err != nil {
		t.Fatalf("Web3Challenge failed: %v", err)
	}
	return c.Challenge, web3.SignMessage(key, c.Challenge)
}

func TestWeb3ChallengeMessage(t *testing.T) {
	env := newTestEngine(t, func(cfg *Config) { cfg.AppName = "Acme" })
	_, address := newWallet(t)

	c, err := env.engine.Web3Challenge(context.Background(), strings.ToUpper(address[:2])+address[2:])
	if err != nil {
		t.Fatalf("Web3Challenge failed: %v", err)
	}
	if c.Address != address {
		t.Fatalf("expected normalized address %s, got %s", address, c.Address)
	}
	if !strings.HasPrefix(c.Challenge, "Welcome to Acme!") || !strings.Contains(c.Challenge, c.Nonce) {
		t.Fatalf("unexpected challenge %q", c.Challenge)
	}
	if !c.ExpiresAt.Equal(env.clock.Now().Add(5 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", c.ExpiresAt)
	}
	if _, err := env.engine.Web3Challenge(context.Background(), "0x1234"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}
}

func TestWeb3VerifyRegistersThenConflicts(t *testing.T) {
	env := newTestEngine(t, nil)
	key, address := newWallet(t)

	msg, sig := signedChallenge(t, env, key, address)
	res, err := env.engine.Web3Verify(context.Background(), address, sig, msg)
	if err != nil {
		t.Fatalf("Web3Verify failed: %v", err)
	}
	if res.AccessToken == "" || res.User.WalletAddress != address {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.HasPrefix(res.User.Username, "user_") {
		t.Fatalf("unexpected default username %q", res.User.Username)
	}

	msg, sig = signedChallenge(t, env, key, address)
	if _, err := env.engine.Web3Verify(context.Background(), address, sig, msg); !errors.Is(err, ErrWalletRegistered) {
		t.Fatalf("expected wallet registered, got %v", err)
	}

	msg, sig = signedChallenge(t, env, key, address)
	again, err := env.engine.Web3Login(context.Background(), address, sig, msg)
	if err != nil {
		t.Fatalf("Web3Login failed: %v", err)
	}
	if again.User.ID != res.User.ID {
		t.Fatal("login should reach the registered account")
	}
}

func TestWeb3VerifyTakenUsernameStillRegisters(t *testing.T) {
	env := newTestEngine(t, nil)
	key, address := newWallet(t)
	squatted := []string{web3.Username(address, 0), web3.Username(address, 1)}
	for _, name := range squatted {
		env.seedAccount(t, name, testPassword, nil)
	}

	msg, sig := signedChallenge(t, env, key, address)
	res, err := env.engine.Web3Verify(context.Background(), address, sig, msg)
	if err != nil {
		t.Fatalf("a taken username must not block wallet sign-up: %v", err)
	}
	if res.User.WalletAddress != address || !strings.HasPrefix(res.User.Username, squatted[0]+"_") {
		t.Fatalf("unexpected account %+v", res.User)
	}

	msg, sig = signedChallenge(t, env, key, address)
	again, err := env.engine.Web3Login(context.Background(), address, sig, msg)
	if err != nil || again.User.ID != res.User.ID {
		t.Fatalf("Web3Login should reach the new account: %+v err=%v", again, err)
	}
}

func TestWeb3LoginUnknownWallet(t *testing.T) {
	env := newTestEngine(t, nil)
	key, address := newWallet(t)

	msg, sig := signedChallenge(t, env, key, address)
	if _, err := env.engine.Web3Login(context.Background(), address, sig, msg); !errors.Is(err, ErrWalletNotRegistered) {
		t.Fatalf("expected not registered, got %v", err)
	}
}

func TestWeb3ChallengeIsSingleUse(t *testing.T) {
	env := newTestEngine(t, nil)
	key, address := newWallet(t)

	msg, sig := signedChallenge(t, env, key, address)
	if _, err := env.engine.Web3Verify(context.Background(), address, sig, msg); err != nil {
		t.Fatalf("Web3Verify failed: %v", err)
	}
	if _, err := env.engine.Web3Login(context.Background(), address, sig, msg); !errors.Is(err, ErrInvalidChallenge) {
		t.Fatalf("replayed challenge must fail, got %v", err)
	}
}

func TestWeb3RejectsForeignSignature(t *testing.T) {
	env := newTestEngine(t, nil)
	_, address := newWallet(t)
	other, _ := newWallet(t)

	msg, sig := signedChallenge(t, env, other, address)
	if _, err := env.engine.Web3Verify(context.Background(), address, sig, msg); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestWeb3ExpiredChallenge(t *testing.T) {
	env := newTestEngine(t, nil)
	key, address := newWallet(t)

	msg, sig := signedChallenge(t, env, key, address)
	env.clock.Advance(5*time.Minute + time.Second)
	if _, err := env.engine.Web3Verify(context.Background(), address, sig, msg); !errors.Is(err, ErrInvalidChallenge) {
		t.Fatalf("expected invalid challenge, got %v", err)
	}
}
