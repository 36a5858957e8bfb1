package mfa

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ" // "12345678901234567890"

func TestTOTPKnownVector(t *testing.T) {
	m := NewTOTP(Config{})
	// RFC 6238 appendix B, SHA1, truncated to six digits.
	code, err := m.Code(rfcSecret, time.Unix(59, 0))
	if err != nil {
		t.Fatalf("Code: %v", err)
	}
	if code != "287082" {
		t.Fatalf("expected 287082, got %s", code)
	}
}

func TestTOTPSkewWindow(t *testing.T) {
	m := NewTOTP(Config{})
	at := time.Unix(1_700_000_015, 0)
	code, err := m.Code(rfcSecret, at)
	if err != nil {
		t.Fatalf("Code: %v", err)
	}

	for _, offset := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		if _, ok, err := m.VerifyAt(rfcSecret, code, at.Add(offset)); err != nil || !ok {
			t.Fatalf("offset %v: expected accept, ok=%v err=%v", offset, ok, err)
		}
	}
	for _, offset := range []time.Duration{-90 * time.Second, 90 * time.Second} {
		if _, ok, _ := m.VerifyAt(rfcSecret, code, at.Add(offset)); ok {
			t.Fatalf("offset %v: expected reject", offset)
		}
	}
}

func TestTOTPVerifyReturnsStep(t *testing.T) {
	m := NewTOTP(Config{})
	at := time.Unix(1_700_000_015, 0)
	code, _ := m.Code(rfcSecret, at)
	step, ok, err := m.VerifyAt(rfcSecret, code, at.Add(30*time.Second))
	if err != nil || !ok {
		t.Fatalf("expected accept, ok=%v err=%v", ok, err)
	}
	if step != at.Unix()/30 {
		t.Fatalf("expected step %d, got %d", at.Unix()/30, step)
	}
}

func TestTOTPRejectsMalformedCodes(t *testing.T) {
	m := NewTOTP(Config{})
	for _, code := range []string{"", "12345", "1234567", "abcdef"} {
		if _, ok, err := m.VerifyAt(rfcSecret, code, time.Now()); ok || err != nil {
			t.Fatalf("code %q: ok=%v err=%v", code, ok, err)
		}
	}
	if _, _, err := m.VerifyAt("not base32!", "123456", time.Now()); !errors.Is(err, ErrInvalidSecret) {
		t.Fatalf("expected ErrInvalidSecret, got %v", err)
	}
}

func TestGenerateSetup(t *testing.T) {
	m := NewTOTP(Config{Issuer: "MyApp"})
	setup, err := m.Generate("alice")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(setup.Secret) != 32 || strings.Contains(setup.Secret, "=") {
		t.Fatalf("expected unpadded 20-byte base32 secret, got %q", setup.Secret)
	}
	for _, part := range []string{"otpauth://totp/MyApp:alice?", "secret=" + setup.Secret, "issuer=MyApp", "digits=6", "period=30", "algorithm=SHA1"} {
		if !strings.Contains(setup.URI, part) {
			t.Fatalf("uri %q missing %q", setup.URI, part)
		}
	}

	again, err := m.Provision("alice", setup.Secret)
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if again.Secret != setup.Secret {
		t.Fatalf("provision changed secret: %q vs %q", again.Secret, setup.Secret)
	}
	if _, err := m.Generate(" "); !errors.Is(err, ErrMissingAccount) {
		t.Fatalf("expected ErrMissingAccount, got %v", err)
	}
}

func TestStepTTL(t *testing.T) {
	if got := NewTOTP(Config{}).StepTTL(); got != 90*time.Second {
		t.Fatalf("expected 90s, got %v", got)
	}
}

func TestRecoveryCodes(t *testing.T) {
	codes, hashes, err := GenerateRecoveryCodes("acct-1", 0, 0)
	if err != nil {
		t.Fatalf("GenerateRecoveryCodes: %v", err)
	}
	if len(codes) != DefaultRecoveryCount || len(hashes) != DefaultRecoveryCount {
		t.Fatalf("expected %d codes, got %d/%d", DefaultRecoveryCount, len(codes), len(hashes))
	}
	seen := map[string]bool{}
	for _, c := range codes {
		if len(c) != DefaultRecoveryLength+1 || c[5] != '-' {
			t.Fatalf("unexpected code format %q", c)
		}
		if seen[c] {
			t.Fatalf("duplicate code %q", c)
		}
		seen[c] = true
	}

	idx := MatchRecoveryCode("acct-1", strings.ToLower(codes[3]), hashes)
	if idx != 3 {
		t.Fatalf("expected match at 3, got %d", idx)
	}
	if MatchRecoveryCode("acct-2", codes[3], hashes) != -1 {
		t.Fatal("code must not match for another account")
	}
	remaining := RemoveAt(hashes, idx)
	if len(remaining) != len(hashes)-1 || MatchRecoveryCode("acct-1", codes[3], remaining) != -1 {
		t.Fatal("consumed code should no longer match")
	}
	if MatchRecoveryCode("acct-1", "", hashes) != -1 {
		t.Fatal("empty code must not match")
	}
}
