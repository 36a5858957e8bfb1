package authcore

import (
	"strings"
	"testing"
)

func TestSecurityReportReflectsEngine(t *testing.T) {
	env := newTestEngine(t, nil)

	r := env.engine.SecurityReport()
	if r.SigningAlgorithm != "hs256" {
		t.Fatalf("SigningAlgorithm = %q", r.SigningAlgorithm)
	}
	if r.FastTier != "memory" {
		t.Fatalf("FastTier = %q, want memory", r.FastTier)
	}
	if len(r.RateLimitedEndpoints) != 9 || len(r.UnlimitedEndpoints) != 0 {
		t.Fatalf("limited=%v unlimited=%v", r.RateLimitedEndpoints, r.UnlimitedEndpoints)
	}
	if r.Password.BcryptCost != 4 || r.LockoutThreshold != 5 {
		t.Fatalf("password=%+v lockout=%d", r.Password, r.LockoutThreshold)
	}
	warnings := strings.Join(r.Warnings, "\n")
	for _, want := range []string{"bcrypt cost below 10", "in-process fast tier", "audit events disabled"} {
		if !strings.Contains(warnings, want) {
			t.Fatalf("missing warning %q in:\n%s", want, warnings)
		}
	}

	var nilEngine *Engine
	if got := nilEngine.SecurityReport(); got.SigningAlgorithm != "" {
		t.Fatalf("nil engine report = %+v", got)
	}
}
