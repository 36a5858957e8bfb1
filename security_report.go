package authcore

import (
	"github.com/MrEthical07/authcore/internal/security"
	"github.com/MrEthical07/authcore/password"
)

// SecurityReport summarises the engine's effective security posture.
type SecurityReport = security.Report

// SecurityReport reports the configuration the engine runs with and flags
// weak settings. It reads no store.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	cfg := e.config
	pw := security.PasswordReport{
		Algorithm: string(cfg.Password.Algorithm),
		MinLength: cfg.Password.MinLength,
	}
	if cfg.Password.Algorithm == password.AlgorithmArgon2 {
		pw.Memory = cfg.Password.Argon2.Memory
		pw.Time = cfg.Password.Argon2.Time
		pw.Parallelism = cfg.Password.Argon2.Parallelism
	} else {
		pw.BcryptCost = cfg.Password.BcryptCost
	}

	limits := make(map[string]int)
	for _, endpoint := range []string{
		EndpointLogin, EndpointVerifyMFA, EndpointRegister, EndpointPasswordReset,
		EndpointWeb3Challenge, EndpointWeb3Verify, EndpointRefresh,
		EndpointEmailCode, EndpointEmailVerify,
	} {
		limits[endpoint] = cfg.RateLimits.policy(endpoint).Max
	}

	return security.BuildReport(security.ReportInput{
		SigningAlgorithm:          cfg.JWT.SigningMethod,
		AccessTTL:                 cfg.JWT.AccessTTL,
		RefreshTTL:                cfg.Refresh.TTL,
		SessionWindow:             cfg.Session.Window,
		Password:                  pw,
		LockoutThreshold:          cfg.Lockout.Threshold,
		LockoutCap:                cfg.Lockout.Cap,
		RateLimits:                limits,
		EmailVerificationRequired: cfg.Accounts.RequireEmailVerification,
		FastTier:                  e.fastTier,
		AuditEnabled:              cfg.Audit.Enabled,
		ReaperEnabled:             cfg.Reaper.Enabled,
	})
}
