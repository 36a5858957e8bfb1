package security

import (
	"sort"
	"time"
)

// Recommended floors below which a setting is reported as a warning.
const (
	MinBcryptCost   = 10
	MinArgon2Memory = 64 * 1024
	MaxAccessTTL    = 24 * time.Hour
)

type PasswordReport struct {
	Algorithm   string `json:"algorithm"`
	BcryptCost  int    `json:"bcrypt_cost,omitempty"`
	Memory      uint32 `json:"argon2_memory_kib,omitempty"`
	Time        uint32 `json:"argon2_time,omitempty"`
	Parallelism uint8  `json:"argon2_parallelism,omitempty"`
	MinLength   int    `json:"min_length"`
}

type Report struct {
	SigningAlgorithm          string         `json:"signing_algorithm"`
	AccessTTL                 time.Duration  `json:"access_ttl"`
	RefreshTTL                time.Duration  `json:"refresh_ttl"`
	SessionWindow             time.Duration  `json:"session_window"`
	Password                  PasswordReport `json:"password"`
	LockoutThreshold          int            `json:"lockout_threshold"`
	LockoutCap                time.Duration  `json:"lockout_cap"`
	RateLimitedEndpoints      []string       `json:"rate_limited_endpoints"`
	UnlimitedEndpoints        []string       `json:"unlimited_endpoints,omitempty"`
	EmailVerificationRequired bool           `json:"email_verification_required"`
	FastTier                  string         `json:"fast_tier"`
	AuditEnabled              bool           `json:"audit_enabled"`
	ReaperEnabled             bool           `json:"reaper_enabled"`
	Warnings                  []string       `json:"warnings,omitempty"`
}

type ReportInput struct {
	SigningAlgorithm          string
	AccessTTL                 time.Duration
	RefreshTTL                time.Duration
	SessionWindow             time.Duration
	Password                  PasswordReport
	LockoutThreshold          int
	LockoutCap                time.Duration
	RateLimits                map[string]int
	EmailVerificationRequired bool
	FastTier                  string
	AuditEnabled              bool
	ReaperEnabled             bool
}

// BuildReport derives the report and its warnings from input. Endpoint
// lists are sorted so reports compare stably.
func BuildReport(input ReportInput) Report {
	r := Report{
		SigningAlgorithm:          input.SigningAlgorithm,
		AccessTTL:                 input.AccessTTL,
		RefreshTTL:                input.RefreshTTL,
		SessionWindow:             input.SessionWindow,
		Password:                  input.Password,
		LockoutThreshold:          input.LockoutThreshold,
		LockoutCap:                input.LockoutCap,
		EmailVerificationRequired: input.EmailVerificationRequired,
		FastTier:                  input.FastTier,
		AuditEnabled:              input.AuditEnabled,
		ReaperEnabled:             input.ReaperEnabled,
		RateLimitedEndpoints:      []string{},
	}
	for endpoint, max := range input.RateLimits {
		if max > 0 {
			r.RateLimitedEndpoints = append(r.RateLimitedEndpoints, endpoint)
		} else {
			r.UnlimitedEndpoints = append(r.UnlimitedEndpoints, endpoint)
		}
	}
	sort.Strings(r.RateLimitedEndpoints)
	sort.Strings(r.UnlimitedEndpoints)

	warn := func(msg string) { r.Warnings = append(r.Warnings, msg) }
	switch input.Password.Algorithm {
	case "bcrypt":
		if input.Password.BcryptCost < MinBcryptCost {
			warn("bcrypt cost below 10")
		}
	case "argon2id":
		if input.Password.Memory < MinArgon2Memory {
			warn("argon2id memory below 64 MiB")
		}
	}
	if input.AccessTTL > MaxAccessTTL {
		warn("access tokens live longer than 24h")
	}
	for _, endpoint := range r.UnlimitedEndpoints {
		warn("no rate limit on " + endpoint)
	}
	if input.FastTier != "redis" {
		warn("in-process fast tier: limits and blacklist are not shared between instances")
	}
	if !input.AuditEnabled {
		warn("audit events disabled")
	}
	if !input.ReaperEnabled {
		warn("reaper disabled: expired rows are kept until purged by hand")
	}
	return r
}
