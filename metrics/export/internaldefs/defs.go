package internaldefs

import (
	authcore "github.com/MrEthical07/authcore"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for export.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Logins that issued a session."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Logins rejected for bad credentials or account state."},
	{ID: authcore.MetricLoginRateLimited, Name: "authcore_login_rate_limited_total", Help: "Logins rejected by the per-client rate limit."},
	{ID: authcore.MetricLoginLocked, Name: "authcore_login_locked_total", Help: "Logins rejected because the account was locked."},
	{ID: authcore.MetricAccountLocked, Name: "authcore_account_locked_total", Help: "Accounts that reached the failure threshold."},
	{ID: authcore.MetricAccountBanned, Name: "authcore_account_banned_total", Help: "Logins rejected because of an active ban."},
	{ID: authcore.MetricMFAChallengeIssued, Name: "authcore_mfa_challenge_issued_total", Help: "MFA challenges handed out."},
	{ID: authcore.MetricMFASuccess, Name: "authcore_mfa_success_total", Help: "Successful MFA verifications."},
	{ID: authcore.MetricMFAFailure, Name: "authcore_mfa_failure_total", Help: "Failed MFA verifications."},
	{ID: authcore.MetricTOTPReplay, Name: "authcore_totp_replay_total", Help: "TOTP codes rejected as replays."},
	{ID: authcore.MetricRecoveryCodeUsed, Name: "authcore_recovery_code_used_total", Help: "Recovery codes consumed."},
	{ID: authcore.MetricRecoveryCodesRegenerated, Name: "authcore_recovery_codes_regenerated_total", Help: "Recovery code sets replaced."},
	{ID: authcore.MetricMFAEnabled, Name: "authcore_mfa_enabled_total", Help: "Accounts that enabled MFA."},
	{ID: authcore.MetricMFADisabled, Name: "authcore_mfa_disabled_total", Help: "Accounts that disabled MFA."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Refresh tokens rotated."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Refresh attempts rejected."},
	{ID: authcore.MetricRefreshReuseDetected, Name: "authcore_refresh_reuse_detected_total", Help: "Rotated refresh tokens presented again."},
	{ID: authcore.MetricAuthenticateSuccess, Name: "authcore_authenticate_success_total", Help: "Bearer tokens accepted."},
	{ID: authcore.MetricAuthenticateFailure, Name: "authcore_authenticate_failure_total", Help: "Bearer tokens rejected."},
	{ID: authcore.MetricTokenRevokedHit, Name: "authcore_token_revoked_hit_total", Help: "Bearer tokens found on the blacklist."},
	{ID: authcore.MetricTokenBlacklisted, Name: "authcore_token_blacklisted_total", Help: "Bearer tokens added to the blacklist."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Sessions created."},
	{ID: authcore.MetricSessionInvalidated, Name: "authcore_session_invalidated_total", Help: "Sessions ended before expiry."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Single-session logouts."},
	{ID: authcore.MetricLogoutAll, Name: "authcore_logout_all_total", Help: "Logout-all and logout-others operations."},
	{ID: authcore.MetricRegisterSuccess, Name: "authcore_register_success_total", Help: "Accounts registered."},
	{ID: authcore.MetricRegisterDuplicate, Name: "authcore_register_duplicate_total", Help: "Registrations rejected as duplicates."},
	{ID: authcore.MetricEmailVerified, Name: "authcore_email_verified_total", Help: "Email addresses verified."},
	{ID: authcore.MetricPasswordResetRequest, Name: "authcore_password_reset_request_total", Help: "Password reset codes requested."},
	{ID: authcore.MetricPasswordResetSuccess, Name: "authcore_password_reset_success_total", Help: "Passwords reset."},
	{ID: authcore.MetricWeb3ChallengeIssued, Name: "authcore_web3_challenge_issued_total", Help: "Wallet challenges issued."},
	{ID: authcore.MetricWeb3Register, Name: "authcore_web3_register_total", Help: "Accounts registered by wallet."},
	{ID: authcore.MetricWeb3Login, Name: "authcore_web3_login_total", Help: "Wallet logins."},
	{ID: authcore.MetricWeb3Failure, Name: "authcore_web3_failure_total", Help: "Wallet proofs rejected."},
	{ID: authcore.MetricRateLimitHit, Name: "authcore_rate_limit_hit_total", Help: "Requests denied by any endpoint rate limit."},
	{ID: authcore.MetricStoreFailOpen, Name: "authcore_store_fail_open_total", Help: "Store errors answered by allowing the request."},
	{ID: authcore.MetricStoreFailClosed, Name: "authcore_store_fail_closed_total", Help: "Store errors answered by denying the request."},
	{ID: authcore.MetricReaperRemoved, Name: "authcore_reaper_removed_total", Help: "Expired rows purged by the reaper."},
	{ID: authcore.MetricReaperFailure, Name: "authcore_reaper_failure_total", Help: "Reaper tasks that failed."},
}

// HistogramDefs lists every latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricAuthenticateLatency, Name: "authcore_authenticate_latency_seconds", Help: "Engine.Authenticate latency."},
}

// HistogramBounds are the upper bounds in seconds of the finite buckets. The
// engine keeps one more open-ended bucket.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundLabels are the "le" values of every bucket, the open one
// included.
var HistogramBoundLabels = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
