package audit

// Event types recorded by the engine.
const (
	EventLogin                    = "LOGIN"
	EventFailedLogin              = "FAILED_LOGIN"
	EventLogout                   = "LOGOUT"
	EventRegister                 = "REGISTER"
	EventEmailVerification        = "EMAIL_VERIFICATION"
	EventPasswordResetRequest     = "PASSWORD_RESET_REQUEST"
	EventPasswordReset            = "PASSWORD_RESET"
	EventAccountLockout           = "ACCOUNT_LOCKOUT"
	EventTokenBlacklist           = "TOKEN_BLACKLIST"
	EventRecoveryCodeUsed         = "RECOVERY_CODE_USED"
	EventRecoveryCodesRegenerated = "RECOVERY_CODES_REGENERATED"
	EventMFAChallenge             = "MFA_CHALLENGE"
	EventMFAEnabled               = "MFA_ENABLED"
	EventMFADisabled              = "MFA_DISABLED"
	EventMFAFailed                = "MFA_FAILED"
	EventRefreshReuseDetected     = "REFRESH_REUSE_DETECTED"
	EventSessionRevoked           = "SESSION_REVOKED"
	EventWeb3Register             = "WEB3_REGISTER"
	EventWeb3Login                = "WEB3_LOGIN"
	EventRateLimited              = "RATE_LIMITED"
	EventRoleChanged              = "ROLE_CHANGED"
)
