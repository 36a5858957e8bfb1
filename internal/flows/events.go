package flows

import "github.com/MrEthical07/authcore/internal/audit"

const (
	auditLogin            = audit.EventLogin
	auditFailedLogin      = audit.EventFailedLogin
	auditLogout           = audit.EventLogout
	auditAccountLockout   = audit.EventAccountLockout
	auditTokenBlacklist   = audit.EventTokenBlacklist
	auditRecoveryCodeUsed = audit.EventRecoveryCodeUsed
	auditMFAChallenge     = audit.EventMFAChallenge
	auditMFAEnabled       = audit.EventMFAEnabled
	auditMFAFailed        = audit.EventMFAFailed
	auditRefreshReuse     = audit.EventRefreshReuseDetected
	auditWeb3Register     = audit.EventWeb3Register
	auditWeb3Login        = audit.EventWeb3Login
	auditRateLimited      = audit.EventRateLimited

	statusSuccess = audit.StatusSuccess
	statusFailed  = audit.StatusFailed
	statusBlocked = audit.StatusBlocked
)

// Rate-limit endpoint names. They match the host's configured endpoints.
const (
	endpointLogin      = "login"
	endpointVerifyMFA  = "verify_mfa"
	endpointWeb3Verify = "web3_verify"
	endpointRefresh    = "refresh"
)
