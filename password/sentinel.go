package password

const (
	// SentinelWallet marks accounts created by wallet signature.
	SentinelWallet = "web3_auth"
	// SentinelOAuth marks accounts created through a delegated identity provider.
	SentinelOAuth = "google_oauth"
)

// Kind is the primary credential of an account.
type Kind string

const (
	KindPassword Kind = "password"
	KindWallet   Kind = "wallet"
	KindOAuth    Kind = "oauth"
)

// KindOf classifies a stored password column.
func KindOf(stored string) Kind {
	switch stored {
	case SentinelWallet:
		return KindWallet
	case SentinelOAuth:
		return KindOAuth
	default:
		return KindPassword
	}
}

// IsSentinel reports whether stored is a sentinel rather than a hash.
func IsSentinel(stored string) bool {
	return KindOf(stored) != KindPassword
}
