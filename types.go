package authcore

import (
	"context"
	"time"
)

// Roles known to the engine. Config.Accounts.Roles may add more.
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// MFA methods offered after a password or wallet proof.
const (
	MFAMethodTOTP  = "totp"
	MFAMethodEmail = "email"
)

// Account is the stored identity. PasswordHash holds a sentinel for wallet and
// OAuth accounts. MFASecret is set before MFAEnabled while setup is pending.
type Account struct {
	ID            string
	Username      string
	Email         string
	PasswordHash  string
	Role          string
	WalletAddress string
	EmailVerified bool
	MFAEnabled    bool
	MFASecret     string
	// RecoveryCodes holds hashes, never the codes handed to the user.
	RecoveryCodes []string
	Banned        bool
	BannedUntil   *time.Time
	LastLogin     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// BannedAt reports whether a ban is in force at now. A ban without an end
// time is permanent.
func (a *Account) BannedAt(now time.Time) bool {
	if a == nil {
		return false
	}
	if a.BannedUntil != nil {
		return now.Before(*a.BannedUntil)
	}
	return a.Banned
}

// AccountStore persists accounts. Lookups of unknown accounts return
// ErrAccountNotFound; Create returns ErrAccountExists for a taken username,
// email or wallet address.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*Account, error)
	// GetByLogin matches username, email or wallet address.
	GetByLogin(ctx context.Context, identifier string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByWallet(ctx context.Context, address string) (*Account, error)
	Create(ctx context.Context, account *Account) error
	UpdatePassword(ctx context.Context, id, hash string) error
	MarkEmailVerified(ctx context.Context, id string) error
	// SetMFA replaces the MFA columns in one write.
	SetMFA(ctx context.Context, id string, enabled bool, secret string, recoveryCodes []string) error
	// ConsumeRecoveryCode removes codeHash if present and reports whether it
	// was. Two concurrent calls with the same hash must not both succeed.
	ConsumeRecoveryCode(ctx context.Context, id, codeHash string) (bool, error)
	SetRole(ctx context.Context, id, role string) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	// DeleteUnverified removes password accounts never verified and created
	// before the cutoff.
	DeleteUnverified(ctx context.Context, before time.Time) (int64, error)
}

// Mail kinds sent through a [Mailer].
const (
	MailVerification  = "email_verification"
	MailPasswordReset = "password_reset"
	MailMFACode       = "mfa_code"
)

// Mail is one outbound one-time code.
type Mail struct {
	To        string
	Username  string
	Kind      string
	Code      string
	ExpiresIn time.Duration
}

// Mailer delivers codes. Transport is out of scope for the engine.
type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}

// MailerFunc adapts a function to [Mailer].
type MailerFunc func(ctx context.Context, mail Mail) error

func (f MailerFunc) Send(ctx context.Context, mail Mail) error {
	return f(ctx, mail)
}

type noopMailer struct{}

func (noopMailer) Send(context.Context, Mail) error { return nil }

// UserView is the account as shown to its owner.
type UserView struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email,omitempty"`
	Role          string `json:"role"`
	WalletAddress string `json:"wallet_address,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	MFAEnabled    bool   `json:"totp_enabled"`
}

func viewOf(a *Account) *UserView {
	if a == nil {
		return nil
	}
	return &UserView{
		ID:            a.ID,
		Username:      a.Username,
		Email:         a.Email,
		Role:          a.Role,
		WalletAddress: a.WalletAddress,
		EmailVerified: a.EmailVerified,
		MFAEnabled:    a.MFAEnabled,
	}
}

// LoginResult is the outcome of every flow that can end in a session. When
// RequiresMFA is set only TempToken and MFAMethods are filled.
type LoginResult struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	SessionID        string
	User             *UserView

	RequiresMFA     bool
	MFAMethods      []string
	TempToken       string
	TempExpiresAt   time.Time
	RecoveryCodes   []string
	PendingTOTP     *TOTPSetup
	UsedRecoveryKey bool
}

// Claims is the verified content of a bearer token.
type Claims struct {
	AccountID string
	Username  string
	Role      string
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// AuthResult is returned by [Engine.Authenticate].
type AuthResult struct {
	Claims  Claims
	Session SessionInfo
}

// SessionInfo describes one logged-in device.
type SessionInfo struct {
	ID           string    `json:"id"`
	DeviceName   string    `json:"device_name"`
	IP           string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
	Current      bool      `json:"is_current"`
}

// TOTPSetup is handed out when an authenticator app is enrolled.
type TOTPSetup struct {
	Secret string `json:"secret"`
	URI    string `json:"qr_code_url"`
}

// Web3Challenge is a message for a wallet to sign.
type Web3Challenge struct {
	Address   string    `json:"address"`
	Challenge string    `json:"challenge"`
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RegisterRequest is the input of [Engine.Register].
type RegisterRequest struct {
	Username string
	Email    string
	Password string
}
