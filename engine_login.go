package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/mfa"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/revocation"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/web3"
)

// Login checks identifier (username, email or wallet address) and password.
// Accounts with MFA enabled get a challenge instead of tokens; finish those
// with [Engine.VerifyMFA].
//
// Failures are ErrInvalidCredentials, a *LockedError, a *RateLimitError,
// ErrAccountBanned or ErrEmailNotVerified.
func (e *Engine) Login(ctx context.Context, identifier, plain string) (*LoginResult, error) {
	res, err := flows.RunLogin(ctx, strings.TrimSpace(identifier), plain, e.loginDeps())
	if err != nil {
		return nil, err
	}
	return e.loginResult(res), nil
}

func (e *Engine) loginDeps() flows.LoginDeps {
	return flows.LoginDeps{
		Hooks:                    e.hooks(),
		Completion:               e.completion(),
		RequireEmailVerification: e.config.Accounts.RequireEmailVerification,
		FindAccount:              e.findFlowAccount(e.accounts.GetByLogin),
		ResetRate:                e.resetRate,
		CheckLockout:             e.checkLockout,
		RecordFailure:            e.recordFailure,
		ResetLockout:             e.lockout.Reset,
		Locked:                   e.lockedError,
		CheckPassword:            e.verifier.Check,
		CheckMissing:             func(plain string) { _ = e.verifier.CheckMissing(plain) },
		NeedsUpgrade:             e.verifier.NeedsUpgrade,
		HashPassword:             e.verifier.Hash,
		UpdatePassword:           e.accounts.UpdatePassword,
	}
}

// VerifyMFA finishes a challenged sign-in. method is "totp" or "email"; a
// TOTP code may also be a recovery code. An empty TOTP code on an account
// without MFA returns PendingTOTP for enrolment instead of tokens.
func (e *Engine) VerifyMFA(ctx context.Context, tempToken, method, code string) (*LoginResult, error) {
	res, err := flows.RunVerifyMFA(ctx, tempToken, strings.ToLower(strings.TrimSpace(method)), code, e.mfaDeps())
	if err != nil {
		return nil, err
	}
	return e.loginResult(res), nil
}

func (e *Engine) mfaDeps() flows.MFADeps {
	return flows.MFADeps{
		Hooks:             e.hooks(),
		Completion:        e.completion(),
		ValidateChallenge: e.challengeAccount,
		LoadAccount:       e.loadFlowAccount,
		CheckLockout:      e.checkLockout,
		Locked:            e.lockedError,
		NewSecret: func(acct flows.Account, secret string) (flows.Setup, error) {
			setup, err := e.provision(acct.Username, secret)
			return flows.Setup{Secret: setup.Secret, URI: setup.URI}, err
		},
		SavePendingSecret: func(ctx context.Context, accountID, secret string) error {
			return storeErr(e.accounts.SetMFA(ctx, accountID, false, secret, nil))
		},
		VerifyTOTP:   e.totp.Verify,
		MarkStepUsed: e.markStepUsed,
		ConsumeRecoveryCode: func(ctx context.Context, acct flows.Account, code string) (bool, error) {
			return e.consumeRecoveryCode(ctx, acct.ID, acct.RecoveryCodes, code)
		},
		EnableMFA: func(ctx context.Context, acct flows.Account) ([]string, error) {
			return e.enableMFA(ctx, acct.ID, acct.MFASecret)
		},
		ConsumeEmailCode: e.consumeMFAEmailCode,
	}
}

// challengeAccount maps a temp token to its account id.
func (e *Engine) challengeAccount(token string) (string, error) {
	claims, err := e.jwt.ValidateChallenge(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return "", ErrMFAChallengeExpired
		}
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}

func (e *Engine) provision(username, secret string) (mfa.Setup, error) {
	if secret != "" {
		return e.totp.Provision(username, secret)
	}
	return e.totp.Generate(username)
}

func (e *Engine) markStepUsed(ctx context.Context, accountID string, step int64) (bool, error) {
	return e.replay.MarkUsed(ctx, accountID, step, e.totp.StepTTL())
}

// consumeRecoveryCode spends code if it matches one of hashes. The store makes
// the removal atomic, so a code works once even under concurrent use.
func (e *Engine) consumeRecoveryCode(ctx context.Context, accountID string, hashes []string, code string) (bool, error) {
	i := mfa.MatchRecoveryCode(accountID, code, hashes)
	if i < 0 {
		return false, nil
	}
	ok, err := e.accounts.ConsumeRecoveryCode(ctx, accountID, hashes[i])
	if err != nil {
		return false, storeErr(err)
	}
	return ok, nil
}

// enableMFA switches MFA on for a verified secret and returns fresh recovery
// codes in plain text. Only their hashes are stored.
func (e *Engine) enableMFA(ctx context.Context, accountID, secret string) ([]string, error) {
	codes, hashes, err := mfa.GenerateRecoveryCodes(accountID, e.config.MFA.RecoveryCodeCount, e.config.MFA.RecoveryCodeLength)
	if err != nil {
		return nil, err
	}
	if err := e.accounts.SetMFA(ctx, accountID, true, secret, hashes); err != nil {
		return nil, storeErr(err)
	}
	return codes, nil
}

func (e *Engine) consumeMFAEmailCode(ctx context.Context, accountID, code string) error {
	subject, err := e.mfaCodes.Consume(ctx, accountID, strings.TrimSpace(code))
	switch {
	case err == nil && subject == accountID:
		return nil
	case err == nil:
		return ErrInvalidMFACode
	case errors.Is(err, stores.ErrCodeExpired):
		return ErrMFAChallengeExpired
	case errors.Is(err, stores.ErrCodeUnavailable):
		return ErrUnavailable
	}
	return ErrInvalidMFACode
}

// SendMFAEmailCode mails a fresh code for the account behind tempToken.
func (e *Engine) SendMFAEmailCode(ctx context.Context, tempToken string) error {
	if err := e.limit(ctx, EndpointEmailCode); err != nil {
		return err
	}
	accountID, err := e.challengeAccount(tempToken)
	if err != nil {
		return err
	}
	acct, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if acct.Email == "" {
		return ErrMFAMethodUnavailable
	}
	if err := e.sendMFAEmail(ctx, e.flowAccount(acct)); err != nil {
		return fmt.Errorf("authcore: send mfa code: %w", err)
	}
	return nil
}

// Refresh exchanges a refresh token for a new access and refresh token pair.
// Presenting a token that was already exchanged returns ErrReuseDetected and
// ends every session of its family.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	res, err := flows.RunRefresh(ctx, strings.TrimSpace(refreshToken), flows.RefreshDeps{
		Hooks:       e.hooks(),
		Exchange:    e.refresh.Exchange,
		LoadAccount: e.loadFlowAccount,
		IssueAccess: func(acct flows.Account, sessionID string) (string, time.Time, error) {
			return e.jwt.IssueAccess(subjectOf(acct), sessionID)
		},
		RebindSession: func(ctx context.Context, sessionID, access string) error {
			return e.sessions.Rebind(ctx, sessionID, revocation.TokenHash(access))
		},
		RevokeSession: e.refresh.RevokeSession,
		EndSessions:   e.endFamilySessions,
	})
	if err != nil {
		return nil, err
	}
	return e.loginResult(res), nil
}

func (e *Engine) endFamilySessions(ctx context.Context, accountID string, sessionIDs []string) error {
	var (
		ended []session.Session
		errs  []error
	)
	for _, id := range sessionIDs {
		s, err := e.sessions.Invalidate(ctx, accountID, id)
		if err != nil {
			if !errors.Is(err, session.ErrNotFound) {
				errs = append(errs, err)
			}
			continue
		}
		ended = append(ended, s)
	}
	e.endSessions(ctx, accountID, "refresh_reuse", ended)
	return errors.Join(errs...)
}

// Logout ends the session of bearer and blacklists it until it expires. An
// expired but correctly signed bearer is accepted.
func (e *Engine) Logout(ctx context.Context, bearer string) error {
	return flows.RunLogout(ctx, strings.TrimSpace(bearer), flows.LogoutDeps{
		Hooks:       e.hooks(),
		ParseAccess: e.jwt.ValidateAccessIgnoringExpiry,
		Blacklist: func(ctx context.Context, token, accountID string, until time.Time) error {
			return e.revocation.Blacklist(ctx, token, accountID, "logout", until)
		},
		InvalidateByToken: func(ctx context.Context, token string) (session.Session, error) {
			return e.sessions.InvalidateByToken(ctx, revocation.TokenHash(token))
		},
		RevokeRefresh: e.refresh.RevokeSession,
	})
}

// Web3Challenge issues a message for address to sign.
func (e *Engine) Web3Challenge(ctx context.Context, address string) (*Web3Challenge, error) {
	if err := e.limit(ctx, EndpointWeb3Challenge); err != nil {
		return nil, err
	}
	c, err := e.web3.Issue(ctx, address)
	if err != nil {
		return nil, web3Err(err)
	}
	e.metricInc(MetricWeb3ChallengeIssued)
	return &Web3Challenge{
		Address:   c.Address,
		Challenge: c.Message,
		Nonce:     c.Nonce,
		ExpiresAt: c.ExpiresAt,
	}, nil
}

// Web3Verify registers the wallet that signed challenge and signs it in. An
// already registered wallet fails with ErrWalletRegistered; use
// [Engine.Web3Login] for it.
func (e *Engine) Web3Verify(ctx context.Context, address, signature, challenge string) (*LoginResult, error) {
	return e.runWeb3(ctx, address, signature, challenge, true)
}

// Web3Login signs in a registered wallet.
func (e *Engine) Web3Login(ctx context.Context, address, signature, challenge string) (*LoginResult, error) {
	return e.runWeb3(ctx, address, signature, challenge, false)
}

func (e *Engine) runWeb3(ctx context.Context, address, signature, challenge string, register bool) (*LoginResult, error) {
	res, err := flows.RunWeb3(ctx, address, signature, challenge, flows.Web3Deps{
		Hooks:      e.hooks(),
		Completion: e.completion(),
		VerifyProof: func(ctx context.Context, address, signature, challenge string) (string, error) {
			addr, err := e.web3.Verify(ctx, address, signature, challenge)
			return addr, web3Err(err)
		},
		FindByWallet:  e.findFlowAccount(e.accounts.GetByWallet),
		CreateWallet:  e.createWalletAccount,
		AllowRegister: register,
	})
	if err != nil {
		return nil, err
	}
	return e.loginResult(res), nil
}

// walletUsernameAttempts bounds the names tried for a new wallet account.
const walletUsernameAttempts = 5

// createWalletAccount reports ErrWalletRegistered only when the address itself
// is taken. A taken username moves on to the next candidate name.
func (e *Engine) createWalletAccount(ctx context.Context, address string) (flows.Account, error) {
	now := e.now()
	acct := &Account{
		ID:            newAccountID(),
		PasswordHash:  password.SentinelWallet,
		Role:          e.config.Accounts.DefaultRole,
		WalletAddress: address,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for attempt := 0; attempt < walletUsernameAttempts; attempt++ {
		acct.Username = web3.Username(address, attempt)
		err := e.accounts.Create(ctx, acct)
		if err == nil {
			return e.flowAccount(acct), nil
		}
		if !errors.Is(err, ErrAccountExists) {
			return flows.Account{}, storeErr(err)
		}
		if _, err := e.accounts.GetByWallet(ctx, address); err == nil {
			return flows.Account{}, ErrWalletRegistered
		} else if !errors.Is(err, ErrAccountNotFound) {
			return flows.Account{}, storeErr(err)
		}
		e.warn("authcore: username %s taken, retrying wallet account for %s", acct.Username, address)
	}
	return flows.Account{}, fmt.Errorf("%w: no free username for wallet %s", ErrUnavailable, address)
}

func web3Err(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, web3.ErrInvalidAddress):
		return ErrInvalidAddress
	case errors.Is(err, web3.ErrInvalidSignature), errors.Is(err, web3.ErrAddressMismatch):
		return ErrInvalidSignature
	case errors.Is(err, web3.ErrInvalidChallenge):
		return ErrInvalidChallenge
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
