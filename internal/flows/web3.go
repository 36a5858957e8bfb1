package flows

import (
	"context"

	"github.com/MrEthical07/authcore/internal/metrics"
)

// Web3Deps captures wallet sign-in dependencies.
type Web3Deps struct {
	Hooks
	Completion

	// VerifyProof consumes the challenge and recovers the signer. It returns
	// the normalized address or a host error.
	VerifyProof   func(ctx context.Context, address, signature, challenge string) (string, error)
	FindByWallet  func(ctx context.Context, address string) (Account, bool, error)
	CreateWallet  func(ctx context.Context, address string) (Account, error)
	AllowRegister bool
}

// RunWeb3 proves wallet ownership and then registers (register mode) or
// signs in (login mode). A known wallet in register mode fails with
// Errors.WalletRegistered so the caller can switch to login.
func RunWeb3(ctx context.Context, address, signature, challenge string, deps Web3Deps) (*Result, error) {
	deps.Hooks.fill()
	h := deps.Hooks
	if deps.VerifyProof == nil || deps.FindByWallet == nil {
		return nil, h.Errors.EngineNotReady
	}

	if err := checkRate(ctx, h, endpointWeb3Verify, h.ClientIP(ctx), ""); err != nil {
		return nil, err
	}

	eventType := auditWeb3Login
	if deps.AllowRegister {
		eventType = auditWeb3Register
	}
	fail := func(userID string, err error, reason string) (*Result, error) {
		h.MetricInc(metrics.MetricWeb3Failure)
		h.EmitAudit(ctx, eventType, statusFailed, userID, "", err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return nil, err
	}

	addr, err := deps.VerifyProof(ctx, address, signature, challenge)
	if err != nil {
		return fail("", err, "proof")
	}

	acct, found, err := deps.FindByWallet(ctx, addr)
	if err != nil {
		h.Warn("authcore: wallet lookup failed: %v", err)
		return nil, h.Errors.Unavailable
	}

	switch {
	case deps.AllowRegister && found:
		return nil, h.Errors.WalletRegistered
	case deps.AllowRegister:
		if deps.CreateWallet == nil {
			return nil, h.Errors.EngineNotReady
		}
		acct, err = deps.CreateWallet(ctx, addr)
		if err != nil {
			return nil, err
		}
		h.MetricInc(metrics.MetricWeb3Register)
	case !found:
		return fail("", h.Errors.WalletNotRegistered, "unknown_wallet")
	}

	if acct.Banned {
		h.MetricInc(metrics.MetricAccountBanned)
		return fail(acct.ID, h.Errors.AccountBanned, "banned")
	}

	res, err := complete(ctx, h, deps.Completion, acct, eventType, "web3")
	if err != nil {
		return nil, err
	}
	if !res.RequiresMFA {
		h.MetricInc(metrics.MetricWeb3Login)
	}
	return res, nil
}
