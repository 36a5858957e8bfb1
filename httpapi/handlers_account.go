package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	authcore "github.com/MrEthical07/authcore"
)

type codeRequest struct {
	Code string `json:"code"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type web3ChallengeRequest struct {
	Address string `json:"address"`
}

type web3ProofRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
	Challenge string `json:"challenge"`
}

type sessionsResponse struct {
	Sessions            []authcore.SessionInfo `json:"sessions"`
	ActiveRefreshTokens int64                  `json:"active_refresh_tokens"`
}

// caller is set by the Guard on every protected route.
func caller(r *http.Request) *authcore.AuthResult {
	res, _ := authcore.ClaimsFromContext(r.Context())
	return res
}

func (a *api) me(w http.ResponseWriter, r *http.Request) {
	res := caller(r)
	writeJSON(w, http.StatusOK, struct {
		ID       string               `json:"id"`
		Username string               `json:"username"`
		Role     string               `json:"role"`
		Session  authcore.SessionInfo `json:"session"`
	}{res.Claims.AccountID, res.Claims.Username, res.Claims.Role, res.Session})
}

func (a *api) listSessions(w http.ResponseWriter, r *http.Request) {
	res := caller(r)
	sessions, err := a.engine.ListSessions(r.Context(), res.Claims.AccountID, res.Claims.SessionID)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	active, err := a.engine.ActiveRefreshTokens(r.Context(), res.Claims.AccountID)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: sessions, ActiveRefreshTokens: active})
}

func (a *api) revokeSession(w http.ResponseWriter, r *http.Request) {
	res := caller(r)
	if err := a.engine.RevokeSession(r.Context(), res.Claims.AccountID, chi.URLParam(r, "id")); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "session revoked")
}

func (a *api) logoutAll(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.LogoutAll(r.Context(), caller(r).Claims.AccountID); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "all sessions ended")
}

func (a *api) logoutOthers(w http.ResponseWriter, r *http.Request) {
	res := caller(r)
	if err := a.engine.LogoutOthers(r.Context(), res.Claims.AccountID, res.Claims.SessionID); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "other sessions ended")
}

func (a *api) setupTOTP(w http.ResponseWriter, r *http.Request) {
	setup, err := a.engine.SetupTOTP(r.Context(), caller(r).Claims.AccountID)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		SetupRequired bool   `json:"setup_required"`
		Secret        string `json:"secret"`
		QRCodeURL     string `json:"qr_code_url"`
		Message       string `json:"message"`
	}{true, setup.Secret, setup.URI, "scan the QR code with an authenticator app, then confirm with a 6-digit code"})
}

func (a *api) confirmTOTP(w http.ResponseWriter, r *http.Request) {
	var body codeRequest
	if !decode(w, r, &body) {
		return
	}
	codes, err := a.engine.ConfirmTOTP(r.Context(), caller(r).Claims.AccountID, body.Code)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Message       string   `json:"message"`
		RecoveryCodes []string `json:"recovery_codes"`
	}{"2fa enabled, store the recovery codes somewhere safe", codes})
}

func (a *api) disableTOTP(w http.ResponseWriter, r *http.Request) {
	var body codeRequest
	if !decode(w, r, &body) {
		return
	}
	if err := a.engine.DisableTOTP(r.Context(), caller(r).Claims.AccountID, body.Code); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "2fa disabled")
}

func (a *api) regenerateRecoveryCodes(w http.ResponseWriter, r *http.Request) {
	var body codeRequest
	if !decode(w, r, &body) {
		return
	}
	codes, err := a.engine.RegenerateRecoveryCodes(r.Context(), caller(r).Claims.AccountID, body.Code)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		RecoveryCodes []string `json:"recovery_codes"`
	}{codes})
}

func (a *api) web3Challenge(w http.ResponseWriter, r *http.Request) {
	var body web3ChallengeRequest
	if !decode(w, r, &body) {
		return
	}
	c, err := a.engine.Web3Challenge(r.Context(), body.Address)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *api) web3Verify(w http.ResponseWriter, r *http.Request) {
	a.web3Proof(w, r, a.engine.Web3Verify)
}

func (a *api) web3Login(w http.ResponseWriter, r *http.Request) {
	a.web3Proof(w, r, a.engine.Web3Login)
}

func (a *api) web3Proof(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, address, signature, challenge string) (*authcore.LoginResult, error)) {
	var body web3ProofRequest
	if !decode(w, r, &body) {
		return
	}
	if body.Address == "" || body.Signature == "" || body.Challenge == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "address, signature and challenge are required")
		return
	}
	res, err := run(r.Context(), body.Address, body.Signature, body.Challenge)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoginResponse(res))
}

func (a *api) setRole(w http.ResponseWriter, r *http.Request) {
	var body roleRequest
	if !decode(w, r, &body) {
		return
	}
	if err := a.engine.SetRole(r.Context(), caller(r).Claims, chi.URLParam(r, "id"), body.Role); err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) securityReport(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.SecurityReport())
}
