package httpapi

import (
	"net/http"
	"time"

	authcore "github.com/MrEthical07/authcore"
	authmw "github.com/MrEthical07/authcore/middleware"
)

type loginRequest struct {
	// Identifier is a username, email or wallet address. "username" and
	// "email" are accepted as aliases.
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type verifyMFARequest struct {
	TempToken string `json:"temp_token"`
	Method    string `json:"method"`
	Code      string `json:"code"`
}

type tempTokenRequest struct {
	TempToken string `json:"temp_token"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

// loginResponse is shared by every route that can end in a session.
type loginResponse struct {
	Token            string             `json:"token,omitempty"`
	ExpiresAt        *time.Time         `json:"expires_at,omitempty"`
	RefreshToken     string             `json:"refresh_token,omitempty"`
	RefreshExpiresAt *time.Time         `json:"refresh_expires_at,omitempty"`
	SessionID        string             `json:"session_id,omitempty"`
	User             *authcore.UserView `json:"user,omitempty"`

	RequiresMFA   bool       `json:"requires_mfa"`
	MFAMethods    []string   `json:"mfa_methods,omitempty"`
	TempToken     string     `json:"temp_token,omitempty"`
	TempExpiresAt *time.Time `json:"temp_expires_at,omitempty"`

	SetupRequired    bool     `json:"setup_required,omitempty"`
	Secret           string   `json:"secret,omitempty"`
	QRCodeURL        string   `json:"qr_code_url,omitempty"`
	RecoveryCodes    []string `json:"recovery_codes,omitempty"`
	UsedRecoveryCode bool     `json:"used_recovery_code,omitempty"`
}

func newLoginResponse(res *authcore.LoginResult) loginResponse {
	out := loginResponse{
		Token:            res.AccessToken,
		ExpiresAt:        timePtr(res.AccessExpiresAt),
		RefreshToken:     res.RefreshToken,
		RefreshExpiresAt: timePtr(res.RefreshExpiresAt),
		SessionID:        res.SessionID,
		User:             res.User,
		RequiresMFA:      res.RequiresMFA,
		MFAMethods:       res.MFAMethods,
		TempToken:        res.TempToken,
		TempExpiresAt:    timePtr(res.TempExpiresAt),
		RecoveryCodes:    res.RecoveryCodes,
		UsedRecoveryCode: res.UsedRecoveryKey,
	}
	if res.PendingTOTP != nil {
		out.SetupRequired = true
		out.Secret = res.PendingTOTP.Secret
		out.QRCodeURL = res.PendingTOTP.URI
	}
	return out
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decode(w, r, &body) {
		return
	}
	identifier := body.Identifier
	if identifier == "" {
		identifier = body.Username
	}
	if identifier == "" {
		identifier = body.Email
	}
	if identifier == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "identifier and password are required")
		return
	}

	res, err := a.engine.Login(r.Context(), identifier, body.Password)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoginResponse(res))
}

func (a *api) verifyMFA(w http.ResponseWriter, r *http.Request) {
	var body verifyMFARequest
	if !decode(w, r, &body) {
		return
	}
	if body.TempToken == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "temp_token is required")
		return
	}
	if body.Method == "" {
		body.Method = authcore.MFAMethodTOTP
	}

	res, err := a.engine.VerifyMFA(r.Context(), body.TempToken, body.Method, body.Code)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoginResponse(res))
}

func (a *api) sendMFAEmailCode(w http.ResponseWriter, r *http.Request) {
	var body tempTokenRequest
	if !decode(w, r, &body) {
		return
	}
	if err := a.engine.SendMFAEmailCode(r.Context(), body.TempToken); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "verification code sent")
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decode(w, r, &body) {
		return
	}
	if body.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}
	res, err := a.engine.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoginResponse(res))
}

func (a *api) logout(w http.ResponseWriter, r *http.Request) {
	token, _ := authmw.BearerToken(r)
	if err := a.engine.Logout(r.Context(), token); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "logged out successfully")
}

func (a *api) register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !decode(w, r, &body) {
		return
	}
	acct, err := a.engine.Register(r.Context(), authcore.RegisterRequest{
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		Message string             `json:"message"`
		User    *authcore.UserView `json:"user"`
	}{
		Message: "registration successful, verification email sent",
		User: &authcore.UserView{
			ID:            acct.ID,
			Username:      acct.Username,
			Email:         acct.Email,
			Role:          acct.Role,
			EmailVerified: acct.EmailVerified,
		},
	})
}

func (a *api) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var body verifyEmailRequest
	if !decode(w, r, &body) {
		return
	}
	if err := a.engine.VerifyEmail(r.Context(), body.Email, body.Code); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "email verified")
}

func (a *api) sendVerification(w http.ResponseWriter, r *http.Request) {
	var body emailRequest
	if !decode(w, r, &body) {
		return
	}
	if err := a.engine.ResendVerification(r.Context(), body.Email); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "if the address belongs to an unverified account, a code has been sent")
}

func (a *api) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var body emailRequest
	if !decode(w, r, &body) {
		return
	}
	if err := a.engine.RequestPasswordReset(r.Context(), body.Email); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "if the address is registered, a reset code has been sent")
}

func (a *api) resetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordRequest
	if !decode(w, r, &body) {
		return
	}
	if err := a.engine.ResetPassword(r.Context(), body.Email, body.Code, body.NewPassword); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "password updated, sign in again")
}
