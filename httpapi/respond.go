package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"

	authcore "github.com/MrEthical07/authcore"
)

const maxJSONBodyBytes = 1 << 20

// errorBody is the shape of every non-2xx answer. Code is stable and meant
// for clients; Error is for humans.
type errorBody struct {
	Error             string `json:"error"`
	Code              string `json:"code"`
	RetryAfter        int64  `json:"retry_after,omitempty"`
	Locked            bool   `json:"locked,omitempty"`
	NeedsVerification bool   `json:"needs_verification,omitempty"`
	ShouldLogin       bool   `json:"should_login,omitempty"`
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageBody{Message: message})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: message, Code: code})
}

// decode reads a JSON body into dst. Unknown fields are rejected.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return false
	}
	return true
}

func setRetryAfter(w http.ResponseWriter, seconds int64) {
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
}

// writeEngineError maps an engine error to a status and reason code. Only
// errors the engine exports reach the body; anything else is reported to
// Sentry and answered generically.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var rl *authcore.RateLimitError
	if errors.As(err, &rl) {
		setRetryAfter(w, rl.RetrySeconds())
		writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error:      "too many requests, try again later",
			Code:       "rate_limited",
			RetryAfter: rl.RetrySeconds(),
		})
		return
	}
	var locked *authcore.LockedError
	if errors.As(err, &locked) {
		setRetryAfter(w, locked.RetrySeconds())
		writeJSON(w, http.StatusForbidden, errorBody{
			Error:      "account is temporarily locked due to too many failed login attempts",
			Code:       "account_locked",
			Locked:     true,
			RetryAfter: locked.RetrySeconds(),
		})
		return
	}

	switch {
	case errors.Is(err, authcore.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
	case errors.Is(err, authcore.ErrEmailNotVerified):
		writeJSON(w, http.StatusForbidden, errorBody{
			Error:             "email not verified, check your inbox",
			Code:              "email_not_verified",
			NeedsVerification: true,
		})
	case errors.Is(err, authcore.ErrAccountBanned):
		writeError(w, http.StatusForbidden, "account_banned", "account is suspended")
	case errors.Is(err, authcore.ErrAccountExists):
		writeError(w, http.StatusConflict, "account_exists", "username or email already registered")
	case errors.Is(err, authcore.ErrWalletRegistered):
		writeJSON(w, http.StatusConflict, errorBody{
			Error:       "wallet already registered, sign in instead",
			Code:        "wallet_registered",
			ShouldLogin: true,
		})
	case errors.Is(err, authcore.ErrWalletNotRegistered):
		writeError(w, http.StatusNotFound, "wallet_not_registered", "wallet not registered")

	case errors.Is(err, authcore.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "token_expired", "token expired")
	case errors.Is(err, authcore.ErrReuseDetected):
		writeError(w, http.StatusUnauthorized, "token_reused", "refresh token already used, sign in again")
	case errors.Is(err, authcore.ErrTokenRevoked):
		writeError(w, http.StatusUnauthorized, "token_revoked", "token revoked")
	case errors.Is(err, authcore.ErrTokenInvalid):
		writeError(w, http.StatusUnauthorized, "token_invalid", "invalid token")

	case errors.Is(err, authcore.ErrMFARequired):
		writeError(w, http.StatusUnauthorized, "mfa_required", "mfa required")
	case errors.Is(err, authcore.ErrInvalidMFACode):
		writeError(w, http.StatusUnauthorized, "invalid_mfa_code", "invalid authentication code")
	case errors.Is(err, authcore.ErrMFAChallengeExpired):
		writeError(w, http.StatusUnauthorized, "mfa_challenge_expired", "mfa challenge expired, sign in again")
	case errors.Is(err, authcore.ErrMFAAlreadyEnabled):
		writeError(w, http.StatusConflict, "mfa_already_enabled", "2fa is already enabled")
	case errors.Is(err, authcore.ErrMFANotConfigured):
		writeError(w, http.StatusBadRequest, "mfa_not_configured", "2fa is not set up")
	case errors.Is(err, authcore.ErrMFAMethodUnavailable):
		writeError(w, http.StatusBadRequest, "mfa_method_unavailable", "mfa method not available for this account")

	case errors.Is(err, authcore.ErrCodeExpired):
		writeError(w, http.StatusBadRequest, "code_expired", "code expired, request a new one")
	case errors.Is(err, authcore.ErrInvalidCode):
		writeError(w, http.StatusBadRequest, "invalid_code", "invalid or expired code")
	case errors.Is(err, authcore.ErrInvalidSignature):
		writeError(w, http.StatusUnauthorized, "invalid_signature", "invalid wallet signature")
	case errors.Is(err, authcore.ErrInvalidChallenge):
		writeError(w, http.StatusUnauthorized, "invalid_challenge", "invalid or expired challenge")
	case errors.Is(err, authcore.ErrInvalidAddress):
		writeError(w, http.StatusBadRequest, "invalid_address", "invalid wallet address")

	case errors.Is(err, authcore.ErrPasswordPolicy):
		// The wrapped detail names the rule that failed and nothing else.
		writeError(w, http.StatusBadRequest, "password_policy", err.Error())
	case errors.Is(err, authcore.ErrInvalidAccount):
		writeError(w, http.StatusBadRequest, "invalid_account", err.Error())
	case errors.Is(err, authcore.ErrInvalidRole):
		writeError(w, http.StatusBadRequest, "invalid_role", "unknown role")
	case errors.Is(err, authcore.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request")

	case errors.Is(err, authcore.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", "session not found")
	case errors.Is(err, authcore.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "account_not_found", "account not found")
	case errors.Is(err, authcore.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "permission_denied", "permission denied")

	case errors.Is(err, authcore.ErrUnavailable), errors.Is(err, authcore.ErrEngineNotReady):
		log.Printf("authcore: %s %s: %v", r.Method, r.URL.Path, err)
		setRetryAfter(w, 5)
		writeError(w, http.StatusServiceUnavailable, "unavailable", "authentication temporarily unavailable")

	default:
		captureError(r, err)
		writeError(w, http.StatusInternalServerError, "internal", "authentication failed")
	}
}

func captureError(r *http.Request, err error) {
	hub := sentry.GetHubFromContext(r.Context())
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("route", routePattern(r))
		scope.SetTag("method", r.Method)
		hub.CaptureException(err)
	})
	log.Printf("authcore: unexpected error on %s %s: %v", r.Method, r.URL.Path, err)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
