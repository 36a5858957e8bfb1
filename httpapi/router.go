// Package httpapi serves an [authcore.Engine] over JSON/HTTP.
//
// Every non-2xx answer has the shape {"error": ..., "code": ...}; rate
// limits and locks add "retry_after" and a Retry-After header.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	authcore "github.com/MrEthical07/authcore"
	authmw "github.com/MrEthical07/authcore/middleware"
)

// Options configures [NewRouter]. The zero value serves the routes with
// panic recovery and nothing else.
type Options struct {
	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	// AccessLog writes one log line per request.
	AccessLog bool
	// Metrics records HTTP instruments when set.
	Metrics *Metrics
	// ThrottlePerSecond and ThrottleBurst size a per-IP token bucket in front
	// of all routes. Zero disables it.
	ThrottlePerSecond float64
	ThrottleBurst     int
}

type api struct {
	engine *authcore.Engine
}

// NewRouter returns the route table:
//
//	POST   /register                  POST /login               POST /verify-mfa
//	POST   /email/verify              POST /email/send-verification
//	POST   /email/send-mfa-code       POST /refresh
//	POST   /password/request-reset    POST /password/reset
//	POST   /web3/challenge            POST /web3/verify         POST /web3/login
//
// and, with a bearer token:
//
//	GET    /me                        POST /logout
//	GET    /sessions                  DELETE /sessions/{id}
//	POST   /sessions/logout-all       POST /sessions/logout-others
//	POST   /setup-2fa                 POST /verify-2fa          POST /disable-2fa
//	POST   /2fa/recovery-codes
//	PUT    /admin/accounts/{id}/role  GET /admin/security-report  (admin only)
func NewRouter(engine *authcore.Engine, opts Options) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if opts.TrustProxy {
		r.Use(chimw.RealIP)
	}
	if opts.AccessLog {
		r.Use(chimw.Logger)
	}
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Instrument)
	}
	r.Use(Recover)
	if opts.ThrottlePerSecond > 0 {
		burst := opts.ThrottleBurst
		if burst < 1 {
			burst = 1
		}
		r.Use(ThrottleByIP(opts.ThrottlePerSecond, burst, 10*time.Minute))
	}
	r.Use(authmw.ClientContext)

	a := &api{engine: engine}

	r.Post("/register", a.register)
	r.Post("/login", a.login)
	r.Post("/verify-mfa", a.verifyMFA)
	r.Post("/refresh", a.refresh)

	r.Route("/email", func(r chi.Router) {
		r.Post("/verify", a.verifyEmail)
		r.Post("/send-verification", a.sendVerification)
		r.Post("/send-mfa-code", a.sendMFAEmailCode)
	})
	r.Route("/password", func(r chi.Router) {
		r.Post("/request-reset", a.requestPasswordReset)
		r.Post("/reset", a.resetPassword)
	})
	r.Route("/web3", func(r chi.Router) {
		r.Post("/challenge", a.web3Challenge)
		r.Post("/verify", a.web3Verify)
		r.Post("/login", a.web3Login)
	})

	r.Group(func(r chi.Router) {
		r.Use(authmw.Guard(engine))

		r.Get("/me", a.me)
		r.Post("/logout", a.logout)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", a.listSessions)
			r.Delete("/{id}", a.revokeSession)
			r.Post("/logout-all", a.logoutAll)
			r.Post("/logout-others", a.logoutOthers)
		})

		r.Post("/setup-2fa", a.setupTOTP)
		r.Post("/verify-2fa", a.confirmTOTP)
		r.Post("/disable-2fa", a.disableTOTP)
		r.Post("/2fa/recovery-codes", a.regenerateRecoveryCodes)

		r.Route("/admin", func(r chi.Router) {
			r.Use(authmw.RequireRole(authcore.RoleAdmin))
			r.Put("/accounts/{id}/role", a.setRole)
			r.Get("/security-report", a.securityReport)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	return r
}
