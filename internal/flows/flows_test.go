package flows

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrEthical07/authcore/internal/metrics"
)

var testErrors = Errors{
	EngineNotReady:       errors.New("not ready"),
	InvalidCredentials:   errors.New("invalid credentials"),
	AccountBanned:        errors.New("banned"),
	EmailNotVerified:     errors.New("email not verified"),
	InvalidMFACode:       errors.New("invalid mfa code"),
	MFAChallengeExpired:  errors.New("challenge expired"),
	MFAAlreadyEnabled:    errors.New("mfa already enabled"),
	MFANotConfigured:     errors.New("mfa not configured"),
	MFAMethodUnavailable: errors.New("method unavailable"),
	TokenInvalid:         errors.New("token invalid"),
	TokenExpired:         errors.New("token expired"),
	TokenRevoked:         errors.New("token revoked"),
	ReuseDetected:        errors.New("reuse detected"),
	WalletRegistered:     errors.New("wallet registered"),
	WalletNotRegistered:  errors.New("wallet not registered"),
	Unavailable:          errors.New("unavailable"),
}

type auditRecord struct {
	eventType string
	status    string
	userID    string
	meta      map[string]string
}

// recorder collects what a flow reports through its hooks.
type recorder struct {
	mu       sync.Mutex
	counters map[metrics.MetricID]int
	events   []auditRecord
	warnings int
}

func newRecorder() *recorder {
	return &recorder{counters: make(map[metrics.MetricID]int)}
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		ClientIP: func(context.Context) string { return "10.0.0.1" },
		MetricInc: func(id metrics.MetricID) {
			r.mu.Lock()
			r.counters[id]++
			r.mu.Unlock()
		},
		EmitAudit: func(_ context.Context, eventType, status, userID, _ string, _ error, meta func() map[string]string) {
			rec := auditRecord{eventType: eventType, status: status, userID: userID}
			if meta != nil {
				rec.meta = meta()
			}
			r.mu.Lock()
			r.events = append(r.events, rec)
			r.mu.Unlock()
		},
		Warn: func(string, ...any) {
			r.mu.Lock()
			r.warnings++
			r.mu.Unlock()
		},
		Now:    func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
		Errors: testErrors,
	}
}

func (r *recorder) count(id metrics.MetricID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[id]
}

func (r *recorder) has(eventType, status string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.eventType == eventType && e.status == status {
			return true
		}
	}
	return false
}

// sessionIssuer is a Completion that records which accounts got sessions.
type sessionIssuer struct {
	sessions   []string
	challenges []string
	mailed     []string
	mailErr    error
}

func (s *sessionIssuer) completion() Completion {
	return Completion{
		IssueChallenge: func(_ context.Context, acct Account) (string, time.Time, error) {
			s.challenges = append(s.challenges, acct.ID)
			return "temp-" + acct.ID, time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC), nil
		},
		SendMFAEmail: func(_ context.Context, acct Account) error {
			s.mailed = append(s.mailed, acct.Email)
			return s.mailErr
		},
		IssueSession: func(_ context.Context, acct Account) (Tokens, error) {
			s.sessions = append(s.sessions, acct.ID)
			return Tokens{AccessToken: "access-" + acct.ID, RefreshToken: "refresh-" + acct.ID, SessionID: "sid-1"}, nil
		},
	}
}
