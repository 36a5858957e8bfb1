package authcore

import (
	"time"

	internalmetrics "github.com/MrEthical07/authcore/internal/metrics"
)

// MetricID identifies a counter, or the Authenticate latency histogram.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess             = internalmetrics.MetricLoginSuccess
	MetricLoginFailure             = internalmetrics.MetricLoginFailure
	MetricLoginRateLimited         = internalmetrics.MetricLoginRateLimited
	MetricLoginLocked              = internalmetrics.MetricLoginLocked
	MetricAccountLocked            = internalmetrics.MetricAccountLocked
	MetricAccountBanned            = internalmetrics.MetricAccountBanned
	MetricMFAChallengeIssued       = internalmetrics.MetricMFAChallengeIssued
	MetricMFASuccess               = internalmetrics.MetricMFASuccess
	MetricMFAFailure               = internalmetrics.MetricMFAFailure
	MetricTOTPReplay               = internalmetrics.MetricTOTPReplay
	MetricRecoveryCodeUsed         = internalmetrics.MetricRecoveryCodeUsed
	MetricRecoveryCodesRegenerated = internalmetrics.MetricRecoveryCodesRegenerated
	MetricMFAEnabled               = internalmetrics.MetricMFAEnabled
	MetricMFADisabled              = internalmetrics.MetricMFADisabled
	MetricRefreshSuccess           = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure           = internalmetrics.MetricRefreshFailure
	MetricRefreshReuseDetected     = internalmetrics.MetricRefreshReuseDetected
	MetricAuthenticateSuccess      = internalmetrics.MetricAuthenticateSuccess
	MetricAuthenticateFailure      = internalmetrics.MetricAuthenticateFailure
	MetricTokenRevokedHit          = internalmetrics.MetricTokenRevokedHit
	MetricTokenBlacklisted         = internalmetrics.MetricTokenBlacklisted
	MetricSessionCreated           = internalmetrics.MetricSessionCreated
	MetricSessionInvalidated       = internalmetrics.MetricSessionInvalidated
	MetricLogout                   = internalmetrics.MetricLogout
	MetricLogoutAll                = internalmetrics.MetricLogoutAll
	MetricRegisterSuccess          = internalmetrics.MetricRegisterSuccess
	MetricRegisterDuplicate        = internalmetrics.MetricRegisterDuplicate
	MetricEmailVerified            = internalmetrics.MetricEmailVerified
	MetricPasswordResetRequest     = internalmetrics.MetricPasswordResetRequest
	MetricPasswordResetSuccess     = internalmetrics.MetricPasswordResetSuccess
	MetricWeb3ChallengeIssued      = internalmetrics.MetricWeb3ChallengeIssued
	MetricWeb3Register             = internalmetrics.MetricWeb3Register
	MetricWeb3Login                = internalmetrics.MetricWeb3Login
	MetricWeb3Failure              = internalmetrics.MetricWeb3Failure
	MetricRateLimitHit             = internalmetrics.MetricRateLimitHit
	MetricStoreFailOpen            = internalmetrics.MetricStoreFailOpen
	MetricStoreFailClosed          = internalmetrics.MetricStoreFailClosed
	MetricReaperRemoved            = internalmetrics.MetricReaperRemoved
	MetricReaperFailure            = internalmetrics.MetricReaperFailure
	MetricAuthenticateLatency      = internalmetrics.MetricAuthenticateLatency
)

// Metrics holds atomic counters and the optional latency histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance. When Enabled is false every
// operation is a no-op.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}

// MetricsSnapshot returns the current counter values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeAuthenticate(start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
}
