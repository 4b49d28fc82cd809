package resilience

import (
	"time"

	"github.com/sells-group/sokoprice/internal/config"
)

// FromSMSConfig derives the delivery retry policy and breaker settings.
func FromSMSConfig(cfg config.SMSConfig) (Policy, CircuitBreakerConfig) {
	p := DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		p.Attempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoffMs > 0 {
		p.Base = time.Duration(cfg.InitialBackoffMs) * time.Millisecond
	}

	breaker := DefaultCircuitBreakerConfig()
	if cfg.CircuitFailureThreshold > 0 {
		breaker.FailureThreshold = cfg.CircuitFailureThreshold
	}
	if cfg.CircuitResetSecs > 0 {
		breaker.ResetTimeout = time.Duration(cfg.CircuitResetSecs) * time.Second
	}
	return p, breaker
}
