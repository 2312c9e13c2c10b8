package governance

import (
	"context"
	"errors"
	"time"
)

// ErrRequestTimeout is returned when a request exceeds its timeout.
var ErrRequestTimeout = errors.New("request timeout exceeded")

// TimeoutCandidate is one configured budget and where it came from.
type TimeoutCandidate struct {
	Source  string
	Timeout time.Duration
}

// PickTimeout returns the smallest positive candidate and its source. Zero means
// no candidate bounds the request.
func PickTimeout(candidates ...TimeoutCandidate) (time.Duration, string) {
	var (
		shortest time.Duration
		source   string
	)
	for _, c := range candidates {
		if c.Timeout <= 0 {
			continue
		}
		if shortest == 0 || c.Timeout < shortest {
			shortest = c.Timeout
			source = c.Source
		}
	}
	return shortest, source
}

// TimeoutConfig defines the budgets of one orchestration.
type TimeoutConfig struct {
	// RequestTimeout bounds a complete pipeline run. Zero disables it.
	RequestTimeout time.Duration
	// BatchTimeout bounds the settlement of a single batch. Zero disables it.
	BatchTimeout time.Duration
}

// TimeoutManager enforces timeout policies on requests.
type TimeoutManager struct {
	config TimeoutConfig
}

// NewTimeoutManager creates a timeout manager with the given configuration.
func NewTimeoutManager(config TimeoutConfig) *TimeoutManager {
	if config.RequestTimeout < 0 {
		config.RequestTimeout = 0
	}
	if config.BatchTimeout < 0 {
		config.BatchTimeout = 0
	}
	return &TimeoutManager{config: config}
}

// Config returns the current timeout configuration.
func (tm *TimeoutManager) Config() TimeoutConfig {
	return tm.config
}

// EffectiveBatchTimeout is the batch deadline, capped by the request timeout since a
// batch can never outlive its request.
func (tm *TimeoutManager) EffectiveBatchTimeout() time.Duration {
	d, _ := PickTimeout(
		TimeoutCandidate{Source: "batch", Timeout: tm.config.BatchTimeout},
		TimeoutCandidate{Source: "request", Timeout: tm.config.RequestTimeout},
	)
	return d
}

// WithRequestTimeout derives a context bounded by the request timeout, or by an
// earlier deadline already carried by ctx.
func (tm *TimeoutManager) WithRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if tm.config.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeoutCause(ctx, tm.config.RequestTimeout, ErrRequestTimeout)
}
