// Package extcall holds the retry policy shared by the payment-gateway and
// carrier adapters.
package extcall

import (
	"context"
	"time"

	"github.com/ankitchauhan1221/maluk-backend/internal/apperr"
)

// Policy retries an operation with capped-doubling backoff. Only errors
// classified apperr.KindExternalTransient are retried; everything else
// propagates immediately.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultPolicy matches the bounded retry the orchestrator expects from all
// external calls: 3 attempts, 500ms doubling, capped at 5s.
var DefaultPolicy = Policy{Attempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}

func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.BaseDelay
	var err error
	for i := 0; i < attempts; i++ {
		if err = op(); err == nil {
			return nil
		}
		if !apperr.IsKind(err, apperr.KindExternalTransient) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return err
}
