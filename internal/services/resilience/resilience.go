// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package resilience

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	MaxRetries     = 3
	InitialBackoff = 100 * time.Millisecond
	MaxBackoff     = 2 * time.Second
)

// Policy controls RetryWithBackoff. The zero value uses the package defaults
// and retries every error.
type Policy struct {
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Retryable decides whether an error is worth another attempt.
	Retryable func(error) bool
}

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = MaxRetries
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = MaxBackoff
	}
	return p
}

// RetryWithBackoff implements exponential backoff retry logic. The last error
// is returned unchanged so callers keep its classification and message.
func RetryWithBackoff(ctx context.Context, p Policy, fn func() error) error {
	p = p.withDefaults()

	var err error
	backoff := p.InitialBackoff

	for i := 0; i < p.Attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if i == p.Attempts-1 {
			break
		}

		// Check if context is cancelled before sleeping
		select {
		case <-ctx.Done():
			return err
		case <-time.After(jitter(backoff)):
			backoff *= 2
			if backoff > p.MaxBackoff {
				backoff = p.MaxBackoff
			}
		}
	}

	return err
}

// jitter spreads d over 50-150% of its value.
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.5 + rand.Float64()))
}
