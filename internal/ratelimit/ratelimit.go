package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Pacer spaces successive calls to the text-generation provider. Retry
// backoff between attempts is a fixed short delay with optional jitter;
// there is no exponential escalation, attempt budgets are bounded by the
// callers instead.
type Pacer struct {
	baseDelay time.Duration
	maxDelay  time.Duration
	lastCall  time.Time
	mu        sync.Mutex
	jitter    bool
}

func NewPacer(baseDelay, maxDelay time.Duration) *Pacer {
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &Pacer{
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		jitter:    maxDelay > baseDelay,
	}
}

// Wait blocks until enough time has passed since the previous call, or the
// context is cancelled.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := time.Since(p.lastCall)
	delay := p.delay()

	if elapsed < delay {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay - elapsed):
		}
	}

	p.lastCall = time.Now()
	return nil
}

func (p *Pacer) delay() time.Duration {
	if !p.jitter || p.baseDelay == p.maxDelay {
		return p.baseDelay
	}
	delta := p.maxDelay - p.baseDelay
	return p.baseDelay + time.Duration(rand.Int63n(int64(delta)))
}
