package sefaz

import (
	"context"
	"sync"
)

// RequestLimiter caps in-flight requests against the authorizers. SEFAZ
// throttles aggressive clients, so the cap is enforced here instead of
// letting the transport queue unbounded work.
type RequestLimiter struct {
	semaphore chan struct{}
	max       int

	mu     sync.Mutex
	active int
}

// NewRequestLimiter returns a limiter admitting at most max concurrent
// requests.
func NewRequestLimiter(max int) *RequestLimiter {
	if max <= 0 {
		max = 20
	}
	return &RequestLimiter{
		semaphore: make(chan struct{}, max),
		max:       max,
	}
}

// Acquire blocks until a slot is available or the context ends.
func (l *RequestLimiter) Acquire(ctx context.Context) error {
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot after a request completes.
func (l *RequestLimiter) Release() {
	<-l.semaphore
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
}

// Active returns the number of in-flight requests.
func (l *RequestLimiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Max returns the configured cap.
func (l *RequestLimiter) Max() int { return l.max }
