package service

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter bounds how many issuances (Issuer.Issue) and document signings
// (the Signing step of a session) run at once. Passphrase checks and
// container decoding are not limited here.
type Limiter struct {
	sem *semaphore.Weighted
}

// NewLimiter creates a limiter allowing n concurrent operations. Values
// below 1 are treated as 1.
func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n))}
}

// Acquire blocks until a slot is free or ctx is done, in which case it
// returns ctx.Err() and holds nothing.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	l.sem.Release(1)
}
