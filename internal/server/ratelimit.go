package server

import (
	"sync"

	"golang.org/x/time/rate"
)

// tokenLimiters holds one rate limiter per API token so a single noisy
// merchant cannot starve the upload endpoint for others.
type tokenLimiters struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newTokenLimiters(rps float64, burst int) *tokenLimiters {
	if rps <= 0 {
		rps = 1
	}

	if burst <= 0 {
		burst = 1
	}

	return &tokenLimiters{
		limiters: make(map[int64]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// allow reports whether the token may make another upload now.
func (t *tokenLimiters) allow(tokenID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	limiter, ok := t.limiters[tokenID]
	if !ok {
		limiter = rate.NewLimiter(t.rps, t.burst)
		t.limiters[tokenID] = limiter
	}

	return limiter.Allow()
}
