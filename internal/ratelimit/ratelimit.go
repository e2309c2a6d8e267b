// Package ratelimit spaces requests that go to the same storefront.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter keeps requests to one host at least minDelay apart, plus a
// random jitter below maxDelay-minDelay. Hosts never wait on each other.
type HostLimiter struct {
	minDelay time.Duration
	jitter   time.Duration

	mu    sync.Mutex
	hosts map[string]*rate.Limiter
	now   func() time.Time
}

func NewHostLimiter(minDelay, maxDelay time.Duration) *HostLimiter {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &HostLimiter{
		minDelay: minDelay,
		jitter:   maxDelay - minDelay,
		hosts:    make(map[string]*rate.Limiter),
		now:      time.Now,
	}
}

// Wait blocks until a request to host may be sent. A zero delay never blocks.
// The slot stays reserved even when ctx ends first.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	if h.minDelay+h.jitter <= 0 {
		return ctx.Err()
	}

	wait := h.reserve(host) + h.jitterDelay()
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// reserve takes the next token of host's limiter and returns how long until
// it may be used.
func (h *HostLimiter) reserve(host string) time.Duration {
	now := h.now()
	return h.limiter(host).ReserveN(now, 1).DelayFrom(now)
}

func (h *HostLimiter) limiter(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.hosts[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(h.minDelay), 1)
		h.hosts[host] = l
	}
	return l
}

func (h *HostLimiter) jitterDelay() time.Duration {
	if h.jitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(h.jitter)))
}
