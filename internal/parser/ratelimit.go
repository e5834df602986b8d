package parser

import (
	"context"
	"sync"
	"time"
)

// pacer enforces a minimum interval between outbound provider calls so
// a burst of submissions cannot hammer a free-tier API.
type pacer struct {
	mu          sync.Mutex
	last        time.Time
	minInterval time.Duration
}

func newPacer(minInterval time.Duration) *pacer {
	return &pacer{minInterval: minInterval}
}

// wait blocks until the interval since the previous call has elapsed,
// or the context is cancelled.
func (p *pacer) wait(ctx context.Context) error {
	if p == nil || p.minInterval <= 0 {
		return nil
	}

	p.mu.Lock()
	now := time.Now()
	next := p.last.Add(p.minInterval)
	if next.Before(now) {
		next = now
	}
	p.last = next
	p.mu.Unlock()

	delay := time.Until(next)
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
