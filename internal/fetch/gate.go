package fetch

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate is a process-wide counting gate for asset transfers.
type Gate struct {
	sem      *semaphore.Weighted
	max      int
	inflight atomic.Int64
	peak     atomic.Int64
}

// NewGate returns a gate admitting at most n concurrent holders.
func NewGate(n int) *Gate {
	if n < 1 {
		n = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(n)), max: n}
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	current := g.inflight.Add(1)
	for {
		peak := g.peak.Load()
		if current <= peak || g.peak.CompareAndSwap(peak, current) {
			return nil
		}
	}
}

// Release frees a slot taken by Acquire.
func (g *Gate) Release() {
	g.inflight.Add(-1)
	g.sem.Release(1)
}

// InFlight reports the current number of holders.
func (g *Gate) InFlight() int { return int(g.inflight.Load()) }

// Peak reports the highest InFlight value observed.
func (g *Gate) Peak() int { return int(g.peak.Load()) }

// Max reports the configured bound.
func (g *Gate) Max() int { return g.max }
