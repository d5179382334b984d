package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrEndpointUnavailable is returned when no endpoint could be acquired
// before the caller's context was done.
var ErrEndpointUnavailable = errors.New("no inference endpoint available")

// Endpoint is one independently addressable inference backend.
type Endpoint struct {
	Index   int    `json:"index"`
	BaseURL string `json:"base_url"`
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Size         int   `json:"size"`
	InFlight     int   `json:"in_flight"`
	Acquisitions int64 `json:"acquisitions"`
	Timeouts     int64 `json:"timeouts"`
}

// Pool hands out exclusive leases on a fixed set of endpoints.
// At most one lease per endpoint exists at any time, so at most Size()
// requests are in flight. Waiters block on a semaphore; there is no FIFO
// guarantee among them.
type Pool struct {
	endpoints []Endpoint
	sem       *semaphore.Weighted
	logger    *zap.Logger

	mu   sync.Mutex
	busy []bool
	next int

	acquisitions atomic.Int64
	timeouts     atomic.Int64
}

// New builds a pool over endpoints. The set is fixed for the pool's lifetime.
func New(endpoints []Endpoint, logger *zap.Logger) (*Pool, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("pool needs at least one endpoint")
	}
	return &Pool{
		endpoints: append([]Endpoint(nil), endpoints...),
		sem:       semaphore.NewWeighted(int64(len(endpoints))),
		busy:      make([]bool, len(endpoints)),
		logger:    logger,
	}, nil
}

// Size returns the number of endpoints.
func (p *Pool) Size() int { return len(p.endpoints) }

// Endpoints returns the endpoint set.
func (p *Pool) Endpoints() []Endpoint {
	return append([]Endpoint(nil), p.endpoints...)
}

// Acquire blocks until an endpoint is free or ctx is done. The pool itself
// imposes no deadline. Every returned lease must be released.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	start := time.Now()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.timeouts.Add(1)
		return nil, fmt.Errorf("%w: %w", ErrEndpointUnavailable, err)
	}

	p.mu.Lock()
	slot := -1
	for i := 0; i < len(p.busy); i++ {
		candidate := (p.next + i) % len(p.busy)
		if !p.busy[candidate] {
			slot = candidate
			break
		}
	}
	if slot < 0 {
		// The semaphore admits at most len(busy) holders.
		p.mu.Unlock()
		p.sem.Release(1)
		panic("pool: semaphore admitted a caller with no free endpoint")
	}
	p.busy[slot] = true
	p.next = (slot + 1) % len(p.busy)
	p.mu.Unlock()

	p.acquisitions.Add(1)
	if waited := time.Since(start); waited > 100*time.Millisecond {
		p.logger.Debug("Waited for inference endpoint",
			zap.Int("endpoint", slot),
			zap.Duration("waited", waited))
	}
	return &Lease{pool: p, slot: slot}, nil
}

func (p *Pool) release(slot int) {
	p.mu.Lock()
	p.busy[slot] = false
	p.mu.Unlock()
	p.sem.Release(1)
}

// Stats reports size, current in-flight leases and counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	inFlight := 0
	for _, b := range p.busy {
		if b {
			inFlight++
		}
	}
	p.mu.Unlock()
	return Stats{
		Size:         len(p.endpoints),
		InFlight:     inFlight,
		Acquisitions: p.acquisitions.Load(),
		Timeouts:     p.timeouts.Load(),
	}
}

// Lease is exclusive ownership of one endpoint.
type Lease struct {
	pool *Pool
	slot int
	once sync.Once
}

// Endpoint returns the leased endpoint.
func (l *Lease) Endpoint() Endpoint {
	return l.pool.endpoints[l.slot]
}

// Release returns the endpoint to the pool. Calls after the first are no-ops.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.pool.release(l.slot)
	})
}
