// Package gpupool bounds concurrent encoder usage with a small pool of
// fixed-capacity slots, one per hardware device. Acquire suspends the
// calling goroutine until a slot has spare capacity; Release hands the
// capacity back and wakes one waiter.
package gpupool

import (
	"context"
	"fmt"
	"sync"
)

// Pool is a set of counting slots. Invariant: 0 <= current <= limit for
// every slot at all times.
type Pool struct {
	mu      sync.Mutex
	limits  []int
	current []int
	waiters []chan struct{}
}

// New creates a pool with one slot per limit.
func New(limits ...int) *Pool {
	return &Pool{
		limits:  append([]int(nil), limits...),
		current: make([]int, len(limits)),
	}
}

// Acquire blocks until some slot has current < limit, increments that
// slot and returns its index. Selection is first-available by index.
func (p *Pool) Acquire(ctx context.Context) (int, error) {
	for {
		p.mu.Lock()
		for i := range p.limits {
			if p.current[i] < p.limits[i] {
				p.current[i]++
				p.mu.Unlock()
				return i, nil
			}
		}
		ch := make(chan struct{})
		p.waiters = append(p.waiters, ch)
		p.mu.Unlock()

		select {
		case <-ch:
			// Woken by a release; re-check for a free slot.
		case <-ctx.Done():
			p.abandon(ch)
			return 0, ctx.Err()
		}
	}
}

// Release decrements a slot and wakes one waiter. It never blocks and
// must be called exactly once per successful Acquire, on every exit
// path of the guarded job.
func (p *Pool) Release(slot int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if slot < 0 || slot >= len(p.current) || p.current[slot] == 0 {
		panic(fmt.Sprintf("gpupool: bad release of slot %d", slot))
	}
	p.current[slot]--
	p.wakeLocked()
}

// abandon removes a waiter that gave up. If the waiter was already
// signalled, the wake-up is passed on so capacity is not stranded.
func (p *Pool) abandon(ch chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == ch {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
	p.wakeLocked()
}

func (p *Pool) wakeLocked() {
	if len(p.waiters) > 0 {
		close(p.waiters[0])
		p.waiters = p.waiters[1:]
	}
}

// Capacity reports the total capacity across all slots.
func (p *Pool) Capacity() int {
	total := 0
	for _, l := range p.limits {
		total += l
	}
	return total
}

// InUse reports the currently held capacity, for logging.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, c := range p.current {
		total += c
	}
	return total
}
