package gpupool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseSingleSlot(t *testing.T) {
	p := New(2)

	a, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, a)

	b, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, b)
	assert.Equal(t, 2, p.InUse())

	p.Release(a)
	p.Release(b)
	assert.Equal(t, 0, p.InUse())
}

func TestAcquirePrefersLowestIndex(t *testing.T) {
	p := New(1, 1)

	a, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, a)

	b, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, b)
}

func TestConcurrentJobsNeverExceedCapacity(t *testing.T) {
	p := New(2, 2)
	const jobs = 6

	var active, peak int64
	var wg sync.WaitGroup
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slot, err := p.Acquire(context.Background())
			require.NoError(t, err)
			defer p.Release(slot)

			n := atomic.AddInt64(&active, 1)
			for {
				old := atomic.LoadInt64(&peak)
				if n <= old || atomic.CompareAndSwapInt64(&peak, old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&active, -1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak, int64(p.Capacity()))
	assert.Equal(t, 0, p.InUse())
}

func TestSixJobsSaturateCapacityOfFour(t *testing.T) {
	p := New(2, 2)
	const jobs = 6

	gate := make(chan struct{})
	done := make(chan struct{}, jobs)
	for i := 0; i < jobs; i++ {
		go func() {
			slot, err := p.Acquire(context.Background())
			require.NoError(t, err)
			<-gate
			p.Release(slot)
			done <- struct{}{}
		}()
	}

	// With every job holding, the pool must fill to exactly its
	// capacity; the remaining two jobs queue.
	require.Eventually(t, func() bool { return p.InUse() == p.Capacity() },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, 4, p.InUse())

	close(gate)
	for i := 0; i < jobs; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("queued job never completed")
		}
	}
	assert.Equal(t, 0, p.InUse())
}

func TestAcquireRespectsContextCancel(t *testing.T) {
	p := New(1)
	slot, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The abandoned waiter must not strand capacity.
	p.Release(slot)
	again, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(again)
}

func TestReleaseWakesWaiter(t *testing.T) {
	p := New(1)
	slot, err := p.Acquire(context.Background())
	require.NoError(t, err)

	got := make(chan int)
	go func() {
		s, err := p.Acquire(context.Background())
		require.NoError(t, err)
		got <- s
	}()

	time.Sleep(20 * time.Millisecond)
	p.Release(slot)

	select {
	case s := <-got:
		p.Release(s)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by release")
	}
}

func TestBadReleasePanics(t *testing.T) {
	p := New(1)
	assert.Panics(t, func() { p.Release(0) })
	assert.Panics(t, func() { p.Release(5) })
}
