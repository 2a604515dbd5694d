package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock_StartsAtStart(t *testing.T) {
	clock := NewFakeClock(Epoch, 0)
	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch, clock.Now(), "zero step never advances")
}

func TestFakeClock_StepsPerRead(t *testing.T) {
	clock := NewFakeClock(Epoch, time.Second)

	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch.Add(time.Second), clock.Now())
	assert.Equal(t, Epoch.Add(2*time.Second), clock.Peek())
}

func TestFakeClock_SetAdvanceReset(t *testing.T) {
	clock := NewFakeClock(Epoch, 0)

	clock.Advance(time.Hour)
	assert.Equal(t, Epoch.Add(time.Hour), clock.Now())

	clock.Set(Epoch.Add(-time.Hour))
	assert.Equal(t, Epoch.Add(-time.Hour), clock.Now())

	clock.Reset()
	assert.Equal(t, Epoch, clock.Now())
}

func TestFakeClock_ConcurrentReadsAreDistinct(t *testing.T) {
	clock := NewFakeClock(Epoch, time.Millisecond)
	const (
		goroutines = 10
		reads      = 100
	)

	var mu sync.Mutex
	seen := make(map[time.Time]bool)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < reads; j++ {
				now := clock.Now()
				mu.Lock()
				assert.False(t, seen[now], "time %s read twice", now)
				seen[now] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*reads)
}
