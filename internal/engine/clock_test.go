package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/tempodb/internal/testutil"
)

func TestWallClock_UTCWithoutMonotonic(t *testing.T) {
	now := WallClock{}.Now()

	assert.Equal(t, time.UTC, now.Location())
	// Round(0) is a no-op once the monotonic reading is gone.
	assert.Equal(t, now, now.Round(0))
	assert.WithinDuration(t, time.Now(), now, time.Minute)
}

func TestFakeClock_SatisfiesClock(t *testing.T) {
	var c Clock = testutil.NewFakeClock(testutil.Epoch, time.Second)

	first := c.Now()
	second := c.Now()
	assert.Equal(t, time.Second, second.Sub(first))
}
