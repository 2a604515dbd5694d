package engine

import "time"

// Clock supplies wall time for transaction instants and default snapshot
// valid times. The store clamps reservation times so a clock running
// backwards never produces a decreasing tx time.
//
// Implemented by WallClock (production) and testutil.FakeClock (tests).
type Clock interface {
	Now() time.Time
}

// WallClock reads the system clock.
type WallClock struct{}

// Now returns time.Now in UTC without a monotonic reading.
func (WallClock) Now() time.Time {
	return time.Now().Round(0).UTC()
}
