package lsl

import "time"

// Stream timestamps count seconds from an arbitrary fixed origin, sampled
// from the monotonic clock so they never jump with wall-time adjustments.
var clockEpoch = time.Now()

// Now returns the stream clock reading in seconds.
func Now() float64 {
	return time.Since(clockEpoch).Seconds()
}
