// Package clock supplies wall-clock time in epoch milliseconds.
//
// Entity last-modified stamps and queue retry schedules are both expressed
// in epoch ms, so every component takes a Clock instead of calling time.Now
// directly. Tests substitute testutil.ManualClock.
package clock

import "time"

// Clock returns the current wall-clock time in epoch milliseconds.
type Clock interface {
	NowMillis() int64
}

// System reads the host clock.
//
// Thread-safety: System is stateless and safe for concurrent use.
type System struct{}

// NowMillis implements Clock.
func (System) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Func adapts a plain function to Clock.
type Func func() int64

// NowMillis implements Clock.
func (f Func) NowMillis() int64 {
	return f()
}

// Time converts epoch milliseconds to a time.Time in UTC.
// Zero maps to the zero time.Time.
func Time(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
