// Package clock abstracts time operations for testability. Production
// code injects Real(); tests inject Fake() and advance it explicitly.
//
// Scheduler code in this repository never calls time.Now, time.After,
// or time.Sleep directly; it goes through a Clock so the fixed-cadence
// and backoff behavior can be tested without real sleeps.
package clock

import "time"

// Clock is the subset of the time package the sync loop needs.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// Sleep pauses the calling goroutine for at least d.
	Sleep(d time.Duration)
}
