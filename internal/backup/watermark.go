package backup

import (
	"sync"
	"time"
)

// Tracker remembers the newest accepted status timestamp per device and is
// the only state carried across cycles. It is not persisted; after a restart
// the first cycle re-writes the current snapshot of every device.
type Tracker struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewTracker() *Tracker {
	return &Tracker{last: make(map[string]time.Time)}
}

// Accept reports whether candidate is newer than the stored watermark for
// deviceID and, if so, atomically advances it. The watermark only ever moves
// forward. Safe for concurrent use.
func (t *Tracker) Accept(deviceID string, candidate time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	stored, ok := t.last[deviceID]
	if ok && !candidate.After(stored) {
		return false
	}
	t.last[deviceID] = candidate
	return true
}

// Len returns the number of devices with a watermark.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}
