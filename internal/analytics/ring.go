package analytics

import (
	"time"

	"cascadeflow/internal/models"
)

// eventRing is a fixed-capacity circular buffer of liquidation events for one
// symbol. Appends are O(1); when full the oldest event is overwritten. The
// ring is owned by exactly one analytics worker and needs no locking.
type eventRing struct {
	buf   []models.LiquidationEvent
	head  int // next write position
	count int
}

func newEventRing(capacity int) *eventRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &eventRing{buf: make([]models.LiquidationEvent, capacity)}
}

// Append stores an event, evicting the oldest entry when full.
func (r *eventRing) Append(ev models.LiquidationEvent) {
	r.buf[r.head] = ev
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Len reports the number of stored events.
func (r *eventRing) Len() int {
	return r.count
}

// Scan visits events from oldest to newest. Returning false stops the scan.
func (r *eventRing) Scan(fn func(ev models.LiquidationEvent) bool) {
	start := r.head - r.count
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.count; i++ {
		if !fn(r.buf[(start+i)%len(r.buf)]) {
			return
		}
	}
}

// Since collects events at or after the cutoff, in append order (oldest
// appended first). Arrival order is only monotonic per venue, so a late
// delivery can sit at a newer slot than its timestamp suggests; every entry
// is checked against the cutoff rather than stopping at the first stale one.
func (r *eventRing) Since(cutoff time.Time, out []models.LiquidationEvent) []models.LiquidationEvent {
	cutoffMs := cutoff.UnixMilli()
	r.Scan(func(ev models.LiquidationEvent) bool {
		if ev.TimestampMs >= cutoffMs {
			out = append(out, ev)
		}
		return true
	})
	return out
}
