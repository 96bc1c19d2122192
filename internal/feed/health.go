package feed

import (
	"sync"
	"time"

	"cascadeflow/internal/models"
)

// Health tracks the last time each venue produced data. A venue that goes
// quiet past the staleness window is excluded from cross-exchange correlation
// and diversity scoring until it resumes; the remaining live venues keep the
// pipeline running.
type Health struct {
	mu       sync.RWMutex
	lastSeen map[models.Exchange]time.Time
	timeout  time.Duration
	now      func() time.Time
}

func NewHealth(timeout time.Duration) *Health {
	return &Health{
		lastSeen: make(map[models.Exchange]time.Time),
		timeout:  timeout,
		now:      time.Now,
	}
}

// MarkSeen records venue activity.
func (h *Health) MarkSeen(exchange models.Exchange) {
	h.mu.Lock()
	h.lastSeen[exchange] = h.now()
	h.mu.Unlock()
}

// Stale reports whether a venue has been quiet past the staleness window.
// A venue never seen at all is stale.
func (h *Health) Stale(exchange models.Exchange) bool {
	h.mu.RLock()
	seen, ok := h.lastSeen[exchange]
	h.mu.RUnlock()
	if !ok {
		return true
	}
	return h.now().Sub(seen) > h.timeout
}

// StaleExchanges lists every configured venue currently considered stale.
func (h *Health) StaleExchanges() []models.Exchange {
	var out []models.Exchange
	for _, ex := range models.Exchanges {
		if h.Stale(ex) {
			out = append(out, ex)
		}
	}
	return out
}

// Snapshot returns last-seen times for the health endpoint.
func (h *Health) Snapshot() map[models.Exchange]time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[models.Exchange]time.Time, len(h.lastSeen))
	for ex, t := range h.lastSeen {
		out[ex] = t
	}
	return out
}
