package presence

import (
	"context"
	"sync"
	"time"
)

// Tracker records heartbeats and answers who is currently online.
// A user is online while their last heartbeat is younger than the TTL.
type Tracker interface {
	Touch(ctx context.Context, userID string) error
	Remove(ctx context.Context, userID string) error
	Online(ctx context.Context) (map[string]time.Time, error)
}

// MemoryTracker is the single-process Tracker.
type MemoryTracker struct {
	mu    sync.Mutex
	ttl   time.Duration
	seen  map[string]time.Time
	clock func() time.Time
}

// NewMemoryTracker creates a tracker that expires users after ttl.
func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	return &MemoryTracker{
		ttl:   ttl,
		seen:  make(map[string]time.Time),
		clock: time.Now,
	}
}

func (t *MemoryTracker) Touch(_ context.Context, userID string) error {
	t.mu.Lock()
	t.seen[userID] = t.clock()
	t.mu.Unlock()
	return nil
}

func (t *MemoryTracker) Remove(_ context.Context, userID string) error {
	t.mu.Lock()
	delete(t.seen, userID)
	t.mu.Unlock()
	return nil
}

// Online returns live users with their last heartbeat.
func (t *MemoryTracker) Online(_ context.Context) (map[string]time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.clock().Add(-t.ttl)
	out := make(map[string]time.Time, len(t.seen))
	for id, at := range t.seen {
		if at.After(cutoff) {
			out[id] = at
		}
	}
	return out, nil
}

// Sweep drops expired entries and returns how many were removed.
func (t *MemoryTracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.clock().Add(-t.ttl)
	removed := 0
	for id, at := range t.seen {
		if !at.After(cutoff) {
			delete(t.seen, id)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (t *MemoryTracker) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}
