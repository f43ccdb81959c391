// Package dedupe tracks applied event IDs so every event affects the
// leaderboard at most once.
package dedupe

import (
	"context"
	"sync"
	"time"
)

// Record is what the ledger keeps per applied event.
type Record struct {
	PlayerID  string
	AppliedAt time.Time
}

// Deduper records seen event IDs to ensure at-most-once processing.
type Deduper interface {
	// Seen reports whether id was recorded.
	Seen(ctx context.Context, id string) bool

	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string, rec Record) bool

	Size() int64
}

// inMemoryDeduper keeps every record in a map and never forgets one: an
// evicted ID could be applied a second time.
type inMemoryDeduper struct {
	mu   sync.RWMutex
	seen map[string]Record
}

// NewInMemoryDeduper creates an empty, unbounded ledger.
func NewInMemoryDeduper() Deduper {
	return &inMemoryDeduper{seen: make(map[string]Record)}
}

func (d *inMemoryDeduper) Seen(_ context.Context, id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.seen[id]
	return ok
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string, rec Record) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		return true
	}
	d.seen[id] = rec
	return false
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper) Size() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return int64(len(d.seen))
}
