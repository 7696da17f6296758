// Package dedupe tracks score IDs that are already claimed by an in-flight
// insert so a single queue never writes the same score twice.
package dedupe

import (
	"context"
	"sync"
)

// Deduper records claimed IDs to ensure at-most-once processing.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Seen reports whether id is recorded without recording it.
	Seen(ctx context.Context, id string) bool

	// Unrecord releases id, e.g. after a write for it failed.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper never evicts: dropping a claimed ID would let a duplicate
// through, so the set lives exactly as long as its owner.
type inMemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewInMemoryDeduper creates a new in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	cfg := options{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &inMemoryDeduper{seen: make(map[string]struct{}, cfg.sizeHint)}
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		return true
	}
	d.seen[id] = struct{}{}
	return false
}

func (d *inMemoryDeduper) Seen(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, exists := d.seen[id]
	return exists
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
