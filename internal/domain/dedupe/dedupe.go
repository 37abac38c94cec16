// Package dedupe tracks idempotency keys so a replayed request applies once.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Deduper records seen keys.
type Deduper interface {
	// SeenAndRecord atomically checks whether key was seen and records it if
	// not. It returns true for a replay.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so the caller can retry after a failure that
	// happened after SeenAndRecord.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

type entry struct {
	key  string
	seen time.Time
}

// inMemoryDeduper keeps keys in insertion order. When full, the oldest key
// is evicted. Keys older than ttl are treated as unseen.
type inMemoryDeduper struct {
	mu      sync.Mutex
	order   *list.List
	index   map[string]*list.Element
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// NewInMemoryDeduper creates a bounded in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		order:   list.New(),
		index:   make(map[string]*list.Element),
		maxSize: 50000,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(ctx context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.expireLocked(now)

	if _, ok := d.index[key]; ok {
		return true
	}
	if d.maxSize > 0 {
		for d.order.Len() >= d.maxSize {
			d.removeLocked(d.order.Front())
		}
	}
	d.index[key] = d.order.PushBack(&entry{key: key, seen: now})
	return false
}

func (d *inMemoryDeduper) Unrecord(ctx context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.index[key]; ok {
		d.removeLocked(el)
	}
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.order.Len())
}

// expireLocked drops keys older than ttl from the front of the list.
func (d *inMemoryDeduper) expireLocked(now time.Time) {
	if d.ttl <= 0 {
		return
	}
	cutoff := now.Add(-d.ttl)
	for el := d.order.Front(); el != nil; el = d.order.Front() {
		if el.Value.(*entry).seen.After(cutoff) {
			return
		}
		d.removeLocked(el)
	}
}

func (d *inMemoryDeduper) removeLocked(el *list.Element) {
	e := d.order.Remove(el).(*entry)
	delete(d.index, e.key)
}
