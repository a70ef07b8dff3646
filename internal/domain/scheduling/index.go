package scheduling

import (
	"container/list"
	"sort"
	"sync"
)

// AvailabilityIndex buckets providers by remaining capacity. Within a bucket
// the provider that most recently moved into it comes first. Providers with
// no remaining capacity are not indexed.
//
// The index has its own lock, independent of the provider locks: callers
// move a provider while holding that provider's lock, but different
// providers may be moved concurrently.
type AvailabilityIndex struct {
	mu      sync.Mutex
	buckets map[int]*list.List
	entries map[*Provider]indexEntry
}

type indexEntry struct {
	capacity int
	elem     *list.Element
}

func NewAvailabilityIndex() *AvailabilityIndex {
	return &AvailabilityIndex{
		buckets: make(map[int]*list.List),
		entries: make(map[*Provider]indexEntry),
	}
}

// Update moves p out of its current bucket and, if capacity > 0, to the
// front of bucket capacity.
func (x *AvailabilityIndex) Update(p *Provider, capacity int) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.removeLocked(p)
	if capacity <= 0 {
		return
	}
	bucket, ok := x.buckets[capacity]
	if !ok {
		bucket = list.New()
		x.buckets[capacity] = bucket
	}
	x.entries[p] = indexEntry{capacity: capacity, elem: bucket.PushFront(p)}
}

// Remove drops p from the index.
func (x *AvailabilityIndex) Remove(p *Provider) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(p)
}

func (x *AvailabilityIndex) removeLocked(p *Provider) {
	entry, ok := x.entries[p]
	if !ok {
		return
	}
	bucket := x.buckets[entry.capacity]
	bucket.Remove(entry.elem)
	if bucket.Len() == 0 {
		delete(x.buckets, entry.capacity)
	}
	delete(x.entries, p)
}

// Capacity returns the bucket p currently sits in.
func (x *AvailabilityIndex) Capacity(p *Provider) (int, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	entry, ok := x.entries[p]
	return entry.capacity, ok
}

// Len returns the number of indexed providers.
func (x *AvailabilityIndex) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.entries)
}

// Capacities returns the non-empty bucket keys, highest first.
func (x *AvailabilityIndex) Capacities() []int {
	x.mu.Lock()
	defer x.mu.Unlock()
	keys := make([]int, 0, len(x.buckets))
	for k := range x.buckets {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(keys)))
	return keys
}

// Bucket returns a copy of bucket capacity, front to back.
func (x *AvailabilityIndex) Bucket(capacity int) []*Provider {
	x.mu.Lock()
	defer x.mu.Unlock()
	bucket, ok := x.buckets[capacity]
	if !ok {
		return nil
	}
	out := make([]*Provider, 0, bucket.Len())
	for e := bucket.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Provider))
	}
	return out
}

// MostAvailable returns the indexed providers bucket by bucket from the
// highest capacity down, front to back within a bucket. Each bucket is copied
// when it is reached, so a provider that moves while the walk is in progress
// is reported once, at its first position.
func (x *AvailabilityIndex) MostAvailable() []*Provider {
	var out []*Provider
	seen := make(map[*Provider]struct{})
	for _, capacity := range x.Capacities() {
		for _, p := range x.Bucket(capacity) {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}
