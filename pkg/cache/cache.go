// Copyright 2026 Esteban Alvarez. All Rights Reserved.
//
// Created: August 2026
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cache provides a thread-safe LRU cache whose capacity is a byte
// budget rather than an entry count. When an insert would push the total past
// the budget, least-recently-used entries are evicted until it fits.
package cache

import (
	"container/list"
	"errors"
	"sync"
)

// DefaultMaxBytes is the byte budget used when the caller passes a
// non-positive capacity.
const DefaultMaxBytes = 50 << 20 // 50 MiB

// ErrOversized is returned by Set when a single value is larger than the
// whole cache budget. The cache is left untouched: rejecting the value is
// preferable to silently evicting everything and still not fitting it.
var ErrOversized = errors.New("cache: value larger than cache capacity")

// SizeFunc computes the accounted size of a value in bytes. It must be
// deterministic: the eviction bookkeeping subtracts the same size on removal
// that was added on insert. Callers should size the value shallowly (e.g.
// len() of a byte slice); sizes of deeply nested containers are the caller's
// problem and are not recomputed after insertion.
type SizeFunc[V any] func(v V) int

// Bytes is the SizeFunc for plain byte slices.
func Bytes(v []byte) int { return len(v) }

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Entries     int
	SizeBytes   int64
	MaxBytes    int64
	Utilization float64 // SizeBytes / MaxBytes
}

type entry[K comparable, V any] struct {
	key  K
	val  V
	size int64
}

// Cache is a byte-bounded LRU map. A single coarse mutex guards all
// operations; per-operation work is O(1) plus the number of evictions a Set
// forces, which is bounded by the incoming size divided by the smallest
// resident entry.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	maxBytes int64
	size     int64
	sizeOf   SizeFunc[V]
	order    *list.List // front = most recently used
	items    map[K]*list.Element

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a cache with the given byte budget. A non-positive maxBytes
// falls back to DefaultMaxBytes. sizeOf must not be nil.
func New[K comparable, V any](maxBytes int64, sizeOf SizeFunc[V]) *Cache[K, V] {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if sizeOf == nil {
		panic("cache: nil SizeFunc")
	}
	return &Cache[K, V]{
		maxBytes: maxBytes,
		sizeOf:   sizeOf,
		order:    list.New(),
		items:    make(map[K]*list.Element),
	}
}

// Get returns the value stored under key and promotes it to most recently
// used. A miss does not touch recency order.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.order.MoveToFront(el)
	return el.Value.(*entry[K, V]).val, true
}

// Set inserts or replaces the value under key as the most recently used
// entry, evicting from the LRU end until the budget holds. A value whose own
// size exceeds the budget is rejected with ErrOversized and the cache is
// left unchanged.
func (c *Cache[K, V]) Set(key K, val V) error {
	size := int64(c.sizeOf(val))

	c.mu.Lock()
	defer c.mu.Unlock()

	if size > c.maxBytes {
		return ErrOversized
	}

	// Replacing an existing key: retire its old accounting first so the
	// eviction loop below can never select the key being inserted.
	if el, ok := c.items[key]; ok {
		c.size -= el.Value.(*entry[K, V]).size
		c.order.Remove(el)
		delete(c.items, key)
	}

	for c.size+size > c.maxBytes && c.order.Len() > 0 {
		c.evictOldest()
	}

	el := c.order.PushFront(&entry[K, V]{key: key, val: val, size: size})
	c.items[key] = el
	c.size += size
	return nil
}

// Delete removes key and reports whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.size -= el.Value.(*entry[K, V]).size
	c.order.Remove(el)
	delete(c.items, key)
	return true
}

// Clear drops every entry. Counters are preserved: Clear is a capacity
// operation, not a statistics reset.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.items = make(map[K]*list.Element)
	c.size = 0
}

// Len returns the number of resident entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// SizeBytes returns the accounted total of resident entry sizes.
func (c *Cache[K, V]) SizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Stats returns a snapshot of the hit/miss/eviction counters and current
// utilization.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Entries:     c.order.Len(),
		SizeBytes:   c.size,
		MaxBytes:    c.maxBytes,
		Utilization: float64(c.size) / float64(c.maxBytes),
	}
}

// evictOldest removes the entry at the LRU end. Caller holds c.mu.
func (c *Cache[K, V]) evictOldest() {
	el := c.order.Back()
	if el == nil {
		return
	}
	ent := el.Value.(*entry[K, V])
	c.size -= ent.size
	c.order.Remove(el)
	delete(c.items, ent.key)
	c.evictions++
}
