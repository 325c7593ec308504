package cache

import (
	"container/list"
	"sync"
)

// Meta is the ownership information stored next to a cached value
type Meta struct {
	Image   string
	Session string
}

// EvictReason says why an entry left a store
type EvictReason int

const (
	// EvictCapacity means the store was over its count or cost ceiling
	EvictCapacity EvictReason = iota
	// EvictRemoved means the entry was removed or replaced explicitly
	EvictRemoved
)

// EvictFunc is called for every entry that leaves a store, outside the store lock
type EvictFunc func(key string, meta Meta, reason EvictReason)

type storeEntry[V any] struct {
	key   string
	value V
	cost  int64
	meta  Meta
}

type evicted struct {
	key    string
	meta   Meta
	reason EvictReason
}

// Store is a least-recently-used cache bounded by item count and total cost.
// A zero limit disables that bound.
type Store[V any] struct {
	mu       sync.Mutex
	ll       *list.List
	items    map[string]*list.Element
	maxItems int
	maxCost  int64
	cost     int64
	onEvict  EvictFunc
}

// NewStore creates a store with the given ceilings
func NewStore[V any](maxItems int, maxCost int64, onEvict EvictFunc) *Store[V] {
	return &Store[V]{
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		maxItems: maxItems,
		maxCost:  maxCost,
		onEvict:  onEvict,
	}
}

// Get returns the value for key and marks it most recently used
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	s.ll.MoveToFront(el)
	return el.Value.(*storeEntry[V]).value, true
}

// contains reports whether key is present without touching its recency
func (s *Store[V]) contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[key]
	return ok
}

// Put inserts or replaces key. Items costing more than the whole store are
// rejected and Put returns false.
func (s *Store[V]) Put(key string, value V, cost int64, meta Meta) bool {
	if cost < 0 {
		cost = 0
	}

	s.mu.Lock()
	if s.maxCost > 0 && cost > s.maxCost {
		s.mu.Unlock()
		return false
	}

	var out []evicted
	if el, ok := s.items[key]; ok {
		e := el.Value.(*storeEntry[V])
		s.cost -= e.cost
		if e.meta.Image != meta.Image {
			out = append(out, evicted{key: key, meta: e.meta, reason: EvictRemoved})
		}
		e.value, e.cost, e.meta = value, cost, meta
		s.cost += cost
		s.ll.MoveToFront(el)
	} else {
		s.items[key] = s.ll.PushFront(&storeEntry[V]{key: key, value: value, cost: cost, meta: meta})
		s.cost += cost
	}

	for s.overLimit() {
		back := s.ll.Back()
		if back == nil {
			break
		}
		e := s.removeElement(back)
		out = append(out, evicted{key: e.key, meta: e.meta, reason: EvictCapacity})
	}
	s.mu.Unlock()

	s.notify(out)
	return true
}

// Remove deletes key and reports whether it was present
func (s *Store[V]) Remove(key string) bool {
	s.mu.Lock()
	el, ok := s.items[key]
	var out []evicted
	if ok {
		e := s.removeElement(el)
		out = append(out, evicted{key: e.key, meta: e.meta, reason: EvictRemoved})
	}
	s.mu.Unlock()

	s.notify(out)
	return ok
}

// RemoveFunc deletes every entry whose key and meta satisfy match
func (s *Store[V]) RemoveFunc(match func(key string, meta Meta) bool) int {
	s.mu.Lock()
	var out []evicted
	for el := s.ll.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*storeEntry[V])
		if match(e.key, e.meta) {
			s.removeElement(el)
			out = append(out, evicted{key: e.key, meta: e.meta, reason: EvictRemoved})
		}
		el = next
	}
	s.mu.Unlock()

	s.notify(out)
	return len(out)
}

// Clear empties the store and returns how many entries it held
func (s *Store[V]) Clear() int {
	return s.RemoveFunc(func(string, Meta) bool { return true })
}

// Len returns the number of entries
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ll.Len()
}

// Cost returns the summed cost of all entries
func (s *Store[V]) Cost() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cost
}

// keys returns keys from most to least recently used
func (s *Store[V]) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, s.ll.Len())
	for el := s.ll.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*storeEntry[V]).key)
	}
	return keys
}

func (s *Store[V]) overLimit() bool {
	return (s.maxItems > 0 && s.ll.Len() > s.maxItems) || (s.maxCost > 0 && s.cost > s.maxCost)
}

func (s *Store[V]) removeElement(el *list.Element) *storeEntry[V] {
	e := s.ll.Remove(el).(*storeEntry[V])
	delete(s.items, e.key)
	s.cost -= e.cost
	return e
}

func (s *Store[V]) notify(out []evicted) {
	if s.onEvict == nil {
		return
	}
	for _, e := range out {
		s.onEvict(e.key, e.meta, e.reason)
	}
}
