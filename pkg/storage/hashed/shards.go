package hashed

import (
	"hash/fnv"
	"slices"
	"sync"

	"github.com/papercomputeco/blackboard/pkg/entry"
)

const shardCount = 32

// shard is one slice of the entry map. Stored entries are never mutated:
// a tombstone replaces the pointer with a flagged copy, so readers may keep
// using pointers after releasing the lock.
type shard struct {
	mu sync.RWMutex
	m  map[string]*entry.Entry
}

// shardedMap spreads entries over independently locked shards so lookups
// and inserts on different ids do not contend.
type shardedMap struct {
	shards [shardCount]*shard
}

func newShardedMap() *shardedMap {
	sm := &shardedMap{}
	for i := range sm.shards {
		sm.shards[i] = &shard{m: make(map[string]*entry.Entry)}
	}
	return sm
}

func (sm *shardedMap) pick(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return sm.shards[h.Sum32()%shardCount]
}

func (sm *shardedMap) get(id string) (*entry.Entry, bool) {
	s := sm.pick(id)
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.m[id]
	return e, ok
}

func (sm *shardedMap) put(e *entry.Entry) {
	s := sm.pick(e.ID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m[e.ID] = e
}

func (sm *shardedMap) remove(id string) {
	s := sm.pick(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.m, id)
}

// swap replaces the entry stored under id with fn's result. It reports false
// when id is absent.
func (sm *shardedMap) swap(id string, fn func(*entry.Entry) *entry.Entry) bool {
	s := sm.pick(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.m[id]
	if !ok {
		return false
	}
	s.m[id] = fn(cur)
	return true
}

// clear empties every shard in place.
func (sm *shardedMap) clear() {
	for _, s := range sm.shards {
		s.mu.Lock()
		clear(s.m)
		s.mu.Unlock()
	}
}

func (sm *shardedMap) len() int {
	n := 0
	for _, s := range sm.shards {
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}

// sorted returns every entry ordered by seq.
func (sm *shardedMap) sorted() []*entry.Entry {
	var out []*entry.Entry
	for _, s := range sm.shards {
		s.mu.RLock()
		for _, e := range s.m {
			out = append(out, e)
		}
		s.mu.RUnlock()
	}

	slices.SortFunc(out, func(a, b *entry.Entry) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	return out
}
