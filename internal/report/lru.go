package report

import (
	"container/list"
	"sync"
)

// LRUStore keeps the most recently used records in memory and writes
// through to a backing Store. Misses are loaded from the backing store.
type LRUStore struct {
	mu    sync.Mutex
	cap   int
	back  Store
	order *list.List // of *Record, most recent at front
	items map[string]*list.Element
}

// NewLRUStore creates an LRU cache holding up to cap records in front of
// back. A capacity below 1 is treated as 1.
func NewLRUStore(cap int, back Store) *LRUStore {
	return &LRUStore{
		cap:   max(cap, 1),
		back:  back,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

// Save caches the record and writes it to the backing store.
func (s *LRUStore) Save(record *Record) error {
	s.put(record)
	return s.back.Save(record)
}

// Load returns a cached record, or loads it from the backing store and
// caches it.
func (s *LRUStore) Load(runID string) (*Record, error) {
	s.mu.Lock()
	if el, ok := s.items[runID]; ok {
		s.order.MoveToFront(el)
		r := el.Value.(*Record)
		s.mu.Unlock()
		return r, nil
	}
	s.mu.Unlock()

	record, err := s.back.Load(runID)
	if err != nil {
		return nil, err
	}
	s.put(record)
	return record, nil
}

// Len returns the number of cached records.
func (s *LRUStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *LRUStore) put(record *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[record.ID]; ok {
		el.Value = record
		s.order.MoveToFront(el)
		return
	}
	s.items[record.ID] = s.order.PushFront(record)
	for s.order.Len() > s.cap {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(*Record).ID)
	}
}
