package orders

import (
	"context"
	"sync"
)

// Store is the shared lookup table for order state. It is the single
// source of truth for an order's lifecycle; every component goes through
// this contract and nothing else. Absence is an expected outcome, not an
// error: Get returns (nil, nil) for an unknown id.
type Store interface {
	// Set inserts or overwrites a record. Empty order ids are a no-op.
	Set(ctx context.Context, orderID string, rec *Record) error
	Get(ctx context.Context, orderID string) (*Record, error)
	Has(ctx context.Context, orderID string) (bool, error)
	// Clear wipes all state. Test/reset use only.
	Clear(ctx context.Context) error
}

// AtomicCreator is an optional Store capability: claim an order id only if
// no record exists yet. Backends that can express this as a conditional
// write (DynamoDB) implement it; the orchestrator falls back to its own
// locking otherwise.
type AtomicCreator interface {
	CreateIfAbsent(ctx context.Context, rec *Record) (bool, error)
}

// MemoryStore is the in-process Store. State is lost on restart by
// contract; durability belongs to a swappable backend, not here.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Set(ctx context.Context, orderID string, rec *Record) error {
	if orderID == "" || rec == nil {
		return nil
	}
	cp := rec.Clone()
	cp.OrderID = orderID

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[orderID] = cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, orderID string) (*Record, error) {
	if orderID == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[orderID].Clone(), nil
}

func (s *MemoryStore) Has(ctx context.Context, orderID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[orderID]
	return ok, nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*Record)
	return nil
}

// CreateIfAbsent stores the record only when the id is unclaimed, in one
// critical section.
func (s *MemoryStore) CreateIfAbsent(ctx context.Context, rec *Record) (bool, error) {
	if rec == nil || rec.OrderID == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.OrderID]; ok {
		return false, nil
	}
	s.records[rec.OrderID] = rec.Clone()
	return true, nil
}
