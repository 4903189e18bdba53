package riskstore

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory store for demo/development mode and tests.
type MemoryStore struct {
	data   *Snapshot
	mu     sync.RWMutex
	closed bool
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: NewSnapshot()}
}

func (m *MemoryStore) GetBusiness(_ context.Context, address string) (*BusinessProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.data.business(AddressKey(address)), nil
}

func (m *MemoryStore) PutBusiness(_ context.Context, profile *BusinessProfile) error {
	key, err := addressKey(profile.Address)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.data.putBusiness(key, profile)
	return nil
}

func (m *MemoryStore) GetRisk(_ context.Context, address string) (*RiskRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.data.risk(AddressKey(address)), nil
}

func (m *MemoryStore) PutRisk(_ context.Context, address string, record *RiskRecord) error {
	key, err := addressKey(address)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.data.putRisk(key, record)
	return nil
}

func (m *MemoryStore) GetPool(_ context.Context, id string) (*PoolMetrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.data.pool(id), nil
}

func (m *MemoryStore) PutPool(_ context.Context, metrics *PoolMetrics) error {
	if metrics.ID == "" {
		return ErrInvalidKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.data.putPool(metrics)
	return nil
}

func (m *MemoryStore) ListPools(_ context.Context) ([]*PoolMetrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.data.listPools(), nil
}

// Close marks the store closed; later calls return ErrClosed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// Snapshot accessors return copies so callers never share pointers with the
// store's maps.

func (s *Snapshot) business(key string) *BusinessProfile {
	p, ok := s.Businesses[key]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (s *Snapshot) putBusiness(key string, p *BusinessProfile) {
	cp := *p
	s.Businesses[key] = &cp
}

func (s *Snapshot) risk(key string) *RiskRecord {
	r, ok := s.Risks[key]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

func (s *Snapshot) putRisk(key string, r *RiskRecord) {
	cp := *r
	s.Risks[key] = &cp
}

func (s *Snapshot) pool(id string) *PoolMetrics {
	p, ok := s.Pools[id]
	if !ok {
		return nil
	}
	return clonePool(p)
}

func (s *Snapshot) putPool(p *PoolMetrics) {
	s.Pools[p.ID] = clonePool(p)
}

func (s *Snapshot) listPools() []*PoolMetrics {
	out := make([]*PoolMetrics, 0, len(s.Pools))
	for _, p := range s.Pools {
		out = append(out, clonePool(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func clonePool(p *PoolMetrics) *PoolMetrics {
	cp := *p
	if p.RiskScore != nil {
		score := *p.RiskScore
		cp.RiskScore = &score
	}
	return &cp
}
