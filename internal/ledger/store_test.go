package ledger

import (
	"context"
	"sync"

	"stock-ledger/internal/models"
)

// memStore implementa Store en memoria para los tests del ledger.
type memStore struct {
	mu        sync.Mutex
	products  map[string]*models.Product
	movements []*models.StockMovement

	failInsert error
	failSet    error
	// casAlwaysFails simula un escritor concurrente que siempre gana.
	casAlwaysFails bool

	setCalls    int
	casCalls    int
	insertCalls int
}

func newMemStore(products ...*models.Product) *memStore {
	s := &memStore{products: make(map[string]*models.Product)}
	for _, p := range products {
		cp := *p
		if cp.Version == 0 {
			cp.Version = 1
		}
		s.products[p.ID] = &cp
	}
	return s
}

func (s *memStore) GetProduct(_ context.Context, companyID, productID string) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok || p.CompanyID != companyID {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) SetQuantity(_ context.Context, productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setCalls++
	if s.failSet != nil {
		return s.failSet
	}
	p := s.products[productID]
	p.Quantity = quantity
	p.Version++
	return nil
}

func (s *memStore) CompareAndSetQuantity(_ context.Context, productID string, expectedVersion, quantity int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.casCalls++
	if s.failSet != nil {
		return false, s.failSet
	}
	p := s.products[productID]
	if s.casAlwaysFails || p.Version != expectedVersion {
		return false, nil
	}
	p.Quantity = quantity
	p.Version++
	return true, nil
}

func (s *memStore) InsertMovement(_ context.Context, m *models.StockMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.insertCalls++
	if s.failInsert != nil {
		return s.failInsert
	}
	cp := *m
	s.movements = append(s.movements, &cp)
	return nil
}

func (s *memStore) ListProductMovements(_ context.Context, companyID, productID string) ([]*models.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.StockMovement
	for _, m := range s.movements {
		if m.CompanyID == companyID && m.ProductID == productID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

// WithinTx restaura el estado previo si fn falla.
func (s *memStore) WithinTx(_ context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	products := make(map[string]models.Product, len(s.products))
	for id, p := range s.products {
		products[id] = *p
	}
	movements := len(s.movements)
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		for id, p := range products {
			cp := p
			s.products[id] = &cp
		}
		s.movements = s.movements[:movements]
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) quantity(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[productID].Quantity
}

func (s *memStore) movementCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.movements)
}

// barrierStore retiene las primeras n lecturas hasta que todas se hayan hecho,
// forzando que dos ajustes concurrentes lean la misma cantidad.
type barrierStore struct {
	*memStore

	mu      sync.Mutex
	pending int
	release chan struct{}
}

func newBarrierStore(inner *memStore, n int) *barrierStore {
	return &barrierStore{memStore: inner, pending: n, release: make(chan struct{})}
}

func (b *barrierStore) GetProduct(ctx context.Context, companyID, productID string) (*models.Product, error) {
	p, err := b.memStore.GetProduct(ctx, companyID, productID)

	b.mu.Lock()
	if b.pending == 0 {
		b.mu.Unlock()
		return p, err
	}
	b.pending--
	if b.pending == 0 {
		close(b.release)
	}
	b.mu.Unlock()

	<-b.release
	return p, err
}

func (b *barrierStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	return b.memStore.WithinTx(ctx, func(Store) error { return fn(b) })
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[Outcome]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{counts: make(map[Outcome]int)}
}

func (r *countingRecorder) RecordAdjustment(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[o]++
}

func (r *countingRecorder) count(o Outcome) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[o]
}
