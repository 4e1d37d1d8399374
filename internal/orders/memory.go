package orders

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRepository keeps orders in process. It backs the memory storage
// driver and tests.
type MemoryRepository struct {
	mu     sync.RWMutex
	orders map[string]Order
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: make(map[string]Order)}
}

// Create stores a copy of o.
func (m *MemoryRepository) Create(_ context.Context, o Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.Ref]; ok {
		return fmt.Errorf("order %s: %w", o.Ref, ErrDuplicate)
	}
	m.orders[o.Ref] = copyOrder(o)
	return nil
}

// Get returns a copy of the stored order.
func (m *MemoryRepository) Get(_ context.Context, ref string) (Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[ref]
	if !ok {
		return Order{}, fmt.Errorf("order %s: %w", ref, ErrNotFound)
	}
	return copyOrder(o), nil
}

// MarkCashbackCredited stamps the order once.
func (m *MemoryRepository) MarkCashbackCredited(_ context.Context, ref string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[ref]
	if !ok {
		return false, fmt.Errorf("order %s: %w", ref, ErrNotFound)
	}
	if o.CashbackCreditedAt != nil {
		return false, nil
	}
	o.CashbackCreditedAt = &at
	m.orders[ref] = o
	return true, nil
}

func copyOrder(o Order) Order {
	o.Lines = append([]Line(nil), o.Lines...)
	if o.CashbackCreditedAt != nil {
		at := *o.CashbackCreditedAt
		o.CashbackCreditedAt = &at
	}
	return o
}
