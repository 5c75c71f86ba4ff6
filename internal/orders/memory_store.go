package orders

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store in memory. Used when no DATABASE_URL is
// configured, which keeps local development off a running Postgres.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[string]*Order
}

// NewMemoryStore creates an empty in-memory order store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Order)}
}

// Create records a new pending order.
func (m *MemoryStore) Create(_ context.Context, order *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[order.OrderID]; exists {
		return ErrDuplicateOrder
	}

	m.nextID++
	order.ID = m.nextID
	order.PurchaserAddress = strings.ToLower(order.PurchaserAddress)
	if order.Status == "" {
		order.Status = StatusPending
	}
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now

	stored := *order
	m.byID[order.OrderID] = &stored
	return nil
}

// ListPending returns all orders still awaiting fulfillment, oldest first.
func (m *MemoryStore) ListPending(_ context.Context) ([]*Order, error) {
	return m.list(func(o *Order) bool { return o.Status == StatusPending }), nil
}

// ListPendingByAddress returns the pending orders for a purchaser address,
// oldest first.
func (m *MemoryStore) ListPendingByAddress(_ context.Context, address string) ([]*Order, error) {
	address = strings.ToLower(address)
	return m.list(func(o *Order) bool {
		return o.PurchaserAddress == address && o.Status == StatusPending
	}), nil
}

// UpdateStatus moves an order to a new status.
func (m *MemoryStore) UpdateStatus(_ context.Context, orderID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.byID[orderID]
	if !ok {
		return ErrNotFound
	}
	order.Status = status
	order.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) list(keep func(*Order) bool) []*Order {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Order
	for _, order := range m.byID {
		if keep(order) {
			copied := *order
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}
