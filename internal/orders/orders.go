// Package orders stores the off-chain side of purchase processing: pending
// ether purchase rows awaiting fulfillment, cross-checked against the
// contract's purchase history by the reconciler.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates no order matched the lookup.
	ErrNotFound = errors.New("orders: order not found")

	// ErrDuplicateOrder indicates the order ID is already recorded.
	ErrDuplicateOrder = errors.New("orders: duplicate order id")
)

// QueryError wraps database failures with the operation that hit them.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("orders: %s failed: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Status values an order moves through.
const (
	StatusPending   = "pending"
	StatusFulfilled = "fulfilled"
	StatusFailed    = "failed"
)

// Order is one pending ether purchase row.
type Order struct {
	ID               int64     `json:"id"`
	OrderID          string    `json:"orderId"`
	PurchaserAddress string    `json:"purchaserAddress"`
	ServiceID        int64     `json:"serviceId"`
	Amount           string    `json:"amount"` // NUMERIC as string, no float
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Store persists pending purchase orders.
type Store interface {
	// Create records a new pending order.
	Create(ctx context.Context, order *Order) error
	// ListPending returns all orders still awaiting fulfillment, oldest first.
	ListPending(ctx context.Context) ([]*Order, error)
	// ListPendingByAddress returns the orders for a purchaser address still
	// awaiting fulfillment, oldest first. Fulfilled and failed rows are
	// settled history and stay out of the audit view.
	ListPendingByAddress(ctx context.Context, address string) ([]*Order, error)
	// UpdateStatus moves an order to a new status.
	UpdateStatus(ctx context.Context, orderID, status string) error
}
