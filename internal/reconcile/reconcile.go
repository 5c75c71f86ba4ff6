// Package reconcile cross-references on-chain purchase history with the
// off-chain pending order rows for an address.
package reconcile

import (
	"context"
	"errors"
	"sync"

	"github.com/gamepay/procadmin/internal/logging"
	"github.com/gamepay/procadmin/internal/metrics"
	"github.com/gamepay/procadmin/internal/orders"
	"github.com/gamepay/procadmin/internal/processor"
)

// ContractSource provides on-chain purchase history.
type ContractSource interface {
	Purchases(ctx context.Context, address string) ([]processor.Purchase, error)
}

// Report is the combined audit view for one purchaser address.
//
// Correlation between the two sides is by address only: the contract keys
// purchases to the purchaser, while order rows carry their own order ids
// that never reach the chain. Until the contract records an order id per
// purchase there is no stable per-purchase join key.
type Report struct {
	Address      string               `json:"address"`
	Purchases    []processor.Purchase `json:"purchases"`
	OrderDetails []*orders.Order      `json:"orderDetails"`
}

// Reconciler runs the two-sided purchase lookup.
type Reconciler struct {
	contract ContractSource
	store    orders.Store
}

// New creates a Reconciler over the contract and the order store.
func New(contract ContractSource, store orders.Store) *Reconciler {
	return &Reconciler{contract: contract, store: store}
}

// Lookup queries the contract and the database concurrently. Both sources
// are always queried, even when one fails early, so every run leaves a full
// diagnostic trail; but the result is all-or-nothing, because a half
// populated audit view invites wrong conclusions.
func (r *Reconciler) Lookup(ctx context.Context, address string) (*Report, error) {
	var (
		wg        sync.WaitGroup
		purchases []processor.Purchase
		rows      []*orders.Order
		chainErr  error
		storeErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		purchases, chainErr = r.contract.Purchases(ctx, address)
	}()
	go func() {
		defer wg.Done()
		rows, storeErr = r.store.ListPendingByAddress(ctx, address)
		var qe *orders.QueryError
		if storeErr != nil && !errors.As(storeErr, &qe) {
			storeErr = &orders.QueryError{Op: "list pending by address", Err: storeErr}
		}
	}()
	wg.Wait()

	if chainErr != nil || storeErr != nil {
		logging.L(ctx).Error("purchase lookup failed",
			"address", address,
			"contract_error", chainErr,
			"database_error", storeErr)
		metrics.ReconciliationsTotal.WithLabelValues(lookupResult(chainErr, storeErr)).Inc()
		return nil, errors.Join(chainErr, storeErr)
	}

	metrics.ReconciliationsTotal.WithLabelValues("ok").Inc()
	return &Report{
		Address:      address,
		Purchases:    purchases,
		OrderDetails: rows,
	}, nil
}

func lookupResult(chainErr, storeErr error) string {
	switch {
	case chainErr != nil && storeErr != nil:
		return "both_failed"
	case chainErr != nil:
		return "contract_error"
	default:
		return "database_error"
	}
}
