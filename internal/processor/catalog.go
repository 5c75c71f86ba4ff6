package processor

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/gamepay/procadmin/internal/logging"
	"github.com/gamepay/procadmin/internal/traces"
)

// AddService registers a new purchasable service on the contract and blocks
// until the transaction is mined. The caller gets success only after the
// catalog change is irreversible on-chain.
func (p *Processor) AddService(ctx context.Context, name string, cost *big.Int) (*TxResult, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &WriteError{Method: "addService", Err: fmt.Errorf("%w: service name required", ErrInvalidArgument)}
	}
	if cost == nil || cost.Sign() < 0 {
		return nil, &WriteError{Method: "addService", Err: fmt.Errorf("%w: service cost must be non-negative", ErrInvalidArgument)}
	}

	ctx, span := traces.StartSpan(ctx, "processor.AddService",
		traces.ServiceName(name), traces.Cost(cost.String()))
	defer span.End()

	start := time.Now()
	tx, err := p.submit(ctx, "addService", name, cost)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction submission failed")
		return nil, err
	}
	span.SetAttributes(traces.TxHash(tx.Hash().Hex()))

	result, err := p.waitMined(ctx, "addService", tx.Hash())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction not confirmed")
		return nil, err
	}

	logging.L(ctx).Info("service added",
		"name", name,
		"cost", cost.String(),
		"tx", result.TxHash,
		"block", result.BlockNumber,
		"elapsed", time.Since(start))
	return result, nil
}

// UpdateService rewrites an existing catalog entry and blocks until mined.
// The id is checked against a fresh nextServiceId read first, so a typo'd id
// fails as a read-level range error instead of a reverted transaction.
func (p *Processor) UpdateService(ctx context.Context, id *big.Int, name string, cost *big.Int, enabled bool) (*TxResult, error) {
	if id == nil || id.Sign() < 0 {
		return nil, &WriteError{Method: "updateService", Err: fmt.Errorf("%w: service id must be non-negative", ErrInvalidArgument)}
	}
	if strings.TrimSpace(name) == "" {
		return nil, &WriteError{Method: "updateService", Err: fmt.Errorf("%w: service name required", ErrInvalidArgument)}
	}
	if cost == nil || cost.Sign() < 0 {
		return nil, &WriteError{Method: "updateService", Err: fmt.Errorf("%w: service cost must be non-negative", ErrInvalidArgument)}
	}

	ctx, span := traces.StartSpan(ctx, "processor.UpdateService",
		traces.ServiceID(id.String()), traces.ServiceName(name), traces.Cost(cost.String()))
	defer span.End()

	next, err := p.callWord(ctx, "getNextServiceId")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "next service id read failed")
		return nil, err
	}
	if id.Cmp(next) >= 0 {
		return nil, &WriteError{
			Method: "updateService",
			Err:    fmt.Errorf("%w: id %s, next %s", ErrServiceIndex, id, next),
		}
	}

	tx, err := p.submit(ctx, "updateService", id, name, cost, enabled)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction submission failed")
		return nil, err
	}
	span.SetAttributes(traces.TxHash(tx.Hash().Hex()))

	result, err := p.waitMined(ctx, "updateService", tx.Hash())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction not confirmed")
		return nil, err
	}

	logging.L(ctx).Info("service updated",
		"id", id.String(),
		"name", name,
		"cost", cost.String(),
		"enabled", enabled,
		"tx", result.TxHash)
	return result, nil
}
