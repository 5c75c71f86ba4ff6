package processor

import (
	"context"
	"math/big"

	"golang.org/x/sync/errgroup"
)

// Service is one catalog entry.
type Service struct {
	ID      uint64   `json:"id"`
	Name    string   `json:"name"`
	Cost    *big.Int `json:"cost"`
	Enabled bool     `json:"enabled"`
}

// Services reads the catalog entries below count. Each entry needs three
// view calls (name, cost, enabled); entries are fetched with bounded
// concurrency and reassembled in ascending index order regardless of
// completion order. Any failed read aborts the whole listing: a catalog
// with holes is worse than no catalog.
func (p *Processor) Services(ctx context.Context, count uint64) ([]Service, error) {
	services := make([]Service, count)
	if count == 0 {
		return services, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(serviceReadConcurrency)

	for i := uint64(0); i < count; i++ {
		id := i
		g.Go(func() error {
			idx := new(big.Int).SetUint64(id)

			name, err := p.callString(gctx, "getServiceName", idx)
			if err != nil {
				return err
			}
			cost, err := p.callWord(gctx, "getServiceCost", idx)
			if err != nil {
				return err
			}
			enabled, err := p.callBool(gctx, "getServiceEnabled", idx)
			if err != nil {
				return err
			}

			services[id] = Service{ID: id, Name: name, Cost: cost, Enabled: enabled}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return services, nil
}
