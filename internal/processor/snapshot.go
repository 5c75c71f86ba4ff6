package processor

import (
	"context"
	"math/big"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/gamepay/procadmin/internal/traces"
)

// State is the freely-readable contract state shown on the dashboard.
// Numeric fields are big.Ints so pot balances keep full 256-bit precision
// through JSON (big.Int marshals as an unquoted decimal integer).
type State struct {
	Name           string   `json:"name"`
	FirstParty     string   `json:"firstParty"`
	SecondParty    string   `json:"secondParty"`
	NextServiceID  *big.Int `json:"nextServiceId"`
	FirstPartyPot  *big.Int `json:"firstPartyPot"`
	SecondPartyPot *big.Int `json:"secondPartyPot"`
}

// Snapshot reads the six state values concurrently. The result is
// all-or-nothing: if any read fails the whole snapshot fails, so the
// dashboard never shows a view stitched from different moments of partial
// failure.
func (p *Processor) Snapshot(ctx context.Context) (*State, error) {
	ctx, span := traces.StartSpan(ctx, "processor.Snapshot")
	defer span.End()

	var state State

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		v, err := p.callString(gctx, "getName")
		state.Name = v
		return err
	})
	g.Go(func() error {
		v, err := p.callAddress(gctx, "getFirstParty")
		state.FirstParty = v
		return err
	})
	g.Go(func() error {
		v, err := p.callAddress(gctx, "getSecondParty")
		state.SecondParty = v
		return err
	})
	g.Go(func() error {
		v, err := p.callWord(gctx, "getNextServiceId")
		state.NextServiceID = v
		return err
	})
	g.Go(func() error {
		v, err := p.callWord(gctx, "getFirstPartyPot")
		state.FirstPartyPot = v
		return err
	})
	g.Go(func() error {
		v, err := p.callWord(gctx, "getSecondPartyPot")
		state.SecondPartyPot = v
		return err
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "state read failed")
		return nil, err
	}
	return &state, nil
}
