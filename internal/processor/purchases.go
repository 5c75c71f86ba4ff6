package processor

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/codes"

	"github.com/gamepay/procadmin/internal/traces"
	"github.com/gamepay/procadmin/internal/validation"
)

// Purchase is one on-chain purchase record for an address.
type Purchase struct {
	ServiceID *big.Int `json:"serviceId"`
	Cost      *big.Int `json:"cost"`
	Timestamp *big.Int `json:"timestamp"`
}

// purchaseRecord matches the ABI tuple layout of getPurchases.
type purchaseRecord struct {
	ServiceId *big.Int
	Cost      *big.Int
	Timestamp *big.Int
}

// Purchases returns the purchase history registered to an address.
func (p *Processor) Purchases(ctx context.Context, address string) ([]Purchase, error) {
	if !validation.IsValidEthAddress(address) {
		return nil, &ReadError{
			Method: "getPurchases",
			Err:    fmt.Errorf("%w: %q is not an address", ErrInvalidArgument, address),
		}
	}

	ctx, span := traces.StartSpan(ctx, "processor.Purchases",
		traces.PurchaserAddr(address))
	defer span.End()

	out, err := p.call(ctx, "getPurchases", common.HexToAddress(address))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "purchase history read failed")
		return nil, err
	}

	vals, err := p.abi.Unpack("getPurchases", out)
	if err != nil || len(vals) != 1 {
		return nil, &ReadError{Method: "getPurchases", Err: fmt.Errorf("unpacking return: %v", err)}
	}

	records := *abi.ConvertType(vals[0], new([]purchaseRecord)).(*[]purchaseRecord)

	purchases := make([]Purchase, len(records))
	for i, r := range records {
		purchases[i] = Purchase{ServiceID: r.ServiceId, Cost: r.Cost, Timestamp: r.Timestamp}
	}
	return purchases, nil
}
