package processor

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestPurchases(t *testing.T) {
	client := newFakeClient(t)

	wantAddr := common.HexToAddress("0x3333333333333333333333333333333333333333")
	client.stub("getPurchases", func(args []any) ([]any, error) {
		if got := args[0].(common.Address); got != wantAddr {
			t.Errorf("queried address = %s", got.Hex())
		}
		return []any{[]purchaseRecord{
			{ServiceId: big.NewInt(1), Cost: big.NewInt(250), Timestamp: big.NewInt(1700000000)},
			{ServiceId: big.NewInt(4), Cost: big.NewInt(75), Timestamp: big.NewInt(1700000500)},
		}}, nil
	})

	p := newTestProcessor(t, client)

	purchases, err := p.Purchases(context.Background(), wantAddr.Hex())
	if err != nil {
		t.Fatalf("purchases: %v", err)
	}
	if len(purchases) != 2 {
		t.Fatalf("expected 2 purchases, got %d", len(purchases))
	}
	if purchases[0].ServiceID.Int64() != 1 || purchases[0].Cost.Int64() != 250 {
		t.Errorf("purchases[0] = %+v", purchases[0])
	}
	if purchases[1].Timestamp.Int64() != 1700000500 {
		t.Errorf("purchases[1].Timestamp = %s", purchases[1].Timestamp)
	}
}

func TestPurchasesEmptyHistory(t *testing.T) {
	client := newFakeClient(t)
	client.stubValue("getPurchases", []purchaseRecord{})

	p := newTestProcessor(t, client)

	purchases, err := p.Purchases(context.Background(), "0x3333333333333333333333333333333333333333")
	if err != nil {
		t.Fatalf("purchases: %v", err)
	}
	if len(purchases) != 0 {
		t.Fatalf("expected no purchases, got %d", len(purchases))
	}
}

func TestPurchasesRejectsBadAddress(t *testing.T) {
	p := newTestProcessor(t, newFakeClient(t))

	_, err := p.Purchases(context.Background(), "not-an-address")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestPurchasesReadFailure(t *testing.T) {
	client := newFakeClient(t)
	client.failRead("getPurchases", errors.New("rpc: connection reset"))

	p := newTestProcessor(t, client)

	_, err := p.Purchases(context.Background(), "0x3333333333333333333333333333333333333333")

	var readErr *ReadError
	if !errors.As(err, &readErr) {
		t.Fatalf("expected ReadError, got %v", err)
	}
}
