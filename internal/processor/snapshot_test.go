package processor

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func stubState(client *fakeClient, nextID, firstPot, secondPot *big.Int) {
	client.stubValue("getName", "Game Payment Processor")
	client.stubValue("getFirstParty", common.HexToAddress("0x1111111111111111111111111111111111111111"))
	client.stubValue("getSecondParty", common.HexToAddress("0x2222222222222222222222222222222222222222"))
	client.stubValue("getNextServiceId", nextID)
	client.stubValue("getFirstPartyPot", firstPot)
	client.stubValue("getSecondPartyPot", secondPot)
}

func TestSnapshot(t *testing.T) {
	client := newFakeClient(t)

	// Pot balances above 2^53 must survive undamaged.
	bigPot, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	stubState(client, big.NewInt(3), bigPot, big.NewInt(0))

	p := newTestProcessor(t, client)

	state, err := p.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if state.Name != "Game Payment Processor" {
		t.Errorf("name = %q", state.Name)
	}
	if state.FirstParty != "0x1111111111111111111111111111111111111111" {
		t.Errorf("firstParty = %q", state.FirstParty)
	}
	if state.NextServiceID.Int64() != 3 {
		t.Errorf("nextServiceId = %s", state.NextServiceID)
	}
	if state.FirstPartyPot.Cmp(bigPot) != 0 {
		t.Errorf("firstPartyPot = %s, want %s", state.FirstPartyPot, bigPot)
	}

	// The JSON form must carry the full integer, not a float approximation.
	raw, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		FirstPartyPot json.Number `json:"firstPartyPot"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.FirstPartyPot.String() != bigPot.String() {
		t.Errorf("JSON pot = %s, want %s", decoded.FirstPartyPot, bigPot)
	}
}

func TestSnapshotAllOrNothing(t *testing.T) {
	client := newFakeClient(t)
	stubState(client, big.NewInt(3), big.NewInt(10), big.NewInt(20))
	client.failRead("getSecondPartyPot", errors.New("rpc: connection refused"))

	p := newTestProcessor(t, client)

	state, err := p.Snapshot(context.Background())
	if state != nil {
		t.Fatal("expected nil state when any read fails")
	}

	var readErr *ReadError
	if !errors.As(err, &readErr) {
		t.Fatalf("expected ReadError, got %v", err)
	}
	if readErr.Method != "getSecondPartyPot" {
		t.Errorf("failed method = %q", readErr.Method)
	}
}
