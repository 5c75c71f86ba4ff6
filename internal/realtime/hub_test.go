package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: EventTxConfirmed, Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventServiceAdded, EventServiceUpdated},
	}}

	added := &Event{Type: EventServiceAdded}
	updated := &Event{Type: EventServiceUpdated}
	confirmed := &Event{Type: EventTxConfirmed}

	if !h.shouldSend(client, added) {
		t.Error("Should receive service_added events")
	}
	if !h.shouldSend(client, updated) {
		t.Error("Should receive service_updated events")
	}
	if h.shouldSend(client, confirmed) {
		t.Error("Should NOT receive tx_confirmed events")
	}
}

func TestShouldSend_AddressFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Addresses: []string{"0xAbCdEf1234567890123456789012345678901234"},
	}}

	matching := &Event{
		Type: EventOrderUpdated,
		Data: map[string]interface{}{"address": "0xabcdef1234567890123456789012345678901234"},
	}
	notMatching := &Event{
		Type: EventOrderUpdated,
		Data: map[string]interface{}{"address": "0x0000000000000000000000000000000000000001"},
	}

	if !h.shouldSend(client, matching) {
		t.Error("Should match address case-insensitively")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match unrelated addresses")
	}
}

func TestShouldSend_ServiceIDFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		ServiceIDs: []uint64{3},
	}}

	matching := &Event{
		Type: EventServiceUpdated,
		Data: map[string]interface{}{"serviceId": uint64(3)},
	}
	// Payloads that went through a JSON round trip carry float64 ids.
	matchingFloat := &Event{
		Type: EventServiceUpdated,
		Data: map[string]interface{}{"serviceId": float64(3)},
	}
	notMatching := &Event{
		Type: EventServiceUpdated,
		Data: map[string]interface{}{"serviceId": uint64(9)},
	}
	noID := &Event{
		Type: EventServiceUpdated,
		Data: map[string]interface{}{"name": "premium"},
	}

	if !h.shouldSend(client, matching) {
		t.Error("Should match uint64 service id")
	}
	if !h.shouldSend(client, matchingFloat) {
		t.Error("Should match float64 service id")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match other service ids")
	}
	if h.shouldSend(client, noID) {
		t.Error("Should NOT match events without a service id")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()

	// No filters, not AllEvents
	client := &Client{sub: Subscription{}}

	event := &Event{Type: EventTxConfirmed}
	if !h.shouldSend(client, event) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

func TestShouldSend_NonMapData(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Addresses: []string{"0xabc"},
	}}

	// Event with non-map data should not crash
	event := &Event{
		Type: EventTxConfirmed,
		Data: "string data not a map",
	}

	// Address filter can't extract anything from non-map data, so the
	// event is dropped rather than leaked to a narrowed subscription.
	if h.shouldSend(client, event) {
		t.Error("Non-map data should not match an address filter")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_BroadcastAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Broadcast an event
	h.Broadcast(&Event{Type: EventTxConfirmed, Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("Expected 1 total event, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_BroadcastToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.BroadcastServiceAdded("premium-sword", "2500", "0xdeadbeef")

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_BroadcastServiceUpdated(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Should not panic
	h.BroadcastServiceUpdated(2, "premium-sword", "3000", false, "0xdeadbeef")
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Client only wants catalog additions
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []EventType{EventServiceAdded}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	// Send a confirmation event (should be filtered out)
	h.Broadcast(&Event{Type: EventTxConfirmed, Timestamp: time.Now()})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive tx_confirmed event")
	default:
		// Good - filtered out
	}

	// Send a catalog addition (should be received)
	h.Broadcast(&Event{Type: EventServiceAdded, Timestamp: time.Now()})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive service_added event")
	}
}
