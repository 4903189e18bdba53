package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/mbd888/streamvault/internal/logging"
	"github.com/mbd888/streamvault/internal/riskstore"
)

const addr = "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01"

func testHub() *Hub {
	return NewHub(logging.Discard())
}

func runHub(t *testing.T, h *Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
}

func register(t *testing.T, h *Hub, sub Subscription) *Client {
	t.Helper()
	c := &Client{hub: h, send: make(chan []byte, 256), sub: sub}
	h.register <- c
	return c
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case msg := <-c.send:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	return Event{}
}

func TestClientWants(t *testing.T) {
	risk := &Event{Type: EventRiskEvaluated, Address: strings.ToLower(addr)}
	reg := &Event{Type: EventBusinessRegistered, Address: "0x0000000000000000000000000000000000000001"}

	tests := []struct {
		name     string
		sub      Subscription
		wantRisk bool
		wantReg  bool
	}{
		{"all events", Subscription{AllEvents: true}, true, true},
		{"empty subscription", Subscription{}, true, true},
		{"type filter", Subscription{EventTypes: []EventType{EventRiskEvaluated}}, true, false},
		{"address filter is case-insensitive", Subscription{Addresses: []string{addr}}, true, false},
		{"type and address", Subscription{EventTypes: []EventType{EventBusinessRegistered}, Addresses: []string{addr}}, false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := &Client{sub: tc.sub}
			if got := c.wants(risk); got != tc.wantRisk {
				t.Errorf("risk event: got %v, want %v", got, tc.wantRisk)
			}
			if got := c.wants(reg); got != tc.wantReg {
				t.Errorf("registration event: got %v, want %v", got, tc.wantReg)
			}
		})
	}
}

func TestHub_RiskEvaluated(t *testing.T) {
	h := testHub()
	h.now = func() time.Time { return time.Unix(1700000000, 0) }
	runHub(t, h)
	c := register(t, h, Subscription{AllEvents: true})

	h.RiskEvaluated(context.Background(), addr, &riskstore.RiskRecord{
		Score:     42,
		Band:      "MEDIUM",
		Signature: "0xsig",
		Payload:   riskstore.SignedPayload{Expiry: 1700003600},
	})

	ev := receive(t, c)
	if ev.Type != EventRiskEvaluated || ev.Address != strings.ToLower(addr) {
		t.Fatalf("unexpected event %+v", ev)
	}
	data := ev.Data.(map[string]any)
	if data["band"] != "MEDIUM" || data["score"].(float64) != 42 || data["expiry"].(float64) != 1700003600 {
		t.Errorf("unexpected data %v", data)
	}
	if !ev.Timestamp.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("timestamp = %v", ev.Timestamp)
	}
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := testHub()
	runHub(t, h)
	c := register(t, h, Subscription{EventTypes: []EventType{EventBusinessRegistered}})

	h.RiskEvaluated(context.Background(), addr, &riskstore.RiskRecord{Band: "LOW"})
	h.BusinessRegistered(context.Background(), &riskstore.BusinessProfile{Address: addr, Name: "Acme"})

	ev := receive(t, c)
	if ev.Type != EventBusinessRegistered {
		t.Fatalf("expected only the registration event, got %s", ev.Type)
	}
	select {
	case <-c.send:
		t.Fatal("unexpected second event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_StatsAndUnregister(t *testing.T) {
	h := testHub()
	runHub(t, h)
	c := register(t, h, Subscription{AllEvents: true})

	h.Broadcast(&Event{Type: EventRiskEvaluated})
	receive(t, c)

	st := h.Stats()
	if st.ConnectedClients != 1 || st.TotalEvents != 1 || st.PeakClients != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}

	h.unregister <- c
	deadline := time.Now().Add(time.Second)
	for h.Stats().ConnectedClients != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client not unregistered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if h.Stats().PeakClients != 1 {
		t.Error("peak should survive unregister")
	}
}

func TestHub_BroadcastDropsWhenFull(t *testing.T) {
	h := testHub()
	for i := 0; i < cap(h.broadcast)+3; i++ {
		h.Broadcast(&Event{Type: EventRiskEvaluated})
	}
	if got := h.Stats().DroppedEvents; got != 3 {
		t.Fatalf("dropped = %d, want 3", got)
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Hub did not stop after context cancellation")
	}
}

func wsRouter(h *Hub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", h.Handler())
	return r
}

func TestHandleWebSocket_EndToEnd(t *testing.T) {
	h := testHub()
	runHub(t, h)

	srv := httptest.NewServer(wsRouter(h))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub, _ := json.Marshal(Subscription{Addresses: []string{addr}})
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		t.Fatalf("write subscription: %v", err)
	}

	// wait until the subscription is applied before publishing
	deadline := time.Now().Add(time.Second)
	for {
		h.mu.RLock()
		applied := false
		for c := range h.clients {
			c.mu.RLock()
			applied = len(c.sub.Addresses) == 1
			c.mu.RUnlock()
		}
		h.mu.RUnlock()
		if applied {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscription not applied")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.BusinessRegistered(context.Background(), &riskstore.BusinessProfile{Address: "0x0000000000000000000000000000000000000002"})
	h.RiskEvaluated(context.Background(), addr, &riskstore.RiskRecord{Score: 7, Band: "LOW"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != EventRiskEvaluated {
		t.Fatalf("expected the subscribed address only, got %+v", ev)
	}
}

func TestHandleWebSocket_RejectsForeignOrigin(t *testing.T) {
	h := NewHub(logging.Discard(), "https://app.example")
	runHub(t, h)

	srv := httptest.NewServer(wsRouter(h))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	header := map[string][]string{"Origin": {"https://evil.example"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatal("expected foreign origin to be refused")
	}

	header = map[string][]string{"Origin": {"https://app.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("allowed origin refused: %v", err)
	}
	conn.Close()
}
