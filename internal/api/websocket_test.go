package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-gluehome/internal/cloud"
	"github.com/nerrad567/gray-logic-gluehome/internal/coordinator"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(testWSConfig(), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := newTestHub(t)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{ChannelLockStateChanged: {}},
	}
	hub.Register(client)

	hub.Broadcast(ChannelLockStateChanged, "lock-1", map[string]any{"id": "lock-1"})

	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.EventType != ChannelLockStateChanged {
			t.Errorf("event_type = %q, want %q", wsMsg.EventType, ChannelLockStateChanged)
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for broadcast message")
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := newTestHub(t)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{"other.channel": {}},
	}
	hub.Register(client)

	hub.Broadcast(ChannelLockStateChanged, "lock-1", map[string]any{"id": "lock-1"})

	select {
	case <-client.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_LockFilter(t *testing.T) {
	hub := newTestHub(t)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{ChannelLockStateChanged: {}},
		lockIDs:       map[string]struct{}{"lock-2": {}},
	}
	hub.Register(client)

	hub.Broadcast(ChannelLockStateChanged, "lock-1", map[string]any{"id": "lock-1"})
	hub.Broadcast(ChannelLockStateChanged, "lock-2", map[string]any{"id": "lock-2"})

	select {
	case msg := <-client.send:
		var got struct {
			Payload struct {
				ID string `json:"id"`
			} `json:"payload"`
		}
		if err := json.Unmarshal(msg, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Payload.ID != "lock-2" {
			t.Errorf("payload id = %q, want lock-2", got.Payload.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast message")
	}

	select {
	case <-client.send:
		t.Error("filtered client received a second message")
	default:
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := newTestHub(t)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
}

// startWSServer serves the router over a real listener with the hub running
// and state relays in place.
func startWSServer(t *testing.T) (*Server, testDeps, string) {
	t.Helper()

	srv, deps := testServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	go srv.hub.Run(ctx)
	srv.subscribeStateUpdates()

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})

	return srv, deps, "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func subscribe(t *testing.T, ws *websocket.Conn, channels ...string) {
	t.Helper()
	subscribeLocks(t, ws, channels, nil)
}

func subscribeLocks(t *testing.T, ws *websocket.Conn, channels, lockIDs []string) {
	t.Helper()
	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: channels, LockIDs: lockIDs},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read subscribe response: %v", err)
	}
	if resp.Type != WSTypeResponse || resp.ID != "sub-1" {
		t.Fatalf("subscribe response = %+v", resp)
	}
}

func TestWebSocket_RefreshBroadcastsLocks(t *testing.T) {
	_, deps, url := startWSServer(t)
	ws := dialWS(t, url)
	subscribe(t, ws, ChannelLockStateChanged)

	deps.coord.push(coordinator.Update{Directory: &coordinator.Directory{
		Locks: []cloud.Lock{{
			ID:               "lock-new",
			Description:      "Garage",
			ConnectionStatus: cloud.ConnectionBusy,
			LastLockEvent:    cloud.LockEvent{EventType: "manualUnlock"},
		}},
	}})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type      string   `json:"type"`
		EventType string   `json:"event_type"`
		Payload   LockView `json:"payload"`
	}
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if msg.Type != WSTypeEvent || msg.EventType != ChannelLockStateChanged {
		t.Errorf("message = %s/%s", msg.Type, msg.EventType)
	}
	if msg.Payload.ID != "lock-new" || msg.Payload.State != "unlocked" || !msg.Payload.Available {
		t.Errorf("payload = %+v", msg.Payload)
	}
}

func TestWebSocket_FailedRefreshIsNotBroadcast(t *testing.T) {
	srv, deps, url := startWSServer(t)
	ws := dialWS(t, url)
	subscribe(t, ws, ChannelLockStateChanged)

	deps.coord.push(coordinator.Update{Directory: deps.coord.Current(), Err: cloud.ErrInvalidAuth})
	subscribe(t, ws, ChannelLockStateChanged, "marker")
	srv.hub.Broadcast("marker", "", map[string]string{"done": "yes"})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.EventType != "marker" {
		t.Errorf("first event = %q, want marker (failed refresh must not broadcast)", msg.EventType)
	}
}

func TestWebSocket_SubscribeToOneLock(t *testing.T) {
	_, deps, url := startWSServer(t)
	ws := dialWS(t, url)
	subscribeLocks(t, ws, []string{ChannelLockStateChanged}, []string{"lock-back"})

	deps.coord.push(coordinator.Update{Directory: testDirectory()})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Payload LockView `json:"payload"`
	}
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if msg.Payload.ID != "lock-back" {
		t.Errorf("first broadcast = %q, want lock-back", msg.Payload.ID)
	}
}

func TestWebSocket_SubscribeWithoutChannels(t *testing.T) {
	_, _, url := startWSServer(t)
	ws := dialWS(t, url)

	if err := ws.WriteJSON(WSMessage{Type: WSTypeSubscribe, ID: "s-1", Payload: WSSubscribePayload{}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Type != WSTypeError || resp.ID != "s-1" {
		t.Errorf("response = %+v, want error s-1", resp)
	}
}

func TestWebSocket_Ping(t *testing.T) {
	_, _, url := startWSServer(t)
	ws := dialWS(t, url)

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p-1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if resp.Type != WSTypePong || resp.ID != "p-1" {
		t.Errorf("response = %+v, want pong p-1", resp)
	}
}

func TestWebSocket_InvalidMessage(t *testing.T) {
	_, _, url := startWSServer(t)
	ws := dialWS(t, url)

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Type != WSTypeError {
		t.Errorf("type = %q, want error", resp.Type)
	}
}
