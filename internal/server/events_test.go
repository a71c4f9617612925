package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/edward/tracksync/internal/store"
	statesync "github.com/edward/tracksync/internal/sync"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if err := st.InitSchema(context.Background()); err != nil {
		t.Fatalf("Failed to initialize schema: %v", err)
	}

	logger := log.New(os.Stderr, "[test] ", log.LstdFlags)
	server := NewServer(statesync.New(st, logger), &Config{
		Addr:   "127.0.0.1:0",
		Logger: logger,
	})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })

	// Give server time to start
	time.Sleep(100 * time.Millisecond)
	return server
}

func TestServerStartStop(t *testing.T) {
	server := startTestServer(t)

	if addr := server.GetAddr(); addr == "" {
		t.Fatal("Server address is empty")
	}
}

func TestWebSocketConnection(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws://" + server.GetAddr() + "/ws?clientId=alice"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Registration happens in the accept handler before the read loop
	// starts, but poll briefly to avoid racing the handshake goroutine.
	deadline := time.Now().Add(2 * time.Second)
	for server.events.SubscriberCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if count := server.events.SubscriberCount(); count != 1 {
		t.Errorf("Expected 1 subscriber, got %d", count)
	}
}

func TestWebSocketRejectsBadClientID(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, url := range []string{
		"ws://" + server.GetAddr() + "/ws",
		"ws://" + server.GetAddr() + "/ws?clientId=not%20valid",
	} {
		_, resp, err := websocket.Dial(ctx, url, nil)
		if err == nil {
			t.Errorf("Dial %s succeeded, want rejection", url)
			continue
		}
		if resp != nil && resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Dial %s status = %d, want 400", url, resp.StatusCode)
		}
	}
}

func TestStopQuiescesSubscribers(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws://" + server.GetAddr() + "/ws?clientId=alice"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for server.events.SubscriberCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if count := server.events.SubscriberCount(); count != 1 {
		t.Fatalf("Expected 1 subscriber, got %d", count)
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}

	// Stop waits for every connection goroutine, so by the time it
	// returns no subscriber may remain registered.
	if count := server.events.SubscriberCount(); count != 0 {
		t.Errorf("Expected 0 subscribers after stop, got %d", count)
	}
}

func TestUpdateBroadcast(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws://" + server.GetAddr() + "/ws?clientId=alice"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for server.events.SubscriberCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	server.events.Broadcast(StateUpdate{
		Type:        "state_update",
		ClientID:    "alice",
		UpdatedAtMs: 1234,
	})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read broadcast message: %v", err)
	}

	var received StateUpdate
	if err := json.Unmarshal(data, &received); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}

	if received.Type != "state_update" {
		t.Errorf("Expected message type state_update, got %s", received.Type)
	}
	if received.ClientID != "alice" || received.UpdatedAtMs != 1234 {
		t.Errorf("Update mismatch: got %+v", received)
	}
}

func TestBroadcastScopedToClient(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	aliceConn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws?clientId=alice", nil)
	if err != nil {
		t.Fatalf("Failed to connect alice: %v", err)
	}
	defer aliceConn.Close(websocket.StatusNormalClosure, "")

	bobConn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws?clientId=bob", nil)
	if err != nil {
		t.Fatalf("Failed to connect bob: %v", err)
	}
	defer bobConn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for server.events.SubscriberCount() != 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	server.events.Broadcast(StateUpdate{Type: "state_update", ClientID: "bob", UpdatedAtMs: 99})

	// Bob receives the update.
	_, data, err := bobConn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read bob's update: %v", err)
	}
	var received StateUpdate
	if err := json.Unmarshal(data, &received); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if received.ClientID != "bob" {
		t.Errorf("Expected update for bob, got %+v", received)
	}

	// Alice does not.
	readCtx, readCancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer readCancel()
	if _, _, err := aliceConn.Read(readCtx); err == nil {
		t.Error("Alice received an update meant for bob")
	}
}
