package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/edward/tracksync/internal/identity"
)

// StateUpdate notifies subscribers that a client's state was replaced.
// Devices use it as a hint to fetch; losing an update only delays the next
// poll, it never affects correctness.
type StateUpdate struct {
	Type        string `json:"type"`
	ClientID    string `json:"clientId"`
	UpdatedAtMs int64  `json:"updatedAtMs"`
}

// eventHub manages WebSocket subscriptions and fans accepted-write events
// out to the devices watching each client.
type eventHub struct {
	logger *log.Logger

	subsMu sync.RWMutex
	subs   map[*websocket.Conn]string // conn -> subscribed client id

	broadcast chan StateUpdate

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newEventHub(logger *log.Logger) *eventHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &eventHub{
		logger:    logger,
		subs:      make(map[*websocket.Conn]string),
		broadcast: make(chan StateUpdate, 100),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (h *eventHub) start() {
	h.wg.Add(1)
	go h.broadcastLoop()
}

func (h *eventHub) stop() {
	h.cancel()

	h.subsMu.Lock()
	for conn := range h.subs {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(h.subs, conn)
	}
	h.subsMu.Unlock()

	h.wg.Wait()
}

// Broadcast queues an update for delivery. Never blocks; under backpressure
// the update is dropped, which subscribers tolerate by polling.
func (h *eventHub) Broadcast(update StateUpdate) {
	select {
	case h.broadcast <- update:
	case <-h.ctx.Done():
	default:
		h.logger.Println("Warning: event channel full, dropping update")
	}
}

func (h *eventHub) broadcastLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return

		case update := <-h.broadcast:
			data, err := json.Marshal(update)
			if err != nil {
				h.logger.Printf("Failed to marshal update: %v", err)
				continue
			}

			h.subsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(h.subs))
			for conn, clientID := range h.subs {
				if clientID == update.ClientID {
					conns = append(conns, conn)
				}
			}
			h.subsMu.RUnlock()

			// Write outside the read lock so a slow subscriber cannot
			// stall registration.
			for _, conn := range conns {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					h.logger.Printf("Failed to send to subscriber: %v", err)
					h.removeSubscriber(conn)
				}
			}
		}
	}
}

// handleWebSocket upgrades the connection and subscribes it to one client's
// update feed.
func (h *eventHub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientID := identity.Normalize(r.URL.Query().Get("clientId"))
	if err := identity.Validate(clientID); err != nil {
		http.Error(w, "bad_client_id", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.subsMu.Lock()
	h.subs[conn] = clientID
	count := len(h.subs)
	h.subsMu.Unlock()

	h.logger.Printf("Subscriber connected for %s (total: %d)", clientID, count)

	h.wg.Add(1)
	go h.readLoop(conn)
}

// readLoop keeps the connection alive and detects disconnects. Incoming
// messages are ignored; the feed is one-way.
func (h *eventHub) readLoop(conn *websocket.Conn) {
	defer h.wg.Done()
	defer h.removeSubscriber(conn)

	for {
		if _, _, err := conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *eventHub) removeSubscriber(conn *websocket.Conn) {
	h.subsMu.Lock()
	if _, exists := h.subs[conn]; exists {
		delete(h.subs, conn)
		count := len(h.subs)
		h.subsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Printf("Subscriber disconnected (total: %d)", count)
	} else {
		h.subsMu.Unlock()
	}
}

// SubscriberCount returns the number of connected subscribers.
func (h *eventHub) SubscriberCount() int {
	h.subsMu.RLock()
	defer h.subsMu.RUnlock()
	return len(h.subs)
}
