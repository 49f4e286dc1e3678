package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket message types.
const (
	WSMsgTypeSyncState = "sync_state"
	WSMsgTypePong      = "pong"
	WSMsgTypeConnected = "connected"
	WSMsgTypeError     = "error"
)

// WSMessage is a message sent to websocket clients.
type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Hub maintains the set of active websocket clients and broadcasts to
// them.
type Hub struct {
	clients map[*WSClient]struct{}

	register     chan *WSClient
	unregister   chan *WSClient
	broadcastAll chan *WSMessage

	log *slog.Logger

	mu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:      make(map[*WSClient]struct{}),
		register:     make(chan *WSClient),
		unregister:   make(chan *WSClient),
		broadcastAll: make(chan *WSMessage, 256),
		log:          log.With("component", "ws_hub"),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// Run is the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
			}
			h.clients = make(map[*WSClient]struct{})
			h.mu.Unlock()

			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()

			h.log.Debug("Client registered", "total", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()

			h.log.Debug("Client unregistered", "total", total)

		case msg := <-h.broadcastAll:
			h.mu.RLock()
			for client := range h.clients {
				client.Send(msg)
			}
			h.mu.RUnlock()
		}
	}
}

// Stop shuts the hub down, closing every client, and waits for Run to
// return.
func (h *Hub) Stop() {
	h.cancel()
	<-h.done
}

// BroadcastToAll sends a message to every connected client. The message is
// dropped when the broadcast queue is full.
func (h *Hub) BroadcastToAll(msg *WSMessage) {
	select {
	case h.broadcastAll <- msg:
	default:
		h.log.Warn("Broadcast buffer full, dropping message",
			"type", msg.Type)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// registerClient hands c to the hub loop unless the hub stopped.
func (h *Hub) registerClient(c *WSClient) bool {
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// unregisterClient hands c back to the hub loop, or just closes it once
// the hub stopped.
func (h *Hub) unregisterClient(c *WSClient) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
		c.Close()
	}
}

// upgrader only accepts same-origin browsers and non-browser clients.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		host := r.Host
		return origin == "http://"+host || origin == "https://"+host
	},
}

// handleWebSocket handles websocket connections at /ws. The current sync
// state is sent right after the connection confirmation.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("WebSocket upgrade failed", "error", err)
		return
	}

	client := NewWSClient(s.hub, conn)
	if !s.hub.registerClient(client) {
		client.Close()
		return
	}

	client.Send(&WSMessage{
		Type: WSMsgTypeConnected,
		Payload: map[string]any{
			"time": time.Now().UTC().Format(time.RFC3339),
		},
	})
	client.Send(&WSMessage{
		Type:    WSMsgTypeSyncState,
		Payload: s.syncStatus(s.store.State(), false),
	})

	go client.writePump()
	go client.readPump()
}

// handleIncomingMessage processes a message from a client.
func (h *Hub) handleIncomingMessage(client *WSClient, messageType int,
	data []byte) {

	if messageType != websocket.TextMessage {
		return
	}

	var msg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		client.Send(&WSMessage{
			Type: WSMsgTypeError,
			Payload: map[string]any{
				"message": "Invalid message format",
			},
		})
		return
	}

	switch msg.Type {
	case "ping":
		client.Send(&WSMessage{
			Type: WSMsgTypePong,
			Payload: map[string]any{
				"time": time.Now().UTC().Format(time.RFC3339),
			},
		})

	default:
		client.Send(&WSMessage{
			Type: WSMsgTypeError,
			Payload: map[string]any{
				"message": "Unknown message type: " + msg.Type,
			},
		})
	}
}
