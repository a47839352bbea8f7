package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"emis/internal/infrastructure"
	"emis/pkg/contracts/events"
)

// Hub maintains the set of active clients and broadcasts messages to
// them. Study run progress is a single message type: the full run
// snapshot, rebroadcast on every state change.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Inbound messages from the clients
	broadcast chan []byte

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger instance
	logger *slog.Logger

	// Counters
	totalConnections int64
	messagesSent     int64

	// Control
	quit    chan struct{}
	running bool
}

// NewHub creates a new Hub instance with dependency injection
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger = logger.With(slog.String("component", "websocket.hub"))

	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     logger,
		quit:       make(chan struct{}),
	}
}

// Start starts the hub's main loop
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.Run()
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.logger.Info("Hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.totalConnections++
			h.mu.Unlock()

			ctx := h.clientContext(client)
			h.logger.InfoContext(ctx, "Client registered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))

			h.sendConnected(ctx, client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				count := len(h.clients)
				h.mu.Unlock()

				h.logger.InfoContext(h.clientContext(client), "Client unregistered",
					slog.Int("total_clients", count),
					slog.String("client_id", client.id),
					slog.Duration("connection_duration", time.Since(client.connectedAt)))
			} else {
				h.mu.Unlock()
			}

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// deliver fans one message out to every client, dropping clients whose
// send buffer is full rather than blocking the hub.
func (h *Hub) deliver(message []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	failCount := 0
	for _, client := range clients {
		select {
		case client.send <- message:
			h.mu.Lock()
			h.messagesSent++
			h.mu.Unlock()
		default:
			failCount++
			h.mu.Lock()
			close(client.send)
			delete(h.clients, client)
			h.mu.Unlock()

			h.logger.WarnContext(h.clientContext(client), "Client send buffer full, disconnecting",
				slog.String("client_id", client.id))
		}
	}

	if failCount > 0 {
		h.logger.Warn("Some clients failed to receive broadcast",
			slog.Int("client_count", len(clients)),
			slog.Int("fail_count", failCount))
	}
}

// sendConnected greets a freshly registered client
func (h *Hub) sendConnected(ctx context.Context, client *Client) {
	msg := events.WebSocketMessage{
		BaseMessage: events.BaseMessage{
			Type:      events.MessageTypeConnect,
			Timestamp: time.Now(),
			TraceID:   client.traceID,
		},
		Data: map[string]interface{}{
			"status":    "connected",
			"client_id": client.id,
		},
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		return
	}

	select {
	case client.send <- jsonData:
	default:
		h.logger.WarnContext(ctx, "Failed to send connection message - client buffer full",
			slog.String("client_id", client.id))
	}
}

// BroadcastRunSnapshot sends the full run snapshot to every client
func (h *Hub) BroadcastRunSnapshot(snapshot *events.RunSnapshot, traceID string) {
	h.broadcastMessage(events.WebSocketMessage{
		BaseMessage: events.BaseMessage{
			ID:        snapshot.RunID,
			Type:      events.MessageTypeRunSnapshot,
			Timestamp: time.Now(),
			TraceID:   traceID,
		},
		Data: snapshot,
	})
}

// BroadcastSystemStatus sends a system status update to every client
func (h *Hub) BroadcastSystemStatus(status string, components map[string]string) {
	h.broadcastMessage(events.WebSocketMessage{
		BaseMessage: events.BaseMessage{
			Type:      events.MessageTypeSystemStatus,
			Timestamp: time.Now(),
		},
		Data: map[string]interface{}{
			"status":     status,
			"components": components,
		},
	})
}

// BroadcastError sends a structured error message to every client
func (h *Hub) BroadcastError(code, message string, fatal bool) {
	h.broadcastMessage(events.WebSocketMessage{
		BaseMessage: events.BaseMessage{
			Type:      events.MessageTypeError,
			Timestamp: time.Now(),
		},
		Data: map[string]interface{}{
			"code":    code,
			"message": message,
			"fatal":   fatal,
		},
	})
}

func (h *Hub) broadcastMessage(msg events.WebSocketMessage) {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Error marshaling message",
			slog.String("error", err.Error()),
			slog.String("message_type", string(msg.Type)))
		return
	}

	select {
	case h.broadcast <- jsonData:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop gracefully stops the hub
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)

	// Close all client connections
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) clientContext(client *Client) context.Context {
	ctx := context.Background()
	if client.traceID != "" {
		ctx = infrastructure.WithTraceID(ctx, client.traceID)
	}
	return ctx
}
