package websocket

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"catwatch/internal/logger"
	"catwatch/internal/models"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 5 * time.Second
	pingInterval = 30 * time.Second
	broadcastCap = 16
)

// Message is the envelope pushed to viewers.
type Message struct {
	Type  string        `json:"type"`
	Event *models.Event `json:"event,omitempty"`
}

// HubService fans notification events out to connected viewer websockets.
// All client bookkeeping happens on the Run goroutine.
type HubService struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	count      atomic.Int64
	done       chan struct{}
	logger     *logger.Logger
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, broadcastCap),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves register, unregister and broadcast requests until ctx ends,
// then closes every client.
func (h *HubService) Run(ctx context.Context) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.count.Store(int64(len(h.clients)))
			h.logger.Info("Viewer connected. Total: %d", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Info("Viewer disconnected. Total: %d", len(h.clients))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				if err := h.write(client, websocket.TextMessage, message); err != nil {
					h.logger.Warning("Error sending message: %v", err)
					h.drop(client)
				}
			}

		case <-ping.C:
			for client := range h.clients {
				if err := h.write(client, websocket.PingMessage, nil); err != nil {
					h.drop(client)
				}
			}
		}
	}
}

func (h *HubService) write(client *websocket.Conn, messageType int, data []byte) error {
	client.SetWriteDeadline(time.Now().Add(writeWait))
	return client.WriteMessage(messageType, data)
}

func (h *HubService) drop(client *websocket.Conn) {
	delete(h.clients, client)
	h.count.Store(int64(len(h.clients)))
	client.Close()
}

// Register adds a viewer. After the hub stopped the connection is closed instead.
func (h *HubService) Register(client *websocket.Conn) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues a text message for all viewers. When the queue is full
// the message is dropped so callers never block.
func (h *HubService) Broadcast(message []byte) bool {
	select {
	case h.broadcast <- message:
		return true
	default:
		h.logger.Warning("Viewer broadcast queue full, dropping message")
		return false
	}
}

// Publish sends a notification event to every viewer.
func (h *HubService) Publish(event models.Event) {
	data, err := json.Marshal(Message{Type: "event", Event: &event})
	if err != nil {
		h.logger.Error("Failed to encode event %s: %v", event.ID, err)
		return
	}
	h.Broadcast(data)
}

// GetClientCount returns the number of connected viewers.
func (h *HubService) GetClientCount() int {
	return int(h.count.Load())
}
