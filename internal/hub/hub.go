package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"transitrisk/internal/domain"
)

// Client is one push subscriber. With no transport types selected it receives every incident.
// Send is never closed; Done is closed once the hub drops the client.
type Client struct {
	ID    string
	Send  chan []byte
	types map[domain.TransportType]struct{}
	mu    sync.RWMutex

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(id string, bufferSize int) *Client {
	return &Client{
		ID:    id,
		Send:  make(chan []byte, bufferSize),
		types: make(map[domain.TransportType]struct{}),
		done:  make(chan struct{}),
	}
}

func (c *Client) Done() <-chan struct{} { return c.done }

// Enqueue queues data without blocking. It reports false when the client is closed or its buffer
// is full.
func (c *Client) Enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) Wants(tt domain.TransportType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.types) == 0 {
		return true
	}
	_, ok := c.types[tt]
	return ok
}

// SetTypes replaces the subscription.
func (c *Client) SetTypes(types []domain.TransportType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types = make(map[domain.TransportType]struct{}, len(types))
	for _, tt := range types {
		c.types[tt] = struct{}{}
	}
}

func (c *Client) Types() []domain.TransportType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.types) == 0 {
		return domain.AllTransportTypes()
	}
	types := make([]domain.TransportType, 0, len(c.types))
	for _, tt := range domain.AllTransportTypes() {
		if _, ok := c.types[tt]; ok {
			types = append(types, tt)
		}
	}
	return types
}

type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan domain.HistoricalIncident
	done       chan struct{}

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan domain.HistoricalIncident, 256),
		done:       make(chan struct{}),
		logger:     logger.With("component", "hub"),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.ID, "total", total)

		case client := <-h.unregister:
			h.removeClient(client)

		case inc := <-h.broadcast:
			h.fanout(inc)
		}
	}
}

// BroadcastIncident queues a newly learned incident without blocking the caller.
func (h *Hub) BroadcastIncident(inc domain.HistoricalIncident) {
	select {
	case h.broadcast <- inc:
	default:
		h.logger.Warn("broadcast channel full, dropping incident", "incident_id", inc.ID)
	}
}

// Register closes the client straight away once the hub has stopped.
func (h *Hub) Register(client *Client) {
	select {
	case <-h.done:
		client.close()
		return
	default:
	}
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case <-h.done:
		client.close()
		return
	default:
	}
	select {
	case h.unregister <- client:
	case <-h.done:
		client.close()
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type IncidentMessage struct {
	Type    string                    `json:"type"`
	Payload domain.HistoricalIncident `json:"payload"`
}

func (h *Hub) fanout(inc domain.HistoricalIncident) {
	data, err := json.Marshal(IncidentMessage{Type: "incident", Payload: inc})
	if err != nil {
		h.logger.Error("failed to encode incident", "incident_id", inc.ID, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if !client.Wants(inc.TransportType) {
			continue
		}
		if !client.Enqueue(data) {
			h.logger.Debug("client send buffer full, dropping incident", "client_id", client.ID)
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	client.close()
	h.logger.Debug("client unregistered", "client_id", client.ID, "total", len(h.clients))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.close()
	}
	h.clients = make(map[*Client]struct{})

	for {
		select {
		case client := <-h.register:
			client.close()
		default:
			return
		}
	}
}
