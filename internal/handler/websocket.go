package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"transitrisk/internal/domain"
	"transitrisk/internal/hub"
	"transitrisk/internal/knowledge"
)

const snapshotPerTransport = 20

type WSHandler struct {
	hub    *hub.Hub
	kb     *knowledge.KnowledgeBase
	stats  *ServerStats
	logger *slog.Logger
}

func NewWSHandler(h *hub.Hub, kb *knowledge.KnowledgeBase, stats *ServerStats, logger *slog.Logger) *WSHandler {
	return &WSHandler{hub: h, kb: kb, stats: stats, logger: logger.With("component", "websocket")}
}

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribePayload selects transport types by code. An empty list subscribes to everything.
type SubscribePayload struct {
	Transports []string `json:"transports"`
}

type SnapshotMessage struct {
	Type    string          `json:"type"`
	Payload SnapshotPayload `json:"payload"`
}

type SnapshotPayload struct {
	Transports []domain.TransportType      `json:"transports"`
	Incidents  []domain.HistoricalIncident `json:"incidents"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type PongMessage struct {
	Type string `json:"type"`
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	client := hub.NewClient(uuid.New().String(), 256)
	h.hub.Register(client)
	h.stats.IncWSConnections()
	defer h.stats.DecWSConnections()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, client)

	h.readLoop(ctx, conn, client)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", client.ID, "error", err)
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}
		h.stats.IncWSMessagesIn()

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid message format", "client_id", client.ID, "error", err)
			continue
		}

		switch msg.Type {
		case "subscribe":
			var payload SubscribePayload
			if len(msg.Payload) > 0 {
				if err := json.Unmarshal(msg.Payload, &payload); err != nil {
					h.send(client, ErrorMessage{Type: "error", Error: "invalid subscribe payload"})
					continue
				}
			}
			types, err := parseTransports(payload.Transports)
			if err != nil {
				h.send(client, ErrorMessage{Type: "error", Error: err.Error()})
				continue
			}
			client.SetTypes(types)
			h.sendSnapshot(client)

		case "ping":
			h.send(client, PongMessage{Type: "pong"})
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-client.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return

		case msg := <-client.Send:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
			h.stats.IncWSMessagesOut()

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// sendSnapshot replays the most recent incidents of each subscribed type.
func (h *WSHandler) sendSnapshot(client *hub.Client) {
	types := client.Types()
	var incidents []domain.HistoricalIncident
	for _, tt := range types {
		incidents = append(incidents, h.kb.Incidents(tt, snapshotPerTransport)...)
	}
	if incidents == nil {
		incidents = []domain.HistoricalIncident{}
	}

	h.send(client, SnapshotMessage{
		Type:    "snapshot",
		Payload: SnapshotPayload{Transports: types, Incidents: incidents},
	})
}

func (h *WSHandler) send(client *hub.Client, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	if !client.Enqueue(data) {
		h.logger.Debug("message not queued", "client_id", client.ID)
	}
}

func parseTransports(codes []string) ([]domain.TransportType, error) {
	types := make([]domain.TransportType, 0, len(codes))
	for _, code := range codes {
		tt, err := domain.ParseTransportType(code)
		if err != nil {
			return nil, err
		}
		types = append(types, tt)
	}
	return types, nil
}
