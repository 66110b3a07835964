package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"lostfound-chat/internal/observability"
)

// Feed kinds.
const (
	KindChats    = "chats"
	KindMessages = "messages"
)

// Hub tracks every open feed so they can be inspected and closed together.
type Hub struct {
	feeds  map[string]map[*Client]ConnInfo
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		feeds:  make(map[string]map[*Client]ConnInfo),
		logger: logger,
	}
}

// AddClient registers a client under the feed key.
func (h *Hub) AddClient(key string, client *Client, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.feeds[key]; !ok {
		h.feeds[key] = make(map[*Client]ConnInfo)
	}
	h.feeds[key][client] = info
}

// RemoveClient drops a client, deleting the key once empty.
func (h *Hub) RemoveClient(key string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.feeds[key]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.feeds, key)
		}
	}
}

// Count returns the number of clients on key.
func (h *Hub) Count(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.feeds[key])
}

// Stats counts open clients per feed kind.
func (h *Hub) Stats() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	stats := map[string]int{KindChats: 0, KindMessages: 0}
	for _, feed := range h.feeds {
		for _, info := range feed {
			stats[info.Kind]++
		}
	}
	return stats
}

// CloseAll closes every registered client. Their read loops unregister them.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0)
	for _, feed := range h.feeds {
		for client := range feed {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.Close(websocket.CloseGoingAway, "server shutting down")
	}
	h.logger.Info("closed websocket feeds", zap.Int("count", len(clients)))
}

func (h *Hub) publishWSEvent(ctx context.Context, info ConnInfo, event, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        info.Kind,
			"resource_id": info.ResourceID,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	if err := observability.PublishEvent(ctx, wsRoutingKey(info.Kind), observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, headers); err != nil {
		h.logger.Debug("ws event publish failed", zap.String("event", event), zap.Error(err))
	}
	observability.IncWSEvent(info.Kind, event)
}

func wsRoutingKey(kind string) string {
	if kind == KindMessages {
		return observability.RoutingWSMessages
	}
	return observability.RoutingWSChats
}
