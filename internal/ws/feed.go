package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"lostfound-chat/internal/messaging"
	"lostfound-chat/internal/observability"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// subscribeFunc binds a connected client to a live subscription.
type subscribeFunc func(ctx context.Context, client *Client, info ConnInfo) (messaging.Unsubscribe, error)

// serve upgrades the request and runs the feed until the peer goes away or
// the hub closes it. span is the handshake span; it ends once the feed is live.
func (h *Hub) serve(c *gin.Context, span trace.Span, kind, resourceID, userID string, subscribe subscribeFunc) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		span.End()
		h.logger.Warn("websocket upgrade failed", zap.String("kind", kind), zap.Error(err))
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		Kind:        kind,
		ResourceID:  resourceID,
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	key := feedKey(kind, resourceID)
	client := NewClient(conn)
	h.AddClient(key, client, info)
	observability.IncWSActive(kind)

	// The feed outlives the HTTP request; keep its values but not its deadline.
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	h.publishWSEvent(ctx, info, "ws_connect", "")

	unsubscribe, err := subscribe(ctx, client, info)
	span.End()
	if err != nil {
		h.logger.Warn("feed subscribe failed", zap.String("kind", kind), zap.String("resource_id", resourceID), zap.Error(err))
		h.publishWSEvent(ctx, info, "ws_error", err.Error())
		client.Close(websocket.CloseInternalServerErr, "subscribe failed")
		unsubscribe = func() {}
	}

	go func() {
		var closeReason string
		defer func() {
			cancel()
			unsubscribe()
			h.RemoveClient(key, client)
			observability.DecWSActive(kind)
			h.publishWSEvent(ctx, info, "ws_disconnect", closeReason)
			client.Close(websocket.CloseNormalClosure, "")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.publishWSEvent(ctx, info, "ws_error", closeReason)
				}
				return
			}
		}
	}()
}

// push writes event to client, closing it when the write fails so the read
// loop tears the feed down.
func (h *Hub) push(ctx context.Context, client *Client, info ConnInfo, event any) {
	if err := client.WriteJSON(event); err != nil {
		h.logger.Debug("websocket write failed", zap.String("conn_id", info.ConnID), zap.Error(err))
		h.publishWSEvent(ctx, info, "ws_error", err.Error())
		client.Close(websocket.CloseInternalServerErr, "write failed")
	}
}
