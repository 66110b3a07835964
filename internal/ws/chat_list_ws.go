package ws

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"lostfound-chat/internal/messaging"
	"lostfound-chat/internal/middleware"
	"lostfound-chat/internal/models"
)

// ChatListSource provides a user's live, enriched chat list.
type ChatListSource interface {
	Subscribe(ctx context.Context, selfID string, onUpdate func([]models.ChatSummary)) (messaging.Unsubscribe, error)
}

// ChatListWebSocketHandler streams the caller's chat list.
type ChatListWebSocketHandler struct {
	hub       *Hub
	list      ChatListSource
	validator middleware.TokenValidator
}

func NewChatListWebSocketHandler(hub *Hub, list ChatListSource, validator middleware.TokenValidator) *ChatListWebSocketHandler {
	return &ChatListWebSocketHandler{hub: hub, list: list, validator: validator}
}

func (h *ChatListWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer(tracerName).Start(c.Request.Context(), "ws.handshake")
	span.SetAttributes(attribute.String("ws.kind", KindChats))
	c.Request = c.Request.WithContext(ctx)

	token, ok := tokenFromRequest(c)
	if !ok {
		span.End()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	userID, err := h.validator.ValidateToken(token)
	if err != nil {
		span.End()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	h.hub.serve(c, span, KindChats, userID, userID, func(ctx context.Context, client *Client, info ConnInfo) (messaging.Unsubscribe, error) {
		return h.list.Subscribe(ctx, userID, func(chats []models.ChatSummary) {
			h.hub.push(ctx, client, info, models.ChatsEvent{Type: KindChats, Chats: chats})
		})
	})
}
