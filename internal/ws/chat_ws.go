package ws

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"lostfound-chat/internal/messaging"
	"lostfound-chat/internal/middleware"
	"lostfound-chat/internal/models"
)

const tracerName = "lostfound-chat/ws"

// MessageSource provides a chat's live message list.
type MessageSource interface {
	Subscribe(ctx context.Context, chatID string, onUpdate func([]models.Message)) (messaging.Unsubscribe, error)
	IsParticipant(ctx context.Context, chatID, userID string) (bool, error)
}

// ChatWebSocketHandler streams one chat's messages to a participant.
type ChatWebSocketHandler struct {
	hub       *Hub
	stream    MessageSource
	validator middleware.TokenValidator
}

// NewChatWebSocketHandler constructs a ChatWebSocketHandler.
func NewChatWebSocketHandler(hub *Hub, stream MessageSource, validator middleware.TokenValidator) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{hub: hub, stream: stream, validator: validator}
}

// Handle authenticates, checks membership and upgrades the connection.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	chatID := c.Param("chat_id")
	ctx, span := otel.Tracer(tracerName).Start(c.Request.Context(), "ws.handshake")
	span.SetAttributes(attribute.String("ws.kind", KindMessages), attribute.String("chat.id", chatID))
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

	member, err := h.stream.IsParticipant(ctx, chatID, userID)
	if errors.Is(err, messaging.ErrChatNotFound) {
		span.End()
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}
	if err != nil || !member {
		span.End()
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for chat"})
		return
	}

	h.hub.serve(c, span, KindMessages, chatID, userID, func(ctx context.Context, client *Client, info ConnInfo) (messaging.Unsubscribe, error) {
		return h.stream.Subscribe(ctx, chatID, func(msgs []models.Message) {
			h.hub.push(ctx, client, info, models.MessagesEvent{Type: KindMessages, ChatID: chatID, Messages: msgs})
		})
	})
}
