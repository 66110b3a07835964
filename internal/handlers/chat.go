package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lostfound-chat/internal/messaging"
	"lostfound-chat/internal/middleware"
	"lostfound-chat/internal/models"
	"lostfound-chat/internal/telemetry"
)

// ChatDirectory resolves the chat shared by two users.
type ChatDirectory interface {
	ResolveChat(ctx context.Context, selfID, otherID string) (string, error)
}

// ChatLister reads a user's enriched chat list once.
type ChatLister interface {
	Snapshot(ctx context.Context, selfID string) ([]models.ChatSummary, error)
}

// MessageService reads and appends chat messages.
type MessageService interface {
	Send(ctx context.Context, chatID, senderID, text string) (models.Message, error)
	List(ctx context.Context, chatID string) ([]models.Message, error)
	IsParticipant(ctx context.Context, chatID, userID string) (bool, error)
}

// ChatHandler manages private chat endpoints.
type ChatHandler struct {
	directory ChatDirectory
	list      ChatLister
	stream    MessageService
	audit     *telemetry.AuditEmitter
	logger    *zap.Logger
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(directory ChatDirectory, list ChatLister, stream MessageService, audit *telemetry.AuditEmitter, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		directory: directory,
		list:      list,
		stream:    stream,
		audit:     audit,
		logger:    logger,
	}
}

// ListChats returns the authenticated user's chats, most recently active first.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)

	chats, err := h.list.Snapshot(c.Request.Context(), userID)
	if err != nil {
		serverError(c, h.logger, h.audit, http.StatusInternalServerError, "failed to load chats", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// StartChat creates or returns the chat between the caller and other_id.
func (h *ChatHandler) StartChat(c *gin.Context) {
	var req struct {
		OtherID string `json:"other_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString(middleware.UserIDKey)
	chatID, err := h.directory.ResolveChat(c.Request.Context(), userID, req.OtherID)
	if errors.Is(err, messaging.ErrInvalidParticipants) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		return
	}
	if err != nil {
		serverError(c, h.logger, h.audit, http.StatusInternalServerError, "could not create chat", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"chat_id": chatID})
}

// GetChatMessages returns a chat's messages in send order.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	chatID := c.Param("chat_id")
	if !h.requireParticipant(c, chatID) {
		return
	}

	msgs, err := h.stream.List(c.Request.Context(), chatID)
	if err != nil {
		serverError(c, h.logger, h.audit, http.StatusInternalServerError, "failed to load messages", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostChatMessage appends a message from the caller.
func (h *ChatHandler) PostChatMessage(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString(middleware.UserIDKey)
	msg, err := h.stream.Send(c.Request.Context(), c.Param("chat_id"), userID, req.Text)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, msg)
	case errors.Is(err, messaging.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "message text is required"})
	case errors.Is(err, messaging.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
	case errors.Is(err, messaging.ErrChatNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
	default:
		serverError(c, h.logger, h.audit, http.StatusInternalServerError, "failed to store message", err)
	}
}

func (h *ChatHandler) requireParticipant(c *gin.Context, chatID string) bool {
	member, err := h.stream.IsParticipant(c.Request.Context(), chatID, c.GetString(middleware.UserIDKey))
	if errors.Is(err, messaging.ErrChatNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return false
	}
	if err != nil {
		serverError(c, h.logger, h.audit, http.StatusInternalServerError, "failed to verify membership", err)
		return false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return false
	}
	return true
}
