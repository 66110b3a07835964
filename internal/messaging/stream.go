package messaging

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"lostfound-chat/internal/models"
	"lostfound-chat/internal/observability"
	"lostfound-chat/internal/repositories"
)

// Stream reads and appends the messages of one chat.
type Stream struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	logger   *zap.Logger
	now      func() time.Time
}

func NewStream(chats repositories.ChatRepository, messages repositories.MessageRepository, logger *zap.Logger) *Stream {
	return &Stream{chats: chats, messages: messages, logger: logger, now: time.Now}
}

// Subscribe calls onUpdate with the chat's full message list in send order
// after every change. Failed snapshots are logged and skipped.
func (s *Stream) Subscribe(ctx context.Context, chatID string, onUpdate func([]models.Message)) (Unsubscribe, error) {
	var closed atomic.Bool
	stop, err := s.messages.SubscribeMessages(ctx, chatID, func(msgs []models.Message, err error) {
		if err != nil {
			observability.IncSnapshot("messages", "failed")
			s.logger.Warn("message snapshot failed", zap.String("chat_id", chatID), zap.Error(err))
			return
		}
		if closed.Load() {
			return
		}
		observability.IncSnapshot("messages", "delivered")
		onUpdate(msgs)
	})
	if err != nil {
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			closed.Store(true)
			stop()
		})
	}, nil
}

// Send appends a message from senderID and then refreshes the chat's
// last-message summary. The two writes are independent: when the summary
// update fails the stored message is returned together with the error.
func (s *Stream) Send(ctx context.Context, chatID, senderID, text string) (models.Message, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "messaging.Send")
	defer span.End()
	span.SetAttributes(attribute.String("chat.id", chatID))

	if strings.TrimSpace(text) == "" {
		span.SetStatus(codes.Error, ErrEmptyMessage.Error())
		return models.Message{}, ErrEmptyMessage
	}

	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get chat")
		return models.Message{}, err
	}
	if !chat.HasParticipant(senderID) {
		span.SetStatus(codes.Error, ErrNotParticipant.Error())
		return models.Message{}, ErrNotParticipant
	}

	now := s.now()
	msg, err := s.messages.CreateMessage(ctx, chatID, senderID, text, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append message")
		return models.Message{}, err
	}
	span.SetAttributes(attribute.String("message.id", msg.ID))

	if err := s.chats.UpdateSummary(ctx, chatID, text, now); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update summary")
		s.logger.Error("chat summary update failed", zap.String("chat_id", chatID), zap.String("message_id", msg.ID), zap.Error(err))
		return msg, err
	}

	observability.IncMessageSent()
	publishDomainEvent(ctx, s.logger, "message_sent", map[string]any{
		"chat_id":    chatID,
		"message_id": msg.ID,
		"sender_id":  senderID,
		"sent_at":    msg.Timestamp,
	})
	return msg, nil
}

// List returns the chat's messages in send order.
func (s *Stream) List(ctx context.Context, chatID string) ([]models.Message, error) {
	return s.messages.ListMessages(ctx, chatID)
}

// IsParticipant reports whether userID belongs to chatID. An unknown chat
// yields ErrChatNotFound.
func (s *Stream) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return false, err
	}
	return chat.HasParticipant(userID), nil
}
