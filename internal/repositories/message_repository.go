package repositories

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"lostfound-chat/internal/docstore"
	"lostfound-chat/internal/models"
)

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, chatID, senderID, text string, at time.Time) (models.Message, error)
	ListMessages(ctx context.Context, chatID string) ([]models.Message, error)
	SubscribeMessages(ctx context.Context, chatID string, fn func([]models.Message, error)) (docstore.Unsubscribe, error)
}

// MessageRepo keeps messages in the chats/{id}/messages sub-collection.
type MessageRepo struct {
	store  docstore.Store
	logger *zap.Logger
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(store docstore.Store, logger *zap.Logger) *MessageRepo {
	return &MessageRepo{store: store, logger: logger}
}

func messagesCollection(chatID string) string {
	return docstore.Path(chatsCollection, chatID, "messages")
}

func chatMessagesQuery(chatID string) docstore.Query {
	return docstore.Collection(messagesCollection(chatID)).OrderedBy("timestamp", docstore.Asc)
}

// CreateMessage appends a message to the chat.
func (r *MessageRepo) CreateMessage(ctx context.Context, chatID, senderID, text string, at time.Time) (models.Message, error) {
	at = at.UTC()
	id, err := r.store.Create(ctx, messagesCollection(chatID), map[string]any{
		"senderId":  senderID,
		"text":      text,
		"timestamp": at,
	})
	if err != nil {
		return models.Message{}, err
	}
	return models.Message{ID: id, ChatID: chatID, SenderID: senderID, Text: text, Timestamp: at}, nil
}

// ListMessages returns the chat's messages in send order.
func (r *MessageRepo) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	docs, err := r.store.Query(ctx, chatMessagesQuery(chatID))
	if err != nil {
		return nil, err
	}
	return r.decodeMessages(chatID, docs), nil
}

// SubscribeMessages streams the chat's messages in send order.
func (r *MessageRepo) SubscribeMessages(ctx context.Context, chatID string, fn func([]models.Message, error)) (docstore.Unsubscribe, error) {
	return r.store.Subscribe(ctx, chatMessagesQuery(chatID), func(docs []docstore.Document, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		fn(r.decodeMessages(chatID, docs), nil)
	})
}

func (r *MessageRepo) decodeMessages(chatID string, docs []docstore.Document) []models.Message {
	msgs := make([]models.Message, 0, len(docs))
	for _, doc := range docs {
		msg, err := decodeMessage(chatID, doc)
		if err != nil {
			r.logger.Warn("skipping message document", zap.String("chat_id", chatID), zap.String("message_id", doc.ID), zap.Error(err))
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func decodeMessage(chatID string, doc docstore.Document) (models.Message, error) {
	text, _ := doc.Fields["text"].(string)
	sender, _ := doc.Fields["senderId"].(string)
	ts, ok := docstore.TimeValue(doc.Fields["timestamp"])
	if text == "" || sender == "" || !ok {
		return models.Message{}, fmt.Errorf("%w: message %s", ErrMalformed, doc.ID)
	}
	return models.Message{ID: doc.ID, ChatID: chatID, SenderID: sender, Text: text, Timestamp: ts}, nil
}
