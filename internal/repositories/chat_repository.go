package repositories

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"lostfound-chat/internal/docstore"
	"lostfound-chat/internal/models"
)

const chatsCollection = "chats"

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrMalformed    = errors.New("malformed document")
)

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	ChatsForUser(ctx context.Context, userID string) ([]models.Chat, error)
	CreateChat(ctx context.Context, selfID, otherID string, at time.Time) (id string, created bool, err error)
	GetChat(ctx context.Context, chatID string) (models.Chat, error)
	UpdateSummary(ctx context.Context, chatID, text string, at time.Time) error
	SubscribeForUser(ctx context.Context, userID string, fn func([]models.Chat, error)) (docstore.Unsubscribe, error)
}

// ChatRepo stores chats in the "chats" collection of a docstore.
type ChatRepo struct {
	store  docstore.Store
	logger *zap.Logger
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(store docstore.Store, logger *zap.Logger) *ChatRepo {
	return &ChatRepo{store: store, logger: logger}
}

// PairKey canonicalizes an unordered pair of user ids. The length prefix keeps
// ids containing the separator from colliding.
func PairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return fmt.Sprintf("%d:%s|%s", len(ids[0]), ids[0], ids[1])
}

func userChatsQuery(userID string) docstore.Query {
	return docstore.Collection(chatsCollection).Where("participants", docstore.OpArrayContains, userID)
}

// ChatsForUser returns every chat the user participates in, in storage order.
func (r *ChatRepo) ChatsForUser(ctx context.Context, userID string) ([]models.Chat, error) {
	docs, err := r.store.Query(ctx, userChatsQuery(userID))
	if err != nil {
		return nil, err
	}
	return r.decodeChats(docs), nil
}

// CreateChat creates the chat for the pair unless one already exists.
func (r *ChatRepo) CreateChat(ctx context.Context, selfID, otherID string, at time.Time) (string, bool, error) {
	return r.store.CreateUnique(ctx, chatsCollection, PairKey(selfID, otherID), map[string]any{
		"participants":    []string{selfID, otherID},
		"pairKey":         PairKey(selfID, otherID),
		"lastMessage":     "",
		"lastMessageTime": at.UTC(),
	})
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	doc, err := r.store.Get(ctx, chatsCollection, chatID)
	if errors.Is(err, docstore.ErrNotFound) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, err
	}
	return decodeChat(doc)
}

// UpdateSummary patches the last-message fields of an existing chat.
func (r *ChatRepo) UpdateSummary(ctx context.Context, chatID, text string, at time.Time) error {
	err := r.store.Update(ctx, chatsCollection, chatID, map[string]any{
		"lastMessage":     text,
		"lastMessageTime": at.UTC(),
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrChatNotFound
	}
	return err
}

// SubscribeForUser streams the user's chats, most recently active first.
func (r *ChatRepo) SubscribeForUser(ctx context.Context, userID string, fn func([]models.Chat, error)) (docstore.Unsubscribe, error) {
	q := userChatsQuery(userID).OrderedBy("lastMessageTime", docstore.Desc)
	return r.store.Subscribe(ctx, q, func(docs []docstore.Document, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		fn(r.decodeChats(docs), nil)
	})
}

func (r *ChatRepo) decodeChats(docs []docstore.Document) []models.Chat {
	chats := make([]models.Chat, 0, len(docs))
	for _, doc := range docs {
		chat, err := decodeChat(doc)
		if err != nil {
			r.logger.Warn("skipping chat document", zap.String("chat_id", doc.ID), zap.Error(err))
			continue
		}
		chats = append(chats, chat)
	}
	return chats
}

func decodeChat(doc docstore.Document) (models.Chat, error) {
	participants := docstore.StringsValue(doc.Fields["participants"])
	if len(participants) == 0 {
		return models.Chat{}, fmt.Errorf("%w: chat %s has no participants", ErrMalformed, doc.ID)
	}
	chat := models.Chat{ID: doc.ID, Participants: participants}
	chat.LastMessage, _ = doc.Fields["lastMessage"].(string)
	if ts, ok := docstore.TimeValue(doc.Fields["lastMessageTime"]); ok {
		chat.LastMessageTime = ts
	}
	return chat, nil
}
