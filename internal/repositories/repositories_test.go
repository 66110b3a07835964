package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lostfound-chat/internal/docstore"
	"lostfound-chat/internal/models"
)

func TestPairKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, PairKey("u1", "u2"), PairKey("u2", "u1"))
	assert.NotEqual(t, PairKey("a|b", "c"), PairKey("a", "b|c"))
}

func TestCreateChatConvergesOnPair(t *testing.T) {
	store := docstore.NewMemoryStore()
	repo := NewChatRepo(store, zap.NewNop())
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	id, created, err := repo.CreateChat(ctx, "u1", "u2", at)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := repo.CreateChat(ctx, "u2", "u1", at.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, again)

	chat, err := repo.GetChat(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, chat.Participants)
	assert.Empty(t, chat.LastMessage)
	assert.True(t, chat.LastMessageTime.Equal(at))
}

func TestChatsForUserSkipsMalformed(t *testing.T) {
	store := docstore.NewMemoryStore()
	repo := NewChatRepo(store, zap.NewNop())
	ctx := context.Background()

	id, _, err := repo.CreateChat(ctx, "u1", "u2", time.Now())
	require.NoError(t, err)
	_, err = store.Create(ctx, "chats", map[string]any{"lastMessage": "orphan"})
	require.NoError(t, err)

	chats, err := repo.ChatsForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, id, chats[0].ID)

	none, err := repo.ChatsForUser(ctx, "u9")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetChatMissing(t *testing.T) {
	repo := NewChatRepo(docstore.NewMemoryStore(), zap.NewNop())
	_, err := repo.GetChat(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestUpdateSummary(t *testing.T) {
	store := docstore.NewMemoryStore()
	repo := NewChatRepo(store, zap.NewNop())
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	id, _, err := repo.CreateChat(ctx, "u1", "u2", at)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateSummary(ctx, id, "still have it?", at.Add(time.Hour)))

	chat, err := repo.GetChat(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "still have it?", chat.LastMessage)
	assert.True(t, chat.LastMessageTime.Equal(at.Add(time.Hour)))

	assert.ErrorIs(t, repo.UpdateSummary(ctx, "nope", "x", at), ErrChatNotFound)
	chats, err := repo.ChatsForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, chats, 1)
}

func TestSubscribeForUserOrdersByActivity(t *testing.T) {
	store := docstore.NewMemoryStore()
	repo := NewChatRepo(store, zap.NewNop())
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	older, _, err := repo.CreateChat(ctx, "u1", "u2", at)
	require.NoError(t, err)
	newer, _, err := repo.CreateChat(ctx, "u1", "u3", at.Add(time.Minute))
	require.NoError(t, err)

	got := make(chan []models.Chat, 8)
	unsubscribe, err := repo.SubscribeForUser(ctx, "u1", func(chats []models.Chat, err error) {
		if err == nil {
			got <- chats
		}
	})
	require.NoError(t, err)
	defer unsubscribe()

	first := <-got
	require.Len(t, first, 2)
	assert.Equal(t, []string{newer, older}, []string{first[0].ID, first[1].ID})

	require.NoError(t, repo.UpdateSummary(ctx, older, "hi", at.Add(time.Hour)))
	require.Eventually(t, func() bool {
		select {
		case chats := <-got:
			return len(chats) == 2 && chats[0].ID == older
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestMessagesRoundTripInSendOrder(t *testing.T) {
	store := docstore.NewMemoryStore()
	repo := NewMessageRepo(store, zap.NewNop())
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	first, err := repo.CreateMessage(ctx, "c1", "u1", "I found a wallet", at)
	require.NoError(t, err)
	second, err := repo.CreateMessage(ctx, "c1", "u2", "That's mine!", at.Add(time.Second))
	require.NoError(t, err)
	_, err = repo.CreateMessage(ctx, "c2", "u3", "elsewhere", at)
	require.NoError(t, err)
	_, err = store.Create(ctx, docstore.Path("chats", "c1", "messages"), map[string]any{"senderId": "u1"})
	require.NoError(t, err)

	msgs, err := repo.ListMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, first, msgs[0])
	assert.Equal(t, second, msgs[1])
}

func TestUserUpsertAndGet(t *testing.T) {
	store := docstore.NewMemoryStore()
	repo := NewUserRepo(store)
	ctx := context.Background()

	_, found, err := repo.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, found)

	created, err := repo.UpsertProfile(ctx, models.UserProfile{UID: "u1", DisplayName: "Ada", PhotoURL: "a.png"})
	require.NoError(t, err)
	updated, err := repo.UpsertProfile(ctx, models.UserProfile{UID: "u1", DisplayName: "Ada L."})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)

	profile, found, err := repo.GetProfile(ctx, "u1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Ada L.", profile.DisplayName)
	assert.Empty(t, profile.PhotoURL)

	docs, err := store.GetByField(ctx, "users", "uid", "u1")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}
