package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"lostfound-chat/internal/messaging"
	"lostfound-chat/internal/models"
	"lostfound-chat/internal/repositories"
)

type DirectoryMock struct {
	mock.Mock
}

func (m *DirectoryMock) ResolveChat(ctx context.Context, selfID, otherID string) (string, error) {
	args := m.Called(ctx, selfID, otherID)
	return args.String(0), args.Error(1)
}

type ChatListMock struct {
	mock.Mock
}

func (m *ChatListMock) Snapshot(ctx context.Context, selfID string) ([]models.ChatSummary, error) {
	args := m.Called(ctx, selfID)
	var list []models.ChatSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ChatSummary)
	}
	return list, args.Error(1)
}

// Subscribe records the callback so tests can push lists through it.
func (m *ChatListMock) Subscribe(ctx context.Context, selfID string, onUpdate func([]models.ChatSummary)) (messaging.Unsubscribe, error) {
	args := m.Called(ctx, selfID, onUpdate)
	var unsubscribe messaging.Unsubscribe
	if val := args.Get(0); val != nil {
		unsubscribe = val.(messaging.Unsubscribe)
	}
	return unsubscribe, args.Error(1)
}

type MessageStreamMock struct {
	mock.Mock
}

func (m *MessageStreamMock) Send(ctx context.Context, chatID, senderID, text string) (models.Message, error) {
	args := m.Called(ctx, chatID, senderID, text)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageStreamMock) List(ctx context.Context, chatID string) ([]models.Message, error) {
	args := m.Called(ctx, chatID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageStreamMock) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MessageStreamMock) Subscribe(ctx context.Context, chatID string, onUpdate func([]models.Message)) (messaging.Unsubscribe, error) {
	args := m.Called(ctx, chatID, onUpdate)
	var unsubscribe messaging.Unsubscribe
	if val := args.Get(0); val != nil {
		unsubscribe = val.(messaging.Unsubscribe)
	}
	return unsubscribe, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetProfile(ctx context.Context, uid string) (models.UserProfile, bool, error) {
	args := m.Called(ctx, uid)
	var profile models.UserProfile
	if val := args.Get(0); val != nil {
		profile = val.(models.UserProfile)
	}
	return profile, args.Bool(1), args.Error(2)
}

func (m *UserRepositoryMock) UpsertProfile(ctx context.Context, profile models.UserProfile) (models.UserProfile, error) {
	args := m.Called(ctx, profile)
	var saved models.UserProfile
	if val := args.Get(0); val != nil {
		saved = val.(models.UserProfile)
	}
	return saved, args.Error(1)
}

var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ messaging.ProfileLookup = (*UserRepositoryMock)(nil)
