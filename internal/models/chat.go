package models

import "time"

// Chat is a persistent conversation between exactly two users.
type Chat struct {
	ID              string    `json:"id"`
	Participants    []string  `json:"participants"`
	LastMessage     string    `json:"last_message"`
	LastMessageTime time.Time `json:"last_message_time"`
}

// Counterpart returns the participant that is not selfID, or "" when none is.
func (c Chat) Counterpart(selfID string) string {
	for _, p := range c.Participants {
		if p != selfID {
			return p
		}
	}
	return ""
}

// HasParticipant reports whether userID belongs to the chat.
func (c Chat) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// ChatSummary is a chat enriched with the counterpart's display data.
type ChatSummary struct {
	Chat
	OtherUserID    string `json:"other_user_id"`
	OtherUserName  string `json:"other_user_name"`
	OtherUserPhoto string `json:"other_user_photo"`
}

// ChatsEvent is pushed to a user's chat-list feed on every snapshot.
type ChatsEvent struct {
	Type  string        `json:"type"`
	Chats []ChatSummary `json:"chats"`
}
