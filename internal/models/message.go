package models

import "time"

// Message is one immutable entry of a chat.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// MessagesEvent is pushed to a chat's live feed on every snapshot.
type MessagesEvent struct {
	Type     string    `json:"type"`
	ChatID   string    `json:"chat_id"`
	Messages []Message `json:"messages"`
}
