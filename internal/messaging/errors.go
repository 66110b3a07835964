package messaging

import (
	"errors"
	"fmt"

	"lostfound-chat/internal/repositories"
)

var (
	ErrInvalidParticipants = errors.New("chat needs two distinct non-empty participants")
	ErrEmptyMessage        = errors.New("message text is empty")
	ErrNotParticipant      = errors.New("user is not a chat participant")
	// ErrChatNotFound is the repository sentinel, so errors.Is matches either.
	ErrChatNotFound = repositories.ErrChatNotFound
)

// EnrichmentError describes a counterpart lookup that failed while building a
// chat list. The affected entry falls back to placeholder values.
type EnrichmentError struct {
	ChatID string
	UserID string
	Err    error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrich chat %s with user %s: %v", e.ChatID, e.UserID, e.Err)
}

func (e *EnrichmentError) Unwrap() error { return e.Err }
