package messaging

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"lostfound-chat/internal/observability"
	"lostfound-chat/internal/repositories"
)

const tracerName = "lostfound-chat/messaging"

// Directory finds or creates the single chat shared by two users.
type Directory struct {
	chats  repositories.ChatRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewDirectory(chats repositories.ChatRepository, logger *zap.Logger) *Directory {
	return &Directory{chats: chats, logger: logger, now: time.Now}
}

// ResolveChat returns the id of the chat between selfID and otherID, creating
// it with an empty summary when none exists. Concurrent calls for one pair
// return the same id.
func (d *Directory) ResolveChat(ctx context.Context, selfID, otherID string) (string, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "messaging.ResolveChat")
	defer span.End()

	if selfID == "" || otherID == "" || selfID == otherID {
		span.SetStatus(codes.Error, ErrInvalidParticipants.Error())
		return "", ErrInvalidParticipants
	}

	existing, err := d.chats.ChatsForUser(ctx, selfID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query chats")
		return "", err
	}
	for _, chat := range existing {
		if chat.HasParticipant(otherID) {
			span.SetAttributes(attribute.String("chat.id", chat.ID), attribute.Bool("chat.created", false))
			return chat.ID, nil
		}
	}

	id, created, err := d.chats.CreateChat(ctx, selfID, otherID, d.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create chat")
		return "", err
	}
	span.SetAttributes(attribute.String("chat.id", id), attribute.Bool("chat.created", created))
	if created {
		observability.IncChatCreated()
		d.logger.Info("chat created", zap.String("chat_id", id), zap.String("user_id", selfID), zap.String("other_id", otherID))
		publishDomainEvent(ctx, d.logger, "chat_created", map[string]any{
			"chat_id":      id,
			"participants": []string{selfID, otherID},
		})
	}
	return id, nil
}
