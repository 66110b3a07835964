package messaging

import (
	"context"

	"go.uber.org/zap"

	"lostfound-chat/internal/observability"
)

// Unsubscribe stops a live subscription. Calling it again is a no-op, and it
// may be called from inside the update callback.
type Unsubscribe func()

func publishDomainEvent(ctx context.Context, logger *zap.Logger, name string, payload map[string]any) {
	err := observability.PublishEvent(ctx, observability.RoutingChatEvents+"."+name, observability.EventEnvelope{
		EventType: observability.RoutingChatEvents,
		EventName: name,
		Payload:   payload,
	}, observability.HeadersFromContext(ctx))
	if err != nil {
		logger.Warn("publish domain event failed", zap.String("event", name), zap.Error(err))
	}
}
