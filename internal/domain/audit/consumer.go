package audit

import (
	"context"

	"github.com/mkersic/relay/internal/domain/conversation"
	"github.com/mkersic/relay/internal/infra/eventbus"
)

// ConsumeMessageEvents records an audit event for every message appended to a
// conversation. It runs in its own goroutine and returns when ctx is
// cancelled or when its subscription channel is closed, unsubscribing from
// the bus either way.
func ConsumeMessageEvents(ctx context.Context, bus eventbus.EventBus, svc *Service) {
	events := bus.Subscribe(conversation.TopicMessageCreated)
	defer bus.Unsubscribe(conversation.TopicMessageCreated, events)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, open := <-events:
			if !open {
				return
			}
			payload, ok := evt.Payload.(conversation.MessageCreated)
			if !ok {
				continue
			}
			// Write failures are swallowed: the audit trail is best-effort
			// here and must never break the chat path.
			_ = svc.Record(ctx, payload.UserID, "message.created", OutcomeSuccess, map[string]any{
				"conversationId": payload.Message.ConversationID,
				"messageId":      payload.Message.ID,
				"role":           payload.Message.Role,
			})
		}
	}
}
