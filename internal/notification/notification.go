// Package notification reacts to committed domain events. Delivery is limited to
// structured log lines; mail and chat integrations are out of scope.
package notification

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/resorption-bidonvilles/internal/core/events"
	"github.com/frahmantamala/resorption-bidonvilles/internal/metrics"
)

// Subscriber is the part of the event bus the notifier registers on.
type Subscriber interface {
	Subscribe(eventType string, handler events.Handler)
}

// EventTypes lists every event the notifier follows.
var EventTypes = []string{
	events.EventTypeShantytownCreated,
	events.EventTypeShantytownUpdated,
	events.EventTypeShantytownClosed,
	events.EventTypeShantytownDeleted,
	events.EventTypeCommentCreated,
	events.EventTypePlanCreated,
	events.EventTypePlanClosed,
	events.EventTypeAccessCreated,
	events.EventTypeAccessActivated,
	events.EventTypeAccessExpired,
}

type Notifier struct {
	logger  *slog.Logger
	observe func(eventType string, err error)
}

func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{logger: logger, observe: metrics.ObserveEvent}
}

// Register subscribes the notifier to every followed event type.
func (n *Notifier) Register(bus Subscriber) {
	for _, t := range EventTypes {
		bus.Subscribe(t, n.Handle)
	}
}

func (n *Notifier) Handle(ctx context.Context, event events.Event) error {
	attrs := []any{
		"event_type", event.EventType(),
		"event_id", event.EventID(),
		"occurred_at", event.OccurredAt(),
	}
	attrs = append(attrs, details(event)...)

	n.logger.InfoContext(ctx, "notification", attrs...)
	n.observe(event.EventType(), nil)
	return nil
}

func details(event events.Event) []any {
	switch e := event.(type) {
	case *events.ShantytownEvent:
		return []any{"shantytown_id", e.ShantytownID, "departement", e.DepartementCode, "actor_id", e.ActorID}
	case *events.CommentCreatedEvent:
		// private comments never leave the audit trail
		if e.Private {
			return []any{"shantytown_id", e.ShantytownID, "comment_id", e.CommentID, "private", true}
		}
		return []any{"shantytown_id", e.ShantytownID, "comment_id", e.CommentID, "author_id", e.AuthorID}
	case *events.PlanEvent:
		return []any{"plan_id", e.PlanID, "actor_id", e.ActorID}
	case *events.AccessEvent:
		return []any{"access_id", e.AccessID, "user_id", e.UserID, "expires_at", e.ExpiresAt}
	default:
		return []any{"payload", event.Payload()}
	}
}
