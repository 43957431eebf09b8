package services

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/sfm-market/storefront/internal/mq"
)

// EventPublisher sends change events to subscribers outside the process.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev mq.Event) (string, error)
}

// notifier publishes events after a write has committed. Publishing is best
// effort: errors are logged and the request still succeeds.
type notifier struct {
	events EventPublisher
	log    logr.Logger
	now    func() time.Time
}

func newNotifier(events EventPublisher, log logr.Logger) notifier {
	return notifier{events: events, log: log, now: time.Now}
}

func (n notifier) notify(ctx context.Context, resource, action, resourceID, actorID string) {
	if n.events == nil {
		return
	}
	ev := mq.Event{
		Type:       resource + "." + action,
		Resource:   resource,
		ResourceID: resourceID,
		ActorID:    actorID,
		OccurredAt: n.now().UTC(),
	}
	if _, err := n.events.PublishEvent(ctx, ev); err != nil {
		n.log.Error(err, "failed to publish event", "type", ev.Type, "id", resourceID)
	}
}
