package realtime

import (
	"context"

	"github.com/yungbote/vantage-backend/internal/observability"
	"github.com/yungbote/vantage-backend/internal/platform/logger"
)

// Broadcastable is an entity that can be announced to subscribers.
type Broadcastable interface {
	EntityType() string
	BroadcastFields() map[string]any
	IdentityFields() []string
}

// Publisher is the transport a Notifier writes to; bus.Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

type Notifier struct {
	pub Publisher
	log *logger.Logger
}

func NewNotifier(pub Publisher, log *logger.Logger) *Notifier {
	return &Notifier{pub: pub, log: log.With("service", "ChangeNotifier")}
}

// Publish emits one message on "<entity>.<kind>". The payload holds the
// changed fields minus the ignored ones (every field when changed is nil),
// plus the entity's identity fields. Delivery is fire-and-forget.
func (n *Notifier) Publish(ctx context.Context, entity Broadcastable, kind string, changed, ignored []string) error {
	msg := BuildMessage(entity, kind, changed, ignored)
	err := n.pub.Publish(ctx, msg)
	result := "sent"
	if err != nil {
		result = "failed"
		n.log.Warn("publish failed", "channel", msg.Channel, "error", err)
	}
	observability.Notifications.WithLabelValues(msg.Entity, kind, result).Inc()
	return err
}

func BuildMessage(entity Broadcastable, kind string, changed, ignored []string) Message {
	all := entity.BroadcastFields()
	skip := make(map[string]bool, len(ignored))
	for _, f := range ignored {
		skip[f] = true
	}

	data := make(map[string]any, len(all))
	if changed == nil {
		for k, v := range all {
			if !skip[k] {
				data[k] = v
			}
		}
	} else {
		for _, f := range changed {
			if skip[f] {
				continue
			}
			if v, ok := all[f]; ok {
				data[f] = v
			}
		}
	}
	for _, f := range entity.IdentityFields() {
		if v, ok := all[f]; ok {
			data[f] = v
		}
	}

	et := entity.EntityType()
	return Message{
		Channel: ChannelName(et, kind),
		Event:   kind,
		Entity:  et,
		Data:    data,
	}
}
