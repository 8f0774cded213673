// Package activitymap turns auth activity events into generic records and
// forwards the ones an account owner should see to their open realtime
// sessions.
package activitymap

import (
	"context"

	auth "github.com/quillhub/blog-auth"
	"github.com/quillhub/blog-auth/realtime"
)

// KindAccountStatus is the notification kind pushed when an administrator
// enables or disables an account.
const KindAccountStatus = "ACCOUNT_STATUS"

const (
	messageDisabled = "Your account has been banned."
	messageEnabled  = "Your account has been reinstated."
)

// SinkConfig wires a Sink. Every field is optional.
type SinkConfig struct {
	Logger    auth.Logger
	Publisher realtime.Publisher
	Options   []Option
}

// Sink logs every event in normalized form and pushes account status
// changes to the affected account.
type Sink struct {
	logger    auth.Logger
	publisher realtime.Publisher
	options   []Option
}

var _ auth.ActivitySink = (*Sink)(nil)

func NewSink(cfg SinkConfig) *Sink {
	logger := cfg.Logger
	if logger == nil {
		logger = auth.NopLogger()
	}
	return &Sink{
		logger:    logger,
		publisher: cfg.Publisher,
		options:   cfg.Options,
	}
}

// Record implements auth.ActivitySink. Delivery is best effort and never
// fails the caller.
func (s *Sink) Record(_ context.Context, event auth.ActivityEvent) error {
	record := Normalize(event, s.options...)
	s.logger.Info("activity",
		"verb", record.Verb,
		"actor_id", record.ActorID,
		"object_type", record.ObjectType,
		"object_id", record.ObjectID,
		"channel", record.Channel,
		"metadata", record.Metadata,
		"occurred_at", record.OccurredAt,
	)

	if s.publisher == nil || event.EventType != auth.ActivityEventAccountStatusChanged {
		return nil
	}

	username, _ := event.Metadata[MetadataKeyUsername].(string)
	enabled, ok := event.Metadata[MetadataKeyEnabled].(bool)
	if username == "" || !ok {
		return nil
	}

	message := messageDisabled
	if enabled {
		message = messageEnabled
	}

	delivered := s.publisher.SendNotification(username, realtime.NotificationEvent{
		Recipient: username,
		Kind:      KindAccountStatus,
		Message:   message,
		CreatedAt: record.OccurredAt,
	})
	s.logger.Debug("account status pushed", "username", username, "sessions", delivered)
	return nil
}
