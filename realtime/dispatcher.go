package realtime

import (
	"encoding/json"
	"time"

	auth "github.com/quillhub/blog-auth"
)

// Delivery results reported to the Observer
const (
	DeliveryQueued  = "queued"
	DeliveryDropped = "dropped"
)

// Dispatcher pushes per identity messages to every live session of that
// identity subscribed to the target channel. Delivery is best effort and
// at most once per session: nothing is queued for offline identities and a
// full session queue drops the message.
type Dispatcher struct {
	registry *Registry
	observer Observer
	logger   auth.Logger
	now      func() time.Time
}

var _ Publisher = (*Dispatcher)(nil)

func NewDispatcher(registry *Registry, logger auth.Logger, observer Observer) *Dispatcher {
	if logger == nil {
		logger = auth.NopLogger()
	}
	return &Dispatcher{
		registry: registry,
		observer: normalizeObserver(observer),
		logger:   logger,
		now:      time.Now,
	}
}

func (d *Dispatcher) SendNotification(username string, event NotificationEvent) int {
	if event.Recipient == "" {
		event.Recipient = username
	}
	return d.publish(username, ChannelNotifications, event)
}

func (d *Dispatcher) SendCounts(username string, snapshot CountSnapshot) int {
	return d.publish(username, ChannelNotificationCount, snapshot)
}

func (d *Dispatcher) SendReadAck(username string, notificationID int64) int {
	return d.publish(username, ChannelNotificationAck, Ack{
		Kind:            AckRead,
		NotificationIDs: []int64{notificationID},
	})
}

func (d *Dispatcher) SendDeletedAck(username string, notificationIDs []int64) int {
	ids := append([]int64{}, notificationIDs...)
	return d.publish(username, ChannelNotificationAck, Ack{
		Kind:            AckDeleted,
		NotificationIDs: ids,
	})
}

// publish returns the number of sessions the message was queued for
func (d *Dispatcher) publish(username, channel string, payload any) int {
	sessions := d.registry.Sessions(username)
	if len(sessions) == 0 {
		return 0
	}

	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("realtime payload encode failed", "channel", channel, "error", err)
		return 0
	}

	now := d.now().UTC()
	queued := 0
	for _, s := range sessions {
		if !s.Subscribed(channel) {
			continue
		}

		env := Envelope{
			Type: TypeMessage,
			ID:   NewID(now),
			TS:   now,
			Headers: map[string]string{
				HeaderDestination: channel,
				HeaderContentType: "application/json",
				"subscription":    s.subscriptionID(channel),
			},
			Payload: body,
		}

		if s.Enqueue(env) {
			queued++
			d.observer.Delivery(channel, DeliveryQueued)
			continue
		}

		d.observer.Delivery(channel, DeliveryDropped)
		d.logger.Warn("realtime delivery dropped", "username", username, "session_id", s.ID, "channel", channel)
	}
	return queued
}
