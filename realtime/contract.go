// Package realtime implements the authenticated websocket channel and the
// per identity notification fan-out that runs over it.
package realtime

import (
	"encoding/json"
	"time"
)

// Subprotocol is negotiated on every websocket upgrade
const Subprotocol = "blog.realtime.v1"

// Client frame types
const (
	TypeConnect     = "connect"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeDisconnect  = "disconnect"
	TypePing        = "ping"
)

// Server frame types
const (
	TypeConnected = "connected"
	TypeReceipt   = "receipt"
	TypeMessage   = "message"
	TypeError     = "error"
	TypePong      = "pong"
)

// Frame headers
const (
	HeaderAuthorization = "Authorization"
	HeaderDestination   = "destination"
	HeaderReceiptID     = "receipt-id"
	HeaderContentType   = "content-type"
)

// Per identity destinations
const (
	ChannelNotifications     = "/user/queue/notifications"
	ChannelNotificationCount = "/user/queue/notification-count"
	ChannelNotificationAck   = "/user/queue/notification-ack"
)

var channels = map[string]struct{}{
	ChannelNotifications:     {},
	ChannelNotificationCount: {},
	ChannelNotificationAck:   {},
}

// IsChannel reports whether destination is a known per identity channel
func IsChannel(destination string) bool {
	_, ok := channels[destination]
	return ok
}

// Envelope is the JSON frame exchanged in both directions
type Envelope struct {
	Type    string            `json:"type"`
	ID      string            `json:"id,omitempty"`
	TS      time.Time         `json:"ts"`
	Headers map[string]string `json:"headers,omitempty"`
	Payload json.RawMessage   `json:"payload,omitempty"`
}

// Header returns a header value, nil safe
func (e Envelope) Header(key string) string {
	if e.Headers == nil {
		return ""
	}
	return e.Headers[key]
}

// NotificationEvent is pushed on ChannelNotifications
type NotificationEvent struct {
	ID        int64     `json:"id"`
	Recipient string    `json:"recipient"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	RelatedID *int64    `json:"related_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CountSnapshot is pushed on ChannelNotificationCount
type CountSnapshot struct {
	Total  int64 `json:"total"`
	Unread int64 `json:"unread"`
	Read   int64 `json:"read"`
}

// AckKind distinguishes acknowledgements on ChannelNotificationAck
type AckKind string

const (
	AckRead    AckKind = "read"
	AckDeleted AckKind = "deleted"
)

// Ack is pushed on ChannelNotificationAck
type Ack struct {
	Kind            AckKind `json:"kind"`
	NotificationIDs []int64 `json:"notification_ids"`
}

// ConnectedPayload answers a connect frame
type ConnectedPayload struct {
	SessionID     string `json:"session_id"`
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
}

// ErrorPayload is carried by error frames
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Publisher is the push surface used by business code
type Publisher interface {
	SendNotification(username string, event NotificationEvent) int
	SendCounts(username string, snapshot CountSnapshot) int
	SendReadAck(username string, notificationID int64) int
	SendDeletedAck(username string, notificationIDs []int64) int
}

// Observer receives connection lifecycle and delivery events
type Observer interface {
	ConnectionOpened(authenticated bool)
	ConnectionClosed(authenticated bool)
	ConnectionAuthenticated()
	Handshake(result string)
	Delivery(channel, result string)
}

type nopObserver struct{}

func (nopObserver) ConnectionOpened(bool)    {}
func (nopObserver) ConnectionClosed(bool)    {}
func (nopObserver) ConnectionAuthenticated() {}
func (nopObserver) Handshake(string)         {}
func (nopObserver) Delivery(string, string)  {}

func normalizeObserver(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}
