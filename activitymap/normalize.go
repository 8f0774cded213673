package activitymap

import (
	"maps"
	"strconv"
	"strings"
	"time"

	auth "github.com/quillhub/blog-auth"
)

const (
	// MetadataKeyActorType stores the actor type derived from auth.ActorRef.Type.
	MetadataKeyActorType = "actor_type"
	// MetadataKeyEnabled stores the target flag of an account status change.
	MetadataKeyEnabled = "enabled"
	// MetadataKeyUsername stores the username the event is about.
	MetadataKeyUsername = "username"
)

const (
	defaultChannel = "auth"
	objectTypeUser = "user"
	systemActor    = "system"
)

// Normalized is the flat record the sink logs for every activity event.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes Normalize.
type Option func(*Normalized)

// WithDefaultChannel replaces the "auth" channel records are tagged with.
func WithDefaultChannel(channel string) Option {
	return func(n *Normalized) {
		n.Channel = strings.TrimSpace(channel)
	}
}

// Normalize flattens an auth.ActivityEvent. The actor is the acting account,
// then the subject account, then "system". Ids are base 10 and zero means
// absent. The event's metadata is copied, never shared.
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	out := Normalized{
		ActorID:    actorOf(event),
		Verb:       string(event.EventType),
		ObjectType: objectTypeUser,
		ObjectID:   formatID(event.UserID),
		Channel:    defaultChannel,
		Metadata:   maps.Clone(event.Metadata),
		OccurredAt: event.OccurredAt,
	}
	if out.OccurredAt.IsZero() {
		out.OccurredAt = time.Now().UTC()
	}

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if out.Metadata == nil {
			out.Metadata = map[string]any{}
		}
		if _, ok := out.Metadata[MetadataKeyActorType]; !ok {
			out.Metadata[MetadataKeyActorType] = actorType
		}
	}

	for _, opt := range opts {
		if opt != nil {
			opt(&out)
		}
	}
	return out
}

func actorOf(event auth.ActivityEvent) string {
	switch {
	case event.Actor.ID != 0:
		return formatID(event.Actor.ID)
	case event.UserID != 0:
		return formatID(event.UserID)
	default:
		return systemActor
	}
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
