package events

import (
	"time"

	"github.com/mycelian/mycelian-persona/internal/model"
)

// Kind is the type of post-persist notification.
type Kind string

const (
	KindReplyPersisted Kind = "reply_persisted"
)

// Event carries enough for downstream consumers (audio rendering, realtime
// fan-out) to load the reply; it never carries the prompt.
type Event struct {
	Kind        Kind
	ReplyID     string
	Destination model.Destination
	At          time.Time
}

// ReplyPersisted builds the notification emitted after a reply is stored.
func ReplyPersisted(r model.GeneratedReply) Event {
	return Event{Kind: KindReplyPersisted, ReplyID: r.ID, Destination: r.Destination, At: r.CreatedAt}
}

// Bus is a lightweight in-process pub-sub backed by a buffered channel.
type Bus struct {
	ch chan Event
}

// NewBus creates a bus with the given buffer size.
func NewBus(buffer int) *Bus {
	return &Bus{ch: make(chan Event, buffer)}
}

// Publish enqueues the event without blocking. It returns false when the
// buffer is full and the event was dropped.
func (b *Bus) Publish(evt Event) bool {
	if b == nil {
		return false
	}
	select {
	case b.ch <- evt:
		return true
	default:
		return false
	}
}

// Subscribe returns the read side for consumers.
func (b *Bus) Subscribe() <-chan Event {
	return b.ch
}
