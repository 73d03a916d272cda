package responder

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mycelian/mycelian-persona/internal/events"
	"github.com/mycelian/mycelian-persona/internal/model"
	"github.com/mycelian/mycelian-persona/internal/store"
)

// Publisher receives post-persist notifications.
type Publisher interface {
	Publish(evt events.Event) bool
}

// Sink writes generated replies into their destination table.
type Sink struct {
	replies store.Replies
	pub     Publisher
	log     zerolog.Logger
}

// NewSink returns a Sink. pub may be nil.
func NewSink(replies store.Replies, pub Publisher, log zerolog.Logger) *Sink {
	return &Sink{replies: replies, pub: pub, log: log.With().Str("component", "sink").Logger()}
}

// Persist stores text authored as dest.AuthorID and then emits a
// ReplyPersisted notification. A dropped notification never fails the call.
func (s *Sink) Persist(ctx context.Context, dest model.Destination, text string) (model.GeneratedReply, error) {
	if !dest.Table.Valid() || dest.ContainerID == "" || dest.AuthorID == "" {
		return model.GeneratedReply{}, fmt.Errorf("%w: incomplete destination %+v", model.ErrValidation, dest)
	}
	r, err := s.replies.Insert(ctx, dest, text)
	if err != nil {
		return model.GeneratedReply{}, fmt.Errorf("persist reply: %w", err)
	}
	if s.pub != nil && !s.pub.Publish(events.ReplyPersisted(*r)) {
		s.log.Warn().Str("reply_id", r.ID).Msg("post-persist notification dropped")
	}
	return *r, nil
}
