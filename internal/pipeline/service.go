package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mycelian/mycelian-persona/internal/metrics"
	"github.com/mycelian/mycelian-persona/internal/model"
	"github.com/mycelian/mycelian-persona/internal/prompt"
	"github.com/mycelian/mycelian-persona/internal/responder"
)

// Status is the terminal state of a handled trigger.
type Status string

const (
	StatusOK           Status = "ok"
	StatusNoDocuments  Status = "no_documents"
	StatusNoResponders Status = "no_responders"
)

// ChannelTrigger is a new top-level message posted in a channel.
type ChannelTrigger struct {
	ChannelID    string   `json:"channelId"`
	MessageID    string   `json:"messageId"`
	SenderID     string   `json:"senderId"`
	Text         string   `json:"text"`
	MentionedIDs []string `json:"mentionedIds"`
}

// ThreadTrigger is a new reply under a channel message.
type ThreadTrigger struct {
	ParentMessageID string   `json:"parentMessageId"`
	ReplyID         string   `json:"replyId"`
	SenderID        string   `json:"senderId"`
	Text            string   `json:"text"`
	MentionedIDs    []string `json:"mentionedIds"`
}

// DirectTrigger is a new direct message between two users.
type DirectTrigger struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	SenderID       string `json:"senderId"`
	RecipientID    string `json:"recipientId"`
	Text           string `json:"text"`
}

// Failure reports one responder whose reply was not persisted.
type Failure struct {
	ResponderID string `json:"responderId"`
	Error       string `json:"error"`
}

// Result is returned for every trigger that reached a terminal state.
// StatusOK is reported once dispatch completed, even if some responders failed.
type Result struct {
	Status   Status                 `json:"status"`
	Replies  []model.GeneratedReply `json:"replies"`
	Failures []Failure              `json:"failures"`
}

// Responders returns the auto-respond profiles among ids.
type Responders interface {
	AutoRespondEnabled(ctx context.Context, ids []string) ([]model.Profile, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]model.RetrievedMatch, error)
}

type Assembler interface {
	AssembleAll(ctx context.Context, matches []model.RetrievedMatch) string
}

type Dispatcher interface {
	FanOut(ctx context.Context, jobs []responder.Job) []responder.Outcome
}

// Service orchestrates retrieval, assembly, prompting and fan-out for each
// trigger surface.
type Service struct {
	responders Responders
	retriever  Retriever
	assembler  Assembler
	dispatcher Dispatcher
	topK       int
	log        zerolog.Logger
}

func NewService(responders Responders, retriever Retriever, assembler Assembler, dispatcher Dispatcher, topK int, log zerolog.Logger) *Service {
	return &Service{
		responders: responders,
		retriever:  retriever,
		assembler:  assembler,
		dispatcher: dispatcher,
		topK:       topK,
		log:        log.With().Str("component", "pipeline").Logger(),
	}
}

type request struct {
	surface    string
	mode       prompt.Mode
	text       string
	senderID   string
	candidates []string
	table      model.SourceTable
	container  string
	// stopOnNoDocuments ends the request when retrieval returned nil.
	stopOnNoDocuments bool
}

func (s *Service) HandleChannelMessage(ctx context.Context, t ChannelTrigger) (Result, error) {
	if err := requireFields(map[string]string{"channelId": t.ChannelID, "senderId": t.SenderID, "text": t.Text}); err != nil {
		return Result{}, err
	}
	return s.handle(ctx, request{
		surface:    "channel",
		mode:       prompt.ModeChannel,
		text:       t.Text,
		senderID:   t.SenderID,
		candidates: t.MentionedIDs,
		table:      model.TableChannelMessage,
		container:  t.ChannelID,
	})
}

func (s *Service) HandleThreadReply(ctx context.Context, t ThreadTrigger) (Result, error) {
	if err := requireFields(map[string]string{"parentMessageId": t.ParentMessageID, "senderId": t.SenderID, "text": t.Text}); err != nil {
		return Result{}, err
	}
	return s.handle(ctx, request{
		surface:    "thread",
		mode:       prompt.ModeChannel,
		text:       t.Text,
		senderID:   t.SenderID,
		candidates: t.MentionedIDs,
		table:      model.TableThreadReply,
		container:  t.ParentMessageID,
	})
}

func (s *Service) HandleDirectMessage(ctx context.Context, t DirectTrigger) (Result, error) {
	if err := requireFields(map[string]string{"conversationId": t.ConversationID, "senderId": t.SenderID, "recipientId": t.RecipientID, "text": t.Text}); err != nil {
		return Result{}, err
	}
	return s.handle(ctx, request{
		surface:           "direct",
		mode:              prompt.ModeDirectMessage,
		text:              t.Text,
		senderID:          t.SenderID,
		candidates:        []string{t.RecipientID},
		table:             model.TableDirectMessage,
		container:         t.ConversationID,
		stopOnNoDocuments: true,
	})
}

func (s *Service) handle(ctx context.Context, req request) (res Result, err error) {
	log := s.log.With().Str("surface", req.surface).Str("container", req.container).Logger()
	defer func() {
		status := string(res.Status)
		if err != nil {
			status = "failed"
		}
		metrics.TriggersTotal.WithLabelValues(req.surface, status).Inc()
	}()

	profiles, err := s.eligible(ctx, req.candidates, req.senderID)
	if err != nil {
		return Result{}, err
	}
	if len(profiles) == 0 {
		log.Debug().Msg("no eligible responders")
		return Result{Status: StatusNoResponders}, nil
	}

	matches, err := s.retriever.Retrieve(ctx, req.text, s.topK)
	if err != nil {
		return Result{}, fmt.Errorf("retrieve: %w", err)
	}
	if matches == nil && req.stopOnNoDocuments {
		log.Info().Msg("no documents for direct message")
		return Result{Status: StatusNoDocuments}, nil
	}

	var contextText string
	if len(matches) > 0 {
		contextText = s.assembler.AssembleAll(ctx, matches)
	}

	jobs := make([]responder.Job, 0, len(profiles))
	for _, p := range profiles {
		jobs = append(jobs, responder.Job{
			Responder:   p,
			Prompt:      prompt.Build(req.mode, p.DisplayName, contextText, req.text),
			Destination: model.Destination{Table: req.table, ContainerID: req.container, AuthorID: p.ID},
		})
	}

	res = Result{Status: StatusOK, Replies: []model.GeneratedReply{}, Failures: []Failure{}}
	for _, o := range s.dispatcher.FanOut(ctx, jobs) {
		if o.Err != nil {
			res.Failures = append(res.Failures, Failure{ResponderID: o.Job.Responder.ID, Error: o.Err.Error()})
			continue
		}
		res.Replies = append(res.Replies, *o.Reply)
	}
	log.Info().Int("matches", len(matches)).Int("replies", len(res.Replies)).Int("failures", len(res.Failures)).Msg("trigger handled")
	return res, nil
}

// eligible returns auto-respond profiles among candidates, never the sender.
func (s *Service) eligible(ctx context.Context, candidates []string, senderID string) ([]model.Profile, error) {
	seen := make(map[string]struct{}, len(candidates))
	ids := make([]string, 0, len(candidates))
	for _, id := range candidates {
		id = strings.TrimSpace(id)
		if id == "" || id == senderID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	profiles, err := s.responders.AutoRespondEnabled(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve responders: %w", err)
	}
	return profiles, nil
}

func requireFields(fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: missing %s", model.ErrValidation, strings.Join(missing, ", "))
}
