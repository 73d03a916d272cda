package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mycelian/mycelian-persona/internal/llm"
	"github.com/mycelian/mycelian-persona/internal/metrics"
	"github.com/mycelian/mycelian-persona/internal/model"
	"github.com/mycelian/mycelian-persona/internal/prompt"
)

// ErrBlankReply is returned when the model produced only whitespace.
var ErrBlankReply = errors.New("model returned a blank reply")

// Persister stores a finished reply.
type Persister interface {
	Persist(ctx context.Context, dest model.Destination, text string) (model.GeneratedReply, error)
}

// Job is one responder's generation request.
type Job struct {
	Responder   model.Profile
	Prompt      model.PersonaPrompt
	Destination model.Destination
}

// Outcome is the settled result of one Job. Exactly one of Reply or Err is set.
type Outcome struct {
	Job   Job
	Reply *model.GeneratedReply
	Err   error
}

// Generator calls the model and persists replies.
type Generator struct {
	completer   llm.Completer
	sink        Persister
	temperature float32
	limit       int
	log         zerolog.Logger
}

// NewGenerator returns a Generator. limit <= 0 runs every fan-out job at once.
func NewGenerator(completer llm.Completer, sink Persister, temperature float32, limit int, log zerolog.Logger) *Generator {
	return &Generator{
		completer:   completer,
		sink:        sink,
		temperature: temperature,
		limit:       limit,
		log:         log.With().Str("component", "generator").Logger(),
	}
}

// Respond generates one reply and persists it. Nothing is written unless
// generation fully succeeded; persistence errors are returned as is.
func (g *Generator) Respond(ctx context.Context, job Job) (model.GeneratedReply, error) {
	out, err := g.completer.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: job.Prompt.SystemText},
		{Role: llm.RoleUser, Content: job.Prompt.UserText},
	}, g.temperature)
	if err != nil {
		return model.GeneratedReply{}, fmt.Errorf("generate: %w", err)
	}
	text := prompt.StripSpeakerPrefix(job.Responder.DisplayName, out)
	if strings.TrimSpace(text) == "" {
		return model.GeneratedReply{}, ErrBlankReply
	}
	return g.sink.Persist(ctx, job.Destination, text)
}

// FanOut runs every job concurrently and waits for all of them. One job's
// failure never cancels or hides another's; outcomes follow input order.
func (g *Generator) FanOut(ctx context.Context, jobs []Job) []Outcome {
	outcomes := make([]Outcome, len(jobs))
	var eg errgroup.Group
	if g.limit > 0 {
		eg.SetLimit(g.limit)
	}
	for i, job := range jobs {
		eg.Go(func() error {
			outcomes[i] = Outcome{Job: job}
			defer func() {
				if rec := recover(); rec != nil {
					g.log.Error().Interface("panic", rec).Str("responder_id", job.Responder.ID).Msg("responder panicked")
					metrics.RepliesTotal.WithLabelValues("error").Inc()
					outcomes[i].Reply = nil
					outcomes[i].Err = fmt.Errorf("responder %s panicked: %v", job.Responder.ID, rec)
				}
			}()
			reply, err := g.Respond(ctx, job)
			if err != nil {
				g.log.Error().Err(err).Str("responder_id", job.Responder.ID).Str("table", string(job.Destination.Table)).Msg("responder failed")
				metrics.RepliesTotal.WithLabelValues("error").Inc()
				outcomes[i].Err = err
				return nil
			}
			metrics.RepliesTotal.WithLabelValues("ok").Inc()
			outcomes[i].Reply = &reply
			return nil
		})
	}
	_ = eg.Wait()
	return outcomes
}
