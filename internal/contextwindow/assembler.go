package contextwindow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mycelian/mycelian-persona/internal/model"
	"github.com/mycelian/mycelian-persona/internal/profiles"
	"github.com/mycelian/mycelian-persona/internal/store"
)

// Separator delimits unrelated context groups in the joined context text.
const Separator = "\n\n=======\n\n"

const (
	// NeighborCount is the number of entries kept on each side of a flat match.
	NeighborCount = 2
	// defaultConcurrency bounds concurrent assemblies in AssembleAll.
	defaultConcurrency = 8
)

// Assembler rebuilds the conversation surrounding retrieved matches.
type Assembler struct {
	records     store.Records
	names       profiles.Directory
	concurrency int
	log         zerolog.Logger
}

func New(records store.Records, names profiles.Directory, log zerolog.Logger) *Assembler {
	return &Assembler{
		records:     records,
		names:       names,
		concurrency: defaultConcurrency,
		log:         log.With().Str("component", "assembler").Logger(),
	}
}

// Window returns the entries around match: the flat neighborhood for
// channel and direct messages, the whole thread for thread replies.
// It returns model.ErrNotFound when the matched record no longer exists.
func (a *Assembler) Window(ctx context.Context, match model.RetrievedMatch) (model.ContextWindow, error) {
	switch match.Table {
	case model.TableChannelMessage, model.TableDirectMessage:
		return a.flat(ctx, match)
	case model.TableThreadReply:
		return a.thread(ctx, match)
	default:
		return model.ContextWindow{}, fmt.Errorf("%w: unknown source table %q", model.ErrValidation, match.Table)
	}
}

// Assemble renders the window for a single match as "name: text" lines.
func (a *Assembler) Assemble(ctx context.Context, match model.RetrievedMatch) (string, error) {
	w, err := a.Window(ctx, match)
	if err != nil {
		return "", err
	}
	names, err := a.names.IDsToNames(ctx, w.AuthorIDs())
	if err != nil {
		return "", fmt.Errorf("resolve names: %w", err)
	}
	return w.Render(names), nil
}

// AssembleAll assembles every match concurrently and joins the rendered
// windows in match order. Matches that fail to assemble are dropped.
func (a *Assembler) AssembleAll(ctx context.Context, matches []model.RetrievedMatch) string {
	if len(matches) == 0 {
		return ""
	}
	rendered := make([]string, len(matches))
	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, m := range matches {
		g.Go(func() error {
			text, err := a.Assemble(ctx, m)
			if err != nil {
				ev := a.log.Warn()
				if errors.Is(err, model.ErrNotFound) {
					ev = a.log.Debug()
				}
				ev.Err(err).Str("table", string(m.Table)).Str("source_id", m.SourceID).Msg("dropping match from context")
				return nil
			}
			rendered[i] = text
			return nil
		})
	}
	_ = g.Wait()

	parts := make([]string, 0, len(rendered))
	for _, r := range rendered {
		if r != "" {
			parts = append(parts, r)
		}
	}
	return strings.Join(parts, Separator)
}

func (a *Assembler) flat(ctx context.Context, match model.RetrievedMatch) (model.ContextWindow, error) {
	target, err := a.records.Get(ctx, match.Table, match.SourceID)
	if err != nil {
		return model.ContextWindow{}, err
	}
	before, err := a.records.Before(ctx, match.Table, target.ContainerID, target.CreatedAt, NeighborCount)
	if err != nil {
		return model.ContextWindow{}, fmt.Errorf("fetch before: %w", err)
	}
	after, err := a.records.After(ctx, match.Table, target.ContainerID, target.CreatedAt, NeighborCount)
	if err != nil {
		return model.ContextWindow{}, fmt.Errorf("fetch after: %w", err)
	}

	entries := make([]model.WindowEntry, 0, len(before)+1+len(after))
	for i := len(before) - 1; i >= 0; i-- {
		entries = append(entries, entryOf(before[i]))
	}
	entries = append(entries, entryOf(*target))
	for _, r := range after {
		entries = append(entries, entryOf(r))
	}
	return model.ContextWindow{Entries: entries}, nil
}

func (a *Assembler) thread(ctx context.Context, match model.RetrievedMatch) (model.ContextWindow, error) {
	reply, err := a.records.Get(ctx, model.TableThreadReply, match.SourceID)
	if err != nil {
		return model.ContextWindow{}, err
	}
	siblings, err := a.records.ThreadReplies(ctx, reply.ContainerID)
	if err != nil {
		return model.ContextWindow{}, fmt.Errorf("fetch thread: %w", err)
	}

	entries := make([]model.WindowEntry, 0, len(siblings)+1)
	parent, err := a.records.Get(ctx, model.TableChannelMessage, reply.ContainerID)
	switch {
	case err == nil:
		entries = append(entries, entryOf(*parent))
	case errors.Is(err, model.ErrNotFound):
		a.log.Debug().Str("parent_id", reply.ContainerID).Msg("thread parent missing; rendering replies only")
	default:
		return model.ContextWindow{}, fmt.Errorf("fetch parent: %w", err)
	}
	for _, r := range siblings {
		entries = append(entries, entryOf(r))
	}
	return model.ContextWindow{Entries: entries}, nil
}

func entryOf(r model.ContentRecord) model.WindowEntry {
	return model.WindowEntry{AuthorID: r.AuthorID, Text: r.Text}
}
