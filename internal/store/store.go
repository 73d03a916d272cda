package store

import (
	"context"
	"time"

	"github.com/mycelian/mycelian-persona/internal/model"
)

// Store exposes the persistence operations required by the persona pipeline.
// Implementations live under internal/store/<driver>/.
type Store interface {
	Records() Records
	Profiles() Profiles
	Replies() Replies
}

// Records reads and flags content rows across the three content tables.
type Records interface {
	Insert(ctx context.Context, r *model.ContentRecord) (*model.ContentRecord, error)
	// Get returns model.ErrNotFound when the row does not exist.
	Get(ctx context.Context, table model.SourceTable, id string) (*model.ContentRecord, error)
	// ListUnindexed returns rows with indexed=false, oldest first. limit <= 0 means all.
	ListUnindexed(ctx context.Context, table model.SourceTable, limit int) ([]model.ContentRecord, error)
	MarkIndexed(ctx context.Context, table model.SourceTable, ids []string) error
	// Before returns up to limit rows in containerID created strictly before at, newest first.
	Before(ctx context.Context, table model.SourceTable, containerID string, at time.Time, limit int) ([]model.ContentRecord, error)
	// After returns up to limit rows in containerID created strictly after at, oldest first.
	After(ctx context.Context, table model.SourceTable, containerID string, at time.Time, limit int) ([]model.ContentRecord, error)
	// ThreadReplies returns every reply under parentID, oldest first.
	ThreadReplies(ctx context.Context, parentID string) ([]model.ContentRecord, error)
}

// Profiles is the authoritative profile directory.
type Profiles interface {
	Upsert(ctx context.Context, p model.Profile) error
	IDsToNames(ctx context.Context, ids []string) (map[string]string, error)
	// AutoRespondEnabled returns the profiles among ids that opted into auto-respond.
	AutoRespondEnabled(ctx context.Context, ids []string) ([]model.Profile, error)
}

// Replies writes generated replies into their destination table.
type Replies interface {
	Insert(ctx context.Context, dest model.Destination, text string) (*model.GeneratedReply, error)
}
