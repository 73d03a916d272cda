// Package storetest provides an in-memory SQLite store and seeding helpers
// for package tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mycelian/mycelian-persona/internal/model"
	"github.com/mycelian/mycelian-persona/internal/store"
	"github.com/mycelian/mycelian-persona/internal/store/sqlstore"
)

// Base is the reference timestamp seeded records are offset from.
var Base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// New opens a fresh in-memory store with the schema applied.
func New(t *testing.T) store.Store {
	t.Helper()
	db, err := sqlstore.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlstore.EnsureSchema(context.Background(), db, sqlstore.DialectSQLite))
	return sqlstore.New(db, sqlstore.DialectSQLite)
}

// Insert writes a record created minute minutes after Base.
func Insert(t *testing.T, s store.Store, table model.SourceTable, id, container, author, text string, minute int) *model.ContentRecord {
	t.Helper()
	rec, err := s.Records().Insert(context.Background(), &model.ContentRecord{
		ID:          id,
		Table:       table,
		AuthorID:    author,
		Text:        text,
		ContainerID: container,
		CreatedAt:   Base.Add(time.Duration(minute) * time.Minute),
	})
	require.NoError(t, err)
	return rec
}

// Profile upserts a profile.
func Profile(t *testing.T, s store.Store, id, name string, autoRespond bool) {
	t.Helper()
	require.NoError(t, s.Profiles().Upsert(context.Background(), model.Profile{ID: id, DisplayName: name, AutoRespond: autoRespond}))
}
