package model

import (
	"errors"
	"testing"
)

func TestChunkKey(t *testing.T) {
	if got := ChunkKey(TableChannelMessage, "m1", 0, 1); got != "channel_message-m1" {
		t.Fatalf("single chunk key: got %q", got)
	}
	if got := ChunkKey(TableThreadReply, "r9", 2, 3); got != "thread_reply-r9-2" {
		t.Fatalf("multi chunk key: got %q", got)
	}
}

func TestParseSourceTable(t *testing.T) {
	tbl, err := ParseSourceTable(" direct_message ")
	if err != nil || tbl != TableDirectMessage {
		t.Fatalf("expected direct_message, got %q err=%v", tbl, err)
	}
	if _, err := ParseSourceTable("messages"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestContextWindowRender(t *testing.T) {
	w := ContextWindow{Entries: []WindowEntry{
		{AuthorID: "u1", Text: "hey"},
		{AuthorID: "u2", Text: "yo"},
		{AuthorID: "u1", Text: "lunch?"},
	}}
	got := w.Render(map[string]string{"u1": "Ana"})
	want := "Ana: hey\nUnknown User: yo\nAna: lunch?"
	if got != want {
		t.Fatalf("render mismatch:\n got %q\nwant %q", got, want)
	}
	ids := w.AuthorIDs()
	if len(ids) != 2 || ids[0] != "u1" || ids[1] != "u2" {
		t.Fatalf("unexpected author ids %v", ids)
	}
}
