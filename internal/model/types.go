package model

import (
	"fmt"
	"strings"
	"time"
)

// SourceTable names the relational table a piece of content lives in.
type SourceTable string

const (
	TableChannelMessage SourceTable = "channel_message"
	TableDirectMessage  SourceTable = "direct_message"
	TableThreadReply    SourceTable = "thread_reply"
)

// AllTables lists every content table scanned by the ingestion batcher.
var AllTables = []SourceTable{TableChannelMessage, TableDirectMessage, TableThreadReply}

// Valid reports whether t is one of the known content tables.
func (t SourceTable) Valid() bool {
	switch t {
	case TableChannelMessage, TableDirectMessage, TableThreadReply:
		return true
	}
	return false
}

// ParseSourceTable validates s as a SourceTable.
func ParseSourceTable(s string) (SourceTable, error) {
	t := SourceTable(strings.TrimSpace(s))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown source table %q", ErrValidation, s)
	}
	return t, nil
}

// ContentRecord is a single authored message in one of the content tables.
// ContainerID is the channel id, conversation id, or parent message id
// depending on Table.
type ContentRecord struct {
	ID          string      `json:"id"`
	Table       SourceTable `json:"sourceTable"`
	AuthorID    string      `json:"authorId"`
	Text        string      `json:"text"`
	CreatedAt   time.Time   `json:"createdAt"`
	ContainerID string      `json:"containerId"`
	Indexed     bool        `json:"indexed"`
}

// IndexedChunk is one embedded slice of a ContentRecord as stored in the vector index.
type IndexedChunk struct {
	ChunkKey string      `json:"chunkKey"`
	Table    SourceTable `json:"sourceTable"`
	SourceID string      `json:"sourceId"`
	AuthorID string      `json:"authorId"`
	Text     string      `json:"text"`
	Vector   []float32   `json:"-"`
}

// ChunkKey returns the index key for chunk n of total chunks of a record.
// Single-chunk records are keyed without a suffix.
func ChunkKey(table SourceTable, sourceID string, n, total int) string {
	if total <= 1 {
		return fmt.Sprintf("%s-%s", table, sourceID)
	}
	return fmt.Sprintf("%s-%s-%d", table, sourceID, n)
}

// RetrievedMatch is one similarity hit returned by the vector index.
type RetrievedMatch struct {
	Table    SourceTable `json:"sourceTable"`
	SourceID string      `json:"sourceId"`
	AuthorID string      `json:"authorId"`
	Text     string      `json:"text"`
	Score    float64     `json:"score"`
}

// WindowEntry is a single line of a reconstructed conversation window.
type WindowEntry struct {
	AuthorID string
	Text     string
}

// ContextWindow is the ordered set of entries surrounding a match.
type ContextWindow struct {
	Entries []WindowEntry
}

// AuthorIDs returns the distinct author ids in the window, in first-seen order.
func (w ContextWindow) AuthorIDs() []string {
	seen := make(map[string]struct{}, len(w.Entries))
	out := make([]string, 0, len(w.Entries))
	for _, e := range w.Entries {
		if _, ok := seen[e.AuthorID]; ok {
			continue
		}
		seen[e.AuthorID] = struct{}{}
		out = append(out, e.AuthorID)
	}
	return out
}

// UnknownDisplayName is rendered for authors missing from the profile directory.
const UnknownDisplayName = "Unknown User"

// Render formats the window as "name: text" lines joined by newlines.
func (w ContextWindow) Render(names map[string]string) string {
	lines := make([]string, 0, len(w.Entries))
	for _, e := range w.Entries {
		name := names[e.AuthorID]
		if strings.TrimSpace(name) == "" {
			name = UnknownDisplayName
		}
		lines = append(lines, name+": "+e.Text)
	}
	return strings.Join(lines, "\n")
}

// PersonaPrompt is the two-message prompt handed to the language model.
type PersonaPrompt struct {
	SystemText string `json:"systemText"`
	UserText   string `json:"userText"`
}

// Destination identifies where a generated reply is written and as whom.
type Destination struct {
	Table       SourceTable `json:"table"`
	ContainerID string      `json:"containerId"`
	AuthorID    string      `json:"authorId"`
}

// GeneratedReply is a persisted model response.
type GeneratedReply struct {
	ID          string      `json:"id"`
	Text        string      `json:"text"`
	Destination Destination `json:"destination"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Profile is the subset of a user profile the pipeline needs.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AutoRespond bool   `json:"autoRespond"`
}
