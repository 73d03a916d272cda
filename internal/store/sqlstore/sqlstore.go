// Package sqlstore implements store.Store on database/sql for SQLite and Postgres.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mycelian/mycelian-persona/internal/model"
	"github.com/mycelian/mycelian-persona/internal/store"
)

type tableDef struct {
	name      string
	container string
}

var tables = map[model.SourceTable]tableDef{
	model.TableChannelMessage: {name: "channel_messages", container: "channel_id"},
	model.TableDirectMessage:  {name: "direct_messages", container: "conversation_id"},
	model.TableThreadReply:    {name: "thread_replies", container: "parent_message_id"},
}

func tableFor(t model.SourceTable) (tableDef, error) {
	s, ok := tables[t]
	if !ok {
		return tableDef{}, fmt.Errorf("%w: unknown source table %q", model.ErrValidation, t)
	}
	return s, nil
}

// markBatch bounds the IN list of a single MarkIndexed statement.
const markBatch = 500

// New wraps db as a store.Store using the placeholder style of d.
func New(db *sql.DB, d Dialect) store.Store {
	return &sqlStore{db: db, dialect: d}
}

type sqlStore struct {
	db      *sql.DB
	dialect Dialect
}

func (s *sqlStore) Records() store.Records   { return &records{s} }
func (s *sqlStore) Profiles() store.Profiles { return &profiles{s} }
func (s *sqlStore) Replies() store.Replies   { return &replies{s} }

// HealthPing implements health.HealthPinger.
func (s *sqlStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *sqlStore) rebind(q string) string {
	if s.dialect != DialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(ids []string) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// --- Records ---

type records struct{ s *sqlStore }

func (r *records) selectCols(def tableDef) string {
	return fmt.Sprintf("SELECT id, author_id, content, created_at, %s, indexed FROM %s", def.container, def.name)
}

func scanRecords(rows *sql.Rows, table model.SourceTable) ([]model.ContentRecord, error) {
	var out []model.ContentRecord
	for rows.Next() {
		rec := model.ContentRecord{Table: table}
		if err := rows.Scan(&rec.ID, &rec.AuthorID, &rec.Text, &rec.CreatedAt, &rec.ContainerID, &rec.Indexed); err != nil {
			return nil, err
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *records) query(ctx context.Context, table model.SourceTable, q string, args ...interface{}) ([]model.ContentRecord, error) {
	rows, err := r.s.db.QueryContext(ctx, r.s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows, table)
}

func (r *records) Insert(ctx context.Context, rec *model.ContentRecord) (*model.ContentRecord, error) {
	def, err := tableFor(rec.Table)
	if err != nil {
		return nil, err
	}
	out := *rec
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now()
	}
	out.CreatedAt = out.CreatedAt.UTC()
	q := fmt.Sprintf("INSERT INTO %s (id, %s, author_id, content, created_at, indexed) VALUES (?,?,?,?,?,?)", def.name, def.container)
	if _, err := r.s.db.ExecContext(ctx, r.s.rebind(q), out.ID, out.ContainerID, out.AuthorID, out.Text, out.CreatedAt, out.Indexed); err != nil {
		return nil, fmt.Errorf("insert %s: %w", def.name, err)
	}
	return &out, nil
}

func (r *records) Get(ctx context.Context, table model.SourceTable, id string) (*model.ContentRecord, error) {
	def, err := tableFor(table)
	if err != nil {
		return nil, err
	}
	rec := model.ContentRecord{Table: table}
	row := r.s.db.QueryRowContext(ctx, r.s.rebind(r.selectCols(def)+" WHERE id = ?"), id)
	if err := row.Scan(&rec.ID, &rec.AuthorID, &rec.Text, &rec.CreatedAt, &rec.ContainerID, &rec.Indexed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s %s: %w", table, id, model.ErrNotFound)
		}
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

func (r *records) ListUnindexed(ctx context.Context, table model.SourceTable, limit int) ([]model.ContentRecord, error) {
	def, err := tableFor(table)
	if err != nil {
		return nil, err
	}
	q := r.selectCols(def) + " WHERE indexed = ? ORDER BY created_at ASC, id ASC"
	args := []interface{}{false}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	return r.query(ctx, table, q, args...)
}

func (r *records) MarkIndexed(ctx context.Context, table model.SourceTable, ids []string) error {
	def, err := tableFor(table)
	if err != nil {
		return err
	}
	for start := 0; start < len(ids); start += markBatch {
		end := start + markBatch
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		q := fmt.Sprintf("UPDATE %s SET indexed = ? WHERE id IN (%s)", def.name, placeholders(len(batch)))
		args := append([]interface{}{true}, toArgs(batch)...)
		if _, err := r.s.db.ExecContext(ctx, r.s.rebind(q), args...); err != nil {
			return fmt.Errorf("mark %s indexed: %w", def.name, err)
		}
	}
	return nil
}

func (r *records) Before(ctx context.Context, table model.SourceTable, containerID string, at time.Time, limit int) ([]model.ContentRecord, error) {
	def, err := tableFor(table)
	if err != nil {
		return nil, err
	}
	q := r.selectCols(def) + fmt.Sprintf(" WHERE %s = ? AND created_at < ? ORDER BY created_at DESC, id DESC LIMIT ?", def.container)
	return r.query(ctx, table, q, containerID, at.UTC(), limit)
}

func (r *records) After(ctx context.Context, table model.SourceTable, containerID string, at time.Time, limit int) ([]model.ContentRecord, error) {
	def, err := tableFor(table)
	if err != nil {
		return nil, err
	}
	q := r.selectCols(def) + fmt.Sprintf(" WHERE %s = ? AND created_at > ? ORDER BY created_at ASC, id ASC LIMIT ?", def.container)
	return r.query(ctx, table, q, containerID, at.UTC(), limit)
}

func (r *records) ThreadReplies(ctx context.Context, parentID string) ([]model.ContentRecord, error) {
	def := tables[model.TableThreadReply]
	q := r.selectCols(def) + fmt.Sprintf(" WHERE %s = ? ORDER BY created_at ASC, id ASC", def.container)
	return r.query(ctx, model.TableThreadReply, q, parentID)
}

// --- Profiles ---

type profiles struct{ s *sqlStore }

func (p *profiles) Upsert(ctx context.Context, pr model.Profile) error {
	q := `INSERT INTO profiles (id, display_name, auto_respond) VALUES (?,?,?)
          ON CONFLICT (id) DO UPDATE SET display_name = excluded.display_name, auto_respond = excluded.auto_respond`
	_, err := p.s.db.ExecContext(ctx, p.s.rebind(q), pr.ID, pr.DisplayName, pr.AutoRespond)
	return err
}

func (p *profiles) IDsToNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	q := fmt.Sprintf("SELECT id, display_name FROM profiles WHERE id IN (%s)", placeholders(len(ids)))
	rows, err := p.s.db.QueryContext(ctx, p.s.rebind(q), toArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}

func (p *profiles) AutoRespondEnabled(ctx context.Context, ids []string) ([]model.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := fmt.Sprintf("SELECT id, display_name, auto_respond FROM profiles WHERE auto_respond = ? AND id IN (%s) ORDER BY id", placeholders(len(ids)))
	args := append([]interface{}{true}, toArgs(ids)...)
	rows, err := p.s.db.QueryContext(ctx, p.s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Profile
	for rows.Next() {
		var pr model.Profile
		if err := rows.Scan(&pr.ID, &pr.DisplayName, &pr.AutoRespond); err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

// --- Replies ---

type replies struct{ s *sqlStore }

func (r *replies) Insert(ctx context.Context, dest model.Destination, text string) (*model.GeneratedReply, error) {
	rec, err := (&records{r.s}).Insert(ctx, &model.ContentRecord{
		Table:       dest.Table,
		AuthorID:    dest.AuthorID,
		ContainerID: dest.ContainerID,
		Text:        text,
	})
	if err != nil {
		return nil, err
	}
	return &model.GeneratedReply{
		ID:          rec.ID,
		Text:        rec.Text,
		Destination: dest,
		CreatedAt:   rec.CreatedAt,
	}, nil
}
