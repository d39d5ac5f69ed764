// Package logsink provides durable deliverylog.Sink implementations backed
// by SQLite and MongoDB.
package logsink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/podium/internal/domain/deliverylog"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS deliveries (
	id                  TEXT PRIMARY KEY,
	dedupe_key          TEXT NOT NULL,
	transition_id       TEXT NOT NULL,
	recipient           TEXT NOT NULL,
	template            TEXT NOT NULL,
	provider_template   TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL,
	provider_message_id TEXT NOT NULL DEFAULT '',
	error               TEXT NOT NULL DEFAULT '',
	error_kind          TEXT NOT NULL DEFAULT '',
	note                TEXT NOT NULL DEFAULT '',
	payload             TEXT NOT NULL DEFAULT '{}',
	created_at          INTEGER NOT NULL,
	updated_at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS deliveries_dedupe_key_idx ON deliveries (dedupe_key);
CREATE TABLE IF NOT EXISTS activity (
	id              TEXT PRIMARY KEY,
	transition_id   TEXT NOT NULL,
	kind            TEXT NOT NULL,
	is_primary      INTEGER NOT NULL,
	player_id       TEXT NOT NULL,
	player_name     TEXT NOT NULL,
	new_player_id   TEXT NOT NULL DEFAULT '',
	new_player_name TEXT NOT NULL DEFAULT '',
	rank            INTEGER NOT NULL,
	new_rank        INTEGER NOT NULL DEFAULT 0,
	score_delta     INTEGER NOT NULL DEFAULT 0,
	ts              INTEGER NOT NULL
);
`

// SQLiteSink stores records in a local SQLite file.
type SQLiteSink struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteSink opens (creating if needed) the database at path.
func NewSQLiteSink(ctx context.Context, path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// One writer; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteSink{db: db, now: time.Now}, nil
}

func (s *SQLiteSink) Append(ctx context.Context, r deliverylog.Record) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	r.UpdatedAt = r.CreatedAt

	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO deliveries (id, dedupe_key, transition_id, recipient, template, provider_template,
			status, provider_message_id, error, error_kind, note, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.DedupeKey, r.TransitionID, r.To, r.Template, r.ProviderTemplate,
		string(r.Status), r.ProviderMessageID, r.Error, string(r.ErrorKind), r.Note, string(payload),
		r.CreatedAt.UnixNano(), r.UpdatedAt.UnixNano())
	if err != nil {
		return "", fmt.Errorf("insert delivery: %w", err)
	}
	return r.ID, nil
}

func (s *SQLiteSink) Update(ctx context.Context, id string, u deliverylog.Update) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE deliveries SET status = ?, provider_message_id = ?, error = ?, error_kind = ?, note = ?, updated_at = ?
		WHERE id = ?`,
		string(u.Status), u.ProviderMessageID, u.Error, string(u.ErrorKind), u.Note, s.now().UTC().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", deliverylog.ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteSink) AppendActivity(ctx context.Context, a deliverylog.Activity) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity (id, transition_id, kind, is_primary, player_id, player_name,
			new_player_id, new_player_name, rank, new_rank, score_delta, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TransitionID, a.Kind, a.Primary, a.PlayerID, a.PlayerName,
		a.NewPlayerID, a.NewPlayerName, a.Rank, a.NewRank, a.ScoreDelta, a.Timestamp.UnixNano())
	if err != nil {
		return "", fmt.Errorf("insert activity: %w", err)
	}
	return a.ID, nil
}

// limitClause maps limit <= 0 to SQLite's "no limit".
func limitClause(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func (s *SQLiteSink) List(ctx context.Context, limit int) ([]deliverylog.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dedupe_key, transition_id, recipient, template, provider_template, status,
			provider_message_id, error, error_kind, note, payload, created_at, updated_at
		FROM deliveries ORDER BY created_at DESC, rowid DESC LIMIT ?`, limitClause(limit))
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []deliverylog.Record
	for rows.Next() {
		var (
			r                  deliverylog.Record
			status, kind, body string
			created, updated   int64
		)
		if err := rows.Scan(&r.ID, &r.DedupeKey, &r.TransitionID, &r.To, &r.Template, &r.ProviderTemplate,
			&status, &r.ProviderMessageID, &r.Error, &kind, &r.Note, &body, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		r.Status = deliverylog.Status(status)
		r.ErrorKind = deliverylog.ErrorKind(kind)
		if err := json.Unmarshal([]byte(body), &r.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of %s: %w", r.ID, err)
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		r.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) ListActivity(ctx context.Context, limit int) ([]deliverylog.Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transition_id, kind, is_primary, player_id, player_name,
			new_player_id, new_player_name, rank, new_rank, score_delta, ts
		FROM activity ORDER BY ts DESC, rowid DESC LIMIT ?`, limitClause(limit))
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []deliverylog.Activity
	for rows.Next() {
		var (
			a  deliverylog.Activity
			ts int64
		)
		if err := rows.Scan(&a.ID, &a.TransitionID, &a.Kind, &a.Primary, &a.PlayerID, &a.PlayerName,
			&a.NewPlayerID, &a.NewPlayerName, &a.Rank, &a.NewRank, &a.ScoreDelta, &ts); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) HasKey(ctx context.Context, dedupeKey string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM deliveries WHERE dedupe_key = ? LIMIT 1`, dedupeKey).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup dedupe key: %w", err)
	}
	return true, nil
}

func (s *SQLiteSink) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM deliveries`)
	if err != nil {
		return 0, fmt.Errorf("purge deliveries: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteSink) Close(context.Context) error {
	return s.db.Close()
}

var _ deliverylog.Sink = (*SQLiteSink)(nil)
