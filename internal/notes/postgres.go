package notes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the notes table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS notes (
    id               BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    title            TEXT NOT NULL DEFAULT '',
    summary          TEXT NOT NULL,
    transcript       TEXT NOT NULL,
    model            TEXT NOT NULL DEFAULT '',
    audio_ms         BIGINT NOT NULL DEFAULT 0,
    corrections      INT NOT NULL DEFAULT 0,
    dropped_segments INT NOT NULL DEFAULT 0,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_notes_created_at ON notes(created_at DESC);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] over the given connection or
// pool. Call [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL, creating the notes table and index if
// they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("notes: migrate: %w", err)
	}
	return nil
}

// Save inserts the note. The database assigns the id and timestamp, which
// are written back into n.
func (s *PostgresStore) Save(ctx context.Context, n *Note) error {
	const query = `
		INSERT INTO notes (title, summary, transcript, model, audio_ms, corrections, dropped_segments)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, created_at`

	var id int64
	err := s.db.QueryRow(ctx, query,
		n.Title, n.Summary, n.Transcript, n.Model,
		n.Audio.Milliseconds(), n.Corrections, n.DroppedSegments,
	).Scan(&id, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("notes: save: %w", err)
	}
	n.ID = strconv.FormatInt(id, 10)
	return nil
}

// Get retrieves a note by ID. Returns (nil, nil) when no note with the given
// ID exists.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Note, error) {
	rowID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("notes: invalid id %q: %w", id, err)
	}

	const query = `
		SELECT id, title, summary, transcript, model, audio_ms, corrections, dropped_segments, created_at
		FROM notes WHERE id = $1`

	n, err := scanNote(s.db.QueryRow(ctx, query, rowID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("notes: get: %w", err)
	}
	return n, nil
}

// ListRecent returns up to limit notes, newest first.
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Note, error) {
	if limit <= 0 {
		limit = 20
	}

	const query = `
		SELECT id, title, summary, transcript, model, audio_ms, corrections, dropped_segments, created_at
		FROM notes ORDER BY created_at DESC LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("notes: list: %w", err)
	}
	defer rows.Close()

	var out []Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("notes: list scan: %w", err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notes: list rows: %w", err)
	}
	return out, nil
}

// scanNote reads one notes row. The row must carry the full column set in
// schema order.
func scanNote(row pgx.Row) (*Note, error) {
	var (
		n       Note
		id      int64
		audioMs int64
	)
	err := row.Scan(&id, &n.Title, &n.Summary, &n.Transcript, &n.Model,
		&audioMs, &n.Corrections, &n.DroppedSegments, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	n.ID = strconv.FormatInt(id, 10)
	n.Audio = time.Duration(audioMs) * time.Millisecond
	return &n, nil
}
