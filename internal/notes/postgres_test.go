package notes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// mockDB implements the DB interface for testing.
type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, sql, args...)
	}
	return nil, errors.New("unexpected Query")
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func TestPostgresStore_Migrate(t *testing.T) {
	t.Parallel()
	var gotSQL string
	db := &mockDB{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			gotSQL = sql
			return pgconn.CommandTag{}, nil
		},
	}
	if err := NewPostgresStore(db).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() = %v", err)
	}
	if gotSQL != Schema {
		t.Error("Migrate did not execute the schema DDL")
	}
}

func TestPostgresStore_MigrateError(t *testing.T) {
	t.Parallel()
	dbErr := errors.New("connection refused")
	db := &mockDB{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, dbErr
		},
	}
	if err := NewPostgresStore(db).Migrate(context.Background()); !errors.Is(err, dbErr) {
		t.Errorf("Migrate() = %v, want wrapped db error", err)
	}
}

func TestPostgresStore_Save(t *testing.T) {
	t.Parallel()
	created := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	var gotArgs []any
	db := &mockDB{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			gotArgs = args
			return &mockRow{scanFunc: func(dest ...any) error {
				*dest[0].(*int64) = 42
				*dest[1].(*time.Time) = created
				return nil
			}}
		},
	}

	n := &Note{
		Title:      "Planning",
		Summary:    "gist",
		Transcript: "text",
		Model:      "ollama/llama3",
		Audio:      1500 * time.Millisecond,
	}
	if err := NewPostgresStore(db).Save(context.Background(), n); err != nil {
		t.Fatalf("Save() = %v", err)
	}
	if n.ID != "42" {
		t.Errorf("ID = %q, want %q", n.ID, "42")
	}
	if !n.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want db-assigned %v", n.CreatedAt, created)
	}
	if len(gotArgs) != 7 {
		t.Fatalf("insert got %d args, want 7", len(gotArgs))
	}
	if gotArgs[4] != int64(1500) {
		t.Errorf("audio_ms arg = %v, want 1500", gotArgs[4])
	}
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	t.Parallel()
	store := NewPostgresStore(&mockDB{})

	n, err := store.Get(context.Background(), "7")
	if err != nil {
		t.Fatalf("Get() = %v, want nil error for missing row", err)
	}
	if n != nil {
		t.Errorf("Get() = %+v, want nil", n)
	}
}

func TestPostgresStore_GetInvalidID(t *testing.T) {
	t.Parallel()
	store := NewPostgresStore(&mockDB{})
	if _, err := store.Get(context.Background(), "not-a-number"); err == nil {
		t.Error("Get() with a non-numeric id should fail")
	}
}
