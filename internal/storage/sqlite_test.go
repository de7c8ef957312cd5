package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/haasonsaas/aide/pkg/models"
)

// The sqlmock tests pin the SQL surface and error paths without a driver;
// round-trip coverage against a real file lives with the integration host.

func TestSQLiteStore_UpdateMissingSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	store := &SQLiteStore{db: db}

	mock.ExpectExec("UPDATE sessions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	session := &models.Session{ID: "missing", ChannelID: "slack", State: models.SessionActive}
	if err := store.Update(context.Background(), session); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestSQLiteStore_GetScansRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	store := &SQLiteStore{db: db}

	started := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "channel_id", "user_id", "engine_id", "model", "provider",
		"system_prompt", "state", "started_at", "ended_at", "counters", "errors",
	}).AddRow("s1", "telegram", "u1", "default", "claude-sonnet-4-5", "anthropic",
		"be helpful", "active", started, nil, `{"loop_iterations":3,"tool_invocations":2,"llm_calls":4}`, `[]`)

	mock.ExpectQuery("SELECT (.+) FROM sessions WHERE id = ?").
		WithArgs("s1").
		WillReturnRows(rows)

	got, err := store.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != models.SessionActive {
		t.Errorf("state = %s", got.State)
	}
	if got.Counters.LoopIterations != 3 || got.Counters.LLMCalls != 4 {
		t.Errorf("counters = %+v", got.Counters)
	}
	if !got.EndedAt.IsZero() {
		t.Errorf("expected zero EndedAt, got %v", got.EndedAt)
	}
}

func TestSQLiteStore_GetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	store := &SQLiteStore{db: db}

	mock.ExpectQuery("SELECT (.+) FROM sessions WHERE id = ?").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_AppendRequiresSession(t *testing.T) {
	store := &SQLiteStore{}
	err := store.Append(context.Background(), &models.Message{ID: "m1"})
	if err == nil || !strings.Contains(err.Error(), "session id") {
		t.Fatalf("expected session id error, got %v", err)
	}
}

func TestSQLiteJobStore_DeleteMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	jobs := &sqliteJobStore{db: db}

	mock.ExpectExec("DELETE FROM jobs").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := jobs.Delete(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteJobStore_ListScans(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	jobs := &sqliteJobStore{db: db}

	rows := sqlmock.NewRows([]string{"name", "schedule", "message", "enabled", "user_id"}).
		AddRow("daily", "0 9 * * *", "standup", 1, "u1").
		AddRow("tick", "* * * * *", "ping", 0, nil)

	mock.ExpectQuery("SELECT (.+) FROM jobs ORDER BY name").WillReturnRows(rows)

	got, err := jobs.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(got))
	}
	if !got[0].Enabled || got[1].Enabled {
		t.Errorf("enabled flags wrong: %+v", got)
	}
	if got[1].UserID != "" {
		t.Errorf("expected empty user id for null column, got %q", got[1].UserID)
	}
}
