package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/haasonsaas/aide/pkg/models"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteStore implements SessionStore and MessageStore on a single SQLite
// database; Jobs() exposes the JobStore view of the same file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and migrates the
// schema. Use ":memory:" for tests.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteSet opens the database and returns a StoreSet backed by it.
func NewSQLiteSet(path string) (StoreSet, error) {
	s, err := OpenSQLite(path)
	if err != nil {
		return StoreSet{}, err
	}
	return StoreSet{Sessions: s, Messages: s, Jobs: s.Jobs(), closer: s.Close}, nil
}

// Jobs returns the JobStore view of the database.
func (s *SQLiteStore) Jobs() JobStore { return &sqliteJobStore{db: s.db} }

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			channel_id TEXT NOT NULL,
			user_id TEXT,
			engine_id TEXT,
			model TEXT,
			provider TEXT,
			system_prompt TEXT,
			state TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			counters TEXT,
			errors TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT,
			tool_calls TEXT,
			tool_results TEXT,
			tool_call_id TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			name TEXT PRIMARY KEY,
			schedule TEXT NOT NULL,
			message TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			user_id TEXT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, session *models.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session id is required")
	}
	counters, err := json.Marshal(session.Counters)
	if err != nil {
		return fmt.Errorf("encode counters: %w", err)
	}
	errLog, err := json.Marshal(session.Errors)
	if err != nil {
		return fmt.Errorf("encode errors: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, channel_id, user_id, engine_id, model, provider, system_prompt, state, started_at, ended_at, counters, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.ChannelID, session.UserID, session.EngineID,
		session.Model, session.Provider, session.SystemPrompt, string(session.State),
		session.StartedAt, nullTime(session.EndedAt), string(counters), string(errLog))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, channel_id, user_id, engine_id, model, provider, system_prompt, state, started_at, ended_at, counters, errors
		FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (s *SQLiteStore) Update(ctx context.Context, session *models.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session id is required")
	}
	counters, err := json.Marshal(session.Counters)
	if err != nil {
		return fmt.Errorf("encode counters: %w", err)
	}
	errLog, err := json.Marshal(session.Errors)
	if err != nil {
		return fmt.Errorf("encode errors: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET channel_id = ?, user_id = ?, engine_id = ?, model = ?, provider = ?, system_prompt = ?, state = ?, started_at = ?, ended_at = ?, counters = ?, errors = ?
		WHERE id = ?`,
		session.ChannelID, session.UserID, session.EngineID, session.Model,
		session.Provider, session.SystemPrompt, string(session.State),
		session.StartedAt, nullTime(session.EndedAt), string(counters), string(errLog),
		session.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, states ...models.SessionState) ([]*models.Session, error) {
	query := `SELECT id, channel_id, user_id, engine_id, model, provider, system_prompt, state, started_at, ended_at, counters, errors FROM sessions`
	args := make([]any, 0, len(states))
	if len(states) > 0 {
		query += " WHERE state IN (?" + repeatPlaceholder(len(states)-1) + ")"
		for _, st := range states {
			args = append(args, string(st))
		}
	}
	query += " ORDER BY started_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var session models.Session
	var state, counters, errLog string
	var userID, engineID, model, provider, systemPrompt sql.NullString
	var endedAt sql.NullTime
	err := row.Scan(&session.ID, &session.ChannelID, &userID, &engineID, &model,
		&provider, &systemPrompt, &state, &session.StartedAt, &endedAt, &counters, &errLog)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	session.UserID = userID.String
	session.EngineID = engineID.String
	session.Model = model.String
	session.Provider = provider.String
	session.SystemPrompt = systemPrompt.String
	session.State = models.SessionState(state)
	if endedAt.Valid {
		session.EndedAt = endedAt.Time
	}
	if counters != "" {
		if err := json.Unmarshal([]byte(counters), &session.Counters); err != nil {
			return nil, fmt.Errorf("decode counters: %w", err)
		}
	}
	if errLog != "" {
		if err := json.Unmarshal([]byte(errLog), &session.Errors); err != nil {
			return nil, fmt.Errorf("decode errors: %w", err)
		}
	}
	return &session, nil
}

func (s *SQLiteStore) Append(ctx context.Context, msg *models.Message) error {
	if msg == nil || msg.SessionID == "" {
		return fmt.Errorf("message session id is required")
	}
	toolCalls, err := json.Marshal(msg.ToolCalls)
	if err != nil {
		return fmt.Errorf("encode tool calls: %w", err)
	}
	toolResults, err := json.Marshal(msg.ToolResults)
	if err != nil {
		return fmt.Errorf("encode tool results: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, role, content, tool_calls, tool_results, tool_call_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, string(msg.Role), msg.Content,
		string(toolCalls), string(toolResults), msg.ToolCallID, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	query := `SELECT id, session_id, role, content, tool_calls, tool_results, tool_call_id, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at`
	args := []any{sessionID}
	if limit > 0 {
		// Trailing window: newest N in chronological order.
		query = `SELECT * FROM (
			SELECT id, session_id, role, content, tool_calls, tool_results, tool_call_id, created_at
			FROM messages WHERE session_id = ? ORDER BY created_at DESC LIMIT ?
		) ORDER BY created_at`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var msg models.Message
		var role, toolCalls, toolResults string
		var toolCallID sql.NullString
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content,
			&toolCalls, &toolResults, &toolCallID, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = models.Role(role)
		msg.ToolCallID = toolCallID.String
		if toolCalls != "" && toolCalls != "null" {
			if err := json.Unmarshal([]byte(toolCalls), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
		}
		if toolResults != "" && toolResults != "null" {
			if err := json.Unmarshal([]byte(toolResults), &msg.ToolResults); err != nil {
				return nil, fmt.Errorf("decode tool results: %w", err)
			}
		}
		out = append(out, &msg)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteBySession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}

// sqliteJobStore is the JobStore view of a SQLiteStore.
type sqliteJobStore struct {
	db *sql.DB
}

func (s *sqliteJobStore) Put(ctx context.Context, job *models.CronJob) error {
	if job == nil || job.Name == "" {
		return fmt.Errorf("job name is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (name, schedule, message, enabled, user_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET schedule = excluded.schedule,
			message = excluded.message, enabled = excluded.enabled, user_id = excluded.user_id`,
		job.Name, job.Schedule, job.Message, boolInt(job.Enabled), job.UserID)
	if err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	return nil
}

func (s *sqliteJobStore) Get(ctx context.Context, name string) (*models.CronJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT name, schedule, message, enabled, user_id FROM jobs WHERE name = ?`, name)
	var job models.CronJob
	var enabled int
	var userID sql.NullString
	err := row.Scan(&job.Name, &job.Schedule, &job.Message, &enabled, &userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	job.Enabled = enabled != 0
	job.UserID = userID.String
	return &job, nil
}

func (s *sqliteJobStore) List(ctx context.Context) ([]*models.CronJob, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, schedule, message, enabled, user_id FROM jobs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*models.CronJob
	for rows.Next() {
		var job models.CronJob
		var enabled int
		var userID sql.NullString
		if err := rows.Scan(&job.Name, &job.Schedule, &job.Message, &enabled, &userID); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		job.Enabled = enabled != 0
		job.UserID = userID.String
		out = append(out, &job)
	}
	return out, rows.Err()
}

func (s *sqliteJobStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}
