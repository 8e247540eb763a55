package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS agent_sessions (
	agent TEXT PRIMARY KEY,
	token TEXT NOT NULL,
	started TEXT NOT NULL,
	last_resumed TEXT NOT NULL,
	tasks_completed INTEGER NOT NULL DEFAULT 0,
	last_task TEXT NOT NULL DEFAULT ''
);
`

const opTimeout = 5 * time.Second

// SQLiteRegistry implements Registry using SQLite.
type SQLiteRegistry struct {
	db *sql.DB
}

var _ Registry = (*SQLiteRegistry)(nil)

// NewSQLiteRegistry opens (or creates) a SQLite registry at dbPath.
// Creates parent directories if needed. Enables WAL mode and a busy timeout
// so a second pmdispatch process waits for the writer instead of failing.
func NewSQLiteRegistry(ctx context.Context, dbPath string) (*SQLiteRegistry, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// modernc.org/sqlite only applies pragmas given as _pragma=name(value)
	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", dbPath)
	return openRegistry(ctx, connStr)
}

// NewMemoryRegistry creates a named in-memory registry for tests.
// Connections opened with the same name share one database.
func NewMemoryRegistry(ctx context.Context, name string) (*SQLiteRegistry, error) {
	return openRegistry(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
}

func openRegistry(ctx context.Context, connStr string) (*SQLiteRegistry, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes every Save of a concurrent batch.
	// No method holds the connection while issuing a second statement.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteRegistry{db: db}, nil
}

// Close closes the database connection.
func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}

// Save upserts the record for rec.Agent.
func (r *SQLiteRegistry) Save(ctx context.Context, rec Record) error {
	if rec.Agent == "" {
		return fmt.Errorf("session record has no agent identity")
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO agent_sessions (agent, token, started, last_resumed, tasks_completed, last_task)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent) DO UPDATE SET
			token = excluded.token,
			started = excluded.started,
			last_resumed = excluded.last_resumed,
			tasks_completed = excluded.tasks_completed,
			last_task = excluded.last_task
	`, rec.Agent, rec.Token, formatTime(rec.Started), formatTime(rec.LastResumed), rec.TasksCompleted, rec.LastTask)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Get returns the record for agent, if any.
func (r *SQLiteRegistry) Get(ctx context.Context, agent string) (Record, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT agent, token, started, last_resumed, tasks_completed, last_task
		FROM agent_sessions
		WHERE agent = ?
	`, agent)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to query session: %w", err)
	}
	return rec, true, nil
}

// List returns every record ordered by agent identity.
func (r *SQLiteRegistry) List(ctx context.Context) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT agent, token, started, last_resumed, tasks_completed, last_task
		FROM agent_sessions
		ORDER BY agent ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return records, nil
}

// Delete removes the record for agent and reports whether one existed.
func (r *SQLiteRegistry) Delete(ctx context.Context, agent string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM agent_sessions WHERE agent = ?`, agent)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var rec Record
	var started, resumed string
	if err := s.Scan(&rec.Agent, &rec.Token, &started, &resumed, &rec.TasksCompleted, &rec.LastTask); err != nil {
		return Record{}, err
	}
	var err error
	if rec.Started, err = parseTime(started); err != nil {
		return Record{}, err
	}
	if rec.LastResumed, err = parseTime(resumed); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
