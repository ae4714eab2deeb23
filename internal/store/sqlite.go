package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/engine"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/graph"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	project_id  TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'open',
	duration    REAL NOT NULL DEFAULT 0,
	start_date  TEXT NOT NULL DEFAULT '',
	due_date    TEXT NOT NULL DEFAULT '',
	assignee_id TEXT NOT NULL DEFAULT '',
	progress    REAL NOT NULL DEFAULT 0,
	locked      INTEGER NOT NULL DEFAULT 0,
	deleted     INTEGER NOT NULL DEFAULT 0,
	version     INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);

CREATE TABLE IF NOT EXISTS dependencies (
	id             TEXT PRIMARY KEY,
	project_id     TEXT NOT NULL,
	predecessor_id TEXT NOT NULL,
	successor_id   TEXT NOT NULL,
	type           TEXT NOT NULL DEFAULT 'FS',
	lag            REAL NOT NULL DEFAULT 0,
	version        INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_deps_project ON dependencies(project_id);

CREATE TABLE IF NOT EXISTS schedules (
	id            TEXT PRIMARY KEY,
	project_id    TEXT NOT NULL,
	calculated_at TEXT NOT NULL,
	payload       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_schedules_project ON schedules(project_id);
`

// SQLite is the durable store. Computed schedules are kept as JSON
// payloads; tasks and dependencies are relational so version checks can
// run as a single conditional UPDATE.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed creates) the database at path and runs
// the schema migration.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	// Databases created before dependencies were versioned lack the column;
	// the ALTER fails harmlessly everywhere else.
	_, _ = s.db.Exec(`ALTER TABLE dependencies ADD COLUMN version INTEGER NOT NULL DEFAULT 1`)
	return nil
}

// Close closes the underlying database handle.
func (s *SQLite) Close() error { return s.db.Close() }

// PutTask inserts or replaces a task row. Version 0 is stored as 1.
func (s *SQLite) PutTask(ctx context.Context, t *graph.Task) error {
	version := t.Version
	if version == 0 {
		version = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO tasks
			(id, project_id, title, status, duration, start_date, due_date, assignee_id, progress, locked, deleted, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.Title, string(t.Status), t.Duration,
		dateString(t.StartDate), dateString(t.DueDate),
		t.AssigneeID, t.Progress, boolInt(t.Locked), boolInt(t.Deleted), version)
	if err != nil {
		return fmt.Errorf("put task %s: %w", t.ID, err)
	}
	return nil
}

// PutDependency inserts or replaces a dependency row. Version 0 is stored
// as 1.
func (s *SQLite) PutDependency(ctx context.Context, d *graph.Dependency) error {
	version := d.Version
	if version == 0 {
		version = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO dependencies
			(id, project_id, predecessor_id, successor_id, type, lag, version)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ProjectID, d.PredecessorID, d.SuccessorID, string(d.Type), d.Lag, version)
	if err != nil {
		return fmt.Errorf("put dependency %s: %w", d.ID, err)
	}
	return nil
}

// Task returns the task row, or nil if unknown.
func (s *SQLite) Task(ctx context.Context, id string) (*graph.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, title, status, duration, start_date, due_date, assignee_id, progress, locked, deleted, version
		FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", id, err)
	}
	return t, nil
}

// Tasks returns every task in the project, deleted ones included, sorted
// by id.
func (s *SQLite) Tasks(ctx context.Context, projectID string) ([]*graph.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, title, status, duration, start_date, due_date, assignee_id, progress, locked, deleted, version
		FROM tasks WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	defer rows.Close()

	var out []*graph.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Dependency returns the dependency row, or nil if unknown.
func (s *SQLite) Dependency(ctx context.Context, id string) (*graph.Dependency, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, predecessor_id, successor_id, type, lag, version
		FROM dependencies WHERE id = ?`, id)
	d, err := scanDependency(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load dependency %s: %w", id, err)
	}
	return d, nil
}

// Dependencies returns every dependency in the project, sorted by id.
func (s *SQLite) Dependencies(ctx context.Context, projectID string) ([]*graph.Dependency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, predecessor_id, successor_id, type, lag, version
		FROM dependencies WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("load dependencies: %w", err)
	}
	defer rows.Close()

	var out []*graph.Dependency
	for rows.Next() {
		d, err := scanDependency(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateTask applies fields in a single conditional UPDATE keyed on the
// expected version. Zero rows affected while the task exists means the
// version check lost, which surfaces as ErrVersionMismatch.
func (s *SQLite) UpdateTask(ctx context.Context, id string, expectedVersion int64, fields map[string]any) (*graph.Task, error) {
	if len(fields) == 0 {
		return s.Task(ctx, id)
	}

	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)

	var sets []string
	var args []any
	for _, f := range names {
		v, err := columnValue(f, fields[f])
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", id, err)
		}
		sets = append(sets, f+" = ?")
		args = append(args, v)
	}
	args = append(args, id, expectedVersion)

	query := "UPDATE tasks SET " + strings.Join(sets, ", ") +
		", version = version + 1 WHERE id = ? AND version = ?"
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}
	if n == 0 {
		t, err := s.Task(ctx, id)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("task %s: expected version %d, stored %d: %w",
			id, expectedVersion, t.Version, ErrVersionMismatch)
	}
	return s.Task(ctx, id)
}

// DeleteTask soft-deletes a task under the same version check as
// UpdateTask.
func (s *SQLite) DeleteTask(ctx context.Context, id string, expectedVersion int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET deleted = 1, version = version + 1
		WHERE id = ? AND version = ?`, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete task %s: %w", id, ErrVersionMismatch)
	}
	return nil
}

// SaveSchedule stores the schedule as a JSON payload keyed by id.
func (s *SQLite) SaveSchedule(ctx context.Context, cs *engine.ComputedSchedule) error {
	payload, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("marshal schedule %s: %w", cs.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO schedules (id, project_id, calculated_at, payload)
		VALUES (?, ?, ?, ?)`,
		cs.ID, cs.ProjectID, cs.CalculatedAt.Format(time.RFC3339Nano), string(payload))
	if err != nil {
		return fmt.Errorf("save schedule %s: %w", cs.ID, err)
	}
	return nil
}

// Schedule returns the schedule with the given id, or nil if unknown.
func (s *SQLite) Schedule(ctx context.Context, id string) (*engine.ComputedSchedule, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM schedules WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load schedule %s: %w", id, err)
	}
	var cs engine.ComputedSchedule
	if err := json.Unmarshal([]byte(payload), &cs); err != nil {
		return nil, fmt.Errorf("parse schedule %s: %w", id, err)
	}
	return &cs, nil
}

// LatestSchedule returns the most recently calculated schedule for a
// project, or nil when none exists.
func (s *SQLite) LatestSchedule(ctx context.Context, projectID string) (*engine.ComputedSchedule, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM schedules WHERE project_id = ?
		ORDER BY calculated_at DESC LIMIT 1`, projectID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest schedule: %w", err)
	}
	return s.Schedule(ctx, id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*graph.Task, error) {
	var t graph.Task
	var status, start, due string
	var locked, deleted int
	if err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &status, &t.Duration,
		&start, &due, &t.AssigneeID, &t.Progress, &locked, &deleted, &t.Version); err != nil {
		return nil, err
	}
	t.Status = graph.TaskStatus(status)
	t.Locked = locked != 0
	t.Deleted = deleted != 0
	var err error
	if t.StartDate, err = parseDateColumn(start); err != nil {
		return nil, err
	}
	if t.DueDate, err = parseDateColumn(due); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanDependency(row scanner) (*graph.Dependency, error) {
	var d graph.Dependency
	var typ string
	if err := row.Scan(&d.ID, &d.ProjectID, &d.PredecessorID, &d.SuccessorID, &typ, &d.Lag, &d.Version); err != nil {
		return nil, err
	}
	d.Type = graph.DependencyType(typ)
	return &d, nil
}

// columnValue converts an update-map value to its SQL representation.
func columnValue(field string, v any) (any, error) {
	switch field {
	case "title", "assignee_id":
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("field %s: want string, got %T", field, v)
		}
		return s, nil
	case "status":
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("field status: want string, got %T", v)
		}
		return s, nil
	case "duration", "progress":
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("field %s: want number, got %T", field, v)
		}
		return f, nil
	case "start_date", "due_date":
		d, err := toDate(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field, err)
		}
		return dateString(d), nil
	}
	return nil, fmt.Errorf("unknown field %q", field)
}

func dateString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func parseDateColumn(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable stored date %q", s)
	}
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
