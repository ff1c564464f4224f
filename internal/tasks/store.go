package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/taskvox/taskvox-core/internal/config"
	"github.com/taskvox/taskvox-core/internal/protocol"
)

// ErrTaskNotFound is returned when a task id does not exist.
var ErrTaskNotFound = errors.New("task not found")

// Store is the SQLite-backed task repository behind the task service.
type Store struct {
	db    *sql.DB
	cfg   config.TaskStoreConfig
	log   *slog.Logger
	clock func() time.Time
	newID func() string
}

// Open initializes the task store according to config.
func Open(ctx context.Context, cfg config.TaskStoreConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{
		db:    db,
		cfg:   cfg,
		log:   log,
		clock: time.Now,
		newID: func() string { return uuid.NewString() },
	}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT,
    status TEXT NOT NULL,
    source TEXT,
    due_date TIMESTAMP,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status_due ON tasks(status, due_date);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create inserts a new task from the given fields and returns it.
func (s *Store) Create(ctx context.Context, fields protocol.TaskFields) (protocol.Task, error) {
	now := s.clock().UTC()
	task := protocol.Task{
		ID:        s.newID(),
		Status:    protocol.TaskStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if fields.Title != nil {
		task.Title = strings.TrimSpace(*fields.Title)
	}
	if task.Title == "" {
		return protocol.Task{}, errors.New("task title must not be empty")
	}
	if fields.Description != nil {
		task.Description = *fields.Description
	}
	if fields.Status != nil {
		task.Status = *fields.Status
	}
	if fields.Source != nil {
		task.Source = *fields.Source
	}
	if fields.DueDate != nil {
		due := fields.DueDate.UTC()
		task.DueDate = &due
	}
	if err := validStatus(task.Status); err != nil {
		return protocol.Task{}, err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(id, title, description, status, source, due_date, created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Title, task.Description, task.Status, task.Source, task.DueDate, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return protocol.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return task, nil
}

// Get returns one task by id.
func (s *Store) Get(ctx context.Context, id string) (protocol.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, status, source, due_date, created_at, updated_at
		 FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.Task{}, ErrTaskNotFound
	}
	return task, err
}

// Update applies non-nil fields to an existing task and returns the
// updated record.
func (s *Store) Update(ctx context.Context, id string, fields protocol.TaskFields) (protocol.Task, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return protocol.Task{}, err
	}

	if fields.Title != nil {
		title := strings.TrimSpace(*fields.Title)
		if title == "" {
			return protocol.Task{}, errors.New("task title must not be empty")
		}
		task.Title = title
	}
	if fields.Description != nil {
		task.Description = *fields.Description
	}
	if fields.Status != nil {
		if err := validStatus(*fields.Status); err != nil {
			return protocol.Task{}, err
		}
		task.Status = *fields.Status
	}
	if fields.Source != nil {
		task.Source = *fields.Source
	}
	if fields.DueDate != nil {
		due := fields.DueDate.UTC()
		task.DueDate = &due
	}
	task.UpdatedAt = s.clock().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, status = ?, source = ?, due_date = ?, updated_at = ?
		 WHERE id = ?`,
		task.Title, task.Description, task.Status, task.Source, task.DueDate, task.UpdatedAt, task.ID)
	if err != nil {
		return protocol.Task{}, fmt.Errorf("update task: %w", err)
	}
	return task, nil
}

// List returns tasks matching the query, oldest due first.
func (s *Store) List(ctx context.Context, query protocol.TaskQuery) ([]protocol.Task, error) {
	sb := strings.Builder{}
	sb.WriteString(`SELECT id, title, description, status, source, due_date, created_at, updated_at FROM tasks`)
	var (
		clauses []string
		args    []any
	)
	if query.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, query.Status)
	}
	if query.Source != "" {
		clauses = append(clauses, "source = ?")
		args = append(args, query.Source)
	}
	if query.DueBefore != nil {
		clauses = append(clauses, "due_date IS NOT NULL AND due_date < ?")
		args = append(args, query.DueBefore.UTC())
	}
	if len(clauses) > 0 {
		sb.WriteString(" WHERE " + strings.Join(clauses, " AND "))
	}
	sb.WriteString(" ORDER BY due_date IS NULL, due_date ASC, created_at ASC")
	limit := query.Limit
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	sb.WriteString(" LIMIT ?")
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []protocol.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (protocol.Task, error) {
	var (
		task        protocol.Task
		description sql.NullString
		source      sql.NullString
		due         sql.NullTime
	)
	err := row.Scan(&task.ID, &task.Title, &description, &task.Status, &source, &due, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return protocol.Task{}, err
	}
	task.Description = description.String
	task.Source = source.String
	if due.Valid {
		t := due.Time.UTC()
		task.DueDate = &t
	}
	return task, nil
}

func validStatus(status string) error {
	switch status {
	case protocol.TaskStatusOpen, protocol.TaskStatusDone:
		return nil
	default:
		return fmt.Errorf("invalid task status %q", status)
	}
}
