package tasks

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/taskvox/taskvox-core/internal/config"
	"github.com/taskvox/taskvox-core/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.TaskStoreConfig{Path: filepath.Join(t.TempDir(), "tasks.db"), Enabled: true}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open task store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func TestCreateAndGet(t *testing.T) {
	s := newStore(t)
	s.clock = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	s.newID = func() string { return "task-1" }

	due := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	created, err := s.Create(context.Background(), protocol.TaskFields{
		Title:   strPtr("buy milk"),
		Source:  strPtr("voice"),
		DueDate: &due,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != "task-1" || created.Status != protocol.TaskStatusOpen {
		t.Fatalf("unexpected created task %+v", created)
	}

	got, err := s.Get(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "buy milk" || got.Source != "voice" {
		t.Fatalf("unexpected task %+v", got)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Fatalf("unexpected due date %v", got.DueDate)
	}
}

func TestCreateRequiresTitle(t *testing.T) {
	s := newStore(t)
	if _, err := s.Create(context.Background(), protocol.TaskFields{}); err == nil {
		t.Fatal("expected error for missing title")
	}
	if _, err := s.Create(context.Background(), protocol.TaskFields{Title: strPtr("   ")}); err == nil {
		t.Fatal("expected error for blank title")
	}
}

func TestGetMissing(t *testing.T) {
	s := newStore(t)
	if _, err := s.Get(context.Background(), "nope"); err != ErrTaskNotFound {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestUpdatePartialFields(t *testing.T) {
	s := newStore(t)
	created, err := s.Create(context.Background(), protocol.TaskFields{Title: strPtr("water plants")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := s.Update(context.Background(), created.ID, protocol.TaskFields{
		Status: strPtr(protocol.TaskStatusDone),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != protocol.TaskStatusDone {
		t.Fatalf("expected done status, got %q", updated.Status)
	}
	if updated.Title != "water plants" {
		t.Fatalf("title should be unchanged, got %q", updated.Title)
	}

	if _, err := s.Update(context.Background(), created.ID, protocol.TaskFields{Status: strPtr("bogus")}); err == nil {
		t.Fatal("expected error for invalid status")
	}
}

func TestListFilters(t *testing.T) {
	s := newStore(t)
	mustCreate := func(title, status, source string, due *time.Time) {
		t.Helper()
		task, err := s.Create(context.Background(), protocol.TaskFields{
			Title:   strPtr(title),
			Source:  strPtr(source),
			DueDate: due,
		})
		if err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
		if status != protocol.TaskStatusOpen {
			if _, err := s.Update(context.Background(), task.ID, protocol.TaskFields{Status: strPtr(status)}); err != nil {
				t.Fatalf("update %s: %v", title, err)
			}
		}
	}

	soon := time.Now().Add(1 * time.Hour).UTC()
	later := time.Now().Add(48 * time.Hour).UTC()
	mustCreate("urgent", protocol.TaskStatusOpen, "voice", &soon)
	mustCreate("someday", protocol.TaskStatusOpen, "voice", &later)
	mustCreate("finished", protocol.TaskStatusDone, "voice-recurring", nil)

	open, err := s.List(context.Background(), protocol.TaskQuery{Status: protocol.TaskStatusOpen})
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("expected 2 open tasks, got %d", len(open))
	}
	if open[0].Title != "urgent" {
		t.Fatalf("expected earliest due first, got %q", open[0].Title)
	}

	cutoff := time.Now().Add(24 * time.Hour).UTC()
	dueSoon, err := s.List(context.Background(), protocol.TaskQuery{DueBefore: &cutoff})
	if err != nil {
		t.Fatalf("list due before: %v", err)
	}
	if len(dueSoon) != 1 || dueSoon[0].Title != "urgent" {
		t.Fatalf("unexpected due-before result %+v", dueSoon)
	}

	recurring, err := s.List(context.Background(), protocol.TaskQuery{Source: "voice-recurring"})
	if err != nil {
		t.Fatalf("list by source: %v", err)
	}
	if len(recurring) != 1 || recurring[0].Title != "finished" {
		t.Fatalf("unexpected source filter result %+v", recurring)
	}

	limited, err := s.List(context.Background(), protocol.TaskQuery{Limit: 1})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit 1, got %d", len(limited))
	}
}
