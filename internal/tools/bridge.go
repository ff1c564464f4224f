package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskvox/taskvox-core/internal/protocol"
)

// Tool names exposed to the upstream model.
const (
	ToolListTasks  = "list_tasks"
	ToolGetTask    = "get_task"
	ToolCreateTask = "create_task"
	ToolUpdateTask = "update_task"
)

// TaskBackend is the task collaborator consumed by the bridge.
type TaskBackend interface {
	ListTasks(ctx context.Context, query protocol.TaskQuery) ([]protocol.Task, error)
	GetTask(ctx context.Context, id string) (protocol.Task, error)
	CreateTask(ctx context.Context, fields protocol.TaskFields) (protocol.Task, error)
	UpdateTask(ctx context.Context, id string, fields protocol.TaskFields) (protocol.Task, error)
}

// Bridge maps upstream function-call requests onto the task backend.
type Bridge struct {
	backend TaskBackend
	logger  *slog.Logger
}

func NewBridge(backend TaskBackend, log *slog.Logger) *Bridge {
	return &Bridge{
		backend: backend,
		logger:  log.With(slog.String("component", "tool-bridge")),
	}
}

// Execute runs one tool call and always returns a JSON payload. Backend
// failures come back as {"error": ...} data so the relay can answer every
// call exactly once.
func (b *Bridge) Execute(ctx context.Context, name string, args json.RawMessage) json.RawMessage {
	result, err := b.dispatch(ctx, name, args)
	if err != nil {
		b.logger.Warn("tool call failed",
			slog.String("tool", name),
			slog.String("error", err.Error()))
		return errorPayload(err)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return errorPayload(fmt.Errorf("marshal tool result: %w", err))
	}
	return data
}

func (b *Bridge) dispatch(ctx context.Context, name string, args json.RawMessage) (any, error) {
	switch name {
	case ToolListTasks:
		query, err := parseListArgs(args)
		if err != nil {
			return nil, err
		}
		tasks, err := b.backend.ListTasks(ctx, query)
		if err != nil {
			return nil, err
		}
		if tasks == nil {
			tasks = []protocol.Task{}
		}
		return map[string]any{"tasks": tasks}, nil
	case ToolGetTask:
		id, err := parseID(args)
		if err != nil {
			return nil, err
		}
		return b.backend.GetTask(ctx, id)
	case ToolCreateTask:
		fields, err := parseTaskArgs(args, true)
		if err != nil {
			return nil, err
		}
		return b.backend.CreateTask(ctx, fields)
	case ToolUpdateTask:
		id, err := parseID(args)
		if err != nil {
			return nil, err
		}
		fields, err := parseTaskArgs(args, false)
		if err != nil {
			return nil, err
		}
		return b.backend.UpdateTask(ctx, id, fields)
	default:
		return nil, fmt.Errorf("unknown tool %q", name)
	}
}

func errorPayload(err error) json.RawMessage {
	data, marshalErr := json.Marshal(map[string]string{"error": err.Error()})
	if marshalErr != nil {
		return json.RawMessage(`{"error":"internal tool failure"}`)
	}
	return data
}

type listArgs struct {
	Status    string `json:"status"`
	Source    string `json:"source"`
	DueBefore string `json:"due_before"`
	Limit     int    `json:"limit"`
}

func parseListArgs(args json.RawMessage) (protocol.TaskQuery, error) {
	var parsed listArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &parsed); err != nil {
			return protocol.TaskQuery{}, fmt.Errorf("decode list_tasks arguments: %w", err)
		}
	}
	query := protocol.TaskQuery{
		Status: parsed.Status,
		Source: parsed.Source,
		Limit:  parsed.Limit,
	}
	if parsed.DueBefore != "" {
		due, err := parseDate(parsed.DueBefore)
		if err != nil {
			return protocol.TaskQuery{}, err
		}
		query.DueBefore = &due
	}
	return query, nil
}

type idArgs struct {
	ID string `json:"id"`
}

func parseID(args json.RawMessage) (string, error) {
	var parsed idArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return "", fmt.Errorf("decode task id argument: %w", err)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("missing required argument: id")
	}
	return parsed.ID, nil
}

type taskArgs struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Source      *string `json:"source"`
	DueDate     *string `json:"due_date"`
	Recurring   bool    `json:"recurring"`
}

// parseTaskArgs normalizes create/update arguments: ISO 8601 due dates
// become time values, and on create a missing source is derived from the
// recurrence flag.
func parseTaskArgs(args json.RawMessage, create bool) (protocol.TaskFields, error) {
	var parsed taskArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return protocol.TaskFields{}, fmt.Errorf("decode task arguments: %w", err)
	}
	fields := protocol.TaskFields{
		Title:       parsed.Title,
		Description: parsed.Description,
		Status:      parsed.Status,
		Source:      parsed.Source,
	}
	if parsed.DueDate != nil && *parsed.DueDate != "" {
		due, err := parseDate(*parsed.DueDate)
		if err != nil {
			return protocol.TaskFields{}, err
		}
		fields.DueDate = &due
	}
	if create && fields.Source == nil {
		source := "voice"
		if parsed.Recurring {
			source = "voice-recurring"
		}
		fields.Source = &source
	}
	return fields, nil
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected ISO 8601", value)
}
