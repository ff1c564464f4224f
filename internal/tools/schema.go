package tools

import (
	"encoding/json"

	"github.com/taskvox/taskvox-core/internal/realtime"
)

// Definitions returns the static tool schema advertised to the upstream
// service in the session initialization command.
func Definitions() []realtime.Tool {
	return []realtime.Tool{
		{
			Type:        "function",
			Name:        ToolListTasks,
			Description: "List the user's tasks, optionally filtered by status, source, or due date.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"status": {"type": "string", "enum": ["open", "done"]},
					"source": {"type": "string"},
					"due_before": {"type": "string", "description": "ISO 8601 date or timestamp"},
					"limit": {"type": "integer"}
				}
			}`),
		},
		{
			Type:        "function",
			Name:        ToolGetTask,
			Description: "Fetch a single task by its id.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"id": {"type": "string"}
				},
				"required": ["id"]
			}`),
		},
		{
			Type:        "function",
			Name:        ToolCreateTask,
			Description: "Create a new task for the user.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"title": {"type": "string"},
					"description": {"type": "string"},
					"due_date": {"type": "string", "description": "ISO 8601 date or timestamp"},
					"recurring": {"type": "boolean"}
				},
				"required": ["title"]
			}`),
		},
		{
			Type:        "function",
			Name:        ToolUpdateTask,
			Description: "Update an existing task's fields, including marking it done.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"id": {"type": "string"},
					"title": {"type": "string"},
					"description": {"type": "string"},
					"status": {"type": "string", "enum": ["open", "done"]},
					"due_date": {"type": "string", "description": "ISO 8601 date or timestamp"}
				},
				"required": ["id"]
			}`),
		},
	}
}
