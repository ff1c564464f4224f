package protocol

import "time"

// Task is the canonical task record exchanged with the task backend.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Source      string     `json:"source,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskQuery filters a task listing.
type TaskQuery struct {
	Status    string     `json:"status,omitempty"`
	Source    string     `json:"source,omitempty"`
	DueBefore *time.Time `json:"due_before,omitempty"`
	Limit     int        `json:"limit,omitempty"`
}

// TaskFields carries the mutable fields of a task for create and update
// requests. Nil pointers mean "leave unchanged" on update.
type TaskFields struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *string    `json:"status,omitempty"`
	Source      *string    `json:"source,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// Request-reply envelopes for the task service subjects.
type TaskListRequest struct {
	Query TaskQuery `json:"query"`
}

type TaskListResponse struct {
	Tasks []Task `json:"tasks"`
	Error string `json:"error,omitempty"`
}

type TaskGetRequest struct {
	ID string `json:"id"`
}

type TaskCreateRequest struct {
	Fields TaskFields `json:"fields"`
}

type TaskUpdateRequest struct {
	ID     string     `json:"id"`
	Fields TaskFields `json:"fields"`
}

type TaskResponse struct {
	Task  *Task  `json:"task,omitempty"`
	Error string `json:"error,omitempty"`
}

const (
	SubjectTaskList   = "tasks.list"
	SubjectTaskGet    = "tasks.get"
	SubjectTaskCreate = "tasks.create"
	SubjectTaskUpdate = "tasks.update"
)

// Task status values accepted by the store.
const (
	TaskStatusOpen = "open"
	TaskStatusDone = "done"
)
