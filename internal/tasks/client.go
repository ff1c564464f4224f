package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/taskvox/taskvox-core/internal/bus"
	"github.com/taskvox/taskvox-core/internal/protocol"
)

// Client reaches the task service over NATS request-reply. It satisfies
// the tool bridge's TaskBackend interface.
type Client struct {
	bus     *bus.Client
	timeout time.Duration
}

func NewClient(busClient *bus.Client) *Client {
	return &Client{bus: busClient, timeout: 5 * time.Second}
}

func (c *Client) ListTasks(ctx context.Context, query protocol.TaskQuery) ([]protocol.Task, error) {
	var resp protocol.TaskListResponse
	if err := c.request(ctx, protocol.SubjectTaskList, protocol.TaskListRequest{Query: query}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return resp.Tasks, nil
}

func (c *Client) GetTask(ctx context.Context, id string) (protocol.Task, error) {
	return c.taskRequest(ctx, protocol.SubjectTaskGet, protocol.TaskGetRequest{ID: id})
}

func (c *Client) CreateTask(ctx context.Context, fields protocol.TaskFields) (protocol.Task, error) {
	return c.taskRequest(ctx, protocol.SubjectTaskCreate, protocol.TaskCreateRequest{Fields: fields})
}

func (c *Client) UpdateTask(ctx context.Context, id string, fields protocol.TaskFields) (protocol.Task, error) {
	return c.taskRequest(ctx, protocol.SubjectTaskUpdate, protocol.TaskUpdateRequest{ID: id, Fields: fields})
}

func (c *Client) taskRequest(ctx context.Context, subject string, req any) (protocol.Task, error) {
	var resp protocol.TaskResponse
	if err := c.request(ctx, subject, req, &resp); err != nil {
		return protocol.Task{}, err
	}
	if resp.Error != "" {
		return protocol.Task{}, errors.New(resp.Error)
	}
	if resp.Task == nil {
		return protocol.Task{}, errors.New("task service returned empty response")
	}
	return *resp.Task, nil
}

func (c *Client) request(ctx context.Context, subject string, req, resp any) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", subject, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	msg, err := c.bus.Conn().RequestWithContext(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("request %s: %w", subject, err)
	}
	if err := json.Unmarshal(msg.Data, resp); err != nil {
		return fmt.Errorf("decode %s response: %w", subject, err)
	}
	return nil
}
