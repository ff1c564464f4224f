package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/taskvox/taskvox-core/internal/bus"
	"github.com/taskvox/taskvox-core/internal/protocol"
)

// Service exposes the task store over NATS request-reply subjects so the
// relay's tool bridge (and any other consumer) can reach it.
type Service struct {
	store  *Store
	bus    *bus.Client
	logger *slog.Logger
	subs   []*nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc

	meter    metric.Meter
	requests metric.Int64Counter
}

func NewService(parent context.Context, store *Store, busClient *bus.Client, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		store:  store,
		bus:    busClient,
		logger: log.With(slog.String("component", "task-service")),
		ctx:    ctx,
		cancel: cancel,
		meter:  otel.Meter("github.com/taskvox/taskvox-core/tasks"),
	}
	counter, err := s.meter.Int64Counter("taskvox_task_requests_total",
		metric.WithDescription("Task backend requests served, by subject"))
	if err != nil {
		s.logger.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	} else {
		s.requests = counter
	}
	return s
}

func (s *Service) Start() error {
	handlers := map[string]nats.MsgHandler{
		protocol.SubjectTaskList:   s.handleList,
		protocol.SubjectTaskGet:    s.handleGet,
		protocol.SubjectTaskCreate: s.handleCreate,
		protocol.SubjectTaskUpdate: s.handleUpdate,
	}
	for subject, handler := range handlers {
		sub, err := s.bus.Conn().Subscribe(subject, handler)
		if err != nil {
			s.drain()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	return nil
}

func (s *Service) Close() {
	s.cancel()
	s.drain()
}

func (s *Service) drain() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.subs = nil
}

func (s *Service) Healthy() bool {
	return len(s.subs) == 4
}

func (s *Service) count(subject string) {
	if s.requests != nil {
		s.requests.Add(s.ctx, 1, metric.WithAttributes(attribute.String("subject", subject)))
	}
}

func (s *Service) handleList(msg *nats.Msg) {
	s.count(protocol.SubjectTaskList)
	var req protocol.TaskListRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.replyList(msg, nil, fmt.Errorf("decode list request: %w", err))
		return
	}
	tasks, err := s.store.List(s.ctx, req.Query)
	s.replyList(msg, tasks, err)
}

func (s *Service) handleGet(msg *nats.Msg) {
	s.count(protocol.SubjectTaskGet)
	var req protocol.TaskGetRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.replyTask(msg, protocol.Task{}, fmt.Errorf("decode get request: %w", err))
		return
	}
	task, err := s.store.Get(s.ctx, req.ID)
	s.replyTask(msg, task, err)
}

func (s *Service) handleCreate(msg *nats.Msg) {
	s.count(protocol.SubjectTaskCreate)
	var req protocol.TaskCreateRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.replyTask(msg, protocol.Task{}, fmt.Errorf("decode create request: %w", err))
		return
	}
	task, err := s.store.Create(s.ctx, req.Fields)
	s.replyTask(msg, task, err)
}

func (s *Service) handleUpdate(msg *nats.Msg) {
	s.count(protocol.SubjectTaskUpdate)
	var req protocol.TaskUpdateRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.replyTask(msg, protocol.Task{}, fmt.Errorf("decode update request: %w", err))
		return
	}
	task, err := s.store.Update(s.ctx, req.ID, req.Fields)
	s.replyTask(msg, task, err)
}

func (s *Service) replyList(msg *nats.Msg, tasks []protocol.Task, err error) {
	resp := protocol.TaskListResponse{Tasks: tasks}
	if err != nil {
		resp.Tasks = nil
		resp.Error = err.Error()
		if !errors.Is(err, ErrTaskNotFound) {
			s.logger.Warn("task list failed", slog.String("error", err.Error()))
		}
	}
	s.respond(msg, resp)
}

func (s *Service) replyTask(msg *nats.Msg, task protocol.Task, err error) {
	var resp protocol.TaskResponse
	if err != nil {
		resp.Error = err.Error()
		if !errors.Is(err, ErrTaskNotFound) {
			s.logger.Warn("task operation failed", slog.String("error", err.Error()))
		}
	} else {
		resp.Task = &task
	}
	s.respond(msg, resp)
}

func (s *Service) respond(msg *nats.Msg, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal task response", slog.String("error", err.Error()))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to respond to task request", slog.String("error", err.Error()))
	}
}
