package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/taskvox/taskvox-core/internal/audio"
	"github.com/taskvox/taskvox-core/internal/config"
	"github.com/taskvox/taskvox-core/internal/protocol"
	"github.com/taskvox/taskvox-core/internal/realtime"
	"github.com/taskvox/taskvox-core/internal/tools"
)

// ErrMissingAPIKey aborts a session before the upstream dial.
var ErrMissingAPIKey = errors.New("upstream api key is not configured")

// Downstream error codes surfaced to the client.
const (
	codeUpstreamAuth    = "upstream_auth"
	codeUpstreamConnect = "upstream_connect"
	codeUpstreamError   = "upstream_error"
)

// wsConn is the subset of *websocket.Conn the session uses. Tests supply
// fakes; production wires gorilla connections.
type wsConn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type origin int

const (
	originDownstream origin = iota
	originUpstream
)

type frame struct {
	origin  origin
	msgType int
	data    []byte
	err     error
}

// session is a per-connection actor. Both socket read pumps feed one
// channel and a single loop applies every state change, so the session
// needs no locks.
type session struct {
	id       string
	down     wsConn
	up       wsConn
	upstream config.UpstreamConfig
	bridge   *tools.Bridge
	logger   *slog.Logger

	writeTimeout time.Duration
	onToolCall   func()

	// dial is swapped out in tests.
	dial func(ctx context.Context) (wsConn, error)

	configured       bool
	sessionReadySent bool
}

type sessionParams struct {
	id           string
	down         wsConn
	upstream     config.UpstreamConfig
	bridge       *tools.Bridge
	logger       *slog.Logger
	writeTimeout time.Duration
	onToolCall   func()
}

func newSession(p sessionParams) *session {
	s := &session{
		id:           p.id,
		down:         p.down,
		upstream:     p.upstream,
		bridge:       p.bridge,
		logger:       p.logger.With(slog.String("session_id", p.id)),
		writeTimeout: p.writeTimeout,
		onToolCall:   p.onToolCall,
	}
	s.dial = s.dialUpstream
	return s
}

func (s *session) run(ctx context.Context) {
	defer s.down.Close()

	if s.upstream.APIKey == "" {
		s.logger.Error("refusing session", slog.String("error", ErrMissingAPIKey.Error()))
		s.sendDownstreamError("voice backend is not configured", codeUpstreamAuth)
		return
	}

	up, err := s.dial(ctx)
	if err != nil {
		s.logger.Error("upstream dial failed", slog.String("error", err.Error()))
		s.sendDownstreamError("failed to reach voice backend", codeUpstreamConnect)
		return
	}
	s.up = up
	defer s.up.Close()

	if err := s.configure(); err != nil {
		s.logger.Error("upstream configuration failed", slog.String("error", err.Error()))
		s.sendDownstreamError("failed to configure voice backend", codeUpstreamConnect)
		return
	}

	s.logger.Info("voice session started")

	frames := make(chan frame, 16)
	done := make(chan struct{})
	defer close(done)
	go pump(s.down, originDownstream, frames, done)
	go pump(s.up, originUpstream, frames, done)

	for f := range frames {
		if f.err != nil {
			if f.origin == originUpstream {
				s.logger.Warn("upstream socket closed", slog.String("error", f.err.Error()))
				s.sendDownstreamError("voice backend connection lost", codeUpstreamError)
			} else {
				s.logger.Info("client disconnected")
			}
			return
		}
		switch f.origin {
		case originDownstream:
			s.handleDownstream(f.msgType, f.data)
		case originUpstream:
			s.handleUpstream(ctx, f.data)
		}
	}
}

func pump(conn wsConn, from origin, frames chan<- frame, done <-chan struct{}) {
	for {
		msgType, data, err := conn.ReadMessage()
		select {
		case frames <- frame{origin: from, msgType: msgType, data: data, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *session) dialUpstream(ctx context.Context) (wsConn, error) {
	target, err := url.Parse(s.upstream.URL)
	if err != nil {
		return nil, err
	}
	if s.upstream.Model != "" {
		q := target.Query()
		q.Set("model", s.upstream.Model)
		target.RawQuery = q.Encode()
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.upstream.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target.String(), header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	return conn, nil
}

// configure sends the one-time session initialization command and marks
// the session ready to accept downstream audio.
func (s *session) configure() error {
	cmd, err := realtime.SessionUpdate(realtime.SessionSettings{
		Instructions: s.upstream.Instructions,
		Voice:        s.upstream.Voice,
		Temperature:  s.upstream.Temperature,
		Tools:        tools.Definitions(),
		ToolChoice:   "auto",
	})
	if err != nil {
		return err
	}
	if err := s.writeUpstream(cmd); err != nil {
		return err
	}
	s.configured = true
	return nil
}

func (s *session) handleDownstream(msgType int, data []byte) {
	if msgType == websocket.BinaryMessage {
		// Raw PCM frames carry no container header.
		s.forwardAudioUpstream(base64.StdEncoding.EncodeToString(data))
		return
	}

	var msg protocol.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		// Non-JSON text frames are treated as raw audio too.
		s.forwardAudioUpstream(base64.StdEncoding.EncodeToString(data))
		return
	}

	switch msg.Type {
	case protocol.ClientMsgAudio:
		payload, err := audio.StripWAVHeader(msg.Audio)
		if err != nil {
			s.logger.Warn("dropping malformed audio message", slog.String("error", err.Error()))
			return
		}
		s.forwardAudioUpstream(payload)
	case protocol.ClientMsgCommitAudio:
		s.sendUpstreamCommand(realtime.AudioCommit)
		s.sendUpstreamCommand(realtime.ResponseCreate)
	case protocol.ClientMsgCancel:
		s.sendUpstreamCommand(realtime.ResponseCancel)
	default:
		s.logger.Debug("ignoring unknown client message", slog.String("type", msg.Type))
	}
}

// forwardAudioUpstream appends base64 PCM to the upstream input buffer.
// Audio arriving before the session is configured is dropped, not queued.
func (s *session) forwardAudioUpstream(payload string) {
	if !s.configured {
		s.logger.Debug("dropping audio received before session configuration")
		return
	}
	if payload == "" {
		return
	}
	cmd, err := realtime.AudioAppend(payload)
	if err != nil {
		s.logger.Warn("failed to build audio append", slog.String("error", err.Error()))
		return
	}
	if err := s.writeUpstream(cmd); err != nil {
		s.logger.Warn("failed to forward audio upstream", slog.String("error", err.Error()))
	}
}

func (s *session) handleUpstream(ctx context.Context, data []byte) {
	ev, err := realtime.ParseEvent(data)
	if err != nil {
		s.logger.Warn("dropping undecodable upstream frame", slog.String("error", err.Error()))
		return
	}

	switch ev := ev.(type) {
	case *realtime.SessionCreated:
		// session.updated must not re-announce readiness.
		if !s.sessionReadySent {
			s.sessionReadySent = true
			s.writeDownstreamJSON(protocol.SessionReady{
				Type:      protocol.ServerMsgSessionReady,
				SessionID: s.id,
			})
		}
	case *realtime.SessionUpdated:
		s.logger.Debug("upstream session updated")
	case *realtime.AudioDelta, *realtime.AudioDone,
		*realtime.TranscriptDelta, *realtime.TranscriptDone,
		*realtime.ResponseDone:
		s.forwardDownstream(data)
	case *realtime.FunctionCallArgumentsDone:
		s.executeToolCall(ctx, ev)
	case *realtime.ErrorEvent:
		s.logger.Warn("upstream error",
			slog.String("code", ev.Error.Code),
			slog.String("message", ev.Error.Message))
		s.writeDownstreamJSON(protocol.ErrorMessage{
			Type:    protocol.ServerMsgError,
			Message: ev.Error.Message,
			Code:    ev.Error.Code,
		})
	case *realtime.Unknown:
		s.logger.Debug("ignoring upstream event", slog.String("type", ev.Type))
	}
}

// executeToolCall runs the bridge synchronously: no further upstream
// events are processed until the function output and the follow-up
// response request have been sent, which preserves command ordering.
func (s *session) executeToolCall(ctx context.Context, call *realtime.FunctionCallArgumentsDone) {
	if s.onToolCall != nil {
		s.onToolCall()
	}
	args := json.RawMessage(call.Arguments)
	result := s.bridge.Execute(ctx, call.Name, args)

	cmd, err := realtime.FunctionCallOutput(call.CallID, string(result))
	if err != nil {
		s.logger.Warn("failed to build function output", slog.String("error", err.Error()))
		return
	}
	if err := s.writeUpstream(cmd); err != nil {
		s.logger.Warn("failed to send function output", slog.String("error", err.Error()))
		return
	}
	s.sendUpstreamCommand(realtime.ResponseCreate)

	s.writeDownstreamJSON(protocol.ToolExecuted{
		Type: protocol.ServerMsgToolExecuted,
		Name: call.Name,
		Args: args,
	})
}

func (s *session) sendUpstreamCommand(build func() ([]byte, error)) {
	cmd, err := build()
	if err != nil {
		s.logger.Warn("failed to build upstream command", slog.String("error", err.Error()))
		return
	}
	if err := s.writeUpstream(cmd); err != nil {
		s.logger.Warn("failed to send upstream command", slog.String("error", err.Error()))
	}
}

func (s *session) writeUpstream(data []byte) error {
	if s.writeTimeout > 0 {
		_ = s.up.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	return s.up.WriteMessage(websocket.TextMessage, data)
}

func (s *session) forwardDownstream(data []byte) {
	if s.writeTimeout > 0 {
		_ = s.down.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if err := s.down.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Warn("failed to forward event downstream", slog.String("error", err.Error()))
	}
}

func (s *session) writeDownstreamJSON(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn("failed to marshal downstream message", slog.String("error", err.Error()))
		return
	}
	s.forwardDownstream(data)
}

func (s *session) sendDownstreamError(message, code string) {
	s.writeDownstreamJSON(protocol.ErrorMessage{
		Type:    protocol.ServerMsgError,
		Message: message,
		Code:    code,
	})
}
