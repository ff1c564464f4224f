// Package client implements the terminal voice client: one websocket to
// the relay, a capture pipeline, a playback scheduler, and the turn
// state machine that keeps them half duplex.
package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/taskvox/taskvox-core/internal/config"
	"github.com/taskvox/taskvox-core/internal/player"
	"github.com/taskvox/taskvox-core/internal/protocol"
	"github.com/taskvox/taskvox-core/internal/realtime"
	"github.com/taskvox/taskvox-core/internal/recorder"
	"github.com/taskvox/taskvox-core/internal/voiceturn"
)

// Conn is the subset of *websocket.Conn the client uses.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client drives one voice conversation against the relay.
type Client struct {
	cfg    config.ClientConfig
	logger *slog.Logger
	out    io.Writer

	conn    Conn
	writeMu sync.Mutex

	scheduler *player.Scheduler
	recorder  *recorder.Recorder
	machine   *voiceturn.Machine
}

func New(cfg config.ClientConfig, sink player.Sink, source recorder.Source, out io.Writer, log *slog.Logger) *Client {
	c := &Client{
		cfg:    cfg,
		logger: log.With(slog.String("component", "client")),
		out:    out,
	}
	c.scheduler = player.New(sink, cfg.SampleRate, c.onPlaybackComplete, log)
	c.recorder = recorder.New(source, cfg.SampleRate, cfg.Channels, c.scheduler.Stop, log)
	c.machine = voiceturn.New(voiceturn.Hooks{
		StopPlayback: c.scheduler.Stop,
		SendCancel:   c.sendCancel,
		OnState:      c.announceState,
	}, log)
	return c
}

// Connect dials the relay. The machine stays in connecting until the
// relay announces session readiness.
func (c *Client) Connect(ctx context.Context) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.ServerURL, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return fmt.Errorf("dial relay: %w", err)
	}
	c.conn = conn
	c.logger.Info("connected to relay", slog.String("url", c.cfg.ServerURL))
	return nil
}

// Run reads relay messages until the socket closes or the context ends.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.scheduler.Stop()
			return fmt.Errorf("relay connection closed: %w", err)
		}
		c.handleMessage(data)
	}
}

// Close tears the connection down; Run then returns.
func (c *Client) Close() error {
	c.scheduler.Stop()
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// State exposes the current turn state for the UI loop.
func (c *Client) State() voiceturn.State {
	return c.machine.State()
}

// ToggleTurn is the single user control: starts capture when idle, ends
// it when listening, interrupts when the assistant speaks. Ignored
// elsewhere.
func (c *Client) ToggleTurn() {
	switch c.machine.State() {
	case voiceturn.StateIdle:
		if err := c.recorder.Start(); err != nil {
			if errors.Is(err, recorder.ErrPermissionDenied) {
				fmt.Fprintln(c.out, "microphone unavailable")
			}
			c.logger.Warn("failed to start capture", slog.String("error", err.Error()))
			return
		}
		c.machine.CaptureStarted()
	case voiceturn.StateListening:
		c.finishCapture()
	case voiceturn.StateSpeaking:
		c.machine.Interrupt()
	default:
		c.logger.Debug("ignoring input", slog.String("state", c.machine.State().String()))
	}
}

func (c *Client) finishCapture() {
	payload, err := c.recorder.Stop()
	if err != nil {
		if errors.Is(err, recorder.ErrRecordingTooShort) {
			fmt.Fprintln(c.out, "too short, try again")
		} else {
			c.logger.Warn("failed to stop capture", slog.String("error", err.Error()))
		}
		c.machine.CaptureStopped(false)
		return
	}
	if len(payload) == 0 {
		c.machine.CaptureStopped(false)
		return
	}

	c.sendJSON(protocol.ClientMessage{
		Type:  protocol.ClientMsgAudio,
		Audio: base64.StdEncoding.EncodeToString(payload),
	})
	c.sendJSON(protocol.ClientMessage{Type: protocol.ClientMsgCommitAudio})
	c.machine.CaptureStopped(true)
}

func (c *Client) handleMessage(data []byte) {
	ev, err := realtime.ParseEvent(data)
	if err != nil {
		c.logger.Debug("dropping undecodable relay frame", slog.String("error", err.Error()))
		return
	}

	switch ev := ev.(type) {
	case *realtime.AudioDelta:
		c.machine.AudioFragment()
		if err := c.scheduler.Enqueue(ev.Delta); err != nil {
			c.logger.Warn("failed to enqueue fragment", slog.String("error", err.Error()))
		}
	case *realtime.AudioDone:
		c.scheduler.MarkStreamDone()
	case *realtime.TranscriptDelta:
		fmt.Fprint(c.out, ev.Delta)
	case *realtime.TranscriptDone:
		fmt.Fprintln(c.out)
	case *realtime.ResponseDone:
		c.logger.Debug("response finished")
	case *realtime.ErrorEvent:
		// Relay errors carry message/code at the top level.
		var msg protocol.ErrorMessage
		if err := json.Unmarshal(data, &msg); err == nil && msg.Message != "" {
			fmt.Fprintf(c.out, "error: %s\n", msg.Message)
		}
		c.scheduler.Stop()
		c.machine.Error()
	case *realtime.Unknown:
		c.handleRelayMessage(ev.Type, ev.Raw)
	}
}

// handleRelayMessage covers relay-native message types, which share the
// downstream socket with forwarded upstream events.
func (c *Client) handleRelayMessage(msgType string, raw json.RawMessage) {
	switch msgType {
	case protocol.ServerMsgSessionReady:
		c.machine.SessionReady()
	case protocol.ServerMsgToolExecuted:
		var msg protocol.ToolExecuted
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		fmt.Fprintf(c.out, "[%s]\n", msg.Name)
	default:
		c.logger.Debug("ignoring relay message", slog.String("type", msgType))
	}
}

func (c *Client) onPlaybackComplete() {
	c.machine.PlaybackComplete()
}

func (c *Client) sendCancel() {
	c.sendJSON(protocol.ClientMessage{Type: protocol.ClientMsgCancel})
}

func (c *Client) announceState(_, to voiceturn.State) {
	switch to {
	case voiceturn.StateIdle:
		fmt.Fprintln(c.out, "(enter to talk)")
	case voiceturn.StateListening:
		fmt.Fprintln(c.out, "(listening, enter to send)")
	case voiceturn.StateProcessing:
		fmt.Fprintln(c.out, "(thinking...)")
	}
}

func (c *Client) sendJSON(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Warn("failed to marshal message", slog.String("error", err.Error()))
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Warn("failed to send message", slog.String("error", err.Error()))
	}
}
