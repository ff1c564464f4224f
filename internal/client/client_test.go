package client

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/taskvox/taskvox-core/internal/config"
	"github.com/taskvox/taskvox-core/internal/voiceturn"
)

type fakeConn struct {
	mu     sync.Mutex
	writes [][]byte
}

func (f *fakeConn) ReadMessage() (int, []byte, error) { select {} }

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) Close() error { return nil }

func (f *fakeConn) sentTypes(t *testing.T) []string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var types []string
	for _, w := range f.writes {
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(w, &env); err != nil {
			t.Fatalf("sent frame is not JSON: %s", w)
		}
		types = append(types, env.Type)
	}
	return types
}

type fakeSink struct {
	finished  func()
	fragments int
	stops     int
}

func (f *fakeSink) Open(_ int, fragmentFinished func()) error {
	f.finished = fragmentFinished
	return nil
}

func (f *fakeSink) Play([]int16) error {
	f.fragments++
	return nil
}

func (f *fakeSink) Stop() error {
	f.stops++
	return nil
}

type fakeSource struct {
	onChunk func([]int16)
}

func (f *fakeSource) Open(_, _ int, onChunk func([]int16)) error {
	f.onChunk = onChunk
	return nil
}

func (f *fakeSource) Close() error { return nil }

func newTestClient(t *testing.T) (*Client, *fakeConn, *fakeSink, *fakeSource) {
	t.Helper()
	sink := &fakeSink{}
	source := &fakeSource{}
	conn := &fakeConn{}
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	c := New(config.ClientConfig{
		ServerURL:  "ws://localhost:3600/v1/voice",
		SampleRate: 24000,
		Channels:   1,
	}, sink, source, &bytes.Buffer{}, log)
	c.conn = conn
	return c, conn, sink, source
}

func (c *Client) feedReady(t *testing.T) {
	t.Helper()
	c.handleMessage([]byte(`{"type":"session_ready","session_id":"s1"}`))
	if c.State() != voiceturn.StateIdle {
		t.Fatalf("expected idle after session_ready, got %s", c.State())
	}
}

func TestSessionReadyUnblocksTurnTaking(t *testing.T) {
	c, conn, _, _ := newTestClient(t)

	// Input before readiness must be ignored.
	c.ToggleTurn()
	if c.State() != voiceturn.StateConnecting {
		t.Fatalf("expected connecting, got %s", c.State())
	}

	c.feedReady(t)
	if got := conn.sentTypes(t); len(got) != 0 {
		t.Fatalf("readiness must not send anything, got %v", got)
	}
}

func TestFullTurnSendsAudioThenCommit(t *testing.T) {
	c, conn, sink, source := newTestClient(t)
	c.feedReady(t)

	c.ToggleTurn() // start capture
	if c.State() != voiceturn.StateListening {
		t.Fatalf("expected listening, got %s", c.State())
	}
	source.onChunk(make([]int16, 4800))
	c.ToggleTurn() // finish capture

	types := conn.sentTypes(t)
	if len(types) != 2 || types[0] != "audio" || types[1] != "commit_audio" {
		t.Fatalf("expected [audio commit_audio], got %v", types)
	}
	if c.State() != voiceturn.StateProcessing {
		t.Fatalf("expected processing, got %s", c.State())
	}

	// First assistant fragment starts playback and the speaking state.
	delta := base64.StdEncoding.EncodeToString(make([]byte, 960))
	c.handleMessage([]byte(`{"type":"response.audio.delta","delta":"` + delta + `"}`))
	if c.State() != voiceturn.StateSpeaking {
		t.Fatalf("expected speaking, got %s", c.State())
	}
	if sink.fragments != 1 {
		t.Fatalf("expected one fragment played, got %d", sink.fragments)
	}

	c.handleMessage([]byte(`{"type":"response.audio.done"}`))
	sink.finished()
	if c.State() != voiceturn.StateIdle {
		t.Fatalf("expected idle after playback completion, got %s", c.State())
	}
}

func TestShortRecordingIsDiscarded(t *testing.T) {
	c, conn, _, source := newTestClient(t)
	c.feedReady(t)

	c.ToggleTurn()
	source.onChunk(make([]int16, 100))
	c.ToggleTurn()

	if got := conn.sentTypes(t); len(got) != 0 {
		t.Fatalf("short recording must not be transmitted, got %v", got)
	}
	if c.State() != voiceturn.StateIdle {
		t.Fatalf("expected idle after discarded recording, got %s", c.State())
	}
}

func TestInterruptStopsPlaybackAndCancelsOnce(t *testing.T) {
	c, conn, sink, source := newTestClient(t)
	c.feedReady(t)

	c.ToggleTurn()
	source.onChunk(make([]int16, 4800))
	c.ToggleTurn()
	delta := base64.StdEncoding.EncodeToString(make([]byte, 960))
	c.handleMessage([]byte(`{"type":"response.audio.delta","delta":"` + delta + `"}`))

	c.ToggleTurn() // barge-in
	c.ToggleTurn() // must be a no-op: capture restart, not a second cancel

	cancels := 0
	for _, typ := range conn.sentTypes(t) {
		if typ == "cancel" {
			cancels++
		}
	}
	if cancels != 1 {
		t.Fatalf("expected exactly one cancel, got %d", cancels)
	}
	if sink.stops == 0 {
		t.Fatal("playback must be stopped on interruption")
	}
}

func TestRelayErrorReturnsToIdle(t *testing.T) {
	c, _, _, source := newTestClient(t)
	c.feedReady(t)

	c.ToggleTurn()
	source.onChunk(make([]int16, 4800))
	c.ToggleTurn()

	c.handleMessage([]byte(`{"type":"error","message":"voice backend connection lost","code":"upstream_error"}`))
	if c.State() != voiceturn.StateIdle {
		t.Fatalf("expected idle after relay error, got %s", c.State())
	}
}

func TestUnknownMessagesIgnored(t *testing.T) {
	c, _, _, _ := newTestClient(t)
	c.feedReady(t)

	c.handleMessage([]byte(`{"type":"rate_limits.updated"}`))
	c.handleMessage([]byte(`not json`))
	if c.State() != voiceturn.StateIdle {
		t.Fatalf("expected unknown frames to be ignored, got %s", c.State())
	}
}
