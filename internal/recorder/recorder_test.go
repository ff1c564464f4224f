package recorder

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/go-audio/wav"
)

type fakeSource struct {
	onChunk func([]int16)
	openErr error
	opened  int
	closed  int
}

func (f *fakeSource) Open(_, _ int, onChunk func([]int16)) error {
	if f.openErr != nil {
		return f.openErr
	}
	f.opened++
	f.onChunk = onChunk
	return nil
}

func (f *fakeSource) Close() error {
	f.closed++
	return nil
}

// capture feeds n samples through the source callback in device-sized
// chunks.
func (f *fakeSource) capture(t *testing.T, n int) {
	t.Helper()
	if f.onChunk == nil {
		t.Fatal("source was never opened")
	}
	for n > 0 {
		size := 1024
		if n < size {
			size = n
		}
		chunk := make([]int16, size)
		for i := range chunk {
			chunk[i] = int16(i%200 - 100)
		}
		f.onChunk(chunk)
		n -= size
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestStopEncodesRecordingAsWAV(t *testing.T) {
	src := &fakeSource{}
	r := New(src, 24000, 1, nil, testLogger())

	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	src.capture(t, 4800)

	payload, err := r.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}

	dec := wav.NewDecoder(bytes.NewReader(payload))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode produced container: %v", err)
	}
	if got := len(buf.Data); got != 4800 {
		t.Fatalf("expected 4800 samples in container, got %d", got)
	}
	if dec.SampleRate != 24000 || dec.NumChans != 1 {
		t.Fatalf("unexpected container format: %d Hz, %d channels", dec.SampleRate, dec.NumChans)
	}
	if src.closed != 1 {
		t.Fatalf("expected capture device closed once, got %d", src.closed)
	}
}

func TestStopDiscardsRecordingBelowMinimumDuration(t *testing.T) {
	src := &fakeSource{}
	r := New(src, 24000, 1, nil, testLogger())

	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	src.capture(t, 2399)

	payload, err := r.Stop()
	if !errors.Is(err, ErrRecordingTooShort) {
		t.Fatalf("expected ErrRecordingTooShort, got %v", err)
	}
	if payload != nil {
		t.Fatal("discarded recording must not produce a payload")
	}
}

func TestMinimumDurationBoundaryIsKept(t *testing.T) {
	src := &fakeSource{}
	r := New(src, 24000, 1, nil, testLogger())

	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	src.capture(t, 2400)

	payload, err := r.Stop()
	if err != nil {
		t.Fatalf("expected exactly 100ms to be kept, got %v", err)
	}
	if len(payload) == 0 {
		t.Fatal("expected encoded payload")
	}
}

func TestStartHaltsPlaybackFirst(t *testing.T) {
	src := &fakeSource{}
	halted := 0
	r := New(src, 24000, 1, func() { halted++ }, testLogger())

	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if halted != 1 {
		t.Fatalf("expected playback halted once, got %d", halted)
	}
}

func TestDeviceOpenFailureMapsToPermissionDenied(t *testing.T) {
	src := &fakeSource{openErr: errors.New("no default input device")}
	halted := 0
	r := New(src, 24000, 1, func() { halted++ }, testLogger())

	err := r.Start()
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if halted != 0 {
		t.Fatal("playback must not be halted when the microphone is unavailable")
	}
	if r.Recording() {
		t.Fatal("recorder must not be recording after a failed start")
	}
}

func TestStopWithoutStartReturnsNoAudio(t *testing.T) {
	src := &fakeSource{}
	r := New(src, 24000, 1, nil, testLogger())

	payload, err := r.Stop()
	if err != nil || payload != nil {
		t.Fatalf("expected empty result, got %v / %v", payload, err)
	}
	if src.closed != 0 {
		t.Fatal("idle stop must not touch the capture device")
	}
}

func TestChunksIgnoredAfterStop(t *testing.T) {
	src := &fakeSource{}
	r := New(src, 24000, 1, nil, testLogger())

	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	src.capture(t, 4800)
	if _, err := r.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// A straggling device callback after stop must not leak into the
	// next turn.
	src.onChunk(make([]int16, 1024))

	if err := r.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	src.capture(t, 2399)
	if _, err := r.Stop(); !errors.Is(err, ErrRecordingTooShort) {
		t.Fatalf("expected clean buffer on restart, got %v", err)
	}
}
