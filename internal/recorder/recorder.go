// Package recorder accumulates microphone samples during a listening
// turn and encodes them for transmission.
package recorder

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/taskvox/taskvox-core/internal/audio"
)

// ErrPermissionDenied is returned when the capture device cannot be
// opened.
var ErrPermissionDenied = errors.New("microphone access denied")

// ErrRecordingTooShort is returned by Stop when the accumulated audio is
// below the minimum utterance duration and was discarded.
var ErrRecordingTooShort = errors.New("recording too short")

// Source is the capture device. Open begins delivering sample chunks to
// the callback; Close stops delivery and releases the device.
type Source interface {
	Open(sampleRate, channels int, onChunk func([]int16)) error
	Close() error
}

// Recorder drives one capture turn at a time. Turn-taking is half duplex:
// starting a recording halts any active playback via the stopPlayback
// hook before the microphone opens for accumulation.
type Recorder struct {
	source       Source
	sampleRate   int
	channels     int
	stopPlayback func()
	logger       *slog.Logger

	mu        sync.Mutex
	recording bool
	chunks    [][]int16
	total     int
}

func New(source Source, sampleRate, channels int, stopPlayback func(), log *slog.Logger) *Recorder {
	return &Recorder{
		source:       source,
		sampleRate:   sampleRate,
		channels:     channels,
		stopPlayback: stopPlayback,
		logger:       log.With(slog.String("component", "recorder")),
	}
}

// minSamples is the shortest utterance worth transmitting: 100 ms.
func (r *Recorder) minSamples() int {
	return r.sampleRate / 10
}

// Start opens the capture device and begins accumulating. A device open
// failure maps to ErrPermissionDenied and leaves playback untouched.
func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if err := r.source.Open(r.sampleRate, r.channels, r.onChunk); err != nil {
		r.logger.Warn("capture device open failed", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	if r.stopPlayback != nil {
		r.stopPlayback()
	}

	r.mu.Lock()
	r.recording = true
	r.chunks = nil
	r.total = 0
	r.mu.Unlock()

	r.logger.Debug("recording started", slog.Int("sample_rate", r.sampleRate))
	return nil
}

// Stop halts capture and returns the accumulated audio as a WAV payload.
// Recordings below the minimum duration are discarded and reported as
// ErrRecordingTooShort.
func (r *Recorder) Stop() ([]byte, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return nil, nil
	}
	r.recording = false
	chunks := r.chunks
	total := r.total
	r.chunks = nil
	r.total = 0
	r.mu.Unlock()

	if err := r.source.Close(); err != nil {
		r.logger.Warn("capture device close failed", slog.String("error", err.Error()))
	}

	if total < r.minSamples() {
		r.logger.Debug("discarding short recording",
			slog.Int("samples", total), slog.Int("minimum", r.minSamples()))
		return nil, ErrRecordingTooShort
	}

	flat := make([]int16, 0, total)
	for _, c := range chunks {
		flat = append(flat, c...)
	}
	return audio.EncodeWAV(flat, r.sampleRate, r.channels), nil
}

// Recording reports whether a capture turn is active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func (r *Recorder) onChunk(chunk []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	buf := make([]int16, len(chunk))
	copy(buf, chunk)
	r.chunks = append(r.chunks, buf)
	r.total += len(buf)
}
