// Package player schedules assistant speech fragments for gapless
// playback and detects the exact moment an utterance finishes.
package player

import (
	"log/slog"
	"sync"

	"github.com/taskvox/taskvox-core/internal/audio"
)

// Sink is the audio output device behind the scheduler. Open prepares the
// device for a new utterance and registers the per-fragment completion
// callback; Play submits one fragment for sequential playback; Stop halts
// the device immediately and discards anything not yet played.
type Sink interface {
	Open(sampleRate int, fragmentFinished func()) error
	Play(fragment []int16) error
	Stop() error
}

// Scheduler tracks an utterance as explicit counters: fragments enqueued,
// fragments fully played, and whether the upstream stream has ended.
// Played never exceeds enqueued, and the turn-completion callback fires
// exactly once, when the stream is done and the counts meet.
type Scheduler struct {
	sink       Sink
	sampleRate int
	onComplete func()
	logger     *slog.Logger

	mu         sync.Mutex
	enqueued   int
	played     int
	streamDone bool
	attached   bool
}

func New(sink Sink, sampleRate int, onComplete func(), log *slog.Logger) *Scheduler {
	return &Scheduler{
		sink:       sink,
		sampleRate: sampleRate,
		onComplete: onComplete,
		logger:     log.With(slog.String("component", "player")),
	}
}

// Enqueue decodes one base64 PCM16 fragment and hands it to the sink,
// opening the output stream first if none is active.
func (s *Scheduler) Enqueue(encoded string) error {
	fragment, err := audio.DecodeInt16(encoded)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if !s.attached {
		if err := s.sink.Open(s.sampleRate, s.fragmentFinished); err != nil {
			s.mu.Unlock()
			return err
		}
		s.attached = true
	}
	s.enqueued++
	s.mu.Unlock()

	return s.sink.Play(fragment)
}

// MarkStreamDone records that no more fragments will arrive for the
// current utterance. Completion itself is only ever evaluated from the
// sink's fragment-finished callback.
func (s *Scheduler) MarkStreamDone() {
	s.mu.Lock()
	s.streamDone = true
	s.mu.Unlock()
}

// fragmentFinished is invoked by the sink once per fragment as playback
// completes.
func (s *Scheduler) fragmentFinished() {
	s.mu.Lock()
	s.played++
	complete := s.streamDone && s.played == s.enqueued
	if complete {
		s.resetLocked()
	}
	s.mu.Unlock()

	if !complete {
		return
	}
	if err := s.sink.Stop(); err != nil {
		s.logger.Warn("failed to detach output stream", slog.String("error", err.Error()))
	}
	if s.onComplete != nil {
		s.onComplete()
	}
}

// Stop halts playback immediately and discards queued fragments. Used for
// barge-in; safe to call when no stream is active.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	wasAttached := s.attached
	s.resetLocked()
	s.mu.Unlock()

	if !wasAttached {
		return
	}
	if err := s.sink.Stop(); err != nil {
		s.logger.Warn("failed to stop output stream", slog.String("error", err.Error()))
	}
}

func (s *Scheduler) resetLocked() {
	s.enqueued = 0
	s.played = 0
	s.streamDone = false
	s.attached = false
}
