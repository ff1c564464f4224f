package player

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioSink plays PCM16 fragments through the default output device.
// The caller is responsible for portaudio.Initialize / Terminate.
type PortAudioSink struct {
	logger *slog.Logger

	mu       sync.Mutex
	stream   *portaudio.Stream
	queue    []int16
	pending  []int // remaining sample count per fragment, playback order
	finished chan struct{}
}

func NewPortAudioSink(log *slog.Logger) *PortAudioSink {
	return &PortAudioSink{
		logger: log.With(slog.String("component", "output")),
	}
}

func (s *PortAudioSink) Open(sampleRate int, fragmentFinished func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return errors.New("output stream already open")
	}

	// The audio callback must never block, so fragment completions are
	// relayed through a buffered channel drained off the device thread.
	finished := make(chan struct{}, 64)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), 0, s.fill)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start output stream: %w", err)
	}

	s.stream = stream
	s.finished = finished
	go func() {
		for range finished {
			fragmentFinished()
		}
	}()
	return nil
}

func (s *PortAudioSink) Play(fragment []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return errors.New("no open output stream")
	}
	s.queue = append(s.queue, fragment...)
	s.pending = append(s.pending, len(fragment))
	return nil
}

func (s *PortAudioSink) Stop() error {
	s.mu.Lock()
	stream := s.stream
	finished := s.finished
	s.stream = nil
	s.finished = nil
	s.queue = nil
	s.pending = nil
	s.mu.Unlock()

	if finished != nil {
		close(finished)
	}
	if stream == nil {
		return nil
	}
	if err := stream.Stop(); err != nil {
		stream.Close()
		return fmt.Errorf("stop output stream: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("close output stream: %w", err)
	}
	return nil
}

// fill is the portaudio output callback: it drains the sample queue into
// the device buffer and reports each fragment whose last sample was
// consumed.
func (s *PortAudioSink) fill(out []int16) {
	s.mu.Lock()
	n := copy(out, s.queue)
	s.queue = s.queue[n:]
	for i := n; i < len(out); i++ {
		out[i] = 0
	}

	consumed := n
	completions := 0
	for consumed > 0 && len(s.pending) > 0 {
		if s.pending[0] <= consumed {
			consumed -= s.pending[0]
			s.pending = s.pending[1:]
			completions++
		} else {
			s.pending[0] -= consumed
			consumed = 0
		}
	}
	finished := s.finished
	s.mu.Unlock()

	for i := 0; i < completions; i++ {
		select {
		case finished <- struct{}{}:
		default:
			// Dropping a completion would stall turn detection; with a
			// 64-slot buffer this indicates the drain goroutine died.
			s.logger.Warn("fragment completion dropped")
		}
	}
}
