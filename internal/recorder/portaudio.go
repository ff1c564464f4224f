package recorder

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// captureFrames is the device buffer size per callback.
const captureFrames = 1024

// PortAudioSource captures from the default input device. The caller is
// responsible for portaudio.Initialize / Terminate.
type PortAudioSource struct {
	logger *slog.Logger

	mu     sync.Mutex
	stream *portaudio.Stream
}

func NewPortAudioSource(log *slog.Logger) *PortAudioSource {
	return &PortAudioSource{
		logger: log.With(slog.String("component", "capture")),
	}
}

func (s *PortAudioSource) Open(sampleRate, channels int, onChunk func([]int16)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return errors.New("capture stream already open")
	}

	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(sampleRate), captureFrames,
		func(in []int16) {
			// The callback buffer is reused by the device layer.
			chunk := make([]int16, len(in))
			copy(chunk, in)
			onChunk(chunk)
		})
	if err != nil {
		return fmt.Errorf("open capture stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start capture stream: %w", err)
	}

	s.stream = stream
	return nil
}

func (s *PortAudioSource) Close() error {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	if stream == nil {
		return nil
	}
	if err := stream.Stop(); err != nil {
		stream.Close()
		return fmt.Errorf("stop capture stream: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("close capture stream: %w", err)
	}
	return nil
}
