// Package voiceturn coordinates capture, transmission, and playback into
// a single turn-taking model.
package voiceturn

import (
	"log/slog"
	"sync"
)

// State is the single UI-facing conversation state.
type State int

const (
	StateConnecting State = iota
	StateIdle
	StateListening
	StateProcessing
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Hooks are the side effects the machine drives. All are optional.
type Hooks struct {
	// StopPlayback halts the playback scheduler on interruption.
	StopPlayback func()
	// SendCancel sends the upstream cancellation after playback stops.
	SendCancel func()
	// OnState observes every committed transition.
	OnState func(from, to State)
}

// Machine is the voice turn state machine. Events arriving in states
// where they have no defined transition are ignored; connecting and
// processing additionally ignore all user input.
type Machine struct {
	hooks  Hooks
	logger *slog.Logger

	mu    sync.Mutex
	state State
}

func New(hooks Hooks, log *slog.Logger) *Machine {
	return &Machine{
		hooks:  hooks,
		logger: log.With(slog.String("component", "voiceturn")),
		state:  StateConnecting,
	}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// transition commits from→to if the machine is in from, firing OnState
// outside the lock.
func (m *Machine) transition(from, to State) bool {
	m.mu.Lock()
	if m.state != from {
		current := m.state
		m.mu.Unlock()
		m.logger.Debug("ignoring transition",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
			slog.String("state", current.String()))
		return false
	}
	m.state = to
	m.mu.Unlock()

	m.logger.Debug("state changed",
		slog.String("from", from.String()), slog.String("to", to.String()))
	if m.hooks.OnState != nil {
		m.hooks.OnState(from, to)
	}
	return true
}

// SessionReady moves connecting→idle when the relay announces readiness.
func (m *Machine) SessionReady() bool {
	return m.transition(StateConnecting, StateIdle)
}

// CaptureStarted moves idle→listening after the microphone opened.
func (m *Machine) CaptureStarted() bool {
	return m.transition(StateIdle, StateListening)
}

// CaptureStopped leaves listening: to processing when the recording was
// long enough to transmit, back to idle otherwise.
func (m *Machine) CaptureStopped(validAudio bool) bool {
	if validAudio {
		return m.transition(StateListening, StateProcessing)
	}
	return m.transition(StateListening, StateIdle)
}

// AudioFragment marks the first assistant audio of a response,
// processing→speaking. Later fragments are no-ops.
func (m *Machine) AudioFragment() bool {
	return m.transition(StateProcessing, StateSpeaking)
}

// PlaybackComplete moves speaking→idle when the scheduler reports the
// utterance fully played.
func (m *Machine) PlaybackComplete() bool {
	return m.transition(StateSpeaking, StateIdle)
}

// Interrupt handles user barge-in while the assistant speaks: playback
// stops first so the user perceives instant silence, then exactly one
// cancellation goes upstream. Ignored in every other state.
func (m *Machine) Interrupt() bool {
	if !m.transition(StateSpeaking, StateIdle) {
		return false
	}
	if m.hooks.StopPlayback != nil {
		m.hooks.StopPlayback()
	}
	if m.hooks.SendCancel != nil {
		m.hooks.SendCancel()
	}
	return true
}

// Error returns the machine to idle from any state.
func (m *Machine) Error() {
	m.mu.Lock()
	from := m.state
	m.state = StateIdle
	m.mu.Unlock()

	if from == StateIdle {
		return
	}
	m.logger.Debug("state changed",
		slog.String("from", from.String()), slog.String("to", StateIdle.String()))
	if m.hooks.OnState != nil {
		m.hooks.OnState(from, StateIdle)
	}
}
